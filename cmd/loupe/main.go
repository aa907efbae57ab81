// Command loupe is a terminal client for a conversational research
// assistant. It streams the assistant's thinking steps, answer tokens, and
// retrieved sources live, and pauses for confirmation before bulk paper
// ingestion.
//
// Usage:
//
//	LOUPE_API_KEY=... loupe [flags]
//
// Flags:
//
//	-base-url string     Backend base URL (default: $LOUPE_BASE_URL or http://localhost:8000)
//	-session string      Session ID to resume (loads persisted history)
//	-provider string     LLM provider override
//	-model string        Model override
//	-temperature float   Sampling temperature override
//	-debug               Write debug logs to the log file
//
// Configuration is also read from a .env file in the working directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lens-research/loupe"
	bt "github.com/lens-research/loupe/bubbletea"
	"github.com/lens-research/loupe/exchange"
	"github.com/lens-research/loupe/hydrate"
	"github.com/lens-research/loupe/sse"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "loupe: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; flags and the environment win.
	_ = godotenv.Load()

	var (
		baseURL     = flag.String("base-url", envOr("LOUPE_BASE_URL", "http://localhost:8000"), "Backend base URL")
		sessionID   = flag.String("session", "", "Session ID to resume")
		provider    = flag.String("provider", "", "LLM provider override")
		model       = flag.String("model", "", "Model override")
		temperature = flag.Float64("temperature", -1, "Sampling temperature override (-1 = backend default)")
		debug       = flag.Bool("debug", false, "Write debug logs to the log file")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, err := newLogger(*debug)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	client := sse.New(
		sse.WithBaseURL(*baseURL),
		sse.WithAPIKey(os.Getenv("LOUPE_API_KEY")),
		sse.WithLogger(logger),
	)

	conv := loupe.NewConversation(logger)
	cache := loupe.NewMessageCache()

	overrides := exchange.Overrides{Provider: *provider, Model: *model}
	if *temperature >= 0 {
		t := *temperature
		overrides.Temperature = &t
	}

	// The TUI model needs the orchestrator and the orchestrator needs the
	// model's toast channel; the indirection breaks the cycle.
	var pushToast func(loupe.Treatment)
	opts := []exchange.Option{
		exchange.WithLogger(logger),
		exchange.WithOverrides(overrides),
		exchange.WithToastHandler(func(t loupe.Treatment) {
			if pushToast != nil {
				pushToast(t)
			}
		}),
	}
	if *sessionID != "" {
		opts = append(opts, exchange.WithSessionID(*sessionID))
	}
	orch := exchange.New(client, conv, cache, opts...)

	// Resumed sessions render persisted turns through the same model the
	// live stream feeds.
	if *sessionID != "" {
		turns, err := client.History(ctx, *sessionID)
		if err != nil {
			return fmt.Errorf("load session %s: %w", *sessionID, err)
		}
		cache.Hydrate(*sessionID, hydrate.Messages(turns))
	}

	m := bt.New(orch, conv, cache, loupe.DefaultTheme())
	pushToast = m.PushToast

	return bt.Run(ctx, m)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newLogger writes operator logs to a file so they never corrupt the TUI.
func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{filepath.Join(os.TempDir(), "loupe.log")}
	cfg.ErrorOutputPaths = cfg.OutputPaths
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
