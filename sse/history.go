package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lens-research/loupe/hydrate"
)

const sessionsPath = "/api/chat/sessions/"

// History fetches the persisted turns for a session. The result feeds
// hydrate.Messages to rebuild the conversation's message list.
func (c *Client) History(ctx context.Context, sessionID string) ([]hydrate.Turn, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sse: history: empty session id")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+sessionsPath+sessionID+"/turns", nil)
	if err != nil {
		return nil, fmt.Errorf("sse: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sse: history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp)
	}

	var payload struct {
		Turns []hydrate.Turn `json:"turns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("sse: history: decode: %w", err)
	}
	return payload.Turns, nil
}
