// Package sse implements [loupe.Transport] for the research-assistant
// backend's HTTP event-stream API.
//
// It POSTs a chat or resume request and parses the server-sent event
// response into semantic [loupe.Event] values through the pull-based
// [loupe.Stream] interface. Backend error events and transport failures
// surface as *loupe.StreamError from Next; context cancellation surfaces
// as an error wrapping loupe.ErrAborted.
package sse

import "github.com/lens-research/loupe"

const (
	defaultBaseURL = "http://localhost:8000"
	chatPath       = "/api/chat/stream"
)

// chatRequest is the JSON body sent to the chat stream endpoint. The query
// form and the resume form are mutually exclusive; tuning fields are
// omitted when zero so the backend applies its documented defaults.
type chatRequest struct {
	Query                string         `json:"query,omitempty"`
	SessionID            string         `json:"session_id,omitempty"`
	Provider             string         `json:"provider,omitempty"`
	Model                string         `json:"model,omitempty"`
	Temperature          *float64       `json:"temperature,omitempty"`
	TopK                 int            `json:"top_k,omitempty"`
	GuardrailThreshold   *float64       `json:"guardrail_threshold,omitempty"`
	MaxRetrievalAttempts int            `json:"max_retrieval_attempts,omitempty"`
	ConversationWindow   int            `json:"conversation_window,omitempty"`
	Resume               *resumeRequest `json:"resume,omitempty"`
}

type resumeRequest struct {
	SessionID   string   `json:"session_id"`
	ThreadID    string   `json:"thread_id"`
	Approved    bool     `json:"approved"`
	SelectedIDs []string `json:"selected_ids"`
}

// Wire payloads for the named inbound events.

type sseStatus struct {
	Stage   string         `json:"stage"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type sseContent struct {
	Token string `json:"token"`
}

type sseSources struct {
	Sources []loupe.SourceInfo `json:"sources"`
}

type sseIngestComplete struct {
	PapersProcessed int `json:"papers_processed"`
	ChunksCreated   int `json:"chunks_created"`
}

type sseError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func buildRequestBody(req loupe.Request) chatRequest {
	body := chatRequest{}
	if req.Resume != nil {
		body.Resume = &resumeRequest{
			SessionID:   req.Resume.SessionID,
			ThreadID:    req.Resume.ThreadID,
			Approved:    req.Resume.Approved,
			SelectedIDs: req.Resume.SelectedIDs,
		}
		if body.Resume.SelectedIDs == nil {
			body.Resume.SelectedIDs = []string{}
		}
		return body
	}
	body.Query = req.Query
	body.SessionID = req.SessionID
	body.Provider = req.Provider
	body.Model = req.Model
	body.Temperature = req.Temperature
	body.TopK = req.TopK
	body.GuardrailThreshold = req.GuardrailThreshold
	body.MaxRetrievalAttempts = req.MaxRetrievalAttempts
	body.ConversationWindow = req.ConversationWindow
	return body
}
