package hostclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tarsy-labs/session-governor/pkg/fitter"
)

// createSessionRequest/Response mirror fitter.SessionRequest/Response's
// field names in the host's wire casing.
type createSessionRequest struct {
	Prompt         string `json:"prompt"`
	MaxTokenBudget int    `json:"max_token_budget"`
	TimeoutMS      int64  `json:"timeout_ms"`
	AgentMode      string `json:"agent_mode"`
	Model          string `json:"model,omitempty"`
	AutoApprove    bool   `json:"auto_approve"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
}

type createSessionResponse struct {
	SessionID    string   `json:"session_id"`
	Success      bool     `json:"success"`
	Cost         float64  `json:"cost"`
	FilesChanged []string `json:"files_changed"`
	DurationMS   int64    `json:"duration_ms"`
	Error        string   `json:"error,omitempty"`
}

// CreateSession satisfies fitter.SessionDispatcher by POSTing to the
// agent host's session-creation endpoint, so a bounded fitter session
// is launched on the same host this governor replica is already
// observing.
func (c *Client) CreateSession(ctx context.Context, req fitter.SessionRequest) (fitter.SessionResponse, error) {
	body, err := json.Marshal(createSessionRequest{
		Prompt:         req.Prompt,
		MaxTokenBudget: req.MaxTokenBudget,
		TimeoutMS:      req.TimeoutMS,
		AgentMode:      req.AgentMode,
		Model:          req.Model,
		AutoApprove:    req.AutoApprove,
		Host:           req.Host,
		Port:           req.Port,
	})
	if err != nil {
		return fitter.SessionResponse{}, fmt.Errorf("hostclient: marshal create-session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session", bytes.NewReader(body))
	if err != nil {
		return fitter.SessionResponse{}, fmt.Errorf("hostclient: build create-session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fitter.SessionResponse{}, fmt.Errorf("hostclient: create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fitter.SessionResponse{}, fmt.Errorf("hostclient: create session: unexpected status %d", resp.StatusCode)
	}

	var out createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fitter.SessionResponse{}, fmt.Errorf("hostclient: decode create-session response: %w", err)
	}
	return fitter.SessionResponse{
		SessionID:    out.SessionID,
		Success:      out.Success,
		Cost:         out.Cost,
		FilesChanged: out.FilesChanged,
		DurationMS:   out.DurationMS,
		Error:        out.Error,
	}, nil
}
