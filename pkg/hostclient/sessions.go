package hostclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// SessionSummary is one row of GET /session.
type SessionSummary struct {
	ID        string     `json:"id"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// ChildSummary is one row of GET /session/{id}/children.
type ChildSummary struct {
	ID string `json:"id"`
}

// ListSessions returns every session the host currently knows about.
func (c *Client) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	var out []SessionSummary
	if err := c.get(ctx, "/session", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListChildren returns the direct children of a session.
func (c *Client) ListChildren(ctx context.Context, sessionID string) ([]ChildSummary, error) {
	var out []ChildSummary
	if err := c.get(ctx, "/session/"+sessionID+"/children", &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// AbortSession aborts a session via the host API. A 404 is treated as
// already-dead and reported via ErrNotFound so the session killer can
// fold it into an already_dead=true KillConfirmation.
func (c *Client) AbortSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session/"+sessionID+"/abort", nil)
	if err != nil {
		return fmt.Errorf("hostclient: build abort request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hostclient: abort session %s: %w", sessionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("hostclient: abort session %s: unexpected status %d", sessionID, resp.StatusCode)
	}
	return nil
}
