package store

import (
	"context"

	"github.com/tarsy-labs/session-governor/pkg/models"
)

// WriteToolCall inserts tc unless a row keyed by (session_id, ts,
// tool_name) already exists.
func (s *Store) WriteToolCall(ctx context.Context, tc models.ToolCall) error {
	if !s.connected() {
		return ErrNotConnected
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tool_calls (session_id, tool_name, args_summary, status, error, duration_ms, cost, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, ts, tool_name) DO NOTHING
	`, tc.SessionID, tc.ToolName, tc.ArgsSummary, tc.Status, tc.Error, tc.DurationMS, tc.Cost, tc.Timestamp)
	return err
}

// ToolCallsBySession returns a session's tool calls ordered by timestamp.
func (s *Store) ToolCallsBySession(ctx context.Context, sessionID string) ([]models.ToolCall, error) {
	if !s.connected() {
		return nil, ErrNotConnected
	}
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, tool_name, args_summary, status, error, duration_ms, cost, ts
		FROM tool_calls WHERE session_id = $1 ORDER BY ts ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ToolCall
	for rows.Next() {
		var tc models.ToolCall
		if err := rows.Scan(&tc.SessionID, &tc.ToolName, &tc.ArgsSummary, &tc.Status,
			&tc.Error, &tc.DurationMS, &tc.Cost, &tc.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
