package store

import (
	"context"

	"github.com/tarsy-labs/session-governor/pkg/models"
)

// WriteMessage inserts m unless a row keyed by (session_id, ts, role)
// already exists.
func (s *Store) WriteMessage(ctx context.Context, m models.Message) error {
	if !s.connected() {
		return ErrNotConnected
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (session_id, role, content_type, content_preview, ts, cost, tokens_in, tokens_out)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, ts, role) DO NOTHING
	`, m.SessionID, m.Role, m.ContentType, m.ContentPreview, m.Timestamp, m.Cost, m.TokensInput, m.TokensOutput)
	return err
}

// MessagesBySession returns a session's messages ordered by timestamp.
func (s *Store) MessagesBySession(ctx context.Context, sessionID string) ([]models.Message, error) {
	if !s.connected() {
		return nil, ErrNotConnected
	}
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, role, content_type, content_preview, ts, cost, tokens_in, tokens_out
		FROM messages WHERE session_id = $1 ORDER BY ts ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.SessionID, &m.Role, &m.ContentType, &m.ContentPreview,
			&m.Timestamp, &m.Cost, &m.TokensInput, &m.TokensOutput); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
