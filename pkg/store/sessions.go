package store

import (
	"context"

	"github.com/tarsy-labs/session-governor/pkg/models"
)

// WriteSession upserts a session keyed by SessionID, overwriting the
// mutable fields (status, cost, tokens, completed_at) on conflict.
func (s *Store) WriteSession(ctx context.Context, sess models.Session) error {
	if !s.connected() {
		return ErrNotConnected
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions
			(session_id, task_id, mode, model, status, total_cost, tokens_in, tokens_out,
			 tokens_reasoning, started_at, completed_at, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_id) DO UPDATE SET
			status           = EXCLUDED.status,
			total_cost       = EXCLUDED.total_cost,
			tokens_in        = EXCLUDED.tokens_in,
			tokens_out       = EXCLUDED.tokens_out,
			tokens_reasoning = EXCLUDED.tokens_reasoning,
			completed_at     = EXCLUDED.completed_at,
			outcome          = EXCLUDED.outcome
	`, sess.SessionID, sess.TaskID, sess.Mode, sess.Model, string(sess.Status),
		sess.TotalCost, sess.TokensInput, sess.TokensOutput, sess.TokensReasoning,
		sess.StartedAt, sess.CompletedAt, sess.Outcome)
	return err
}

// GetSession fetches a single session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if !s.connected() {
		return nil, ErrNotConnected
	}
	var sess models.Session
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT session_id, task_id, mode, model, status, total_cost, tokens_in, tokens_out,
		       tokens_reasoning, started_at, completed_at, outcome
		FROM sessions WHERE session_id = $1
	`, sessionID).Scan(&sess.SessionID, &sess.TaskID, &sess.Mode, &sess.Model, &status,
		&sess.TotalCost, &sess.TokensInput, &sess.TokensOutput, &sess.TokensReasoning,
		&sess.StartedAt, &sess.CompletedAt, &sess.Outcome)
	if err != nil {
		return nil, translateNoRows(err)
	}
	sess.Status = models.SessionStatus(status)
	return &sess, nil
}
