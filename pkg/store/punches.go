package store

import (
	"context"
	"strings"

	"github.com/tarsy-labs/session-governor/pkg/models"
)

// WritePunch inserts p unless a row with the same SourceHash already
// exists. The uniqueness check is enforced by the punches.source_hash
// unique constraint; the conflict is swallowed here so repeated
// classification of the same event is idempotent.
func (s *Store) WritePunch(ctx context.Context, p models.Punch) error {
	if !s.connected() {
		return ErrNotConnected
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO punches
			(task_id, punch_type, punch_key, observed_at, source_hash, content_hash,
			 cost, tokens_input, tokens_output, tokens_reasoning)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source_hash) DO NOTHING
	`, p.TaskID, string(p.PunchType), p.PunchKey, p.ObservedAt, p.SourceHash,
		nullIfEmpty(p.ContentHash), p.Cost, p.TokensInput, p.TokensOutput, p.TokensReasoning)
	return err
}

// PunchesByTask returns every punch recorded for a task, ordered by
// observation time, used by the validator.
func (s *Store) PunchesByTask(ctx context.Context, taskID string) ([]models.Punch, error) {
	if !s.connected() {
		return nil, ErrNotConnected
	}
	rows, err := s.pool.Query(ctx, `
		SELECT task_id, punch_type, punch_key, observed_at, source_hash,
		       COALESCE(content_hash, ''), cost, tokens_input, tokens_output, tokens_reasoning
		FROM punches
		WHERE task_id = $1
		ORDER BY observed_at ASC
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Punch
	for rows.Next() {
		var p models.Punch
		var punchType string
		if err := rows.Scan(&p.TaskID, &punchType, &p.PunchKey, &p.ObservedAt, &p.SourceHash,
			&p.ContentHash, &p.Cost, &p.TokensInput, &p.TokensOutput, &p.TokensReasoning); err != nil {
			return nil, err
		}
		p.PunchType = models.PunchType(punchType)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SyncChildRelsFromPunches scans session_lifecycle/workflow punches
// that record a child spawn (punch_key of the form
// "child_spawned:<childID>") and inserts the corresponding child_rels
// edge for any not already present, returning the count inserted.
func (s *Store) SyncChildRelsFromPunches(ctx context.Context) (int, error) {
	if !s.connected() {
		return 0, ErrNotConnected
	}
	rows, err := s.pool.Query(ctx, `
		SELECT task_id, punch_key FROM punches
		WHERE punch_type IN ($1, $2) AND punch_key LIKE 'child_spawned:%'
	`, string(models.PunchTypeSessionLifecycle), string(models.PunchTypeWorkflow))
	if err != nil {
		return 0, err
	}

	type edge struct{ parent, child string }
	var edges []edge
	for rows.Next() {
		var parentID, key string
		if err := rows.Scan(&parentID, &key); err != nil {
			rows.Close()
			return 0, err
		}
		childID := strings.TrimPrefix(key, "child_spawned:")
		if childID == "" {
			continue
		}
		edges = append(edges, edge{parent: parentID, child: childID})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	inserted := 0
	for _, e := range edges {
		ok, err := s.WriteChildRelation(ctx, e.parent, e.child)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
