package store

import (
	"context"

	"github.com/tarsy-labs/session-governor/pkg/models"
)

// WriteCardRequirement inserts a punch-card requirement row unless the
// same (card_id, punch_type, punch_key_pattern) triple already exists.
// Cards are declared configuration, not observations, but share the
// insert-if-not-exists discipline of the rest of the Writer.
func (s *Store) WriteCardRequirement(ctx context.Context, req models.PunchCardRequirement) error {
	if !s.connected() {
		return ErrNotConnected
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO punch_cards (card_id, punch_type, punch_key_pattern, required, forbidden, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (card_id, punch_type, punch_key_pattern) DO NOTHING
	`, req.CardID, string(req.PunchType), req.PunchKeyPattern, req.Required, req.Forbidden, req.Description)
	return err
}

// CardRequirements returns every requirement row declared for a card.
func (s *Store) CardRequirements(ctx context.Context, cardID string) ([]models.PunchCardRequirement, error) {
	if !s.connected() {
		return nil, ErrNotConnected
	}
	rows, err := s.pool.Query(ctx, `
		SELECT card_id, punch_type, punch_key_pattern, required, forbidden, description
		FROM punch_cards WHERE card_id = $1
	`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PunchCardRequirement
	for rows.Next() {
		var req models.PunchCardRequirement
		var punchType string
		if err := rows.Scan(&req.CardID, &punchType, &req.PunchKeyPattern, &req.Required,
			&req.Forbidden, &req.Description); err != nil {
			return nil, err
		}
		req.PunchType = models.PunchType(punchType)
		out = append(out, req)
	}
	return out, rows.Err()
}
