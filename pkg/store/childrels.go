package store

import "context"

// WriteChildRelation inserts the parent→child edge unless it already
// exists, reporting whether a row was actually inserted.
func (s *Store) WriteChildRelation(ctx context.Context, parentID, childID string) (bool, error) {
	if !s.connected() {
		return false, ErrNotConnected
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO child_rels (parent_id, child_id) VALUES ($1, $2)
		ON CONFLICT (parent_id, child_id) DO NOTHING
	`, parentID, childID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ChildrenOf returns the child session ids directly beneath parentID.
func (s *Store) ChildrenOf(ctx context.Context, parentID string) ([]string, error) {
	if !s.connected() {
		return nil, ErrNotConnected
	}
	rows, err := s.pool.Query(ctx, `SELECT child_id FROM child_rels WHERE parent_id = $1`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var childID string
		if err := rows.Scan(&childID); err != nil {
			return nil, err
		}
		out = append(out, childID)
	}
	return out, rows.Err()
}
