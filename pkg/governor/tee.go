package governor

import (
	"context"

	"github.com/tarsy-labs/session-governor/pkg/models"
)

// Next is the underlying durable writer the tee forwards to.
type Next interface {
	WritePunch(ctx context.Context, p models.Punch) error
	WriteChildRelation(ctx context.Context, parentID, childID string) (bool, error)
}

// TeeWriter wraps a Writer so every punch written through it is also
// fed to a Governor's per-session detectors: live events arrive at the
// daemon, are classified, persisted, and tee'd to the loop detector.
type TeeWriter struct {
	next Next
	gov  *Governor
}

// Tee returns a daemon.PunchWriter-shaped wrapper around next that
// feeds every successfully written punch into gov.
func Tee(next Next, gov *Governor) *TeeWriter {
	return &TeeWriter{next: next, gov: gov}
}

// WritePunch persists p, then — only on success — ingests it into the
// punch's session detector.
func (t *TeeWriter) WritePunch(ctx context.Context, p models.Punch) error {
	if err := t.next.WritePunch(ctx, p); err != nil {
		return err
	}
	t.gov.Ingest(p)
	return nil
}

// WriteChildRelation passes through unchanged; child relations carry
// no detector-relevant signal.
func (t *TeeWriter) WriteChildRelation(ctx context.Context, parentID, childID string) (bool, error) {
	return t.next.WriteChildRelation(ctx, parentID, childID)
}
