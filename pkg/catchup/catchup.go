// Package catchup implements startup replay: on daemon start and after
// each stream reconnect, replay recent session history through the same classify -> write_punch
// path live ingestion uses, so a restart or a missed stream segment
// never loses an observation.
package catchup

import (
	"context"
	"log/slog"
	"time"

	"github.com/tarsy-labs/session-governor/pkg/classify"
	"github.com/tarsy-labs/session-governor/pkg/hostclient"
	"github.com/tarsy-labs/session-governor/pkg/models"
)

// SessionLister lists known sessions and their children.
type SessionLister interface {
	ListSessions(ctx context.Context) ([]hostclient.SessionSummary, error)
	ListChildren(ctx context.Context, sessionID string) ([]hostclient.ChildSummary, error)
}

// MessageFetcher fetches a session's flattened message history.
type MessageFetcher interface {
	ListMessages(ctx context.Context, sessionID string) ([]hostclient.Part, error)
}

// Writer is the subset of the durable writer catch-up needs.
type Writer interface {
	WritePunch(ctx context.Context, p models.Punch) error
	WriteChildRelation(ctx context.Context, parentID, childID string) (bool, error)
	SyncChildRelsFromPunches(ctx context.Context) (int, error)
}

// Runner replays recent sessions through the classifier/writer path.
// All writes go through the same idempotent path as live ingestion,
// so re-running catch-up is always safe.
type Runner struct {
	sessions SessionLister
	messages MessageFetcher
	writer   Writer
	window   time.Duration
}

// New constructs a Runner that only replays sessions whose UpdatedAt
// falls within window of "now" (the time Run is called).
func New(sessions SessionLister, messages MessageFetcher, writer Writer, window time.Duration) *Runner {
	return &Runner{sessions: sessions, messages: messages, writer: writer, window: window}
}

// Run lists sessions from the host, replays each one updated within
// the catch-up window, records child relations, then fills any
// remaining gaps via sync_child_rels_from_punches.
func (r *Runner) Run(ctx context.Context) error {
	sessions, err := r.sessions.ListSessions(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-r.window)
	for _, sess := range sessions {
		if sess.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := r.replaySession(ctx, sess); err != nil {
			slog.Warn("catchup: failed to replay session", "session_id", sess.ID, "error", err)
		}
	}

	if _, err := r.writer.SyncChildRelsFromPunches(ctx); err != nil {
		slog.Warn("catchup: sync_child_rels_from_punches failed", "error", err)
	}
	return nil
}

// replaySession synthesizes session.created/session.updated lifecycle
// events, then replays the session's message history as synthetic
// message.part.updated events, then records its child relations —
// each through the same classify -> write_punch path as live
// ingestion.
func (r *Runner) replaySession(ctx context.Context, sess hostclient.SessionSummary) error {
	if err := r.writeFromEvent(ctx, "session.created", map[string]any{
		"info": map[string]any{"id": sess.ID, "status": sess.Status},
	}); err != nil {
		return err
	}
	if err := r.writeFromEvent(ctx, "session.updated", map[string]any{
		"info": map[string]any{"id": sess.ID, "status": sess.Status},
	}); err != nil {
		return err
	}

	parts, err := r.messages.ListMessages(ctx, sess.ID)
	if err != nil {
		slog.Warn("catchup: failed to fetch message history", "session_id", sess.ID, "error", err)
	}
	for _, part := range parts {
		if err := r.writeFromEvent(ctx, "message.part.updated", map[string]any{
			"part": partToProperties(sess.ID, part),
		}); err != nil {
			slog.Warn("catchup: failed to replay part", "session_id", sess.ID, "error", err)
		}
	}

	kids, err := r.sessions.ListChildren(ctx, sess.ID)
	if err != nil {
		slog.Warn("catchup: failed to list children", "session_id", sess.ID, "error", err)
		return nil
	}
	for _, child := range kids {
		if _, err := r.writer.WriteChildRelation(ctx, sess.ID, child.ID); err != nil {
			slog.Warn("catchup: failed to record child relation",
				"parent_id", sess.ID, "child_id", child.ID, "error", err)
		}
	}
	return nil
}

func (r *Runner) writeFromEvent(ctx context.Context, eventType string, properties map[string]any) error {
	punch := classify.Classify(classify.Event{Type: eventType, Properties: properties})
	if punch == nil {
		return nil
	}
	return r.writer.WritePunch(ctx, *punch)
}

// partToProperties rebuilds the raw `part` shape classify.Classify
// expects from a normalized hostclient.Part, so replayed history
// flows through the identical classification rules as live events.
func partToProperties(sessionID string, part hostclient.Part) map[string]any {
	p := map[string]any{
		"type":      part.Type,
		"tool":      part.Tool,
		"sessionID": sessionID,
		"content":   part.Content,
	}
	if part.Status != "" || part.Error != "" {
		p["state"] = map[string]any{"status": part.Status, "error": part.Error}
	}
	if part.Cost != nil {
		p["cost"] = *part.Cost
	}
	tokens := map[string]any{}
	if part.TokensInput != nil {
		tokens["input"] = *part.TokensInput
	}
	if part.TokensOutput != nil {
		tokens["output"] = *part.TokensOutput
	}
	if part.TokensReasoning != nil {
		tokens["reasoning"] = *part.TokensReasoning
	}
	if len(tokens) > 0 {
		p["tokens"] = tokens
	}
	return p
}
