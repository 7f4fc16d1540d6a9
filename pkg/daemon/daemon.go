// Package daemon implements the governor's lifecycle over an
// already-connected writer: run catch-up, then subscribe to the agent
// host's live event stream, piping every event through classify then
// write_punch, reconnecting with capped exponential backoff and
// re-running catch-up after each reconnect.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tarsy-labs/session-governor/pkg/classify"
	"github.com/tarsy-labs/session-governor/pkg/config"
	"github.com/tarsy-labs/session-governor/pkg/hostclient"
	"github.com/tarsy-labs/session-governor/pkg/models"
)

// State names one point in the daemon's lifecycle state machine:
// Initializing -> Connected -> CatchingUp -> Streaming ->
// (Reconnecting <-> Streaming)* -> ShuttingDown -> Terminated.
type State string

// State values.
const (
	StateInitializing State = "initializing"
	StateConnected    State = "connected"
	StateCatchingUp   State = "catching_up"
	StateStreaming    State = "streaming"
	StateReconnecting State = "reconnecting"
	StateShuttingDown State = "shutting_down"
	StateTerminated   State = "terminated"
)

// EventSource subscribes to the agent host's live event stream.
type EventSource interface {
	SubscribeEvents(ctx context.Context) (<-chan hostclient.StreamEvent, <-chan error, error)
}

// ChildLister resolves a session's direct children, used to record
// child relations when a session_completed punch is observed.
type ChildLister interface {
	ListChildren(ctx context.Context, sessionID string) ([]hostclient.ChildSummary, error)
}

// PunchWriter is the subset of the durable writer the daemon needs.
type PunchWriter interface {
	WritePunch(ctx context.Context, p models.Punch) error
	WriteChildRelation(ctx context.Context, parentID, childID string) (bool, error)
}

// Daemon drives the ingest lifecycle: a single cooperative consumer
// serializing event processing, so a session's own punches are never
// reordered relative to each other.
type Daemon struct {
	events    EventSource
	writer    PunchWriter
	children  ChildLister
	catchUp   func(ctx context.Context) error
	reconnect config.ReconnectConfig

	mu    sync.RWMutex
	state State

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Daemon. catchUp may be nil to skip the catch-up
// phase entirely (used by tests that only exercise the subscribe
// loop).
func New(events EventSource, writer PunchWriter, children ChildLister, catchUp func(ctx context.Context) error, reconnect config.ReconnectConfig) *Daemon {
	return &Daemon{
		events:    events,
		writer:    writer,
		children:  children,
		catchUp:   catchUp,
		reconnect: reconnect,
		state:     StateInitializing,
	}
}

// State reports the daemon's current lifecycle state.
func (d *Daemon) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Daemon) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Start does not connect the writer (callers connect it before
// constructing the Daemon); it runs catch-up, then enters
// the subscribe-process loop. Start blocks until ctx is cancelled or
// Stop is called; callers typically run it in its own goroutine.
func (d *Daemon) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	defer close(d.done)

	d.setState(StateConnected)

	if d.catchUp != nil {
		d.setState(StateCatchingUp)
		if err := d.catchUp(runCtx); err != nil {
			if isExpectedCancellation(err) {
				d.setState(StateTerminated)
				return nil
			}
			slog.Error("daemon: catch-up failed", "error", err)
		}
	}

	err := d.subscribeLoop(runCtx)
	d.setState(StateTerminated)
	return err
}

// Stop signals the subscribe loop to shut down and waits for it to
// exit. Safe to call even if Start was never invoked.
func (d *Daemon) Stop() {
	d.setState(StateShuttingDown)
	if d.cancel != nil {
		d.cancel()
	}
	if d.done != nil {
		<-d.done
	}
}

// subscribeLoop opens the event stream, consumes events until the
// stream ends or errors, then reconnects with capped exponential
// backoff, running catch-up again before resubscribing. Returns when
// ctx is cancelled.
func (d *Daemon) subscribeLoop(ctx context.Context) error {
	backoff := d.reconnect.Initial

	for {
		if ctx.Err() != nil {
			return nil
		}

		d.setState(StateStreaming)
		events, errs, err := d.events.SubscribeEvents(ctx)
		if err != nil {
			if isExpectedCancellation(err) {
				return nil
			}
			slog.Error("daemon: subscribe failed", "error", err)
			if !d.sleepBackoff(ctx, &backoff) {
				return nil
			}
			continue
		}

		consumedAny, streamErr := d.consume(ctx, events, errs)
		if ctx.Err() != nil {
			return nil
		}
		if streamErr != nil && !isExpectedCancellation(streamErr) {
			slog.Error("daemon: event stream error", "error", streamErr)
		}

		if consumedAny {
			backoff = d.reconnect.Initial
		}

		d.setState(StateReconnecting)
		if !d.sleepBackoff(ctx, &backoff) {
			return nil
		}
		if d.catchUp != nil {
			if err := d.catchUp(ctx); err != nil && !isExpectedCancellation(err) {
				slog.Error("daemon: catch-up after reconnect failed", "error", err)
			}
		}
	}
}

// consume drains events until the channel closes or errs reports a
// terminal error, processing each event through classify then
// write_punch. Returns whether at least one event was successfully
// consumed (used to decide whether to reset the backoff).
func (d *Daemon) consume(ctx context.Context, events <-chan hostclient.StreamEvent, errs <-chan error) (bool, error) {
	consumedAny := false
	for {
		select {
		case <-ctx.Done():
			return consumedAny, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return consumedAny, nil
			}
			if err := d.process(ctx, ev); err != nil {
				slog.Error("daemon: failed to process event", "event_type", ev.Type, "error", err)
			}
			consumedAny = true
		case err := <-errs:
			return consumedAny, err
		}
	}
}

// process classifies one event and, if it produced a punch, writes it
// and — for session_completed punches — records child relations.
func (d *Daemon) process(ctx context.Context, ev hostclient.StreamEvent) error {
	punch := classify.Classify(classify.Event{Type: ev.Type, Properties: ev.Properties})
	if punch == nil {
		return nil
	}
	if err := d.writer.WritePunch(ctx, *punch); err != nil {
		return err
	}
	if punch.PunchType == models.PunchTypeStepComplete && punch.PunchKey == "session_completed" {
		d.recordChildRelations(ctx, punch.TaskID)
	}
	return nil
}

func (d *Daemon) recordChildRelations(ctx context.Context, sessionID string) {
	if d.children == nil {
		return
	}
	kids, err := d.children.ListChildren(ctx, sessionID)
	if err != nil {
		slog.Warn("daemon: failed to list children for completed session",
			"session_id", sessionID, "error", err)
		return
	}
	for _, child := range kids {
		if _, err := d.writer.WriteChildRelation(ctx, sessionID, child.ID); err != nil {
			slog.Warn("daemon: failed to record child relation",
				"parent_id", sessionID, "child_id", child.ID, "error", err)
		}
	}
}

// sleepBackoff sleeps for the current backoff (doubling it afterward,
// capped at reconnect.Max), returning false if ctx was cancelled
// during the sleep.
func (d *Daemon) sleepBackoff(ctx context.Context, backoff *time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(*backoff):
	}
	next := *backoff * 2
	if next > d.reconnect.Max {
		next = d.reconnect.Max
	}
	*backoff = next
	return true
}

func isExpectedCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
