// Package notify implements cross-replica kill fan-out: when one
// governor replica kills a session, it publishes pg_notify on a
// single "governor_kill" channel so sibling replicas watching the
// same session drop their own in-flight detector state for it,
// preventing a double-kill race. LISTEN commands run on the single
// receive-loop goroutine; the listener never issues UNLISTEN. Reconnects
// use capped exponential backoff.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// Channel is the fixed Postgres NOTIFY channel kill decisions are
// published on.
const Channel = "governor_kill"

// KillNotice is the JSON payload published on Channel.
type KillNotice struct {
	SessionID      string `json:"session_id"`
	Classification string `json:"classification"`
	ReplicaID      string `json:"replica_id"`
}

// Listener subscribes to Channel and invokes Handler for every
// notice published by any replica (including, harmlessly, itself).
type Listener struct {
	connString string
	replicaID  string
	handler    func(KillNotice)

	conn   *pgx.Conn
	connMu sync.Mutex

	cmdCh   chan listenCmd
	running atomic.Bool

	listenGen uint64

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

type listenCmd struct {
	sql    string
	gen    uint64
	result chan error
}

// NewListener constructs a Listener. handler is invoked from the
// receive-loop goroutine; it must not block.
func NewListener(connString, replicaID string, handler func(KillNotice)) *Listener {
	return &Listener{
		connString: connString,
		replicaID:  replicaID,
		handler:    handler,
		cmdCh:      make(chan listenCmd, 4),
	}
}

// Start opens the dedicated LISTEN connection, subscribes to Channel,
// and begins the receive loop.
func (l *Listener) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("notify: connect for LISTEN: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()
	l.running.Store(true)

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancelLoop = cancel
	l.loopDone = make(chan struct{})
	go func() {
		defer close(l.loopDone)
		l.receiveLoop(loopCtx)
	}()

	if err := l.subscribe(ctx); err != nil {
		return err
	}

	slog.Info("notify: listener started", "channel", Channel, "replica_id", l.replicaID)
	return nil
}

// Publish sends NOTIFY on Channel with the given kill notice, tagging
// it with this replica's id.
func (l *Listener) Publish(ctx context.Context, sessionID, classification string) error {
	notice := KillNotice{SessionID: sessionID, Classification: classification, ReplicaID: l.replicaID}
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("notify: marshal kill notice: %w", err)
	}

	l.connMu.Lock()
	conn := l.conn
	l.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("notify: not connected")
	}
	_, err = conn.Exec(ctx, "SELECT pg_notify($1, $2)", Channel, string(payload))
	return err
}

func (l *Listener) subscribe(ctx context.Context) error {
	if !l.running.Load() {
		return fmt.Errorf("notify: LISTEN connection not established")
	}
	sanitized := pgx.Identifier{Channel}.Sanitize()
	cmd := listenCmd{sql: "LISTEN " + sanitized, result: make(chan error, 1)}

	select {
	case l.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Listener) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.processPendingCmds(ctx)

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()
		if conn == nil {
			l.reconnect(ctx)
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() != nil {
				continue
			}
			slog.Error("notify: receive error", "error", err)
			l.reconnect(ctx)
			continue
		}

		var notice KillNotice
		if err := json.Unmarshal([]byte(notification.Payload), &notice); err != nil {
			slog.Warn("notify: malformed kill notice, skipping", "error", err)
			continue
		}
		l.handler(notice)
	}
}

func (l *Listener) processPendingCmds(ctx context.Context) {
	for {
		select {
		case cmd := <-l.cmdCh:
			l.connMu.Lock()
			conn := l.conn
			l.connMu.Unlock()
			if conn == nil {
				cmd.result <- fmt.Errorf("notify: LISTEN connection not established")
				continue
			}
			_, err := conn.Exec(ctx, cmd.sql)
			if err == nil {
				atomic.AddUint64(&l.listenGen, 1)
			}
			cmd.result <- err
		default:
			return
		}
	}
}

func (l *Listener) reconnect(ctx context.Context) {
	l.connMu.Lock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
	l.connMu.Unlock()

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, l.connString)
		if err != nil {
			slog.Error("notify: reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}

		sanitized := pgx.Identifier{Channel}.Sanitize()
		if _, err := conn.Exec(ctx, "LISTEN "+sanitized); err != nil {
			slog.Error("notify: re-LISTEN failed", "error", err)
			_ = conn.Close(ctx)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}

		l.connMu.Lock()
		l.conn = conn
		l.connMu.Unlock()
		slog.Info("notify: listener reconnected")
		return
	}
}

// Stop signals the receive loop to exit, waits for it to finish, then
// closes the LISTEN connection.
func (l *Listener) Stop(ctx context.Context) {
	l.running.Store(false)
	if l.cancelLoop != nil {
		l.cancelLoop()
	}
	if l.loopDone != nil {
		<-l.loopDone
	}

	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
}
