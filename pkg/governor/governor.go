// Package governor orchestrates the runaway-detection pipeline: every
// punch is tee'd to a per-session loop detector; when a heuristic
// trips, the session is killed, diagnosed, and a bounded recovery
// session is dispatched — each session's pipeline runs independently,
// sharing no mutable state with any other.
package governor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tarsy-labs/session-governor/pkg/config"
	"github.com/tarsy-labs/session-governor/pkg/diagnosis"
	"github.com/tarsy-labs/session-governor/pkg/fitter"
	"github.com/tarsy-labs/session-governor/pkg/kill"
	"github.com/tarsy-labs/session-governor/pkg/loopdetect"
	"github.com/tarsy-labs/session-governor/pkg/models"
)

// PunchWriter is the subset of the durable writer the governor's
// kill-punch recording needs.
type PunchWriter interface {
	WritePunch(ctx context.Context, p models.Punch) error
}

// Publisher fans a local kill decision out to sibling replicas.
// Optional: a nil Publisher simply skips fan-out.
type Publisher interface {
	Publish(ctx context.Context, sessionID, classification string) error
}

// Pipeline bundles the collaborators the kill/diagnose/fitter stages
// need. A single concrete type (e.g. *hostclient.Client) typically
// satisfies Aborter, diagnosis.MessageFetcher, and Dispatcher.
type Pipeline struct {
	Aborter    kill.Aborter
	Writer     PunchWriter
	Fetcher    diagnosis.MessageFetcher
	Dispatcher fitter.SessionDispatcher
	Publisher  Publisher
}

// Governor owns one loopdetect.Detector per observed session and
// drives the kill/diagnose/fitter pipeline when a detector trips.
type Governor struct {
	thresholds config.LoopThresholds
	fitterCfg  config.FitterConfig
	host       string
	port       int
	pipeline   Pipeline

	mu        sync.Mutex
	detectors map[string]*loopdetect.Detector

	// onResult, if set, is invoked (from the pipeline goroutine) with
	// the outcome of every completed pipeline run; primarily a test seam.
	onResult func(sessionID string, result fitter.FitterResult)
}

// New constructs a Governor. host/port identify this governor
// instance to the dispatcher, populating SessionRequest.Host/Port.
func New(thresholds config.LoopThresholds, fitterCfg config.FitterConfig, host string, port int, pipeline Pipeline) *Governor {
	return &Governor{
		thresholds: thresholds,
		fitterCfg:  fitterCfg,
		host:       host,
		port:       port,
		pipeline:   pipeline,
		detectors:  make(map[string]*loopdetect.Detector),
	}
}

// OnResult registers a callback invoked after each pipeline run
// completes. Used by tests; not required for normal operation.
func (g *Governor) OnResult(fn func(sessionID string, result fitter.FitterResult)) {
	g.onResult = fn
}

// Ingest feeds one punch into its session's detector. If the
// detector's state now trips a heuristic, the session's detector is
// reset and the kill/diagnose/fitter pipeline is driven in its own
// goroutine so ingestion is never blocked on it: a session's punches
// are processed strictly in order, but the recovery pipeline itself
// may run concurrently across sessions.
func (g *Governor) Ingest(p models.Punch) {
	sessionID := p.TaskID
	if sessionID == "" || sessionID == "unknown" {
		return
	}

	detector := g.detectorFor(sessionID)
	detector.Ingest(p)
	detection := detector.Detect()
	if detection == nil {
		return
	}

	g.resetDetector(sessionID)
	go g.runPipeline(context.Background(), *detection)
}

// Snapshot returns the current metrics for a session's detector, or
// false if no detector exists for it yet. Used by the health/debug
// surface.
func (g *Governor) Snapshot(sessionID string) (models.LoopMetrics, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.detectors[sessionID]
	if !ok {
		return models.LoopMetrics{}, false
	}
	return d.Metrics(), true
}

// DropSession discards sessionID's detector state, used when a
// sibling replica's kill notice arrives: the session is already dead
// elsewhere, so this replica's own in-flight detection for it is
// stale and must not fire a duplicate kill.
func (g *Governor) DropSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.detectors, sessionID)
}

func (g *Governor) detectorFor(sessionID string) *loopdetect.Detector {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.detectors[sessionID]
	if !ok {
		d = loopdetect.New(sessionID, g.thresholds)
		g.detectors[sessionID] = d
	}
	return d
}

func (g *Governor) resetDetector(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detectors[sessionID] = loopdetect.New(sessionID, g.thresholds)
}

// runPipeline drives kill -> diagnose -> fitter-dispatch for one
// detection. Each stage's failure is logged and stops the pipeline
// for this session; it never affects any other session's detector or
// pipeline.
func (g *Governor) runPipeline(ctx context.Context, detection models.LoopDetection) {
	log := slog.With("session_id", detection.SessionID, "classification", string(detection.Classification))
	log.Info("loop detected, killing session")

	confirmation, err := kill.Kill(ctx, g.pipeline.Aborter, killWriterAdapter{g.pipeline.Writer}, detection)
	if err != nil {
		log.Error("kill failed", "error", err)
		return
	}

	if g.pipeline.Publisher != nil {
		if err := g.pipeline.Publisher.Publish(ctx, detection.SessionID, string(detection.Classification)); err != nil {
			log.Warn("failed to publish kill to sibling replicas", "error", err)
		}
	}

	diag := diagnosis.Diagnose(ctx, g.pipeline.Fetcher, confirmation)
	log.Info("diagnosis complete", "category", string(diag.Category), "confidence", diag.Confidence)

	result := fitter.Dispatch(ctx, g.pipeline.Dispatcher, diag, &confirmation, g.fitterCfg, g.host, g.port)
	if !result.Response.Success {
		log.Warn("fitter dispatch failed", "error", result.Response.Error)
	} else {
		log.Info("fitter dispatched", "fitter_session_id", result.Response.SessionID)
	}

	if g.onResult != nil {
		g.onResult(detection.SessionID, result)
	}
}

// killWriterAdapter lets a governor.PunchWriter satisfy kill.Writer
// without requiring the governor and kill packages to share an
// interface type.
type killWriterAdapter struct {
	writer PunchWriter
}

func (a killWriterAdapter) WritePunch(ctx context.Context, p models.Punch) error {
	if a.writer == nil {
		return nil
	}
	return a.writer.WritePunch(ctx, p)
}
