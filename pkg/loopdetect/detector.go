// Package loopdetect implements the per-session loop detector: a pure,
// stateful analyzer that ingests punches and reports the first
// heuristic, in priority order, that trips.
package loopdetect

import (
	"fmt"
	"time"

	"github.com/tarsy-labs/session-governor/pkg/config"
	"github.com/tarsy-labs/session-governor/pkg/models"
)

// Detector holds one session's accumulated state. It performs no I/O;
// Ingest and Detect are pure functions of the detector's state and
// input, so identical punch sequences always produce identical results.
type Detector struct {
	sessionID   string
	thresholds  config.LoopThresholds
	stepCount   int
	toolCount   int
	totalCost   float64
	toolHistory []string
	hashBuffer  []string
}

// New creates a detector for a single session id, owned exclusively by
// whatever goroutine ingests that session's punches.
func New(sessionID string, thresholds config.LoopThresholds) *Detector {
	return &Detector{sessionID: sessionID, thresholds: thresholds}
}

// Ingest folds one punch into the detector's state: step_finished
// increments the step count (step_start_observed never does), every
// tool_call increments the tool count and appends to the tool history,
// every punch with a cost adds to total cost, and every punch appends
// to the hash buffer (content_hash, falling back to source_hash).
func (d *Detector) Ingest(p models.Punch) {
	if p.PunchType == models.PunchTypeStepComplete && p.PunchKey == "step_finished" {
		d.stepCount++
	}
	if p.PunchType == models.PunchTypeToolCall {
		d.toolCount++
		d.toolHistory = append(d.toolHistory, p.PunchKey)
	}
	if p.Cost != nil {
		d.totalCost += *p.Cost
	}
	hash := p.ContentHash
	if hash == "" {
		hash = p.SourceHash
	}
	if hash != "" {
		d.hashBuffer = append(d.hashBuffer, hash)
	}
}

// Metrics returns a snapshot of the detector's current counters.
func (d *Detector) Metrics() models.LoopMetrics {
	return models.LoopMetrics{
		StepCount:     d.stepCount,
		ToolCallCount: d.toolCount,
		TotalCost:     d.totalCost,
	}
}

// Detect evaluates the heuristics in priority order — cost_overflow,
// step_overflow, tool_cycle, cache_plateau — and returns the first
// that trips, or nil.
func (d *Detector) Detect() *models.LoopDetection {
	metrics := d.Metrics()

	if d.totalCost > d.thresholds.MaxCostUSD {
		return d.detection(models.LoopCostOverflow,
			fmt.Sprintf("total cost %.4f exceeds max_cost_usd %.4f", d.totalCost, d.thresholds.MaxCostUSD),
			metrics)
	}
	if d.stepCount > d.thresholds.MaxSteps {
		return d.detection(models.LoopStepOverflow,
			fmt.Sprintf("step count %d exceeds max_steps %d", d.stepCount, d.thresholds.MaxSteps),
			metrics)
	}
	if cycleLen, ok := d.detectToolCycle(); ok {
		return d.detection(models.LoopToolCycle,
			fmt.Sprintf("tool history repeats a length-%d pattern %d times", cycleLen, d.thresholds.CycleRepetitions),
			metrics)
	}
	if ratio, ok := d.detectCachePlateau(); ok {
		return d.detection(models.LoopCachePlateau,
			fmt.Sprintf("distinct-hash ratio %.2f over last %d entries is below plateau ratio %.2f",
				ratio, d.thresholds.CacheWindowSize, d.thresholds.CachePlateauRatio),
			metrics)
	}
	return nil
}

func (d *Detector) detection(class models.LoopClassification, reason string, metrics models.LoopMetrics) *models.LoopDetection {
	return &models.LoopDetection{
		SessionID:      d.sessionID,
		Classification: class,
		Reason:         reason,
		Metrics:        metrics,
		DetectedAt:     time.Now().UTC(),
	}
}

// detectToolCycle looks for a pattern length L in [min_cycle_length,
// max_cycle_length] such that the final L*cycle_repetitions tool
// history entries decompose into cycle_repetitions identical runs of
// length L.
func (d *Detector) detectToolCycle() (int, bool) {
	reps := d.thresholds.CycleRepetitions
	for l := d.thresholds.MinCycleLength; l <= d.thresholds.MaxCycleLength; l++ {
		window := l * reps
		if len(d.toolHistory) < window {
			continue
		}
		tail := d.toolHistory[len(d.toolHistory)-window:]
		pattern := tail[:l]
		matches := true
		for run := 1; run < reps && matches; run++ {
			segment := tail[run*l : (run+1)*l]
			for i := range pattern {
				if segment[i] != pattern[i] {
					matches = false
					break
				}
			}
		}
		if matches {
			return l, true
		}
	}
	return 0, false
}

// detectCachePlateau reports a plateau when the hash buffer has at
// least cache_window_size entries and the ratio of distinct hashes in
// the last cache_window_size entries is strictly below
// cache_plateau_ratio.
func (d *Detector) detectCachePlateau() (float64, bool) {
	window := d.thresholds.CacheWindowSize
	if len(d.hashBuffer) < window {
		return 0, false
	}
	tail := d.hashBuffer[len(d.hashBuffer)-window:]
	seen := make(map[string]struct{}, window)
	for _, h := range tail {
		seen[h] = struct{}{}
	}
	ratio := float64(len(seen)) / float64(window)
	if ratio < d.thresholds.CachePlateauRatio {
		return ratio, true
	}
	return ratio, false
}
