package models

import "time"

// LoopClassification names the heuristic that tripped for a session.
type LoopClassification string

// Loop classification values, in the detector's priority order:
// cost_overflow beats step_overflow beats tool_cycle beats
// cache_plateau.
const (
	LoopCostOverflow  LoopClassification = "cost_overflow"
	LoopStepOverflow  LoopClassification = "step_overflow"
	LoopToolCycle     LoopClassification = "tool_cycle"
	LoopCachePlateau  LoopClassification = "cache_plateau"
)

// LoopMetrics is a point-in-time snapshot of a session's detector state.
type LoopMetrics struct {
	StepCount     int
	ToolCallCount int
	TotalCost     float64
}

// LoopDetection is emitted when a heuristic trips for a session.
type LoopDetection struct {
	SessionID      string
	Classification LoopClassification
	Reason         string
	Metrics        LoopMetrics
	DetectedAt     time.Time
}
