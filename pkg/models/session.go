package models

import "time"

// SessionStatus is the running status of an observed agent session.
type SessionStatus string

// Session status values.
const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusIdle      SessionStatus = "idle"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Session is one row per observed agent session: mode, model, running
// status, cumulative cost/tokens, start/complete times, and outcome.
type Session struct {
	SessionID       string
	TaskID          string
	Mode            string
	Model           string
	Status          SessionStatus
	TotalCost       float64
	TokensInput     int
	TokensOutput    int
	TokensReasoning int
	StartedAt       time.Time
	CompletedAt     *time.Time
	Outcome         string
}
