// Package models holds the plain data types shared across the governor:
// punches, sessions, messages, tool calls, child relations, and punch
// cards. These are persistence-agnostic — pkg/store maps them to rows.
package models

import "time"

// PunchType enumerates the kinds of observation a punch can record.
type PunchType string

// Punch type constants.
const (
	PunchTypeToolCall         PunchType = "tool_call"
	PunchTypeStepComplete     PunchType = "step_complete"
	PunchTypeMessage          PunchType = "message"
	PunchTypeSessionLifecycle PunchType = "session_lifecycle"
	PunchTypeGovernorKill     PunchType = "governor_kill"
	PunchTypeWorkflow         PunchType = "workflow"
	PunchTypeGovernor         PunchType = "governor"
)

// Punch is the atomic, idempotent unit of observation. SourceHash is the
// primary idempotency key — two events that are logically equivalent
// (same type, same properties once keys are recursively sorted) must
// produce the same SourceHash.
type Punch struct {
	TaskID          string
	PunchType       PunchType
	PunchKey        string
	ObservedAt      time.Time
	SourceHash      string
	ContentHash     string // optional; distinct from SourceHash, used by cache_plateau
	Cost            *float64
	TokensInput     *int
	TokensOutput    *int
	TokensReasoning *int
}
