package models

import "time"

// ToolCall is deduplicated by (SessionID, Timestamp, ToolName).
type ToolCall struct {
	SessionID   string
	ToolName    string
	ArgsSummary string
	Status      string
	Error       string
	DurationMS  int
	Cost        float64
	Timestamp   time.Time
}

// ChildRelation is a directed parent→child edge between sessions.
type ChildRelation struct {
	ParentID string
	ChildID  string
}
