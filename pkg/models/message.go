package models

import "time"

// Message is deduplicated by (SessionID, Timestamp, Role).
type Message struct {
	SessionID      string
	Role           string
	ContentType    string
	ContentPreview string
	Timestamp      time.Time
	Cost           *float64
	TokensInput    *int
	TokensOutput   *int
}
