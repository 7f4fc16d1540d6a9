// Package classify implements the pure, total event-to-punch classifier.
// It is the only package in the governor that walks untyped JSON
// (map[string]any) — everything downstream of it works with the typed
// models in pkg/models.
package classify

import (
	"strings"
	"time"

	"github.com/tarsy-labs/session-governor/pkg/models"
)

// Event is a decoded agent-host event: a type tag plus an arbitrary
// properties mapping. Properties shapes vary by event type and are not
// otherwise typed.
type Event struct {
	Type       string
	Properties map[string]any
}

// Classify maps an event to a punch, or nil if the event carries no
// observation. Its rule table is exhaustive: every branch either
// returns a punch or explicitly returns none. Classify never panics and
// never errors — it is total over any Event value.
func Classify(ev Event) *models.Punch {
	switch {
	case ev.Type == "message.part.updated":
		return classifyPartUpdated(ev)
	case ev.Type == "session.updated":
		return classifySessionUpdated(ev)
	case strings.HasPrefix(ev.Type, "session.") && isLifecycleSuffix(ev.Type):
		return classifySessionLifecycle(ev)
	default:
		return nil
	}
}

func isLifecycleSuffix(eventType string) bool {
	switch eventType {
	case "session.created", "session.deleted", "session.idle", "session.error":
		return true
	default:
		return false
	}
}

func classifyPartUpdated(ev Event) *models.Punch {
	part, ok := asMap(ev.Properties["part"])
	if !ok {
		return nil
	}
	partType, _ := part["type"].(string)

	switch partType {
	case "tool":
		status := toolStatus(part)
		if status != "completed" && status != "error" {
			return nil
		}
		tool, ok := part["tool"].(string)
		if !ok || tool == "" {
			tool = "unknown_tool"
		}
		p := newPunch(ev, models.PunchTypeToolCall, tool)
		applyMetrics(p, part)
		return p
	case "step-start":
		return newPunch(ev, models.PunchTypeStepComplete, "step_start_observed")
	case "step-finish":
		p := newPunch(ev, models.PunchTypeStepComplete, "step_finished")
		applyMetrics(p, part)
		return p
	case "text":
		return newPunch(ev, models.PunchTypeMessage, "text_response")
	default:
		return nil
	}
}

func toolStatus(part map[string]any) string {
	state, ok := asMap(part["state"])
	if !ok {
		return ""
	}
	status, _ := state["status"].(string)
	return status
}

func classifySessionUpdated(ev Event) *models.Punch {
	info, ok := asMap(ev.Properties["info"])
	if !ok {
		return nil
	}
	status, _ := info["status"].(string)
	if status != "completed" {
		return nil
	}
	return newPunch(ev, models.PunchTypeStepComplete, "session_completed")
}

func classifySessionLifecycle(ev Event) *models.Punch {
	suffix := strings.TrimPrefix(ev.Type, "session.")
	return newPunch(ev, models.PunchTypeSessionLifecycle, "session_"+suffix)
}

// newPunch builds a punch with the task id, source hash, and
// observation timestamp common to every classification rule.
func newPunch(ev Event, punchType models.PunchType, key string) *models.Punch {
	return &models.Punch{
		TaskID:     taskID(ev),
		PunchType:  punchType,
		PunchKey:   key,
		ObservedAt: time.Now().UTC(),
		SourceHash: SourceHash(ev.Type, ev.Properties),
	}
}

// taskID extracts the grouping key for a punch: part.sessionID for
// message.part.updated, info.id for any session.* event, else "unknown".
func taskID(ev Event) string {
	switch {
	case ev.Type == "message.part.updated":
		if part, ok := asMap(ev.Properties["part"]); ok {
			if sid, ok := part["sessionID"].(string); ok && sid != "" {
				return sid
			}
		}
	case strings.HasPrefix(ev.Type, "session."):
		if info, ok := asMap(ev.Properties["info"]); ok {
			if id, ok := info["id"].(string); ok && id != "" {
				return id
			}
		}
	}
	return "unknown"
}

// applyMetrics fills a punch's cost/token fields from part.cost and
// part.tokens.{input,output,reasoning}, when present.
func applyMetrics(p *models.Punch, part map[string]any) {
	if cost, ok := asFloat(part["cost"]); ok {
		p.Cost = &cost
	}
	tokens, ok := asMap(part["tokens"])
	if !ok {
		return
	}
	if v, ok := asInt(tokens["input"]); ok {
		p.TokensInput = &v
	}
	if v, ok := asInt(tokens["output"]); ok {
		p.TokensOutput = &v
	}
	if v, ok := asInt(tokens["reasoning"]); ok {
		p.TokensReasoning = &v
	}
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}
