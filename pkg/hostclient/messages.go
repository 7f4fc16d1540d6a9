package hostclient

import (
	"context"
	"time"
)

/// Part is a normalized entry from a session's message history: a tool
// invocation, a text response, or any other part type the host emits.
// ListMessages and catch-up replay both produce/consume this single
// shape regardless of which wire shape the host used.
type Part struct {
	Type            string
	Role            string
	Timestamp       time.Time
	Tool            string
	Status          string
	Error           string
	Content         string
	Cost            *float64
	TokensInput     *int
	TokensOutput    *int
	TokensReasoning *int
}

// ListMessages fetches and flattens a session's message history.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]Part, error) {
	var raw []any
	if err := c.get(ctx, "/session/"+sessionID+"/message", &raw); err != nil {
		return nil, err
	}
	return FlattenParts(raw), nil
}

// FlattenParts normalizes the agent host's two known message-history
// shapes into a flat sequence of Part values:
//
//   - nested group-per-message: each top-level entry has a "parts"
//     array; role/timestamp live on the entry and are inherited by
//     every part within it.
//   - flat-per-message: each top-level entry already has the part's
//     own fields (type, tool, state, content, ...) and optionally its
//     own role/timestamp.
//
// This is the single place that traverses the dynamic shape;
// everything downstream works with Part values only.
func FlattenParts(entries []any) []Part {
	var out []Part
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		role, _ := entry["role"].(string)
		ts := parseTime(entry["ts"])

		if rawParts, ok := entry["parts"].([]any); ok {
			for _, rp := range rawParts {
				partMap, ok := rp.(map[string]any)
				if !ok {
					continue
				}
				out = append(out, partFromMap(partMap, role, ts))
			}
			continue
		}
		out = append(out, partFromMap(entry, role, ts))
	}
	return out
}

func partFromMap(m map[string]any, inheritedRole string, inheritedTS time.Time) Part {
	p := Part{
		Role:      inheritedRole,
		Timestamp: inheritedTS,
	}
	if t, ok := m["type"].(string); ok {
		p.Type = t
	}
	if role, ok := m["role"].(string); ok && role != "" {
		p.Role = role
	}
	if ts := parseTime(m["ts"]); !ts.IsZero() {
		p.Timestamp = ts
	}
	if tool, ok := m["tool"].(string); ok {
		p.Tool = tool
	}
	if content, ok := m["content"].(string); ok {
		p.Content = content
	}
	if state, ok := m["state"].(map[string]any); ok {
		if status, ok := state["status"].(string); ok {
			p.Status = status
		}
		if errMsg, ok := state["error"].(string); ok {
			p.Error = errMsg
		}
	}
	if cost, ok := asFloat(m["cost"]); ok {
		p.Cost = &cost
	}
	if tokens, ok := m["tokens"].(map[string]any); ok {
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
	return p
}

func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func asInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}
