package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/session-governor/pkg/models"
)

func TestClassify_ToolCallCompleted(t *testing.T) {
	ev := Event{
		Type: "message.part.updated",
		Properties: map[string]any{
			"part": map[string]any{
				"type":      "tool",
				"sessionID": "s1",
				"tool":      "readFile",
				"state":     map[string]any{"status": "completed"},
			},
		},
	}

	p := Classify(ev)
	require.NotNil(t, p)
	assert.Equal(t, models.PunchTypeToolCall, p.PunchType)
	assert.Equal(t, "readFile", p.PunchKey)
	assert.Equal(t, "s1", p.TaskID)
}

func TestClassify_ToolCallRunning_IsNone(t *testing.T) {
	ev := Event{
		Type: "message.part.updated",
		Properties: map[string]any{
			"part": map[string]any{
				"type":      "tool",
				"sessionID": "s1",
				"tool":      "readFile",
				"state":     map[string]any{"status": "running"},
			},
		},
	}

	assert.Nil(t, Classify(ev))
}

func TestClassify_ToolCallPending_IsNone(t *testing.T) {
	ev := Event{
		Type: "message.part.updated",
		Properties: map[string]any{
			"part": map[string]any{
				"type":  "tool",
				"tool":  "readFile",
				"state": map[string]any{"status": "pending"},
			},
		},
	}

	assert.Nil(t, Classify(ev))
}

func TestClassify_ToolCallError_IsPunched(t *testing.T) {
	ev := Event{
		Type: "message.part.updated",
		Properties: map[string]any{
			"part": map[string]any{
				"type":      "tool",
				"sessionID": "s1",
				"tool":      "bash",
				"state":     map[string]any{"status": "error"},
			},
		},
	}

	p := Classify(ev)
	require.NotNil(t, p)
	assert.Equal(t, models.PunchTypeToolCall, p.PunchType)
}

func TestClassify_UnknownToolName_FallsBack(t *testing.T) {
	ev := Event{
		Type: "message.part.updated",
		Properties: map[string]any{
			"part": map[string]any{
				"type":  "tool",
				"state": map[string]any{"status": "completed"},
			},
		},
	}

	p := Classify(ev)
	require.NotNil(t, p)
	assert.Equal(t, "unknown_tool", p.PunchKey)
}

func TestClassify_ToolMetricsExtracted(t *testing.T) {
	ev := Event{
		Type: "message.part.updated",
		Properties: map[string]any{
			"part": map[string]any{
				"type":      "tool",
				"sessionID": "s1",
				"tool":      "bash",
				"state":     map[string]any{"status": "completed"},
				"cost":      0.015,
				"tokens":    map[string]any{"input": 120, "output": 40, "reasoning": 5},
			},
		},
	}

	p := Classify(ev)
	require.NotNil(t, p)
	require.NotNil(t, p.Cost)
	assert.InDelta(t, 0.015, *p.Cost, 0.0001)
	require.NotNil(t, p.TokensInput)
	assert.Equal(t, 120, *p.TokensInput)
	require.NotNil(t, p.TokensOutput)
	assert.Equal(t, 40, *p.TokensOutput)
	require.NotNil(t, p.TokensReasoning)
	assert.Equal(t, 5, *p.TokensReasoning)
}

func TestClassify_StepStart(t *testing.T) {
	ev := Event{
		Type:       "message.part.updated",
		Properties: map[string]any{"part": map[string]any{"type": "step-start", "sessionID": "s1"}},
	}

	p := Classify(ev)
	require.NotNil(t, p)
	assert.Equal(t, models.PunchTypeStepComplete, p.PunchType)
	assert.Equal(t, "step_start_observed", p.PunchKey)
	assert.Nil(t, p.Cost)
}

func TestClassify_StepFinish_HasMetrics(t *testing.T) {
	ev := Event{
		Type: "message.part.updated",
		Properties: map[string]any{
			"part": map[string]any{
				"type":      "step-finish",
				"sessionID": "s1",
				"cost":      0.02,
				"tokens":    map[string]any{"input": 10, "output": 2, "reasoning": 0},
			},
		},
	}

	p := Classify(ev)
	require.NotNil(t, p)
	assert.Equal(t, "step_finished", p.PunchKey)
	require.NotNil(t, p.Cost)
}

func TestClassify_TextPart(t *testing.T) {
	ev := Event{
		Type:       "message.part.updated",
		Properties: map[string]any{"part": map[string]any{"type": "text", "sessionID": "s1"}},
	}

	p := Classify(ev)
	require.NotNil(t, p)
	assert.Equal(t, models.PunchTypeMessage, p.PunchType)
	assert.Equal(t, "text_response", p.PunchKey)
}

func TestClassify_UnknownPartType_IsNone(t *testing.T) {
	ev := Event{
		Type:       "message.part.updated",
		Properties: map[string]any{"part": map[string]any{"type": "reasoning", "sessionID": "s1"}},
	}

	assert.Nil(t, Classify(ev))
}

func TestClassify_SessionUpdatedCompleted(t *testing.T) {
	ev := Event{
		Type:       "session.updated",
		Properties: map[string]any{"info": map[string]any{"id": "s1", "status": "completed"}},
	}

	p := Classify(ev)
	require.NotNil(t, p)
	assert.Equal(t, models.PunchTypeStepComplete, p.PunchType)
	assert.Equal(t, "session_completed", p.PunchKey)
	assert.Equal(t, "s1", p.TaskID)
}

func TestClassify_SessionUpdatedOtherStatus_IsNone(t *testing.T) {
	ev := Event{
		Type:       "session.updated",
		Properties: map[string]any{"info": map[string]any{"id": "s1", "status": "running"}},
	}

	assert.Nil(t, Classify(ev))
}

func TestClassify_SessionLifecycleEvents(t *testing.T) {
	cases := map[string]string{
		"session.created": "session_created",
		"session.deleted": "session_deleted",
		"session.idle":    "session_idle",
		"session.error":   "session_error",
	}

	for eventType, wantKey := range cases {
		ev := Event{Type: eventType, Properties: map[string]any{"info": map[string]any{"id": "s1"}}}
		p := Classify(ev)
		require.NotNil(t, p, eventType)
		assert.Equal(t, models.PunchTypeSessionLifecycle, p.PunchType, eventType)
		assert.Equal(t, wantKey, p.PunchKey, eventType)
	}
}

func TestClassify_UnknownEventType_IsNone(t *testing.T) {
	ev := Event{Type: "session.renamed", Properties: map[string]any{"info": map[string]any{"id": "s1"}}}
	assert.Nil(t, Classify(ev))
}

func TestClassify_TaskIDUnknownWhenMissing(t *testing.T) {
	ev := Event{Type: "message.part.updated", Properties: map[string]any{}}
	assert.Equal(t, "unknown", taskID(ev))

	ev2 := Event{Type: "session.created", Properties: map[string]any{}}
	assert.Equal(t, "unknown", taskID(ev2))

	ev3 := Event{Type: "some.other.event", Properties: map[string]any{}}
	assert.Equal(t, "unknown", taskID(ev3))
}

// Classifier determinism: logically equivalent events (same type,
// properties equal after recursive key sort) produce the same source_hash.
func TestSourceHash_Determinism(t *testing.T) {
	a := SourceHash("message.part.updated", map[string]any{
		"part": map[string]any{"type": "tool", "tool": "bash", "sessionID": "s1"},
	})
	b := SourceHash("message.part.updated", map[string]any{
		"part": map[string]any{"sessionID": "s1", "tool": "bash", "type": "tool"},
	})
	assert.Equal(t, a, b)
}

func TestSourceHash_ArrayOrderMatters(t *testing.T) {
	a := SourceHash("x", map[string]any{"items": []any{"a", "b"}})
	b := SourceHash("x", map[string]any{"items": []any{"b", "a"}})
	assert.NotEqual(t, a, b)
}

func TestSourceHash_DifferentPropertiesDifferentHash(t *testing.T) {
	a := SourceHash("x", map[string]any{"k": "v1"})
	b := SourceHash("x", map[string]any{"k": "v2"})
	assert.NotEqual(t, a, b)
}

// Classifier totality: never panics, including on malformed/missing shapes.
func TestClassify_TotalityOnMalformedShapes(t *testing.T) {
	malformed := []Event{
		{Type: "message.part.updated", Properties: nil},
		{Type: "message.part.updated", Properties: map[string]any{"part": "not-a-map"}},
		{Type: "message.part.updated", Properties: map[string]any{"part": map[string]any{"type": "tool", "state": "not-a-map"}}},
		{Type: "session.updated", Properties: map[string]any{"info": 42}},
		{Type: "session.created", Properties: nil},
		{Type: "", Properties: nil},
	}

	for _, ev := range malformed {
		assert.NotPanics(t, func() { Classify(ev) })
	}
}

func TestClassify_ToolCallCompleted_CompactLiteral(t *testing.T) {
	ev := Event{
		Type: "message.part.updated",
		Properties: map[string]any{
			"part": map[string]any{"type": "tool", "sessionID": "s1", "tool": "readFile", "state": map[string]any{"status": "completed"}},
		},
	}
	p := Classify(ev)
	require.NotNil(t, p)
	assert.Equal(t, models.PunchTypeToolCall, p.PunchType)
	assert.Equal(t, "readFile", p.PunchKey)
	assert.Equal(t, "s1", p.TaskID)
}

func TestClassify_ToolCallRunning_None(t *testing.T) {
	ev := Event{
		Type: "message.part.updated",
		Properties: map[string]any{
			"part": map[string]any{"type": "tool", "sessionID": "s1", "tool": "readFile", "state": map[string]any{"status": "running"}},
		},
	}
	assert.Nil(t, Classify(ev))
}

func TestClassify_SessionUpdatedCompleted_CompactLiteral(t *testing.T) {
	ev := Event{
		Type:       "session.updated",
		Properties: map[string]any{"info": map[string]any{"id": "s1", "status": "completed"}},
	}
	p := Classify(ev)
	require.NotNil(t, p)
	assert.Equal(t, models.PunchTypeStepComplete, p.PunchType)
	assert.Equal(t, "session_completed", p.PunchKey)
	assert.Equal(t, "s1", p.TaskID)
}
