package loopdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/session-governor/pkg/config"
	"github.com/tarsy-labs/session-governor/pkg/models"
)

func defaultThresholds() config.LoopThresholds {
	return config.LoopThresholds{
		MaxSteps:          100,
		MaxCostUSD:        10.0,
		MinCycleLength:    2,
		MaxCycleLength:    6,
		CycleRepetitions:  3,
		CacheWindowSize:   20,
		CachePlateauRatio: 0.3,
	}
}

func stepFinished() models.Punch {
	return models.Punch{PunchType: models.PunchTypeStepComplete, PunchKey: "step_finished"}
}

// A detector with max_steps=10 fed twelve step_finished punches
// reports step_overflow.
func TestDetect_StepOverflow_TwelvePunchesOverMaxTen(t *testing.T) {
	th := defaultThresholds()
	th.MaxSteps = 10
	d := New("s1", th)

	for i := 0; i < 12; i++ {
		d.Ingest(stepFinished())
	}

	det := d.Detect()
	require.NotNil(t, det)
	assert.Equal(t, models.LoopStepOverflow, det.Classification)
	assert.Equal(t, "s1", det.SessionID)
}

func TestDetect_StepStartObserved_NeverIncrementsStepCount(t *testing.T) {
	th := defaultThresholds()
	th.MaxSteps = 1
	d := New("s1", th)

	for i := 0; i < 5; i++ {
		d.Ingest(models.Punch{PunchType: models.PunchTypeStepComplete, PunchKey: "step_start_observed"})
	}

	assert.Nil(t, d.Detect())
	assert.Equal(t, 0, d.Metrics().StepCount)
}

// When both cost_overflow and tool_cycle conditions hold,
// cost_overflow wins.
func TestDetect_PriorityCostOverflowBeatsToolCycle(t *testing.T) {
	th := defaultThresholds()
	th.MaxCostUSD = 1.0
	th.MinCycleLength = 2
	th.MaxCycleLength = 2
	th.CycleRepetitions = 3
	d := New("s1", th)

	cost := 2.0
	for i := 0; i < 6; i++ {
		key := "toolA"
		if i%2 == 1 {
			key = "toolB"
		}
		d.Ingest(models.Punch{PunchType: models.PunchTypeToolCall, PunchKey: key, Cost: &cost})
	}

	det := d.Detect()
	require.NotNil(t, det)
	assert.Equal(t, models.LoopCostOverflow, det.Classification)
}

func TestDetect_ToolCycle(t *testing.T) {
	th := defaultThresholds()
	th.MaxCostUSD = 1000
	th.MinCycleLength = 2
	th.MaxCycleLength = 2
	th.CycleRepetitions = 3
	d := New("s1", th)

	pattern := []string{"readFile", "editFile"}
	for i := 0; i < 6; i++ {
		d.Ingest(models.Punch{PunchType: models.PunchTypeToolCall, PunchKey: pattern[i%2]})
	}

	det := d.Detect()
	require.NotNil(t, det)
	assert.Equal(t, models.LoopToolCycle, det.Classification)
}

func TestDetect_ToolCycle_NoMatchWhenNotRepeating(t *testing.T) {
	th := defaultThresholds()
	th.MinCycleLength = 2
	th.MaxCycleLength = 2
	th.CycleRepetitions = 3
	d := New("s1", th)

	tools := []string{"a", "b", "a", "c", "b", "a"}
	for _, tool := range tools {
		d.Ingest(models.Punch{PunchType: models.PunchTypeToolCall, PunchKey: tool})
	}

	assert.Nil(t, d.Detect())
}

func TestDetect_CachePlateau(t *testing.T) {
	th := defaultThresholds()
	th.CacheWindowSize = 10
	th.CachePlateauRatio = 0.5
	d := New("s1", th)

	// Only 2 distinct hashes across 10 entries -> ratio 0.2 < 0.5.
	for i := 0; i < 10; i++ {
		h := "hashA"
		if i%5 == 0 {
			h = "hashB"
		}
		d.Ingest(models.Punch{PunchType: models.PunchTypeMessage, PunchKey: "text_response", SourceHash: h})
	}

	det := d.Detect()
	require.NotNil(t, det)
	assert.Equal(t, models.LoopCachePlateau, det.Classification)
}

func TestDetect_CachePlateau_PrefersContentHash(t *testing.T) {
	th := defaultThresholds()
	th.CacheWindowSize = 4
	th.CachePlateauRatio = 0.9
	d := New("s1", th)

	for i := 0; i < 4; i++ {
		d.Ingest(models.Punch{SourceHash: "unique-" + string(rune('a'+i)), ContentHash: "same"})
	}

	det := d.Detect()
	require.NotNil(t, det)
	assert.Equal(t, models.LoopCachePlateau, det.Classification)
}

func TestDetect_NoHeuristicTrips_ReturnsNil(t *testing.T) {
	d := New("s1", defaultThresholds())
	d.Ingest(stepFinished())
	assert.Nil(t, d.Detect())
}

// Two detectors fed identical punch sequences emit bit-identical
// LoopDetection, modulo detected_at.
func TestDetect_Purity_IdenticalSequencesIdenticalOutput(t *testing.T) {
	th := defaultThresholds()
	th.MaxSteps = 3

	seq := []models.Punch{stepFinished(), stepFinished(), stepFinished(), stepFinished()}

	d1 := New("s1", th)
	d2 := New("s1", th)
	for _, p := range seq {
		d1.Ingest(p)
		d2.Ingest(p)
	}

	det1 := d1.Detect()
	det2 := d2.Detect()
	require.NotNil(t, det1)
	require.NotNil(t, det2)
	det1.DetectedAt = det2.DetectedAt
	assert.Equal(t, det1, det2)
}
