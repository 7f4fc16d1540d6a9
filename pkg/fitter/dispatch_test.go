package fitter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/session-governor/pkg/config"
	"github.com/tarsy-labs/session-governor/pkg/models"
)

type fakeDispatcher struct {
	resp SessionResponse
	err  error
	got  SessionRequest
}

func (f *fakeDispatcher) CreateSession(ctx context.Context, req SessionRequest) (SessionResponse, error) {
	f.got = req
	return f.resp, f.err
}

func fitterConfig() config.FitterConfig {
	return config.FitterConfig{
		MSPerDollar:        60000,
		MinTimeoutMS:       30000,
		MaxTimeoutMS:       300000,
		DefaultTokenBudget: 100000,
	}
}

func TestDispatch_Success(t *testing.T) {
	d := &fakeDispatcher{resp: SessionResponse{SessionID: "fitter1", Success: true}}
	diagnosis := models.Diagnosis{
		SessionID: "s1",
		Category:  models.DiagnosisInfiniteRetry,
		Summary:   "bash kept failing",
		ToolPatterns: []models.ToolPattern{
			{Tool: "bash", Count: 5, ErrorCount: 5},
		},
	}

	result := Dispatch(context.Background(), d, diagnosis, nil, fitterConfig(), "localhost", 4096)
	assert.True(t, result.Response.Success)
	assert.Equal(t, "code", d.got.AgentMode)
	assert.True(t, d.got.AutoApprove)
	assert.Empty(t, d.got.Model)
	assert.Contains(t, d.got.Prompt, "s1")
	assert.Contains(t, d.got.Prompt, "bash")
}

func TestDispatch_ModelOverrideOnlyForModelConfusion(t *testing.T) {
	d := &fakeDispatcher{resp: SessionResponse{Success: true}}
	diagnosis := models.Diagnosis{SessionID: "s1", Category: models.DiagnosisModelConfusion, Summary: "flip-flopping"}

	Dispatch(context.Background(), d, diagnosis, nil, fitterConfig(), "localhost", 4096)
	assert.NotEmpty(t, d.got.Model)
}

func TestDispatch_DispatcherErrorBecomesFailedResult(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("launch failed")}
	diagnosis := models.Diagnosis{SessionID: "s1", Category: models.DiagnosisScopeCreep}

	result := Dispatch(context.Background(), d, diagnosis, nil, fitterConfig(), "localhost", 4096)
	assert.False(t, result.Response.Success)
	assert.Equal(t, "launch failed", result.Response.Error)
}

func TestResolveTimeout_UsesKillMetricsWhenAvailable(t *testing.T) {
	cfg := fitterConfig()
	kill := &models.KillConfirmation{FinalMetrics: models.LoopMetrics{TotalCost: 10.0}}
	diagnosis := models.Diagnosis{}

	timeout := resolveTimeout(diagnosis, kill, cfg)
	// cost_basis = 0.5*10 = 5; 5*60000 = 300000, clamped to max.
	assert.Equal(t, cfg.MaxTimeoutMS, timeout)
}

func TestResolveTimeout_FallsBackToToolCountBasis(t *testing.T) {
	cfg := fitterConfig()
	diagnosis := models.Diagnosis{ToolPatterns: []models.ToolPattern{{Count: 5}}}

	timeout := resolveTimeout(diagnosis, nil, cfg)
	// cost_basis = max(0.1, 5*0.001) = 0.1; 0.1*60000=6000, clamped to min.
	assert.Equal(t, cfg.MinTimeoutMS, timeout)
}

func TestBuildPrompt_NeverLeaksMoreThanSessionID(t *testing.T) {
	diagnosis := models.Diagnosis{SessionID: "s1", Category: models.DiagnosisStuckOnApproval, Summary: "waiting"}
	prompt := buildPrompt(diagnosis)
	require.True(t, strings.Contains(prompt, "s1"))
}

func TestFormatToolActivity_TopTenByCount(t *testing.T) {
	patterns := make([]models.ToolPattern, 0, 12)
	for i := 0; i < 12; i++ {
		patterns = append(patterns, models.ToolPattern{Tool: "tool", Count: i})
	}
	top := topByCount(patterns, 10)
	require.Len(t, top, 10)
	assert.Equal(t, 11, top[0].Count)
	assert.Equal(t, 2, top[9].Count)
}
