// Package fitter builds a category-specific recovery prompt for a
// killed session and dispatches a bounded "fitter" session through an
// injected dispatcher.
package fitter

import (
	"context"
	"fmt"

	"github.com/tarsy-labs/session-governor/pkg/config"
	"github.com/tarsy-labs/session-governor/pkg/models"
)

// SessionRequest is the dispatcher-produced interface's request shape.
type SessionRequest struct {
	Prompt         string
	MaxTokenBudget int
	TimeoutMS      int64
	AgentMode      string
	Model          string // empty means "use host default"
	AutoApprove    bool
	Host           string
	Port           int
}

// SessionResponse is the dispatcher's result.
type SessionResponse struct {
	SessionID    string
	Success      bool
	Cost         float64
	FilesChanged []string
	DurationMS   int64
	Error        string
}

// SessionDispatcher decouples fitter dispatch from the transport that
// actually launches a new agent session.
type SessionDispatcher interface {
	CreateSession(ctx context.Context, req SessionRequest) (SessionResponse, error)
}

// FitterResult is the outcome this package returns to its caller: the
// request it built plus whatever the dispatcher returned, or a
// synthetic failure if the dispatcher errored.
type FitterResult struct {
	Request  SessionRequest
	Response SessionResponse
}

// Dispatch builds the recovery prompt and request for diagnosis, then
// invokes dispatcher. Dispatcher errors are caught and converted into
// a FitterResult carrying Response.Success=false.
func Dispatch(ctx context.Context, dispatcher SessionDispatcher, diagnosis models.Diagnosis, kill *models.KillConfirmation, cfg config.FitterConfig, host string, port int) FitterResult {
	req := buildRequest(diagnosis, kill, cfg, host, port)

	resp, err := dispatcher.CreateSession(ctx, req)
	if err != nil {
		return FitterResult{
			Request: req,
			Response: SessionResponse{
				Success: false,
				Error:   err.Error(),
			},
		}
	}
	return FitterResult{Request: req, Response: resp}
}

func buildRequest(diagnosis models.Diagnosis, kill *models.KillConfirmation, cfg config.FitterConfig, host string, port int) SessionRequest {
	return SessionRequest{
		Prompt:         buildPrompt(diagnosis),
		MaxTokenBudget: cfg.DefaultTokenBudget,
		TimeoutMS:      resolveTimeout(diagnosis, kill, cfg),
		AgentMode:      "code",
		Model:          resolveModel(diagnosis),
		AutoApprove:    true,
		Host:           host,
		Port:           port,
	}
}

// resolveModel returns a non-default model override iff the diagnosis
// category is model_confusion.
func resolveModel(diagnosis models.Diagnosis) string {
	if diagnosis.Category == models.DiagnosisModelConfusion {
		return "claude-opus"
	}
	return ""
}

// resolveTimeout derives a session timeout from cost basis, clamped to
// the configured min/max bounds.
func resolveTimeout(diagnosis models.Diagnosis, kill *models.KillConfirmation, cfg config.FitterConfig) int64 {
	var costBasis float64
	if kill != nil {
		costBasis = 0.5 * kill.FinalMetrics.TotalCost
	} else {
		var totalCalls int
		for _, tp := range diagnosis.ToolPatterns {
			totalCalls += tp.Count
		}
		costBasis = 0.001 * float64(totalCalls)
		if costBasis < 0.1 {
			costBasis = 0.1
		}
	}

	timeout := int64(costBasis * float64(cfg.MSPerDollar))
	if timeout < cfg.MinTimeoutMS {
		return cfg.MinTimeoutMS
	}
	if timeout > cfg.MaxTimeoutMS {
		return cfg.MaxTimeoutMS
	}
	return timeout
}

// buildPrompt renders the category-specific template, never leaking
// internal identifiers beyond the session id.
func buildPrompt(diagnosis models.Diagnosis) string {
	template, ok := templates[diagnosis.Category]
	if !ok {
		template = templates[models.DiagnosisModelConfusion]
	}
	return template(diagnosis)
}

func formatToolActivity(patterns []models.ToolPattern) string {
	top := topByCount(patterns, 10)
	if len(top) == 0 {
		return "(no tool activity recorded)"
	}
	s := ""
	for _, tp := range top {
		s += fmt.Sprintf("- %s: %d calls, %d errors\n", tp.Tool, tp.Count, tp.ErrorCount)
	}
	return s
}

// topByCount returns up to n tool patterns sorted by count descending.
func topByCount(patterns []models.ToolPattern, n int) []models.ToolPattern {
	sorted := make([]models.ToolPattern, len(patterns))
	copy(sorted, patterns)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Count > sorted[j-1].Count; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
