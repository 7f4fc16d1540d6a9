// Package diagnosis implements the diagnosis engine: fetch a killed
// session's message history, compute per-tool usage patterns, and
// classify the failure mode with confidence.
package diagnosis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tarsy-labs/session-governor/pkg/hostclient"
	"github.com/tarsy-labs/session-governor/pkg/models"
)

// MessageFetcher fetches a session's flattened message history.
type MessageFetcher interface {
	ListMessages(ctx context.Context, sessionID string) ([]hostclient.Part, error)
}

// classifierFunc is one of the five independent opinions evaluated in
// Diagnose. A nil return means "no opinion".
type classifierFunc func(parts []hostclient.Part, patterns []models.ToolPattern, kill models.KillConfirmation) *models.ClassifierVerdict

// classifiers runs in this fixed order; ties in confidence are broken
// by this order.
var classifiers = []classifierFunc{
	classifyStuckOnApproval,
	classifyInfiniteRetry,
	classifyContextExhaustion,
	classifyScopeCreep,
	classifyModelConfusion,
}

// Diagnose fetches the session's message history (falling back to
// empty parts on failure), computes tool patterns, runs every
// classifier, and selects the highest-confidence verdict.
func Diagnose(ctx context.Context, fetcher MessageFetcher, kill models.KillConfirmation) models.Diagnosis {
	parts, err := fetcher.ListMessages(ctx, kill.SessionID)
	if err != nil {
		slog.Warn("diagnosis: message history fetch failed, using empty parts",
			"session_id", kill.SessionID, "error", err)
		parts = nil
	}

	patterns := toolPatterns(parts)
	verdict := selectVerdict(parts, patterns, kill)

	return models.Diagnosis{
		SessionID:       kill.SessionID,
		DiagnosedAt:     time.Now().UTC(),
		Category:        verdict.Category,
		Confidence:      verdict.Confidence,
		Summary:         verdict.Summary,
		SuggestedAction: verdict.SuggestedAction,
		ToolPatterns:    patterns,
	}
}

// selectVerdict runs every classifier and returns the verdict with
// the highest confidence, falling back to a low-confidence
// model_confusion guess when nothing matches.
func selectVerdict(parts []hostclient.Part, patterns []models.ToolPattern, kill models.KillConfirmation) models.ClassifierVerdict {
	var best *models.ClassifierVerdict
	for _, classify := range classifiers {
		verdict := classify(parts, patterns, kill)
		if verdict == nil {
			continue
		}
		if best == nil || verdict.Confidence > best.Confidence {
			best = verdict
		}
	}
	if best != nil {
		return *best
	}
	return models.ClassifierVerdict{
		Category:        models.DiagnosisModelConfusion,
		Confidence:      0.30,
		Summary:         "Unable to classify failure — defaulting to model_confusion",
		SuggestedAction: "Re-dispatch with simplified prompt and different model",
	}
}

// toolPatterns computes one record per distinct tool across parts.
func toolPatterns(parts []hostclient.Part) []models.ToolPattern {
	order := make([]string, 0)
	byTool := make(map[string]*models.ToolPattern)

	for _, p := range parts {
		if p.Type != "tool" || p.Tool == "" {
			continue
		}
		tp, ok := byTool[p.Tool]
		if !ok {
			tp = &models.ToolPattern{Tool: p.Tool}
			byTool[p.Tool] = tp
			order = append(order, p.Tool)
		}
		tp.Count++
		if p.Status == "error" {
			tp.ErrorCount++
		}
		tp.LastStatus = p.Status
	}

	out := make([]models.ToolPattern, 0, len(order))
	for _, tool := range order {
		out = append(out, *byTool[tool])
	}
	return out
}

func toolParts(parts []hostclient.Part) []hostclient.Part {
	out := make([]hostclient.Part, 0, len(parts))
	for _, p := range parts {
		if p.Type == "tool" {
			out = append(out, p)
		}
	}
	return out
}

func lastN(parts []hostclient.Part, n int) []hostclient.Part {
	if len(parts) <= n {
		return parts
	}
	return parts[len(parts)-n:]
}

func containsFold(haystack string, needles ...string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
