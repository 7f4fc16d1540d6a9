package diagnosis

import (
	"fmt"

	"github.com/tarsy-labs/session-governor/pkg/hostclient"
	"github.com/tarsy-labs/session-governor/pkg/models"
)

// classifyStuckOnApproval flags a session stalled waiting on human
// confirmation, scanning the last 10 parts.
func classifyStuckOnApproval(parts []hostclient.Part, _ []models.ToolPattern, _ models.KillConfirmation) *models.ClassifierVerdict {
	last := lastN(parts, 10)
	if len(last) == 0 {
		return nil
	}

	textCount, toolCount := 0, 0
	for _, p := range last {
		if p.Type == "text" {
			textCount++
		}
		if p.Type == "tool" {
			toolCount++
		}
	}
	if textCount >= 7 && toolCount == 0 {
		return &models.ClassifierVerdict{
			Category:        models.DiagnosisStuckOnApproval,
			Confidence:      0.75,
			Summary:         "Session stalled exchanging text with no tool activity",
			SuggestedAction: "Re-dispatch with auto-approval and an instruction to proceed without confirmation",
		}
	}

	keywords := []string{"permission", "approve", "confirm", "proceed", "allow"}
	hasKeyword := false
	for _, p := range last {
		if containsFold(p.Content, keywords...) {
			hasKeyword = true
			break
		}
	}
	if hasKeyword && toolCount <= 2 {
		return &models.ClassifierVerdict{
			Category:        models.DiagnosisStuckOnApproval,
			Confidence:      0.65,
			Summary:         "Session referenced needing approval before acting",
			SuggestedAction: "Re-dispatch with auto-approval and an instruction to proceed without confirmation",
		}
	}
	return nil
}

// classifyInfiniteRetry flags a tool that keeps failing on repeated calls.
func classifyInfiniteRetry(parts []hostclient.Part, patterns []models.ToolPattern, _ models.KillConfirmation) *models.ClassifierVerdict {
	var failingTools []models.ToolPattern
	for _, tp := range patterns {
		if tp.Count >= 3 && float64(tp.ErrorCount)/float64(tp.Count) >= 0.5 {
			failingTools = append(failingTools, tp)
		}
	}
	if len(failingTools) == 0 {
		return nil
	}

	tools := toolParts(parts)
	streak := 0
	for i := len(tools) - 1; i >= 0; i-- {
		if tools[i].Status != "error" {
			break
		}
		streak++
	}

	if streak >= 3 {
		tool := tools[len(tools)-1]
		return &models.ClassifierVerdict{
			Category:        models.DiagnosisInfiniteRetry,
			Confidence:      0.85,
			Summary:         fmt.Sprintf("Tool %q failed %d times in a row: %s", tool.Tool, streak, tool.Error),
			SuggestedAction: "Re-dispatch with an instruction to try a different approach instead of retrying the same tool",
		}
	}

	worst := highestErrorRatio(failingTools)
	return &models.ClassifierVerdict{
		Category:        models.DiagnosisInfiniteRetry,
		Confidence:      0.60,
		Summary:         fmt.Sprintf("Tool %q is failing repeatedly (%d/%d calls errored)", worst.Tool, worst.ErrorCount, worst.Count),
		SuggestedAction: "Re-dispatch with an instruction to try a different approach instead of retrying the same tool",
	}
}

func highestErrorRatio(patterns []models.ToolPattern) models.ToolPattern {
	best := patterns[0]
	bestRatio := float64(best.ErrorCount) / float64(best.Count)
	for _, tp := range patterns[1:] {
		ratio := float64(tp.ErrorCount) / float64(tp.Count)
		if ratio > bestRatio {
			best, bestRatio = tp, ratio
		}
	}
	return best
}

// readLikeTools are the tool names treated as read-like for
// context_exhaustion.
var readLikeTools = map[string]bool{
	"read": true, "readFile": true, "Read": true, "cat": true, "grep": true, "Grep": true,
}

func classifyContextExhaustion(_ []hostclient.Part, patterns []models.ToolPattern, kill models.KillConfirmation) *models.ClassifierVerdict {
	if kill.Trigger.Classification == models.LoopCachePlateau {
		return &models.ClassifierVerdict{
			Category:        models.DiagnosisContextExhaustion,
			Confidence:      0.90,
			Summary:         "Session re-processed the same cached content without progress",
			SuggestedAction: "Re-dispatch with a condensed summary of prior findings instead of full history",
		}
	}

	var readCount, totalCount int
	for _, tp := range patterns {
		totalCount += tp.Count
		if readLikeTools[tp.Tool] {
			readCount += tp.Count
		}
	}
	if readCount >= 10 && totalCount > 0 && float64(readCount)/float64(totalCount) > 0.7 {
		return &models.ClassifierVerdict{
			Category:        models.DiagnosisContextExhaustion,
			Confidence:      0.70,
			Summary:         "Session spent most of its tool activity re-reading material",
			SuggestedAction: "Re-dispatch with a condensed summary of prior findings instead of full history",
		}
	}
	return nil
}

// editLikeTools are the tool names treated as edit-like for
// scope_creep.
var editLikeTools = map[string]bool{
	"edit": true, "editFile": true, "Edit": true, "write": true, "Write": true, "writeFile": true,
}

func classifyScopeCreep(_ []hostclient.Part, patterns []models.ToolPattern, _ models.KillConfirmation) *models.ClassifierVerdict {
	var editCount int
	for _, tp := range patterns {
		if editLikeTools[tp.Tool] {
			editCount += tp.Count
		}
	}
	switch {
	case editCount > 15:
		return &models.ClassifierVerdict{
			Category:        models.DiagnosisScopeCreep,
			Confidence:      0.75,
			Summary:         fmt.Sprintf("Session made %d edit calls, far beyond a focused change", editCount),
			SuggestedAction: "Re-dispatch with an explicit, narrow scope boundary",
		}
	case editCount > 8:
		return &models.ClassifierVerdict{
			Category:        models.DiagnosisScopeCreep,
			Confidence:      0.50,
			Summary:         fmt.Sprintf("Session made %d edit calls, more than a focused change typically needs", editCount),
			SuggestedAction: "Re-dispatch with an explicit, narrow scope boundary",
		}
	default:
		return nil
	}
}

func classifyModelConfusion(parts []hostclient.Part, patterns []models.ToolPattern, _ models.KillConfirmation) *models.ClassifierVerdict {
	cycles := countFlipFlopCycles(toolParts(parts))
	if cycles >= 2 {
		return &models.ClassifierVerdict{
			Category:        models.DiagnosisModelConfusion,
			Confidence:      0.80,
			Summary:         fmt.Sprintf("Session oscillated between edit and revert %d times", cycles),
			SuggestedAction: "Re-dispatch with simplified prompt and different model",
		}
	}

	errorTools := 0
	for _, tp := range patterns {
		if tp.ErrorCount > 0 {
			errorTools++
		}
	}
	if errorTools >= 4 {
		return &models.ClassifierVerdict{
			Category:        models.DiagnosisModelConfusion,
			Confidence:      0.60,
			Summary:         fmt.Sprintf("%d distinct tools produced errors", errorTools),
			SuggestedAction: "Re-dispatch with simplified prompt and different model",
		}
	}
	return nil
}

var editNames = map[string]bool{"edit": true, "Edit": true}
var undoNames = map[string]bool{"undo": true, "revert": true}

// countFlipFlopCycles is a 3-window sliding scan over the tool stream
// for (edit) -> (undo|revert) -> (edit) triples.
func countFlipFlopCycles(tools []hostclient.Part) int {
	cycles := 0
	for i := 0; i+2 < len(tools); i++ {
		if editNames[tools[i].Tool] && undoNames[tools[i+1].Tool] && editNames[tools[i+2].Tool] {
			cycles++
		}
	}
	return cycles
}
