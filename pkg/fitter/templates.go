package fitter

import (
	"fmt"

	"github.com/tarsy-labs/session-governor/pkg/models"
)

// templates maps each diagnosis category to a prompt builder. Every
// template mentions the session id, the failure summary, the
// tool-activity breakdown, and the suggested action.
var templates = map[models.DiagnosisCategory]func(models.Diagnosis) string{
	models.DiagnosisStuckOnApproval: func(d models.Diagnosis) string {
		return fmt.Sprintf(
			"Session %s stalled waiting for approval: %s\n\nTool activity:\n%s\nProceed autonomously — approvals are pre-granted in this recovery session. %s",
			d.SessionID, d.Summary, formatToolActivity(d.ToolPatterns), d.SuggestedAction,
		)
	},
	models.DiagnosisInfiniteRetry: func(d models.Diagnosis) string {
		return fmt.Sprintf(
			"Session %s got stuck retrying a failing tool: %s\n\nTool activity:\n%sDo not repeat the same failing approach. %s",
			d.SessionID, d.Summary, formatToolActivity(d.ToolPatterns), d.SuggestedAction,
		)
	},
	models.DiagnosisContextExhaustion: func(d models.Diagnosis) string {
		return fmt.Sprintf(
			"Session %s exhausted useful context re-reading the same material: %s\n\nTool activity:\n%sWork from a fresh summary instead of re-reading prior state. %s",
			d.SessionID, d.Summary, formatToolActivity(d.ToolPatterns), d.SuggestedAction,
		)
	},
	models.DiagnosisScopeCreep: func(d models.Diagnosis) string {
		return fmt.Sprintf(
			"Session %s expanded beyond its intended scope: %s\n\nTool activity:\n%sLimit changes strictly to the original task. %s",
			d.SessionID, d.Summary, formatToolActivity(d.ToolPatterns), d.SuggestedAction,
		)
	},
	models.DiagnosisModelConfusion: func(d models.Diagnosis) string {
		return fmt.Sprintf(
			"Session %s oscillated between contradictory edits: %s\n\nTool activity:\n%sPlan the change fully before editing. %s",
			d.SessionID, d.Summary, formatToolActivity(d.ToolPatterns), d.SuggestedAction,
		)
	},
}
