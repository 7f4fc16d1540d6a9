// Package validator implements the punch-card validator and subtask
// verifier: evaluating a task's punches against a declared set of
// required/forbidden patterns.
package validator

import (
	"context"
	"regexp"
	"strings"

	"github.com/tarsy-labs/session-governor/pkg/models"
)

// CardStore is the read surface the validator needs from the store.
type CardStore interface {
	CardRequirements(ctx context.Context, cardID string) ([]models.PunchCardRequirement, error)
	PunchesByTask(ctx context.Context, taskID string) ([]models.Punch, error)
}

// ChildLister resolves a parent task's children for subtask
// verification.
type ChildLister interface {
	ChildrenOf(ctx context.Context, parentID string) ([]string, error)
}

// toolAdherencePatterns are the tool_call keys treated as
// file-mutating for check_tool_adherence.
var toolAdherencePatterns = map[string]bool{
	"write_to_file": true, "edit_file": true, "apply_diff": true,
}

// Validate evaluates a card's requirements against a task's punches.
// An empty card (no requirement rows) fails rather than vacuously
// passing.
func Validate(ctx context.Context, store CardStore, taskID, cardID string) (models.ValidationResult, error) {
	requirements, err := store.CardRequirements(ctx, cardID)
	if err != nil {
		return models.ValidationResult{}, err
	}
	if len(requirements) == 0 {
		return models.ValidationResult{Status: models.ValidationFail}, nil
	}

	punches, err := store.PunchesByTask(ctx, taskID)
	if err != nil {
		return models.ValidationResult{}, err
	}

	var missing, violations []models.PunchCardRequirement
	for _, req := range requirements {
		if !req.Required {
			continue
		}
		count := countMatching(punches, req)
		if req.Forbidden {
			if count > 0 {
				violations = append(violations, req)
			}
			continue
		}
		if count <= 0 {
			missing = append(missing, req)
		}
	}

	status := models.ValidationPass
	if len(missing) > 0 || len(violations) > 0 {
		status = models.ValidationFail
	}
	return models.ValidationResult{Status: status, Missing: missing, Violations: violations}, nil
}

func countMatching(punches []models.Punch, req models.PunchCardRequirement) int {
	matcher := globToRegexp(req.PunchKeyPattern)
	count := 0
	for _, p := range punches {
		if p.PunchType == req.PunchType && matcher.MatchString(p.PunchKey) {
			count++
		}
	}
	return count
}

// globToRegexp compiles a `%`-wildcard glob into an anchored regexp.
func globToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteByte('^')
	for _, part := range strings.Split(pattern, "%") {
		b.WriteString(regexp.QuoteMeta(part))
		b.WriteString(".*")
	}
	s := strings.TrimSuffix(b.String(), ".*")
	s += "$"
	re, err := regexp.Compile(s)
	if err != nil {
		// An unparseable pattern can never match; fail closed rather than panic.
		return regexp.MustCompile(`$.^`)
	}
	return re
}

// CheckToolAdherence counts file-mutating tool_call punches for a
// task and reports whether the count falls within [lo,hi].
func CheckToolAdherence(ctx context.Context, store CardStore, taskID string, lo, hi int) (models.ToolAdherenceResult, error) {
	punches, err := store.PunchesByTask(ctx, taskID)
	if err != nil {
		return models.ToolAdherenceResult{}, err
	}
	count := 0
	for _, p := range punches {
		if p.PunchType == models.PunchTypeToolCall && toolAdherencePatterns[p.PunchKey] {
			count++
		}
	}
	return models.ToolAdherenceResult{
		Count:       count,
		Low:         lo,
		High:        hi,
		WithinRange: count >= lo && count <= hi,
	}, nil
}

// VerifySubtasks enumerates parentTaskID's children and validates each
// against childCardID.
func VerifySubtasks(ctx context.Context, store CardStore, children ChildLister, parentTaskID, childCardID string) (models.SubtaskVerification, error) {
	childIDs, err := children.ChildrenOf(ctx, parentTaskID)
	if err != nil {
		return models.SubtaskVerification{}, err
	}

	results := make(map[string]models.ValidationResult, len(childIDs))
	allOK := true
	for _, childID := range childIDs {
		result, err := Validate(ctx, store, childID, childCardID)
		if err != nil {
			return models.SubtaskVerification{}, err
		}
		results[childID] = result
		if result.Status != models.ValidationPass {
			allOK = false
		}
	}

	return models.SubtaskVerification{
		ParentTaskID:  parentTaskID,
		ChildCardID:   childCardID,
		Children:      results,
		AllChildrenOK: allOK,
	}, nil
}
