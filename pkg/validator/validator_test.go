package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/session-governor/pkg/models"
)

type fakeStore struct {
	requirements map[string][]models.PunchCardRequirement
	punches      map[string][]models.Punch
	children     map[string][]string
}

func (f *fakeStore) CardRequirements(ctx context.Context, cardID string) ([]models.PunchCardRequirement, error) {
	return f.requirements[cardID], nil
}

func (f *fakeStore) PunchesByTask(ctx context.Context, taskID string) ([]models.Punch, error) {
	return f.punches[taskID], nil
}

func (f *fakeStore) ChildrenOf(ctx context.Context, parentID string) ([]string, error) {
	return f.children[parentID], nil
}

func readFileCard() []models.PunchCardRequirement {
	return []models.PunchCardRequirement{
		{CardID: "card1", PunchType: models.PunchTypeToolCall, PunchKeyPattern: "read_file%", Required: true},
	}
}

// A card requiring {tool_call LIKE read_file% required=true} and a
// task with one matching punch -> {pass, missing=[], violations=[]}.
func TestValidate_RequiredPatternSatisfied_Pass(t *testing.T) {
	store := &fakeStore{
		requirements: map[string][]models.PunchCardRequirement{"card1": readFileCard()},
		punches: map[string][]models.Punch{
			"task1": {{PunchType: models.PunchTypeToolCall, PunchKey: "read_file_contents"}},
		},
	}

	result, err := Validate(context.Background(), store, "task1", "card1")
	require.NoError(t, err)
	assert.Equal(t, models.ValidationPass, result.Status)
	assert.Empty(t, result.Missing)
	assert.Empty(t, result.Violations)
}

func TestValidate_EmptyCardFails(t *testing.T) {
	store := &fakeStore{requirements: map[string][]models.PunchCardRequirement{}}
	result, err := Validate(context.Background(), store, "task1", "missing-card")
	require.NoError(t, err)
	assert.Equal(t, models.ValidationFail, result.Status)
}

func TestValidate_ForbiddenPunchCausesViolation(t *testing.T) {
	store := &fakeStore{
		requirements: map[string][]models.PunchCardRequirement{
			"card1": {{CardID: "card1", PunchType: models.PunchTypeToolCall, PunchKeyPattern: "rm_rf%", Required: true, Forbidden: true}},
		},
		punches: map[string][]models.Punch{
			"task1": {{PunchType: models.PunchTypeToolCall, PunchKey: "rm_rf_tmp"}},
		},
	}

	result, err := Validate(context.Background(), store, "task1", "card1")
	require.NoError(t, err)
	assert.Equal(t, models.ValidationFail, result.Status)
	require.Len(t, result.Violations, 1)
}

func TestValidate_NonRequiredRowsSkipped(t *testing.T) {
	store := &fakeStore{
		requirements: map[string][]models.PunchCardRequirement{
			"card1": {{CardID: "card1", PunchType: models.PunchTypeToolCall, PunchKeyPattern: "anything%", Required: false}},
		},
		punches: map[string][]models.Punch{"task1": {}},
	}

	result, err := Validate(context.Background(), store, "task1", "card1")
	require.NoError(t, err)
	assert.Equal(t, models.ValidationPass, result.Status)
}

// Removing a satisfying punch turns pass into fail listing the
// requirement in missing; adding a forbidden punch turns pass into
// fail listing it in violations.
func TestValidate_Symmetry_RemovingPunchCausesMissing(t *testing.T) {
	card := []models.PunchCardRequirement{
		{CardID: "card1", PunchType: models.PunchTypeToolCall, PunchKeyPattern: "read_file%", Required: true},
	}
	store := &fakeStore{
		requirements: map[string][]models.PunchCardRequirement{"card1": card},
		punches: map[string][]models.Punch{
			"task1": {{PunchType: models.PunchTypeToolCall, PunchKey: "read_file_contents"}},
		},
	}

	passResult, err := Validate(context.Background(), store, "task1", "card1")
	require.NoError(t, err)
	assert.Equal(t, models.ValidationPass, passResult.Status)

	store.punches["task1"] = nil
	failResult, err := Validate(context.Background(), store, "task1", "card1")
	require.NoError(t, err)
	assert.Equal(t, models.ValidationFail, failResult.Status)
	require.Len(t, failResult.Missing, 1)
	assert.Equal(t, card[0], failResult.Missing[0])
}

func TestValidate_Symmetry_AddingForbiddenPunchCausesViolation(t *testing.T) {
	card := []models.PunchCardRequirement{
		{CardID: "card1", PunchType: models.PunchTypeToolCall, PunchKeyPattern: "read_file%", Required: true},
		{CardID: "card1", PunchType: models.PunchTypeToolCall, PunchKeyPattern: "rm_rf%", Required: true, Forbidden: true},
	}
	store := &fakeStore{
		requirements: map[string][]models.PunchCardRequirement{"card1": card},
		punches: map[string][]models.Punch{
			"task1": {{PunchType: models.PunchTypeToolCall, PunchKey: "read_file_contents"}},
		},
	}

	passResult, err := Validate(context.Background(), store, "task1", "card1")
	require.NoError(t, err)
	assert.Equal(t, models.ValidationPass, passResult.Status)

	store.punches["task1"] = append(store.punches["task1"], models.Punch{PunchType: models.PunchTypeToolCall, PunchKey: "rm_rf_tmp"})
	failResult, err := Validate(context.Background(), store, "task1", "card1")
	require.NoError(t, err)
	assert.Equal(t, models.ValidationFail, failResult.Status)
	require.Len(t, failResult.Violations, 1)
	assert.Equal(t, card[1], failResult.Violations[0])
}

func TestCheckToolAdherence_WithinRange(t *testing.T) {
	store := &fakeStore{
		punches: map[string][]models.Punch{
			"task1": {
				{PunchType: models.PunchTypeToolCall, PunchKey: "edit_file"},
				{PunchType: models.PunchTypeToolCall, PunchKey: "apply_diff"},
				{PunchType: models.PunchTypeToolCall, PunchKey: "readFile"},
			},
		},
	}

	result, err := CheckToolAdherence(context.Background(), store, "task1", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)
	assert.True(t, result.WithinRange)
}

func TestVerifySubtasks_AggregatesChildren(t *testing.T) {
	card := readFileCard()
	store := &fakeStore{
		requirements: map[string][]models.PunchCardRequirement{"card1": card},
		punches: map[string][]models.Punch{
			"child1": {{PunchType: models.PunchTypeToolCall, PunchKey: "read_file_x"}},
			"child2": {},
		},
		children: map[string][]string{"parent1": {"child1", "child2"}},
	}

	result, err := VerifySubtasks(context.Background(), store, store, "parent1", "card1")
	require.NoError(t, err)
	assert.False(t, result.AllChildrenOK)
	assert.Equal(t, models.ValidationPass, result.Children["child1"].Status)
	assert.Equal(t, models.ValidationFail, result.Children["child2"].Status)
}
