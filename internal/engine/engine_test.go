// internal/engine/engine_test.go
package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func ptrFloat(v float64) *float64 { return &v }
func ptrString(v string) *string  { return &v }
func ptrBool(v bool) *bool        { return &v }

// scenarioDefinition is the rule set shared by the acceptance scenarios:
// base 50, Q1 worth +20 on "yes", Q2 worth -10 on "yes" and gated at premium.
func scenarioDefinition() *Definition {
	return &Definition{
		ProjectID: "proj-quiz",
		Version:   3,
		BaseScore: 50.0,
		Fields: []FieldDefinition{
			{
				ID:   "Q1",
				Kind: "choice",
				Choices: []ChoiceDefinition{
					{Value: "yes", Weight: ptrFloat(20)},
					{Value: "no", Weight: ptrFloat(0)},
				},
			},
			{
				ID:             "Q2",
				Kind:           "choice",
				RequiredTier:   "premium",
				UpgradeMessage: "Premium unlocks the risk question.",
				Choices: []ChoiceDefinition{
					{Value: "yes", Weight: ptrFloat(-10)},
					{Value: "no", Weight: ptrFloat(0)},
				},
			},
			{ID: "Q3", Kind: "numeric", Weight: ptrFloat(2)},
			{ID: "Q4", Kind: "scale", Weight: ptrFloat(1.5), Min: ptrFloat(1), Max: ptrFloat(5)},
		},
		Ranges: []ScoreRange{
			{Min: 0, Max: 40, Label: "Low", Explanation: "Needs work"},
			{Min: 41, Max: 70, Label: "Medium", Explanation: "On track"},
			{Min: 71, Max: 100, Label: "High", Explanation: "Excellent"},
		},
	}
}

func scenarioRuleSet(t *testing.T) *RuleSet {
	t.Helper()
	rs, err := NewRuleSet(scenarioDefinition())
	require.NoError(t, err)
	return rs
}

func responses(pairs ...interface{}) []Response {
	out := make([]Response, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Response{FieldID: pairs[i].(string), Value: pairs[i+1]})
	}
	return out
}

// ==========================
// Acceptance Scenarios
// ==========================

func TestEvaluate_ScenarioA_FreeTierWithholdsPremiumField(t *testing.T) {
	rs := scenarioRuleSet(t)

	result, err := Evaluate(Request{
		Responses:  responses("Q1", "yes", "Q2", "no"),
		CallerTier: ptrString("free"),
	}, rs, nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, 70.0, result.RawScore)
	assert.Equal(t, "Medium", result.Outcome.Label)
	assert.Equal(t, "On track", result.Outcome.Explanation)
	assert.True(t, result.IsPartial)
	require.Len(t, result.UpgradePrompts, 1)
	assert.Equal(t, UpgradePrompt{
		FieldID:      "Q2",
		RequiredTier: TierPremium,
		Message:      "Premium unlocks the risk question.",
	}, result.UpgradePrompts[0])
	assert.Equal(t, []FieldContribution{{FieldID: "Q1", Contribution: 20}}, result.PerField)
	assert.Empty(t, result.Anomalies)
}

func TestEvaluate_ScenarioB_PremiumTierSeesEverything(t *testing.T) {
	rs := scenarioRuleSet(t)

	result, err := Evaluate(Request{
		Responses:  responses("Q1", "yes", "Q2", "no"),
		CallerTier: ptrString("premium"),
	}, rs, nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, 70.0, result.RawScore)
	assert.Equal(t, "Medium", result.Outcome.Label)
	assert.False(t, result.IsPartial)
	assert.NotNil(t, result.UpgradePrompts)
	assert.Empty(t, result.UpgradePrompts)
	assert.Equal(t, []FieldContribution{
		{FieldID: "Q1", Contribution: 20},
		{FieldID: "Q2", Contribution: 0},
	}, result.PerField)
}

func TestEvaluate_ScenarioC_UnknownFieldIsAnomaly(t *testing.T) {
	rs := scenarioRuleSet(t)

	result, err := Evaluate(Request{
		Responses:  responses("Q1", "yes", "Q99", "whatever"),
		CallerTier: ptrString("enterprise"),
	}, rs, nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, 70.0, result.RawScore)
	assert.Equal(t, []Anomaly{{FieldID: "Q99", Kind: AnomalyUnknownField}}, result.Anomalies)
	for _, pf := range result.PerField {
		assert.NotEqual(t, "Q99", pf.FieldID)
	}
}

func TestEvaluate_ScenarioD_NonNumericValue(t *testing.T) {
	rs := scenarioRuleSet(t)

	result, err := Evaluate(Request{
		Responses: responses("Q3", "abc", "Q1", "yes"),
	}, rs, nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, 70.0, result.RawScore)
	assert.Equal(t, []FieldContribution{
		{FieldID: "Q3", Contribution: 0},
		{FieldID: "Q1", Contribution: 20},
	}, result.PerField)
	assert.Equal(t, []Anomaly{{FieldID: "Q3", Kind: AnomalyInvalidValue}}, result.Anomalies)
	assert.False(t, result.IsPartial)
}

// ==========================
// Pipeline Behaviour
// ==========================

func TestEvaluate_NotConfigured(t *testing.T) {
	_, err := Evaluate(Request{Responses: responses("Q1", "yes")}, nil, nil, Options{})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestEvaluate_CallerTierNormalization(t *testing.T) {
	rs := scenarioRuleSet(t)

	tests := []struct {
		name            string
		callerTier      *string
		expectWithheld  bool
		expectAnomalies []Anomaly
	}{
		{name: "absent tier is lowest", callerTier: nil, expectWithheld: true, expectAnomalies: []Anomaly{}},
		{name: "empty tier is lowest", callerTier: ptrString(""), expectWithheld: true, expectAnomalies: []Anomaly{}},
		{name: "anonymous is lowest", callerTier: ptrString("anonymous"), expectWithheld: true, expectAnomalies: []Anomaly{}},
		{name: "mixed case name", callerTier: ptrString(" Premium "), expectWithheld: false, expectAnomalies: []Anomaly{}},
		{
			name:            "unknown tier fails closed",
			callerTier:      ptrString("platinum"),
			expectWithheld:  true,
			expectAnomalies: []Anomaly{{Kind: AnomalyUnknownTier}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(Request{
				Responses:  responses("Q2", "yes"),
				CallerTier: tt.callerTier,
			}, rs, nil, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.expectWithheld, result.IsPartial)
			assert.Equal(t, tt.expectAnomalies, result.Anomalies)
		})
	}
}

func TestEvaluate_IncludeUpgradePromptsFlag(t *testing.T) {
	rs := scenarioRuleSet(t)

	tests := []struct {
		name          string
		callerTier    *string
		include       *bool
		expectPrompts int
	}{
		{name: "default for free tier includes prompts", callerTier: ptrString("free"), expectPrompts: 1},
		{name: "explicit false suppresses prompts", callerTier: ptrString("free"), include: ptrBool(false), expectPrompts: 0},
		{name: "explicit true keeps prompts", callerTier: ptrString("basic"), include: ptrBool(true), expectPrompts: 1},
		{name: "top tier defaults to no prompts", callerTier: ptrString("enterprise"), expectPrompts: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(Request{
				Responses:             responses("Q2", "yes"),
				CallerTier:            tt.callerTier,
				IncludeUpgradePrompts: tt.include,
			}, rs, nil, Options{})
			require.NoError(t, err)
			assert.Len(t, result.UpgradePrompts, tt.expectPrompts)
		})
	}
}

func TestEvaluate_WithheldStaysPartialWhenPromptsSuppressed(t *testing.T) {
	rs := scenarioRuleSet(t)

	result, err := Evaluate(Request{
		Responses:             responses("Q2", "yes"),
		IncludeUpgradePrompts: ptrBool(false),
	}, rs, nil, Options{})
	require.NoError(t, err)

	assert.True(t, result.IsPartial)
	assert.Empty(t, result.UpgradePrompts)
	assert.Equal(t, 50.0, result.RawScore)
}

func TestEvaluate_ExplicitIndexOverridesFieldGates(t *testing.T) {
	rs := scenarioRuleSet(t)
	idx := NewPermissionIndex("proj-quiz", 3, map[string]PermissionEntry{
		"Q1": {RequiredTier: TierBasic},
	})

	result, err := Evaluate(Request{
		Responses: responses("Q1", "yes", "Q2", "yes"),
	}, rs, idx, Options{DefaultUpgradeMessage: "Upgrade to see more"})
	require.NoError(t, err)

	// Q2 is absent from the supplied index, so it is open.
	assert.Equal(t, 40.0, result.RawScore)
	assert.Equal(t, "Low", result.Outcome.Label)
	require.Len(t, result.UpgradePrompts, 1)
	assert.Equal(t, "Q1", result.UpgradePrompts[0].FieldID)
	assert.Equal(t, "Upgrade to see more", result.UpgradePrompts[0].Message)
}

func TestEvaluate_Idempotent(t *testing.T) {
	rs := scenarioRuleSet(t)
	req := Request{
		Responses:  responses("Q1", "yes", "Q2", "no", "Q3", 7.5, "Q4", "4", "Q9", 1, "Q3", 2),
		CallerTier: ptrString("basic"),
	}

	first, err := Evaluate(req, rs, nil, Options{})
	require.NoError(t, err)
	second, err := Evaluate(req, rs, nil, Options{})
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestEvaluate_ResultsShareNoState(t *testing.T) {
	rs := scenarioRuleSet(t)
	req := Request{Responses: responses("Q1", "yes", "Q2", "yes", "Q99", 1)}

	first, err := Evaluate(req, rs, nil, Options{})
	require.NoError(t, err)
	second, err := Evaluate(req, rs, nil, Options{})
	require.NoError(t, err)

	first.PerField[0].Contribution = 999
	first.UpgradePrompts[0].Message = "mutated"
	first.Anomalies[0].Kind = "mutated"

	assert.Equal(t, 20.0, second.PerField[0].Contribution)
	assert.NotEqual(t, "mutated", second.UpgradePrompts[0].Message)
	assert.Equal(t, AnomalyUnknownField, second.Anomalies[0].Kind)
}

func TestEvaluate_JSONShape(t *testing.T) {
	rs := scenarioRuleSet(t)

	result, err := Evaluate(Request{Responses: responses("Q1", "no", "Q2", "no")}, rs, nil, Options{})
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 50.0, decoded["rawScore"])
	assert.Equal(t, true, decoded["isPartial"])
	prompts := decoded["upgradePrompts"].([]interface{})
	require.Len(t, prompts, 1)
	assert.Equal(t, "premium", prompts[0].(map[string]interface{})["requiredTier"])
	assert.Equal(t, []interface{}{}, decoded["anomalies"])
}

func TestResult_Event(t *testing.T) {
	rs := scenarioRuleSet(t)

	result, err := Evaluate(Request{
		Responses: responses("Q1", "yes", "Q2", "no", "Q3", "abc"),
	}, rs, nil, Options{})
	require.NoError(t, err)

	event := result.Event(rs.ProjectID(), rs.Version())
	assert.Equal(t, EventPayload{
		ProjectID:          "proj-quiz",
		Version:            3,
		RawScore:           70,
		OutcomeLabel:       "Medium",
		UpgradePromptCount: 1,
		AnomalyCount:       1,
		IsPartial:          true,
	}, event)
}
