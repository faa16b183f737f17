// internal/workers/evaluation/evaluate-responses/models.go
package evaluateresponses

import "tool-evaluator/internal/engine"

// Input is read from the process variables. TierLevel is what
// validate-subscription produced; an explicit CallerTier wins over it.
type Input struct {
	ProjectID             string            `json:"projectId"`
	Responses             []engine.Response `json:"responses"`
	CallerTier            *string           `json:"callerTier,omitempty"`
	TierLevel             string            `json:"tierLevel,omitempty"`
	IncludeUpgradePrompts *bool             `json:"includeUpgradePrompts,omitempty"`
}

type Output struct {
	Evaluation     engine.Result `json:"evaluation"`
	OutcomeLabel   string        `json:"outcomeLabel"`
	RawScore       float64       `json:"rawScore"`
	IsPartial      bool          `json:"isPartial"`
	RuleSetVersion int64         `json:"ruleSetVersion"`
}
