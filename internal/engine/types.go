// internal/engine/types.go
package engine

// FieldKind tags the scoring variant of a field.
type FieldKind string

const (
	KindChoice  FieldKind = "choice"
	KindNumeric FieldKind = "numeric"
	KindScale   FieldKind = "scale"
)

func (k FieldKind) Valid() bool {
	switch k {
	case KindChoice, KindNumeric, KindScale:
		return true
	}
	return false
}

// AnomalyKind classifies a non-fatal problem found while evaluating.
type AnomalyKind string

const (
	AnomalyUnknownField   AnomalyKind = "unknown-field"
	AnomalyInvalidValue   AnomalyKind = "invalid-value"
	AnomalyUnknownTier    AnomalyKind = "unknown-tier"
	AnomalyDuplicateField AnomalyKind = "duplicate-field"
)

// Choice is one selectable option of a choice field.
type Choice struct {
	ID          string                 `json:"id"`
	Value       string                 `json:"value"`
	Explanation string                 `json:"explanation,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// ScaleBounds limits the accepted values of a scale field.
type ScaleBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Field is the read-only view of a configured field. Choices is set only for
// choice fields and Bounds only for scale fields.
type Field struct {
	ID             string       `json:"id"`
	Kind           FieldKind    `json:"kind"`
	RequiredTier   Tier         `json:"requiredTier"`
	UpgradeMessage string       `json:"upgradeMessage,omitempty"`
	Choices        []Choice     `json:"choices,omitempty"`
	Bounds         *ScaleBounds `json:"bounds,omitempty"`
}

// ScoreRange maps [Min, Max] to an outcome. A boundary shared with the next
// range belongs to this (lower) range.
type ScoreRange struct {
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Label       string  `json:"label"`
	Explanation string  `json:"explanation"`
}

// Response is a single submitted answer. Value holds a string or a number.
type Response struct {
	FieldID string      `json:"fieldId"`
	Value   interface{} `json:"value"`
}

type Outcome struct {
	Label       string `json:"label"`
	Explanation string `json:"explanation"`
}

type FieldContribution struct {
	FieldID      string  `json:"fieldId"`
	Contribution float64 `json:"contribution"`
}

type UpgradePrompt struct {
	FieldID      string `json:"fieldId"`
	RequiredTier Tier   `json:"requiredTier"`
	Message      string `json:"message"`
}

type Anomaly struct {
	FieldID string      `json:"fieldId"`
	Kind    AnomalyKind `json:"kind"`
}

// Result is the outcome of one evaluation. Every slice is owned by the Result.
type Result struct {
	RawScore       float64             `json:"rawScore"`
	Outcome        Outcome             `json:"outcome"`
	PerField       []FieldContribution `json:"perField"`
	UpgradePrompts []UpgradePrompt     `json:"upgradePrompts"`
	IsPartial      bool                `json:"isPartial"`
	Anomalies      []Anomaly           `json:"anomalies"`
}

// Request is the caller-facing evaluation input.
type Request struct {
	Responses             []Response `json:"responses"`
	CallerTier            *string    `json:"callerTier,omitempty"`
	IncludeUpgradePrompts *bool      `json:"includeUpgradePrompts,omitempty"`
}
