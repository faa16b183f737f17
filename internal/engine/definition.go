// internal/engine/definition.go
package engine

import (
	"encoding/json"
	"fmt"
)

// Definition is the published, serialized form of a rule set as produced by
// the authoring flow. It is turned into a RuleSet by NewRuleSet, which is the
// only place its contents are validated.
type Definition struct {
	ProjectID   string             `json:"projectId"`
	Version     int64              `json:"version"`
	BaseScore   interface{}        `json:"baseScore"`
	Weights     map[string]float64 `json:"weights,omitempty"`
	Fields      []FieldDefinition  `json:"fields"`
	Ranges      []ScoreRange       `json:"ranges"`
	AuthorEmail string             `json:"authorEmail,omitempty"`
}

type FieldDefinition struct {
	ID             string             `json:"id"`
	Kind           string             `json:"kind"`
	Weight         *float64           `json:"weight,omitempty"`
	RequiredTier   string             `json:"requiredTier,omitempty"`
	UpgradeMessage string             `json:"upgradeMessage,omitempty"`
	Choices        []ChoiceDefinition `json:"choices,omitempty"`
	Min            *float64           `json:"min,omitempty"`
	Max            *float64           `json:"max,omitempty"`
}

type ChoiceDefinition struct {
	ID          string                 `json:"id,omitempty"`
	Value       string                 `json:"value"`
	Weight      *float64               `json:"weight,omitempty"`
	Explanation string                 `json:"explanation,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// ParseDefinition decodes a definition document. BaseScore stays untyped so a
// non-numeric base score is reported by NewRuleSet rather than by the decoder.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: decode definition: %v", ErrInvalidRuleSet, err)
	}
	return &def, nil
}

// ChoiceKey is the weight key of a choice that has no explicit id.
func ChoiceKey(fieldID, value string) string {
	return fieldID + ":" + value
}
