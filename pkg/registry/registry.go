// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	apperrors "tool-evaluator/internal/common/errors"
	"tool-evaluator/internal/common/validation"
)

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*ActivityRegistry, error) {
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return &reg, nil
}

// Find returns the activity registered for taskType.
func (r *ActivityRegistry) Find(taskType string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

// Validate lists every structural problem of the registry.
func (r *ActivityRegistry) Validate() []string {
	var problems []string
	if len(r.Activities) == 0 {
		problems = append(problems, "registry contains no activities")
	}

	ids := make(map[string]bool)
	for i, a := range r.Activities {
		if a.ID == "" {
			problems = append(problems, fmt.Sprintf("activities[%d]: missing id", i))
			continue
		}
		if ids[a.ID] {
			problems = append(problems, fmt.Sprintf("duplicate activity id: %s", a.ID))
		}
		ids[a.ID] = true

		if a.DisplayName == "" {
			problems = append(problems, fmt.Sprintf("activity %s: missing displayName", a.ID))
		}
		if a.TaskType == "" {
			problems = append(problems, fmt.Sprintf("activity %s: missing taskType", a.ID))
		}
		if a.Category == "" {
			problems = append(problems, fmt.Sprintf("activity %s: missing category", a.ID))
		}
		if a.Timeout != "" {
			if _, err := time.ParseDuration(a.Timeout); err != nil {
				problems = append(problems, fmt.Sprintf("activity %s: invalid timeout %q", a.ID, a.Timeout))
			}
		}
		if len(a.InputSchema) > 0 {
			if _, err := validation.NewValidator(a.InputSchema); err != nil {
				problems = append(problems, fmt.Sprintf("activity %s: inputSchema: %v", a.ID, err))
			}
		}
	}
	return problems
}

// ValidateInput checks job variables against the activity's input schema.
// Activities without a schema accept anything.
func (a *Activity) ValidateInput(variables []byte) error {
	if len(a.InputSchema) == 0 {
		return nil
	}
	v, err := validation.NewValidator(a.InputSchema)
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("activity %s: %w", a.ID, err))
	}
	res, err := v.ValidateJSON(variables)
	if err != nil {
		return apperrors.NewInputValidationFailedError(err.Error())
	}
	if !res.Valid {
		return apperrors.NewInputValidationFailedError(res.Error())
	}
	return nil
}
