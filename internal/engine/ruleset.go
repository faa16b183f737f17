// internal/engine/ruleset.go
package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrInvalidRuleSet = errors.New("RULESET_INVALID")
	ErrNotConfigured  = errors.New("TOOL_NOT_CONFIGURED")
)

// maxBoundaryStep is the largest distance allowed between one range's maximum
// and the next range's minimum. Authors write integer bands such as 0-40 and
// 41-70; a score falling strictly between them resolves to the upper band.
const maxBoundaryStep = 1.0

// ValidationError lists every problem found in a definition.
type ValidationError struct {
	ProjectID string
	Version   int64
	Problems  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rule set %s v%d invalid: %s", e.ProjectID, e.Version, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRuleSet
}

// RuleSet is the validated, immutable scoring configuration of one project
// version. It is safe for concurrent use by any number of evaluations.
type RuleSet struct {
	projectID  string
	version    int64
	baseScore  float64
	fields     map[string]*fieldSpec
	fieldOrder []string
	weights    map[string]float64
	ranges     []ScoreRange
}

type fieldSpec struct {
	field       Field
	choiceByKey map[string]Choice
}

// NewRuleSet validates def and builds the in-memory lookup structures used by
// evaluation. Nothing in def is retained.
func NewRuleSet(def *Definition) (*RuleSet, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", ErrInvalidRuleSet)
	}

	var problems []string
	addf := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(def.ProjectID) == "" {
		addf("projectId is required")
	}
	if def.Version <= 0 {
		addf("version must be positive, got %d", def.Version)
	}

	base, err := numericBaseScore(def.BaseScore)
	if err != nil {
		addf("baseScore: %v", err)
	}

	rs := &RuleSet{
		projectID: def.ProjectID,
		version:   def.Version,
		baseScore: base,
		fields:    make(map[string]*fieldSpec, len(def.Fields)),
		weights:   make(map[string]float64),
	}

	// Field and choice weights share one key space.
	fieldIDs := make(map[string]bool, len(def.Fields))
	for _, fd := range def.Fields {
		fieldIDs[fd.ID] = true
	}
	choiceOwner := make(map[string]string)

	knownKeys := make(map[string]bool)
	for i, fd := range def.Fields {
		spec, fieldProblems := buildField(fd, def.Weights, rs.weights)
		for _, p := range fieldProblems {
			addf("fields[%d] %s: %s", i, fd.ID, p)
		}
		if spec == nil {
			continue
		}
		if _, dup := rs.fields[fd.ID]; dup {
			addf("fields[%d]: duplicate field id %q", i, fd.ID)
			continue
		}
		rs.fields[fd.ID] = spec
		rs.fieldOrder = append(rs.fieldOrder, fd.ID)
		knownKeys[fd.ID] = true
		for _, c := range spec.field.Choices {
			if fieldIDs[c.ID] {
				addf("fields[%d] %s: choice id %q collides with a field id", i, fd.ID, c.ID)
			}
			if owner, taken := choiceOwner[c.ID]; taken && owner != fd.ID {
				addf("fields[%d] %s: choice id %q is already used by field %q", i, fd.ID, c.ID, owner)
			}
			choiceOwner[c.ID] = fd.ID
			knownKeys[c.ID] = true
		}
	}
	if len(def.Fields) == 0 {
		addf("at least one field is required")
	}

	for _, key := range sortedKeys(def.Weights) {
		w := def.Weights[key]
		if !knownKeys[key] {
			addf("weights: %q references no field or choice", key)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			addf("weights: %q is not a finite number", key)
		}
	}

	problems = append(problems, validateRanges(def.Ranges)...)

	if len(problems) > 0 {
		return nil, &ValidationError{ProjectID: def.ProjectID, Version: def.Version, Problems: problems}
	}

	rs.ranges = append([]ScoreRange(nil), def.Ranges...)
	return rs, nil
}

func buildField(fd FieldDefinition, explicit, weights map[string]float64) (*fieldSpec, []string) {
	var problems []string
	if strings.TrimSpace(fd.ID) == "" {
		return nil, []string{"id is required"}
	}

	kind := FieldKind(strings.ToLower(strings.TrimSpace(fd.Kind)))
	if !kind.Valid() {
		return nil, []string{fmt.Sprintf("unknown kind %q", fd.Kind)}
	}

	required := LowestTier
	if fd.RequiredTier != "" {
		t, err := ParseTier(fd.RequiredTier)
		if err != nil {
			problems = append(problems, err.Error())
		}
		required = t
	}

	spec := &fieldSpec{field: Field{
		ID:             fd.ID,
		Kind:           kind,
		RequiredTier:   required,
		UpgradeMessage: fd.UpgradeMessage,
	}}

	switch kind {
	case KindChoice:
		if len(fd.Choices) == 0 {
			problems = append(problems, "choice field needs at least one choice")
		}
		if fd.Min != nil || fd.Max != nil {
			problems = append(problems, "min/max apply to scale fields only")
		}
		if fd.Weight != nil {
			problems = append(problems, "choice fields take no field weight; weight the choices instead")
		}
		if _, ok := explicit[fd.ID]; ok {
			problems = append(problems, fmt.Sprintf("weights: %q is a choice field; weight the choices instead", fd.ID))
		}
		spec.choiceByKey = make(map[string]Choice, len(fd.Choices)*2)
		seenValues := make(map[string]bool, len(fd.Choices))
		seenIDs := make(map[string]bool, len(fd.Choices))
		for _, cd := range fd.Choices {
			if seenValues[cd.Value] {
				problems = append(problems, fmt.Sprintf("duplicate choice value %q", cd.Value))
				continue
			}
			seenValues[cd.Value] = true

			c := Choice{
				ID:          cd.ID,
				Value:       cd.Value,
				Explanation: cd.Explanation,
				Payload:     copyPayload(cd.Payload),
			}
			if c.ID == "" {
				c.ID = ChoiceKey(fd.ID, cd.Value)
			}
			if seenIDs[c.ID] {
				problems = append(problems, fmt.Sprintf("duplicate choice id %q", c.ID))
				continue
			}
			seenIDs[c.ID] = true
			if w, ok := explicit[c.ID]; ok {
				weights[c.ID] = w
			} else if cd.Weight != nil {
				weights[c.ID] = *cd.Weight
			}
			if w, ok := weights[c.ID]; ok && (math.IsNaN(w) || math.IsInf(w, 0)) {
				problems = append(problems, fmt.Sprintf("choice %q weight is not finite", c.ID))
			}
			spec.field.Choices = append(spec.field.Choices, c)
			spec.choiceByKey[c.Value] = c
			if _, taken := spec.choiceByKey[c.ID]; !taken {
				spec.choiceByKey[c.ID] = c
			}
		}

	case KindNumeric, KindScale:
		if len(fd.Choices) > 0 {
			problems = append(problems, fmt.Sprintf("%s field cannot have choices", kind))
		}
		if w, ok := explicit[fd.ID]; ok {
			weights[fd.ID] = w
		} else if fd.Weight != nil {
			weights[fd.ID] = *fd.Weight
		}
		if w, ok := weights[fd.ID]; ok && (math.IsNaN(w) || math.IsInf(w, 0)) {
			problems = append(problems, "weight is not finite")
		}
		if kind == KindScale {
			if fd.Min == nil || fd.Max == nil {
				problems = append(problems, "scale field needs min and max")
			} else if *fd.Min > *fd.Max {
				problems = append(problems, fmt.Sprintf("scale min %v exceeds max %v", *fd.Min, *fd.Max))
			} else {
				spec.field.Bounds = &ScaleBounds{Min: *fd.Min, Max: *fd.Max}
			}
		} else if fd.Min != nil || fd.Max != nil {
			problems = append(problems, "min/max apply to scale fields only")
		}
	}

	return spec, problems
}

// validateRanges enforces the ordering invariants Resolve relies on.
func validateRanges(ranges []ScoreRange) []string {
	var problems []string
	if len(ranges) == 0 {
		return []string{"at least one score range is required"}
	}
	for i, r := range ranges {
		if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) {
			problems = append(problems, fmt.Sprintf("ranges[%d]: bounds must be finite", i))
			continue
		}
		if r.Min > r.Max {
			problems = append(problems, fmt.Sprintf("ranges[%d] %q: min %v exceeds max %v", i, r.Label, r.Min, r.Max))
		}
		if strings.TrimSpace(r.Label) == "" {
			problems = append(problems, fmt.Sprintf("ranges[%d]: label is required", i))
		}
		if i == 0 {
			continue
		}
		prev := ranges[i-1]
		switch {
		case r.Min < prev.Min:
			problems = append(problems, fmt.Sprintf("ranges[%d] %q: not sorted by minimum", i, r.Label))
		case r.Min < prev.Max:
			problems = append(problems, fmt.Sprintf("ranges[%d] %q overlaps %q", i, r.Label, prev.Label))
		case r.Min-prev.Max > maxBoundaryStep:
			problems = append(problems, fmt.Sprintf("gap between %q (max %v) and %q (min %v)", prev.Label, prev.Max, r.Label, r.Min))
		}
	}
	return problems
}

func numericBaseScore(raw interface{}) (float64, error) {
	if raw == nil {
		return 0, errors.New("is required")
	}
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not numeric", n)
		}
		v = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("must be finite")
	}
	return v, nil
}

func (r *RuleSet) ProjectID() string  { return r.projectID }
func (r *RuleSet) Version() int64     { return r.version }
func (r *RuleSet) BaseScore() float64 { return r.baseScore }

// Field returns a copy of the field configuration.
func (r *RuleSet) Field(id string) (Field, bool) {
	spec, ok := r.fields[id]
	if !ok {
		return Field{}, false
	}
	return cloneField(spec.field), true
}

// Fields returns copies of all fields in definition order.
func (r *RuleSet) Fields() []Field {
	out := make([]Field, 0, len(r.fieldOrder))
	for _, id := range r.fieldOrder {
		out = append(out, cloneField(r.fields[id].field))
	}
	return out
}

func (r *RuleSet) HasField(id string) bool {
	_, ok := r.fields[id]
	return ok
}

// Weight returns the configured weight for a field or choice id; zero when
// nothing is configured.
func (r *RuleSet) Weight(key string) float64 {
	return r.weights[key]
}

// Ranges returns a copy of the ordered score ranges.
func (r *RuleSet) Ranges() []ScoreRange {
	return append([]ScoreRange(nil), r.ranges...)
}

func (r *RuleSet) choice(fieldID, selected string) (Choice, bool) {
	spec, ok := r.fields[fieldID]
	if !ok || spec.choiceByKey == nil {
		return Choice{}, false
	}
	c, ok := spec.choiceByKey[selected]
	return c, ok
}

func cloneField(f Field) Field {
	out := f
	if f.Choices != nil {
		out.Choices = make([]Choice, len(f.Choices))
		for i, c := range f.Choices {
			c.Payload = copyPayload(c.Payload)
			out.Choices[i] = c
		}
	}
	if f.Bounds != nil {
		b := *f.Bounds
		out.Bounds = &b
	}
	return out
}

func copyPayload(p map[string]interface{}) map[string]interface{} {
	if p == nil {
		return nil
	}
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
