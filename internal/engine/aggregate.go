// internal/engine/aggregate.go
package engine

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type AggregateResult struct {
	RawScore  float64
	PerField  []FieldContribution
	Anomalies []Anomaly
}

// Aggregate sums the base score and the contribution of every accessible
// response. It is deterministic: contributions are added in response order.
// No clamping happens here.
func Aggregate(accessible []Response, rs *RuleSet) AggregateResult {
	res := AggregateResult{
		RawScore:  rs.BaseScore(),
		PerField:  make([]FieldContribution, 0, len(accessible)),
		Anomalies: []Anomaly{},
	}

	for _, r := range accessible {
		spec, ok := rs.fields[r.FieldID]
		if !ok {
			res.Anomalies = append(res.Anomalies, Anomaly{FieldID: r.FieldID, Kind: AnomalyUnknownField})
			continue
		}

		contribution, valid := contributionOf(spec.field, r.Value, rs)
		if !valid {
			res.Anomalies = append(res.Anomalies, Anomaly{FieldID: r.FieldID, Kind: AnomalyInvalidValue})
		}
		res.RawScore += contribution
		res.PerField = append(res.PerField, FieldContribution{FieldID: r.FieldID, Contribution: contribution})
	}
	return res
}

func contributionOf(f Field, value interface{}, rs *RuleSet) (float64, bool) {
	switch f.Kind {
	case KindChoice:
		selected, ok := choiceValue(value)
		if !ok {
			return 0, false
		}
		c, ok := rs.choice(f.ID, selected)
		if !ok {
			return 0, false
		}
		return rs.Weight(c.ID), true

	case KindNumeric, KindScale:
		n, ok := numericValue(value)
		if !ok {
			return 0, false
		}
		if f.Bounds != nil && (n < f.Bounds.Min || n > f.Bounds.Max) {
			return 0, false
		}
		c := n * rs.Weight(f.ID)
		if math.IsInf(c, 0) || math.IsNaN(c) {
			return 0, false
		}
		return c, true
	}
	return 0, false
}

// numericValue accepts JSON numbers and numeric strings.
func numericValue(v interface{}) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int32:
		n = float64(x)
	case int64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// choiceValue renders a submitted value as the string a choice is keyed by.
func choiceValue(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case nil:
		return "", false
	}
	n, ok := numericValue(v)
	if !ok {
		return "", false
	}
	return strconv.FormatFloat(n, 'f', -1, 64), true
}
