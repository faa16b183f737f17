// internal/engine/result.go
package engine

// Assemble composes the final result. Upgrade prompts are emitted only when
// includeUpgradePrompts is set; IsPartial depends on withheld fields alone.
// Every slice is copied so the result shares nothing with its inputs.
func Assemble(agg AggregateResult, outcome Outcome, perm FilterResult, includeUpgradePrompts bool) Result {
	res := Result{
		RawScore:       agg.RawScore,
		Outcome:        outcome,
		PerField:       append(make([]FieldContribution, 0, len(agg.PerField)), agg.PerField...),
		UpgradePrompts: []UpgradePrompt{},
		IsPartial:      len(perm.Withheld) > 0,
		Anomalies:      make([]Anomaly, 0, len(perm.Anomalies)+len(agg.Anomalies)),
	}
	if includeUpgradePrompts {
		res.UpgradePrompts = append(res.UpgradePrompts, perm.UpgradePrompts...)
	}
	res.Anomalies = append(res.Anomalies, perm.Anomalies...)
	res.Anomalies = append(res.Anomalies, agg.Anomalies...)
	return res
}

// Clone returns a deep copy of r.
func (r Result) Clone() Result {
	out := r
	out.PerField = append(make([]FieldContribution, 0, len(r.PerField)), r.PerField...)
	out.UpgradePrompts = append(make([]UpgradePrompt, 0, len(r.UpgradePrompts)), r.UpgradePrompts...)
	out.Anomalies = append(make([]Anomaly, 0, len(r.Anomalies)), r.Anomalies...)
	return out
}

// AnomalyCounts groups anomalies by kind.
func (r Result) AnomalyCounts() map[AnomalyKind]int {
	counts := make(map[AnomalyKind]int)
	for _, a := range r.Anomalies {
		counts[a.Kind]++
	}
	return counts
}
