// internal/engine/engine.go

// Package engine implements response evaluation for interactive tools: tiered
// access filtering, deterministic scoring and outcome resolution.
//
// Everything in this package is a pure function over immutable inputs. The
// caller loads the RuleSet and PermissionIndex for a project version and hands
// them in; no I/O happens here.
package engine

// Options tune an evaluation without touching the rule set.
type Options struct {
	// DefaultUpgradeMessage replaces DefaultUpgradeMessage for fields that
	// define no message of their own.
	DefaultUpgradeMessage string
}

// Evaluate runs the full pipeline for one request. A nil rule set means the
// tool has no scoring configured and yields ErrNotConfigured. A nil index is
// derived from the gates on the rule set's fields.
func Evaluate(req Request, rs *RuleSet, index *PermissionIndex, opts Options) (Result, error) {
	if rs == nil {
		return Result{}, ErrNotConfigured
	}
	if index == nil {
		index = BuildPermissionIndex(rs)
	}

	caller, tierAnomaly := callerTier(req.CallerTier)
	include := !caller.IsTop()
	if req.IncludeUpgradePrompts != nil {
		include = *req.IncludeUpgradePrompts
	}

	perm := Filter(req.Responses, caller, index, rs, opts.DefaultUpgradeMessage)
	if tierAnomaly != nil {
		perm.Anomalies = append([]Anomaly{*tierAnomaly}, perm.Anomalies...)
	}

	agg := Aggregate(perm.Accessible, rs)
	outcome := Resolve(agg.RawScore, rs.ranges)
	return Assemble(agg, outcome, perm, include), nil
}

// CallerTier reports the tier a request is evaluated at.
func CallerTier(req Request) Tier {
	t, _ := callerTier(req.CallerTier)
	return t
}

func callerTier(raw *string) (Tier, *Anomaly) {
	if raw == nil {
		return LowestTier, nil
	}
	t, known := NormalizeCallerTier(*raw)
	if !known {
		return LowestTier, &Anomaly{Kind: AnomalyUnknownTier}
	}
	return t, nil
}
