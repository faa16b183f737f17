// internal/engine/resolve.go
package engine

// Resolve maps a raw score onto the validated, ascending ranges. A score
// belongs to the first range whose maximum it does not exceed, so a shared
// boundary goes to the lower range and the topmost range is closed. Scores
// below the first minimum or above the last maximum clamp to the nearest end.
func Resolve(rawScore float64, ranges []ScoreRange) Outcome {
	if len(ranges) == 0 {
		return Outcome{}
	}
	if rawScore < ranges[0].Min {
		return outcomeOf(ranges[0])
	}
	for _, r := range ranges {
		if rawScore <= r.Max {
			return outcomeOf(r)
		}
	}
	return outcomeOf(ranges[len(ranges)-1])
}

func outcomeOf(r ScoreRange) Outcome {
	return Outcome{Label: r.Label, Explanation: r.Explanation}
}
