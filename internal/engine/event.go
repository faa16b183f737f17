// internal/engine/event.go
package engine

// EventPayload is the append-only analytics record derived from a result.
type EventPayload struct {
	ProjectID          string  `json:"projectId"`
	Version            int64   `json:"version"`
	RawScore           float64 `json:"rawScore"`
	OutcomeLabel       string  `json:"outcomeLabel"`
	UpgradePromptCount int     `json:"upgradePromptCount"`
	AnomalyCount       int     `json:"anomalyCount"`
	IsPartial          bool    `json:"isPartial"`
}

func (r Result) Event(projectID string, version int64) EventPayload {
	return EventPayload{
		ProjectID:          projectID,
		Version:            version,
		RawScore:           r.RawScore,
		OutcomeLabel:       r.Outcome.Label,
		UpgradePromptCount: len(r.UpgradePrompts),
		AnomalyCount:       len(r.Anomalies),
		IsPartial:          r.IsPartial,
	}
}
