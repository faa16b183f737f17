// internal/engine/permission.go
package engine

// DefaultUpgradeMessage is used when neither the field nor the caller supplies one.
const DefaultUpgradeMessage = "Upgrade your plan to unlock this question."

type PermissionEntry struct {
	RequiredTier Tier   `json:"requiredTier"`
	Message      string `json:"message,omitempty"`
}

// PermissionIndex is a read-only mapping from field id to its access gate.
type PermissionIndex struct {
	projectID string
	version   int64
	entries   map[string]PermissionEntry
}

// NewPermissionIndex copies entries into a new index.
func NewPermissionIndex(projectID string, version int64, entries map[string]PermissionEntry) *PermissionIndex {
	idx := &PermissionIndex{
		projectID: projectID,
		version:   version,
		entries:   make(map[string]PermissionEntry, len(entries)),
	}
	for id, e := range entries {
		idx.entries[id] = e
	}
	return idx
}

// BuildPermissionIndex derives the index from the gates configured on the
// rule set's fields. Ungated fields are omitted.
func BuildPermissionIndex(rs *RuleSet) *PermissionIndex {
	entries := make(map[string]PermissionEntry)
	for _, id := range rs.fieldOrder {
		f := rs.fields[id].field
		if f.RequiredTier == LowestTier && f.UpgradeMessage == "" {
			continue
		}
		entries[id] = PermissionEntry{RequiredTier: f.RequiredTier, Message: f.UpgradeMessage}
	}
	return &PermissionIndex{projectID: rs.projectID, version: rs.version, entries: entries}
}

func (p *PermissionIndex) ProjectID() string { return p.projectID }
func (p *PermissionIndex) Version() int64    { return p.version }
func (p *PermissionIndex) Len() int          { return len(p.entries) }

func (p *PermissionIndex) Lookup(fieldID string) (PermissionEntry, bool) {
	if p == nil {
		return PermissionEntry{}, false
	}
	e, ok := p.entries[fieldID]
	return e, ok
}

// RequiredTier returns the gate for a field. Fields missing from the index
// have no restriction configured and require only the lowest tier.
func (p *PermissionIndex) RequiredTier(fieldID string) Tier {
	if e, ok := p.Lookup(fieldID); ok {
		return e.RequiredTier
	}
	return LowestTier
}

// FilterResult partitions a response set. Every distinct field id of the
// input appears in exactly one of Accessible, Withheld or an unknown-field
// anomaly.
type FilterResult struct {
	Accessible     []Response
	Withheld       []Response
	UpgradePrompts []UpgradePrompt
	Anomalies      []Anomaly
}

// Filter splits responses by the caller's tier. Fields the rule set does not
// define are dropped as unknown-field anomalies; repeats of an already seen
// field id are dropped as duplicate-field anomalies.
func Filter(responses []Response, caller Tier, index *PermissionIndex, rs *RuleSet, defaultMessage string) FilterResult {
	if defaultMessage == "" {
		defaultMessage = DefaultUpgradeMessage
	}
	if !caller.Valid() {
		caller = LowestTier
	}

	res := FilterResult{
		Accessible:     make([]Response, 0, len(responses)),
		Withheld:       []Response{},
		UpgradePrompts: []UpgradePrompt{},
		Anomalies:      []Anomaly{},
	}
	seen := make(map[string]bool, len(responses))

	for _, r := range responses {
		if seen[r.FieldID] {
			res.Anomalies = append(res.Anomalies, Anomaly{FieldID: r.FieldID, Kind: AnomalyDuplicateField})
			continue
		}
		seen[r.FieldID] = true

		if !rs.HasField(r.FieldID) {
			res.Anomalies = append(res.Anomalies, Anomaly{FieldID: r.FieldID, Kind: AnomalyUnknownField})
			continue
		}

		entry, _ := index.Lookup(r.FieldID)
		if caller.AtLeast(entry.RequiredTier) {
			res.Accessible = append(res.Accessible, r)
			continue
		}

		msg := entry.Message
		if msg == "" {
			msg = defaultMessage
		}
		res.Withheld = append(res.Withheld, r)
		res.UpgradePrompts = append(res.UpgradePrompts, UpgradePrompt{
			FieldID:      r.FieldID,
			RequiredTier: entry.RequiredTier,
			Message:      msg,
		})
	}
	return res
}
