// internal/engine/tier.go
package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier is a subscription level. The zero value is the lowest tier.
type Tier int

const (
	TierFree Tier = iota
	TierBasic
	TierPremium
	TierEnterprise
)

const (
	LowestTier  = TierFree
	HighestTier = TierEnterprise
)

var tierNames = [...]string{
	TierFree:       "free",
	TierBasic:      "basic",
	TierPremium:    "premium",
	TierEnterprise: "enterprise",
}

// anonymousAliases are caller tier spellings that mean "no subscription".
// They normalize to the lowest tier without an anomaly.
var anonymousAliases = map[string]bool{
	"":          true,
	"anonymous": true,
	"guest":     true,
	"none":      true,
	"null":      true,
}

// AllTiers returns every tier in ascending order.
func AllTiers() []Tier {
	return []Tier{TierFree, TierBasic, TierPremium, TierEnterprise}
}

func (t Tier) String() string {
	if t < LowestTier || t > HighestTier {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// Valid reports whether t is a member of the ordered tier set.
func (t Tier) Valid() bool {
	return t >= LowestTier && t <= HighestTier
}

// AtLeast is the single access comparison used by every gating decision.
func (t Tier) AtLeast(required Tier) bool {
	return t >= required
}

// IsTop reports whether t is the highest tier.
func (t Tier) IsTop() bool {
	return t == HighestTier
}

// ParseTier maps a tier name to a Tier. Matching is case-insensitive and
// ignores surrounding whitespace.
func ParseTier(name string) (Tier, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, tn := range tierNames {
		if tn == n {
			return Tier(i), nil
		}
	}
	return LowestTier, fmt.Errorf("unknown tier %q", name)
}

// NormalizeCallerTier is the boundary normalization for caller-supplied tiers.
// Absent and anonymous values map to the lowest tier. Unknown names also map to
// the lowest tier and report known=false so the caller can record an anomaly.
func NormalizeCallerTier(raw string) (tier Tier, known bool) {
	if anonymousAliases[strings.ToLower(strings.TrimSpace(raw))] {
		return LowestTier, true
	}
	t, err := ParseTier(raw)
	if err != nil {
		return LowestTier, false
	}
	return t, true
}

func (t Tier) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid tier %d", int(t))
	}
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("tier must be a string: %w", err)
	}
	parsed, err := ParseTier(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
