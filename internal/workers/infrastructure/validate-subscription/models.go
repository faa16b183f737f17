// internal/workers/infrastructure/validate-subscription/models.go
package validatesubscription

type Input struct {
	UserID string `json:"userId"`
}

// Output feeds evaluate-responses. TierLevel is always a canonical tier name;
// callers without a usable subscription get the lowest tier.
type Output struct {
	IsValid   bool   `json:"isValid"`
	TierLevel string `json:"tierLevel"`
	Reason    string `json:"reason,omitempty"`
}

// Subscription is a user_subscriptions row, also the cached form.
type Subscription struct {
	UserID    string `json:"userId"`
	Tier      string `json:"tier"`
	ExpiresAt string `json:"expiresAt"`
	IsValid   bool   `json:"isValid"`
}

const (
	ReasonAnonymous   = "anonymous"
	ReasonNotFound    = "not-found"
	ReasonInvalid     = "invalid"
	ReasonExpired     = "expired"
	ReasonUnknownTier = "unknown-tier"
)
