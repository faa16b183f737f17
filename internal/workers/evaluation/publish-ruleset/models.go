// internal/workers/evaluation/publish-ruleset/models.go
package publishruleset

import (
	"encoding/json"
	"time"
)

// Input carries the candidate definition as raw JSON so structural problems
// can be reported back to the author together with value problems.
type Input struct {
	Definition  json.RawMessage `json:"definition"`
	AuthorEmail string          `json:"authorEmail,omitempty"`
}

type Output struct {
	ProjectID   string    `json:"projectId"`
	Version     int64     `json:"version"`
	PublishedAt time.Time `json:"publishedAt"`
	FieldCount  int       `json:"fieldCount"`
	GatedFields int       `json:"gatedFields"`
}
