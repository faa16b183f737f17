// internal/snapshot/snapshot.go

// Package snapshot holds the published rule set of each project and loads it
// from Redis and Postgres on demand.
package snapshot

import (
	"time"

	"tool-evaluator/internal/engine"
)

// Snapshot is one immutable published version: the validated rule set, its
// permission index and the definition it was built from.
type Snapshot struct {
	RuleSet     *engine.RuleSet
	Index       *engine.PermissionIndex
	Definition  *engine.Definition
	PublishedAt time.Time
	LoadedAt    time.Time
}

// New validates def and derives the permission index. The returned error is
// an *engine.ValidationError when def is rejected.
func New(def *engine.Definition, publishedAt time.Time) (*Snapshot, error) {
	rs, err := engine.NewRuleSet(def)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		RuleSet:     rs,
		Index:       engine.BuildPermissionIndex(rs),
		Definition:  def,
		PublishedAt: publishedAt,
		LoadedAt:    time.Now().UTC(),
	}, nil
}

func (s *Snapshot) ProjectID() string { return s.RuleSet.ProjectID() }
func (s *Snapshot) Version() int64    { return s.RuleSet.Version() }
