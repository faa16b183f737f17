// internal/snapshot/loader.go
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "tool-evaluator/internal/common/errors"
	"tool-evaluator/internal/common/logger"
	"tool-evaluator/internal/common/metrics"
	"tool-evaluator/internal/engine"
)

type DefinitionRepository interface {
	LatestPublished(ctx context.Context, projectID string) (*engine.Definition, time.Time, error)
	LatestVersion(ctx context.Context, projectID string) (int64, error)
	InsertVersion(ctx context.Context, def *engine.Definition, publishedAt time.Time) error
}

type DefinitionCache interface {
	Get(ctx context.Context, projectID string) (*engine.Definition, time.Time, error)
	Set(ctx context.Context, def *engine.Definition, publishedAt time.Time) error
	Invalidate(ctx context.Context, projectID string) error
}

// Loader resolves the serving snapshot of a project: memory first, then the
// Redis cache, then Postgres. Snapshots older than refreshAfter are re-read so
// versions published by other instances are picked up.
type Loader struct {
	store        *Store
	cache        DefinitionCache
	repo         DefinitionRepository
	logger       logger.Logger
	refreshAfter time.Duration
	now          func() time.Time
}

func NewLoader(store *Store, cache DefinitionCache, repo DefinitionRepository, refreshAfter time.Duration, log logger.Logger) *Loader {
	return &Loader{
		store:        store,
		cache:        cache,
		repo:         repo,
		logger:       log,
		refreshAfter: refreshAfter,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (l *Loader) Store() *Store {
	return l.store
}

// Load returns the current snapshot of projectID. When nothing was ever
// published the error wraps engine.ErrNotConfigured.
func (l *Loader) Load(ctx context.Context, projectID string) (*Snapshot, error) {
	cur, ok := l.store.Current(projectID)
	if ok && (l.refreshAfter <= 0 || l.now().Sub(cur.LoadedAt) < l.refreshAfter) {
		metrics.SnapshotLoads.WithLabelValues("memory").Inc()
		return cur, nil
	}

	def, publishedAt, source, err := l.fetch(ctx, projectID)
	if err != nil {
		if ok && !errors.Is(err, engine.ErrNotConfigured) {
			l.logger.Warn("refresh failed, serving previous snapshot", map[string]interface{}{
				"projectId": projectID,
				"version":   cur.Version(),
				"error":     err.Error(),
			})
			return cur, nil
		}
		return nil, err
	}

	snap, err := New(def, publishedAt)
	if err != nil {
		if ok {
			l.logger.Warn("refreshed rule set is invalid, serving previous snapshot", map[string]interface{}{
				"projectId": projectID,
				"version":   cur.Version(),
				"refreshed": def.Version,
				"error":     err.Error(),
			})
			return cur, nil
		}
		// A stored version that no longer validates is a load failure, not an
		// authoring error.
		return nil, apperrors.NewRuleSetLoadFailedError(projectID, err)
	}
	snap.LoadedAt = l.now()
	metrics.SnapshotLoads.WithLabelValues(source).Inc()

	if err := l.store.Publish(snap); err != nil {
		if latest, ok := l.store.Current(projectID); ok {
			return latest, nil
		}
		return nil, err
	}
	return snap, nil
}

func (l *Loader) fetch(ctx context.Context, projectID string) (*engine.Definition, time.Time, string, error) {
	if l.cache != nil {
		def, publishedAt, err := l.cache.Get(ctx, projectID)
		if err == nil {
			return def, publishedAt, "cache", nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			l.logger.Warn("rule set cache unavailable", map[string]interface{}{
				"projectId": projectID,
				"error":     err.Error(),
			})
		}
	}

	def, publishedAt, err := l.repo.LatestPublished(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, time.Time{}, "", apperrors.NewToolNotConfiguredError(projectID)
		}
		return nil, time.Time{}, "", apperrors.NewRuleSetLoadFailedError(projectID, err)
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, def, publishedAt); err != nil {
			l.logger.Warn("failed to cache rule set", map[string]interface{}{
				"projectId": projectID,
				"error":     err.Error(),
			})
		}
	}
	return def, publishedAt, "repository", nil
}

// Publish validates def and makes it the serving version. A zero version is
// assigned the next free number. Validation failures come back as
// *engine.ValidationError.
func (l *Loader) Publish(ctx context.Context, def *engine.Definition) (*Snapshot, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", engine.ErrInvalidRuleSet)
	}

	latest, err := l.repo.LatestVersion(ctx, def.ProjectID)
	if err != nil {
		return nil, apperrors.NewRuleSetPublishFailedError(def.ProjectID, err)
	}
	if def.Version == 0 {
		def.Version = latest + 1
	}

	snap, err := New(def, l.now())
	if err != nil {
		return nil, err
	}
	if def.Version <= latest {
		return nil, apperrors.NewVersionConflictError(def.ProjectID, def.Version, latest)
	}

	if err := l.repo.InsertVersion(ctx, def, snap.PublishedAt); err != nil {
		if errors.Is(err, ErrVersionExists) {
			return nil, apperrors.NewVersionConflictError(def.ProjectID, def.Version, def.Version)
		}
		return nil, apperrors.NewRuleSetPublishFailedError(def.ProjectID, err)
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, def, snap.PublishedAt); err != nil {
			l.logger.Warn("failed to cache published rule set", map[string]interface{}{
				"projectId": def.ProjectID,
				"version":   def.Version,
				"error":     err.Error(),
			})
		}
	}

	if err := l.store.Publish(snap); err != nil {
		return nil, apperrors.NewVersionConflictError(def.ProjectID, def.Version, def.Version)
	}

	l.logger.Info("rule set published", map[string]interface{}{
		"projectId": def.ProjectID,
		"version":   def.Version,
		"fields":    len(def.Fields),
	})
	return snap, nil
}
