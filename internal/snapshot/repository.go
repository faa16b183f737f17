// internal/snapshot/repository.go
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tool-evaluator/internal/engine"

	"github.com/lib/pq"
)

var (
	ErrNotFound      = errors.New("no published rule set")
	ErrVersionExists = errors.New("rule set version already published")
)

const uniqueViolation = "23505"

// Repository reads and appends rule_set_versions rows. Versions are never
// updated in place.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// LatestPublished returns the highest version of projectID.
func (r *Repository) LatestPublished(ctx context.Context, projectID string) (*engine.Definition, time.Time, error) {
	query := `SELECT definition, published_at FROM rule_set_versions WHERE project_id = $1 ORDER BY version DESC LIMIT 1`

	var raw []byte
	var publishedAt time.Time
	err := r.db.QueryRowContext(ctx, query, projectID).Scan(&raw, &publishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("query latest rule set: %w", err)
	}

	def, err := engine.ParseDefinition(raw)
	if err != nil {
		return nil, time.Time{}, err
	}
	return def, publishedAt, nil
}

// LatestVersion returns 0 when nothing is published yet.
func (r *Repository) LatestVersion(ctx context.Context, projectID string) (int64, error) {
	query := `SELECT COALESCE(MAX(version), 0) FROM rule_set_versions WHERE project_id = $1`

	var version int64
	if err := r.db.QueryRowContext(ctx, query, projectID).Scan(&version); err != nil {
		return 0, fmt.Errorf("query latest version: %w", err)
	}
	return version, nil
}

// InsertVersion appends def. A concurrent publisher of the same version loses
// with ErrVersionExists.
func (r *Repository) InsertVersion(ctx context.Context, def *engine.Definition, publishedAt time.Time) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}

	query := `INSERT INTO rule_set_versions (project_id, version, definition, author_email, published_at) VALUES ($1, $2, $3, $4, $5)`
	_, err = r.db.ExecContext(ctx, query, def.ProjectID, def.Version, data, def.AuthorEmail, publishedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s v%d", ErrVersionExists, def.ProjectID, def.Version)
		}
		return fmt.Errorf("insert rule set version: %w", err)
	}
	return nil
}
