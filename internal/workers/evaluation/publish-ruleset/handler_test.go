// internal/workers/evaluation/publish-ruleset/handler_test.go
package publishruleset

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	apperrors "tool-evaluator/internal/common/errors"
	"tool-evaluator/internal/common/logger"
	"tool-evaluator/internal/snapshot"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const validDefinition = `{
  "projectId": "proj-quiz",
  "baseScore": 50,
  "authorEmail": "author@example.com",
  "fields": [
    {"id": "Q1", "kind": "choice", "choices": [{"value": "yes", "weight": 20}, {"value": "no", "weight": 0}]},
    {"id": "Q2", "kind": "numeric", "weight": 2, "requiredTier": "premium"}
  ],
  "ranges": [
    {"min": 0, "max": 40, "label": "Low"},
    {"min": 41, "max": 100, "label": "High"}
  ]
}`

const versionQuery = `SELECT COALESCE\(MAX\(version\), 0\) FROM rule_set_versions WHERE project_id = \$1`

type sentMail struct {
	to, subject, body string
}

type fakeNotifier struct {
	sent []sentMail
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, to, subject, body string) (string, error) {
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return "msg-1", f.err
}

type testEnv struct {
	handler  *Handler
	loader   *snapshot.Loader
	mock     sqlmock.Sqlmock
	redis    *miniredis.Miniredis
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.NewTestLogger(t)
	loader := snapshot.NewLoader(
		snapshot.NewStore(),
		snapshot.NewCache(rdb, 10*time.Minute),
		snapshot.NewRepository(db),
		0,
		log,
	)
	notifier := &fakeNotifier{}
	return &testEnv{
		handler:  NewHandler(LoadConfig(), loader, notifier, log),
		loader:   loader,
		mock:     mock,
		redis:    mr,
		notifier: notifier,
	}
}

func expectLatestVersion(mock sqlmock.Sqlmock, version int64) {
	mock.ExpectQuery(versionQuery).
		WithArgs("proj-quiz").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(version))
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Publishes(t *testing.T) {
	env := newTestEnv(t)
	expectLatestVersion(env.mock, 2)
	env.mock.ExpectExec(`INSERT INTO rule_set_versions`).
		WithArgs("proj-quiz", int64(3), sqlmock.AnyArg(), "author@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	output, err := env.handler.Execute(context.Background(), &Input{Definition: []byte(validDefinition)})
	require.NoError(t, err)

	assert.Equal(t, "proj-quiz", output.ProjectID)
	assert.Equal(t, int64(3), output.Version)
	assert.Equal(t, 2, output.FieldCount)
	assert.Equal(t, 1, output.GatedFields)

	assert.True(t, env.redis.Exists(snapshot.CacheKey("proj-quiz")), "published definition is cached")
	cur, ok := env.loader.Store().Current("proj-quiz")
	require.True(t, ok)
	assert.Equal(t, int64(3), cur.Version())
	assert.Empty(t, env.notifier.sent)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

// ==========================
// Rejection Tests
// ==========================

func TestHandler_Execute_RejectsAndNotifies(t *testing.T) {
	tests := []struct {
		name          string
		definition    string
		authorEmail   string
		expectDBCheck bool
		expectProblem string
	}{
		{
			name:          "overlapping ranges",
			definition:    `{"projectId":"proj-quiz","baseScore":0,"authorEmail":"author@example.com","fields":[{"id":"Q1","kind":"numeric"}],"ranges":[{"min":0,"max":50,"label":"Low"},{"min":40,"max":100,"label":"High"}]}`,
			expectDBCheck: true,
			expectProblem: "overlaps",
		},
		{
			name:          "non-numeric base score",
			definition:    `{"projectId":"proj-quiz","baseScore":"fifty","fields":[{"id":"Q1","kind":"numeric"}],"ranges":[{"min":0,"max":100,"label":"All"}]}`,
			authorEmail:   "override@example.com",
			expectDBCheck: true,
			expectProblem: "baseScore",
		},
		{
			name:          "unknown field kind",
			definition:    `{"projectId":"proj-quiz","authorEmail":"author@example.com","fields":[{"id":"Q1","kind":"slider"}],"ranges":[{"min":0,"max":100,"label":"All"}]}`,
			expectProblem: "fields.0.kind",
		},
		{
			name:          "ranges of the wrong type",
			definition:    `{"projectId":"proj-quiz","authorEmail":"author@example.com","fields":[{"id":"Q1","kind":"numeric"}],"ranges":"low to high"}`,
			expectProblem: "ranges",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.expectDBCheck {
				expectLatestVersion(env.mock, 0)
			}

			output, err := env.handler.Execute(context.Background(), &Input{
				Definition:  []byte(tt.definition),
				AuthorEmail: tt.authorEmail,
			})
			require.Error(t, err)
			assert.Nil(t, output)

			stdErr := apperrors.Normalize(err)
			assert.Equal(t, apperrors.ErrCodeRuleSetInvalid, stdErr.Code)
			assert.Contains(t, stdErr.Details, tt.expectProblem)

			require.Len(t, env.notifier.sent, 1)
			expectedTo := tt.authorEmail
			if expectedTo == "" {
				expectedTo = "author@example.com"
			}
			assert.Equal(t, expectedTo, env.notifier.sent[0].to)
			assert.Contains(t, env.notifier.sent[0].body, tt.expectProblem)

			_, ok := env.loader.Store().Current("proj-quiz")
			assert.False(t, ok)
			assert.False(t, env.redis.Exists(snapshot.CacheKey("proj-quiz")))
			assert.NoError(t, env.mock.ExpectationsWereMet())
		})
	}
}

func TestHandler_Execute_NotificationFailureStillRejects(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("ses: throttled")

	_, err := env.handler.Execute(context.Background(), &Input{
		Definition: []byte(`{"projectId":"proj-quiz","authorEmail":"a@example.com","fields":[],"ranges":[]}`),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRuleSetInvalid, apperrors.Normalize(err).Code)
	assert.Len(t, env.notifier.sent, 1)
}

func TestHandler_Execute_NoAuthorNoMail(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.handler.Execute(context.Background(), &Input{
		Definition: []byte(`{"projectId":"proj-quiz","fields":[{"id":"Q1","kind":"slider"}],"ranges":[{"min":0,"max":1,"label":"x"}]}`),
	})
	require.Error(t, err)
	assert.Empty(t, env.notifier.sent)
}

func TestHandler_Execute_VersionConflict(t *testing.T) {
	env := newTestEnv(t)
	expectLatestVersion(env.mock, 5)

	def := `{"projectId":"proj-quiz","version":4,"baseScore":0,"fields":[{"id":"Q1","kind":"numeric"}],"ranges":[{"min":0,"max":100,"label":"All"}]}`
	_, err := env.handler.Execute(context.Background(), &Input{Definition: []byte(def)})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeVersionConflict, apperrors.Normalize(err).Code)
	assert.Empty(t, env.notifier.sent, "conflicts are not authoring mistakes")
}

func TestHandler_Execute_DatabaseFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectQuery(versionQuery).WithArgs("proj-quiz").WillReturnError(sql.ErrConnDone)

	_, err := env.handler.Execute(context.Background(), &Input{Definition: []byte(validDefinition)})
	require.Error(t, err)

	stdErr := apperrors.Normalize(err)
	assert.Equal(t, apperrors.ErrCodeRuleSetPublishFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

func TestHandler_Execute_MissingDefinition(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.handler.Execute(context.Background(), &Input{})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInputValidationFailed, apperrors.Normalize(err).Code)
}
