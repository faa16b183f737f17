// internal/workers/infrastructure/validate-subscription/handler_test.go
package validatesubscription

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "tool-evaluator/internal/common/errors"
	"tool-evaluator/internal/common/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const subscriptionQuery = `SELECT user_id, tier, expires_at, is_valid FROM user_subscriptions WHERE user_id = \$1`

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		Timeout:  10 * time.Second,
		CacheTTL: 5 * time.Minute,
	}
}

func createTestHandler(t *testing.T, db *sql.DB, redisClient *redis.Client, config *Config) *Handler {
	if config == nil {
		config = createTestConfig()
	}
	return NewHandler(config, db, redisClient, logger.NewTestLogger(t))
}

func createSubscription(userID, tier string, isValid bool, expiresAt string) *Subscription {
	return &Subscription{
		UserID:    userID,
		Tier:      tier,
		ExpiresAt: expiresAt,
		IsValid:   isValid,
	}
}

func tomorrow() string  { return time.Now().Add(24 * time.Hour).Format(time.RFC3339) }
func yesterday() string { return time.Now().Add(-24 * time.Hour).Format(time.RFC3339) }

func expectRow(mock sqlmock.Sqlmock, sub *Subscription) {
	rows := sqlmock.NewRows([]string{"user_id", "tier", "expires_at", "is_valid"}).
		AddRow(sub.UserID, sub.Tier, sub.ExpiresAt, sub.IsValid)
	mock.ExpectQuery(subscriptionQuery).
		WithArgs(sub.UserID).
		WillReturnRows(rows)
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_ResolvesTier(t *testing.T) {
	tests := []struct {
		name           string
		sub            *Subscription
		expectedTier   string
		expectedValid  bool
		expectedReason string
	}{
		{name: "premium", sub: createSubscription("user-1", "premium", true, tomorrow()), expectedTier: "premium", expectedValid: true},
		{name: "free", sub: createSubscription("user-2", "free", true, tomorrow()), expectedTier: "free", expectedValid: true},
		{name: "basic", sub: createSubscription("user-3", "basic", true, tomorrow()), expectedTier: "basic", expectedValid: true},
		{name: "enterprise", sub: createSubscription("user-4", "enterprise", true, tomorrow()), expectedTier: "enterprise", expectedValid: true},
		{name: "mixed case tier name", sub: createSubscription("user-5", " Premium ", true, ""), expectedTier: "premium", expectedValid: true},
		{name: "no expiration", sub: createSubscription("user-6", "basic", true, ""), expectedTier: "basic", expectedValid: true},
		{name: "unparseable expiration falls back to lowest", sub: createSubscription("user-7", "premium", true, "soon"), expectedTier: "free", expectedReason: ReasonInvalid},
		{name: "expired falls back to lowest", sub: createSubscription("user-8", "premium", true, yesterday()), expectedTier: "free", expectedReason: ReasonExpired},
		{name: "invalid falls back to lowest", sub: createSubscription("user-9", "enterprise", false, ""), expectedTier: "free", expectedReason: ReasonInvalid},
		{name: "legacy tier falls back to lowest", sub: createSubscription("user-10", "gold", true, ""), expectedTier: "free", expectedReason: ReasonUnknownTier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			redisClient, redisMock := redismock.NewClientMock()

			cacheKey := "sub:" + tt.sub.UserID
			redisMock.ExpectGet(cacheKey).RedisNil()
			expectRow(mock, tt.sub)
			cachedData, _ := json.Marshal(tt.sub)
			redisMock.ExpectSet(cacheKey, cachedData, 5*time.Minute).SetVal("OK")

			handler := createTestHandler(t, db, redisClient, nil)
			output, err := handler.Execute(context.Background(), &Input{UserID: tt.sub.UserID})

			require.NoError(t, err)
			assert.Equal(t, tt.expectedTier, output.TierLevel)
			assert.Equal(t, tt.expectedValid, output.IsValid)
			assert.Equal(t, tt.expectedReason, output.Reason)

			assert.NoError(t, mock.ExpectationsWereMet())
			assert.NoError(t, redisMock.ExpectationsWereMet())
		})
	}
}

func TestHandler_Execute_CacheHit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()

	cachedData, _ := json.Marshal(createSubscription("cached-user", "enterprise", true, tomorrow()))
	redisMock.ExpectGet("sub:cached-user").SetVal(string(cachedData))

	handler := createTestHandler(t, db, redisClient, nil)
	output, err := handler.Execute(context.Background(), &Input{UserID: "cached-user"})

	require.NoError(t, err)
	assert.True(t, output.IsValid)
	assert.Equal(t, "enterprise", output.TierLevel)

	assert.NoError(t, mock.ExpectationsWereMet(), "database is not queried on a cache hit")
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestHandler_Execute_CachedExpiryStillApplies(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()

	cachedData, _ := json.Marshal(createSubscription("u", "premium", true, "2026-06-01T00:00:00Z"))
	redisMock.ExpectGet("sub:u").SetVal(string(cachedData))

	handler := createTestHandler(t, db, redisClient, nil)
	handler.now = func() time.Time { return time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC) }

	output, err := handler.Execute(context.Background(), &Input{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, "free", output.TierLevel)
	assert.Equal(t, ReasonExpired, output.Reason)
}

func TestHandler_Execute_CustomCacheTTL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()

	sub := createSubscription("ttl-user", "basic", true, "")
	redisMock.ExpectGet("sub:ttl-user").RedisNil()
	expectRow(mock, sub)
	cachedData, _ := json.Marshal(sub)
	redisMock.ExpectSet("sub:ttl-user", cachedData, 30*time.Second).SetVal("OK")

	handler := createTestHandler(t, db, redisClient, &Config{Timeout: time.Second, CacheTTL: 30 * time.Second})
	_, err = handler.Execute(context.Background(), &Input{UserID: "ttl-user"})

	require.NoError(t, err)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

// ==========================
// Edge Cases
// ==========================

func TestHandler_Execute_AnonymousCaller(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()

	handler := createTestHandler(t, db, redisClient, nil)
	output, err := handler.Execute(context.Background(), &Input{})

	require.NoError(t, err)
	assert.Equal(t, "free", output.TierLevel)
	assert.Equal(t, ReasonAnonymous, output.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestHandler_Execute_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	redisMock.ExpectGet("sub:ghost").RedisNil()
	mock.ExpectQuery(subscriptionQuery).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	handler := createTestHandler(t, db, redisClient, nil)
	output, err := handler.Execute(context.Background(), &Input{UserID: "ghost"})

	require.NoError(t, err)
	assert.False(t, output.IsValid)
	assert.Equal(t, "free", output.TierLevel)
	assert.Equal(t, ReasonNotFound, output.Reason)
}

func TestHandler_Execute_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	redisMock.ExpectGet("sub:db-error-user").RedisNil()
	mock.ExpectQuery(subscriptionQuery).WithArgs("db-error-user").WillReturnError(errors.New("connection failed"))

	handler := createTestHandler(t, db, redisClient, nil)
	output, err := handler.Execute(context.Background(), &Input{UserID: "db-error-user"})

	require.Error(t, err)
	assert.Nil(t, output)
	stdErr := apperrors.Normalize(err)
	assert.Equal(t, apperrors.ErrCodeSubscriptionCheckFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

func TestHandler_Execute_CacheWriteFailureIsIgnored(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()

	sub := createSubscription("u2", "premium", true, "")
	redisMock.ExpectGet("sub:u2").RedisNil()
	expectRow(mock, sub)
	cachedData, _ := json.Marshal(sub)
	redisMock.ExpectSet("sub:u2", cachedData, 5*time.Minute).SetErr(errors.New("READONLY"))

	handler := createTestHandler(t, db, redisClient, nil)
	output, err := handler.Execute(context.Background(), &Input{UserID: "u2"})

	require.NoError(t, err)
	assert.Equal(t, "premium", output.TierLevel)
}

func TestHandler_Execute_ContextTimeout(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	redisMock.ExpectGet("sub:slow-user").RedisNil()
	mock.ExpectQuery(subscriptionQuery).
		WithArgs("slow-user").
		WillDelayFor(50 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "tier", "expires_at", "is_valid"}).
			AddRow("slow-user", "premium", "", true))

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	handler := createTestHandler(t, db, redisClient, nil)
	output, err := handler.Execute(ctx, &Input{UserID: "slow-user"})

	assert.Error(t, err)
	assert.Nil(t, output)
}
