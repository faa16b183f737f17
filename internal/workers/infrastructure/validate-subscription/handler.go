// internal/workers/infrastructure/validate-subscription/handler.go
package validatesubscription

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "tool-evaluator/internal/common/errors"
	"tool-evaluator/internal/common/logger"
	"tool-evaluator/internal/common/metrics"
	"tool-evaluator/internal/engine"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"
)

const (
	TaskType = "validate-subscription"
)

type Handler struct {
	config     *Config
	db         *sql.DB
	redis      *redis.Client
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
	now        func() time.Time
}

func NewHandler(config *Config, db *sql.DB, redis *redis.Client, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		db:         db,
		redis:      redis,
		errHandler: apperrors.NewErrorHandler(log),
		logger:     log,
		now:        time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		stdErr := apperrors.NewInputValidationFailedError(fmt.Sprintf("parse input: %v", err))
		metrics.ObserveJob(TaskType, time.Since(start), string(stdErr.Code))
		h.errHandler.HandleJobError(ctx, client, job, stdErr)
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		stdErr := apperrors.Normalize(err)
		metrics.ObserveJob(TaskType, time.Since(start), string(stdErr.Code))
		h.errHandler.HandleJobError(ctx, client, job, stdErr)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.ObserveJob(TaskType, time.Since(start), "")
}

// execute resolves the caller tier. Only lookup failures are errors; a
// missing, invalid or expired subscription evaluates at the lowest tier.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserID == "" {
		return lowest(ReasonAnonymous), nil
	}

	cacheKey := "sub:" + input.UserID
	if val, err := h.redis.Get(ctx, cacheKey).Result(); err == nil {
		var sub Subscription
		if err := json.Unmarshal([]byte(val), &sub); err == nil {
			return h.resolve(&sub), nil
		}
	}

	var sub Subscription
	query := `SELECT user_id, tier, expires_at, is_valid FROM user_subscriptions WHERE user_id = $1`
	err := h.db.QueryRowContext(ctx, query, input.UserID).Scan(
		&sub.UserID, &sub.Tier, &sub.ExpiresAt, &sub.IsValid,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lowest(ReasonNotFound), nil
		}
		return nil, apperrors.NewSubscriptionCheckFailedError(err)
	}

	data, _ := json.Marshal(sub)
	if err := h.redis.Set(ctx, cacheKey, data, h.config.CacheTTL).Err(); err != nil {
		h.logger.Warn("failed to cache subscription", map[string]interface{}{
			"userId": sub.UserID,
			"error":  err.Error(),
		})
	}

	return h.resolve(&sub), nil
}

func (h *Handler) resolve(sub *Subscription) *Output {
	if !sub.IsValid {
		return lowest(ReasonInvalid)
	}

	if sub.ExpiresAt != "" {
		exp, parseErr := time.Parse(time.RFC3339, sub.ExpiresAt)
		if parseErr != nil {
			h.logger.Warn("failed to parse expiration date, treating subscription as invalid", map[string]interface{}{
				"userId":    sub.UserID,
				"expiresAt": sub.ExpiresAt,
				"error":     parseErr.Error(),
			})
			return lowest(ReasonInvalid)
		}
		if h.now().After(exp) {
			return lowest(ReasonExpired)
		}
	}

	tier, err := engine.ParseTier(sub.Tier)
	if err != nil {
		h.logger.Warn("subscription has unknown tier", map[string]interface{}{
			"userId": sub.UserID,
			"tier":   sub.Tier,
		})
		return lowest(ReasonUnknownTier)
	}

	return &Output{IsValid: true, TierLevel: tier.String()}
}

func lowest(reason string) *Output {
	return &Output{IsValid: false, TierLevel: engine.LowestTier.String(), Reason: reason}
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
