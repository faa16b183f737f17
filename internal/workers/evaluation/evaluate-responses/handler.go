// internal/workers/evaluation/evaluate-responses/handler.go
package evaluateresponses

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"tool-evaluator/internal/analytics"
	apperrors "tool-evaluator/internal/common/errors"
	"tool-evaluator/internal/common/logger"
	"tool-evaluator/internal/common/metrics"
	"tool-evaluator/internal/common/observability"
	"tool-evaluator/internal/common/validation"
	"tool-evaluator/internal/engine"
	"tool-evaluator/internal/snapshot"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	TaskType = "evaluate-responses"
	surface  = "worker"
)

type SnapshotLoader interface {
	Load(ctx context.Context, projectID string) (*snapshot.Snapshot, error)
}

type EventEmitter interface {
	EmitSync(ctx context.Context, event analytics.Event)
}

type Handler struct {
	config     *Config
	loader     SnapshotLoader
	emitter    EventEmitter
	obs        *observability.Observability
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, loader SnapshotLoader, emitter EventEmitter, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		loader:     loader,
		emitter:    emitter,
		obs:        obs,
		errHandler: apperrors.NewErrorHandler(log),
		logger:     log,
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

	input, err := parseInput(job.Variables)
	if err == nil {
		var output *Output
		output, err = h.execute(ctx, input)
		if err == nil {
			h.completeJob(ctx, client, job, output)
			metrics.ObserveJob(TaskType, time.Since(start), "")
			h.obs.RecordJobProcessed(ctx, TaskType, "completed", time.Since(start))
			return
		}
	}

	stdErr := apperrors.Normalize(err)
	metrics.ObserveJob(TaskType, time.Since(start), string(stdErr.Code))
	h.obs.RecordJobProcessed(ctx, TaskType, "failed", time.Since(start))
	h.errHandler.HandleJobError(ctx, client, job, stdErr)
}

func parseInput(variables string) (*Input, error) {
	res, err := validation.EvaluateRequest.ValidateJSON([]byte(variables))
	if err != nil {
		return nil, apperrors.NewInputValidationFailedError(fmt.Sprintf("parse input: %v", err))
	}
	if !res.Valid {
		return nil, apperrors.NewInputValidationFailedError(res.Error())
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInputValidationFailedError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.ProjectID == "" {
		return nil, apperrors.NewInputValidationFailedError("projectId is required")
	}

	ctx, span := h.obs.StartSpan(ctx, "evaluate-responses",
		attribute.String("projectId", input.ProjectID),
		attribute.Int("responses", len(input.Responses)),
	)
	defer span.End()

	snap, err := h.loader.Load(ctx, input.ProjectID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot load failed")
		return nil, err
	}

	req := engine.Request{
		Responses:             input.Responses,
		CallerTier:            input.CallerTier,
		IncludeUpgradePrompts: input.IncludeUpgradePrompts,
	}
	if req.CallerTier == nil && input.TierLevel != "" {
		tier := input.TierLevel
		req.CallerTier = &tier
	}

	started := time.Now()
	result, err := engine.Evaluate(req, snap.RuleSet, snap.Index, engine.Options{
		DefaultUpgradeMessage: h.config.DefaultUpgradeMessage,
	})
	if err != nil {
		return nil, err
	}
	took := time.Since(started)

	metrics.ObserveEvaluation(surface, result, took)
	h.obs.RecordEvaluation(ctx, surface, result.IsPartial, took)
	span.SetAttributes(
		attribute.Int64("version", snap.Version()),
		attribute.String("outcome", result.Outcome.Label),
		attribute.Bool("partial", result.IsPartial),
	)
	h.logAnomalies(input.ProjectID, snap.Version(), result)

	caller := engine.CallerTier(req)
	emitCtx, cancel := context.WithTimeout(ctx, h.config.AnalyticsTimeout)
	h.emitter.EmitSync(emitCtx, analytics.NewEvent(surface, caller, result.Event(input.ProjectID, snap.Version())))
	cancel()

	return &Output{
		Evaluation:     result,
		OutcomeLabel:   result.Outcome.Label,
		RawScore:       result.RawScore,
		IsPartial:      result.IsPartial,
		RuleSetVersion: snap.Version(),
	}, nil
}

func (h *Handler) logAnomalies(projectID string, version int64, result engine.Result) {
	counts := result.AnomalyCounts()
	if len(counts) == 0 {
		return
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	h.logger.Warn("evaluation recorded anomalies", map[string]interface{}{
		"projectId": projectID,
		"version":   version,
		"kinds":     kinds,
		"count":     len(result.Anomalies),
	})
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
