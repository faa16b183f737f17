// internal/workers/evaluation/publish-ruleset/handler.go
package publishruleset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "tool-evaluator/internal/common/errors"
	"tool-evaluator/internal/common/logger"
	"tool-evaluator/internal/common/metrics"
	"tool-evaluator/internal/common/validation"
	"tool-evaluator/internal/engine"
	"tool-evaluator/internal/snapshot"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "publish-ruleset"
)

type Publisher interface {
	Publish(ctx context.Context, def *engine.Definition) (*snapshot.Snapshot, error)
}

// Notifier is satisfied by aws.Mailer.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

type Handler struct {
	config     *Config
	publisher  Publisher
	notifier   Notifier
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

// NewHandler builds the handler. notifier may be nil, in which case rejected
// authors are not e-mailed.
func NewHandler(config *Config, publisher Publisher, notifier Notifier, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		publisher:  publisher,
		notifier:   notifier,
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

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, start, apperrors.NewInputValidationFailedError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, start, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.ObserveJob(TaskType, time.Since(start), "")
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, start time.Time, err error) {
	stdErr := apperrors.Normalize(err)
	metrics.ObserveJob(TaskType, time.Since(start), string(stdErr.Code))
	h.errHandler.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.Definition) == 0 {
		return nil, apperrors.NewInputValidationFailedError("definition is required")
	}

	def, problems, err := decode(input.Definition)
	if err != nil {
		return nil, err
	}
	author := input.AuthorEmail
	if author == "" {
		author = def.AuthorEmail
	}
	if len(problems) > 0 {
		return nil, h.reject(ctx, def.ProjectID, author, problems)
	}

	snap, err := h.publisher.Publish(ctx, def)
	if err != nil {
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			return nil, h.reject(ctx, def.ProjectID, author, verr.Problems)
		}
		metrics.RuleSetPublishes.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.RuleSetPublishes.WithLabelValues("published").Inc()
	gated := 0
	for _, f := range snap.RuleSet.Fields() {
		if f.RequiredTier != engine.LowestTier {
			gated++
		}
	}
	return &Output{
		ProjectID:   snap.ProjectID(),
		Version:     snap.Version(),
		PublishedAt: snap.PublishedAt,
		FieldCount:  len(snap.RuleSet.Fields()),
		GatedFields: gated,
	}, nil
}

// decode checks the document shape first; shape problems are returned as
// problems rather than errors so the author hears about them.
func decode(raw json.RawMessage) (*engine.Definition, []string, error) {
	res, err := validation.Definition.ValidateJSON(raw)
	if err != nil {
		return nil, nil, apperrors.NewInputValidationFailedError(fmt.Sprintf("definition is not JSON: %v", err))
	}

	var problems []string
	for _, e := range res.Errors {
		problems = append(problems, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}

	def, err := engine.ParseDefinition(raw)
	if err != nil {
		// Shape errors already describe why decoding failed.
		if len(problems) == 0 {
			problems = append(problems, err.Error())
		}
		var projectID struct {
			ProjectID string `json:"projectId"`
		}
		_ = json.Unmarshal(raw, &projectID)
		return &engine.Definition{ProjectID: projectID.ProjectID}, problems, nil
	}
	return def, problems, nil
}

func (h *Handler) reject(ctx context.Context, projectID, author string, problems []string) error {
	metrics.RuleSetPublishes.WithLabelValues("rejected").Inc()
	h.logger.Warn("rule set rejected", map[string]interface{}{
		"projectId": projectID,
		"problems":  len(problems),
	})

	if h.config.NotifyAuthors && h.notifier != nil && author != "" {
		subject := fmt.Sprintf("Scoring rules for %s were not published", projectID)
		body := "Your scoring configuration could not be published:\n\n- " +
			strings.Join(problems, "\n- ") +
			"\n\nFix the problems above and publish again."
		if _, err := h.notifier.Send(ctx, author, subject, body); err != nil {
			h.logger.Error("failed to notify author", map[string]interface{}{
				"projectId": projectID,
				"error":     apperrors.NewNotificationSendFailedError("email", err).Details,
			})
		}
	}

	return apperrors.NewRuleSetInvalidError(projectID, problems)
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
