// internal/api/server.go

// Package api serves evaluations over HTTP next to the job workers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
)

const maxBodyBytes = 1 << 20

type SnapshotLoader interface {
	Load(ctx context.Context, projectID string) (*snapshot.Snapshot, error)
}

type EventEmitter interface {
	Emit(event analytics.Event)
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	loader  SnapshotLoader
	emitter EventEmitter
	obs     *observability.Observability
	logger  logger.Logger
	options engine.Options
	checks  map[string]ReadinessCheck
}

func NewServer(loader SnapshotLoader, emitter EventEmitter, obs *observability.Observability, opts engine.Options, log logger.Logger) *Server {
	return &Server{
		loader:  loader,
		emitter: emitter,
		obs:     obs,
		logger:  log.WithFields(map[string]interface{}{"component": "api"}),
		options: opts,
		checks:  make(map[string]ReadinessCheck),
	}
}

// AddReadinessCheck registers fn under name for GET /ready. Not safe to call
// once the server is serving.
func (s *Server) AddReadinessCheck(name string, fn ReadinessCheck) {
	s.checks[name] = fn
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/projects/{projectId}/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/projects/{projectId}/preview", s.handlePreview)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	s.evaluate(w, r, "api", false)
}

// handlePreview lets authors try a rule set. Callers without a tier see
// everything, and no analytics event is recorded.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.evaluate(w, r, "preview", true)
}

func (s *Server) evaluate(w http.ResponseWriter, r *http.Request, surface string, preview bool) {
	projectID := r.PathValue("projectId")

	req, err := decodeRequest(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if preview && req.CallerTier == nil {
		top := engine.HighestTier.String()
		req.CallerTier = &top
	}

	ctx, span := s.obs.StartSpan(r.Context(), "api."+surface,
		attribute.String("projectId", projectID),
		attribute.Int("responses", len(req.Responses)),
	)
	defer span.End()

	snap, err := s.loader.Load(ctx, projectID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	started := time.Now()
	result, err := engine.Evaluate(*req, snap.RuleSet, snap.Index, s.options)
	if err != nil {
		s.writeError(w, err)
		return
	}
	took := time.Since(started)

	metrics.ObserveEvaluation(surface, result, took)
	s.obs.RecordEvaluation(ctx, surface, result.IsPartial, took)
	span.SetAttributes(attribute.String("outcome", result.Outcome.Label))

	if !preview {
		s.emitter.Emit(analytics.NewEvent(surface, engine.CallerTier(*req), result.Event(projectID, snap.Version())))
	}

	w.Header().Set("X-RuleSet-Version", fmt.Sprintf("%d", snap.Version()))
	writeJSON(w, http.StatusOK, result)
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (*engine.Request, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.NewInputValidationFailedError(fmt.Sprintf("read body: %v", err))
	}

	res, err := validation.EvaluateRequest.ValidateJSON(body)
	if err != nil {
		return nil, apperrors.NewInputValidationFailedError("request body is not valid JSON")
	}
	if !res.Valid {
		problems := make([]string, len(res.Errors))
		for i, e := range res.Errors {
			problems[i] = e.Field + ": " + e.Message
		}
		return nil, apperrors.NewInputValidationFailedError(res.Error()).WithMetadata("problems", problems)
	}

	var req engine.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperrors.NewInputValidationFailedError(fmt.Sprintf("decode body: %v", err))
	}
	return &req, nil
}

type errorResponse struct {
	Code     string      `json:"code"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Problems interface{} `json:"problems,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	stdErr := apperrors.Normalize(err)
	status := apperrors.HTTPStatus(stdErr.Code)

	fields := map[string]interface{}{
		"errorCode": string(stdErr.Code),
		"status":    status,
		"details":   stdErr.Details,
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields)
	} else {
		s.logger.Debug("request rejected", fields)
	}

	resp := errorResponse{
		Code:     string(stdErr.Code),
		Message:  stdErr.Message,
		Problems: stdErr.Metadata["problems"],
	}
	if status < http.StatusInternalServerError {
		resp.Details = stdErr.Details
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
