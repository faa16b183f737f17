// internal/common/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tool-evaluator/internal/engine"
)

type ErrorCode string

const (
	ErrCodeRuleSetInvalid       ErrorCode = "RULESET_INVALID"
	ErrCodeToolNotConfigured    ErrorCode = "TOOL_NOT_CONFIGURED"
	ErrCodeRuleSetLoadFailed    ErrorCode = "RULESET_LOAD_FAILED"
	ErrCodeRuleSetPublishFailed ErrorCode = "RULESET_PUBLISH_FAILED"
	ErrCodeVersionConflict      ErrorCode = "VERSION_CONFLICT"

	ErrCodeInputValidationFailed ErrorCode = "INPUT_VALIDATION_FAILED"

	ErrCodeSubscriptionInvalid     ErrorCode = "SUBSCRIPTION_INVALID"
	ErrCodeSubscriptionExpired     ErrorCode = "SUBSCRIPTION_EXPIRED"
	ErrCodeSubscriptionCheckFailed ErrorCode = "SUBSCRIPTION_CHECK_FAILED"

	ErrCodeAnalyticsPublishFailed ErrorCode = "ANALYTICS_PUBLISH_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeBrokerUnavailable        ErrorCode = "BROKER_UNAVAILABLE"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewRuleSetInvalidError carries every validation problem in Metadata["problems"].
func NewRuleSetInvalidError(projectID string, problems []string) *StandardError {
	e := newError(ErrCodeRuleSetInvalid, "Rule set failed validation",
		fmt.Sprintf("projectId: %s, problems: %s", projectID, strings.Join(problems, "; ")), false, engine.ErrInvalidRuleSet)
	return e.WithMetadata("problems", problems)
}

func NewToolNotConfiguredError(projectID string) *StandardError {
	return newError(ErrCodeToolNotConfigured, "Scoring is not configured for this tool",
		fmt.Sprintf("projectId: %s", projectID), false, engine.ErrNotConfigured)
}

func NewRuleSetLoadFailedError(projectID string, err error) *StandardError {
	return newError(ErrCodeRuleSetLoadFailed, "Failed to load published rule set",
		fmt.Sprintf("projectId: %s, error: %s", projectID, err.Error()), true, err)
}

func NewRuleSetPublishFailedError(projectID string, err error) *StandardError {
	return newError(ErrCodeRuleSetPublishFailed, "Failed to persist rule set version",
		fmt.Sprintf("projectId: %s, error: %s", projectID, err.Error()), true, err)
}

func NewVersionConflictError(projectID string, version, current int64) *StandardError {
	e := newError(ErrCodeVersionConflict, "Rule set version is not newer than the published one",
		fmt.Sprintf("projectId: %s, version: %d, current: %d", projectID, version, current), false, nil)
	return e.WithMetadata("currentVersion", current)
}

func NewInputValidationFailedError(details string) *StandardError {
	return newError(ErrCodeInputValidationFailed, "Input validation failed", details, false, nil)
}

func NewSubscriptionInvalidError(details string) *StandardError {
	return newError(ErrCodeSubscriptionInvalid, "Invalid or not found subscription", details, false, nil)
}

func NewSubscriptionExpiredError(details string) *StandardError {
	return newError(ErrCodeSubscriptionExpired, "Subscription has expired", details, false, nil)
}

func NewSubscriptionCheckFailedError(err error) *StandardError {
	return newError(ErrCodeSubscriptionCheckFailed, "Database error during subscription check", err.Error(), true, err)
}

func NewAnalyticsPublishFailedError(sink string, err error) *StandardError {
	return newError(ErrCodeAnalyticsPublishFailed, "Analytics event delivery failed",
		fmt.Sprintf("sink: %s, error: %s", sink, err.Error()), true, err)
}

func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()), true, err)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true, err)
}

func NewBrokerUnavailableError(operation string, err error) *StandardError {
	return newError(ErrCodeBrokerUnavailable, "Workflow broker unavailable",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// Normalize turns any error into a StandardError. Engine sentinels map onto
// their codes; anything unrecognised becomes INTERNAL_ERROR.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	var verr *engine.ValidationError
	if stderrors.As(err, &verr) {
		return NewRuleSetInvalidError(verr.ProjectID, verr.Problems)
	}
	switch {
	case stderrors.Is(err, engine.ErrInvalidRuleSet):
		return newError(ErrCodeRuleSetInvalid, "Rule set failed validation", err.Error(), false, err)
	case stderrors.Is(err, engine.ErrNotConfigured):
		return newError(ErrCodeToolNotConfigured, "Scoring is not configured for this tool", err.Error(), false, err)
	}
	return NewInternalError(err)
}

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeRuleSetInvalid:           "RULESET_INVALID",
	ErrCodeToolNotConfigured:        "TOOL_NOT_CONFIGURED",
	ErrCodeRuleSetLoadFailed:        "RULESET_LOAD_FAILED",
	ErrCodeRuleSetPublishFailed:     "RULESET_PUBLISH_FAILED",
	ErrCodeVersionConflict:          "VERSION_CONFLICT",
	ErrCodeInputValidationFailed:    "INPUT_VALIDATION_FAILED",
	ErrCodeSubscriptionInvalid:      "SUBSCRIPTION_INVALID",
	ErrCodeSubscriptionExpired:      "SUBSCRIPTION_EXPIRED",
	ErrCodeSubscriptionCheckFailed:  "SUBSCRIPTION_CHECK_FAILED",
	ErrCodeAnalyticsPublishFailed:   "ANALYTICS_PUBLISH_FAILED",
	ErrCodeNotificationSendFailed:   "NOTIFICATION_SEND_FAILED",
	ErrCodeDatabaseConnectionFailed: "DATABASE_CONNECTION_FAILED",
	ErrCodeBrokerUnavailable:        "BROKER_UNAVAILABLE",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRuleSetLoadFailed,
		ErrCodeRuleSetPublishFailed,
		ErrCodeSubscriptionCheckFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeBrokerUnavailable:
		return 3

	case ErrCodeAnalyticsPublishFailed,
		ErrCodeNotificationSendFailed:
		return 2

	default:
		return 0 // business errors
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if problems, ok := stdErr.Metadata["problems"]; ok {
		vars["problems"] = problems
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "RULESET") || code == ErrCodeToolNotConfigured || code == ErrCodeVersionConflict:
		return "RULESET"
	case strings.Contains(codeStr, "SUBSCRIPTION"):
		return "SUBSCRIPTION"
	case strings.Contains(codeStr, "DATABASE") || code == ErrCodeBrokerUnavailable:
		return "DATABASE"
	case strings.Contains(codeStr, "ANALYTICS") || strings.Contains(codeStr, "NOTIFICATION"):
		return "DELIVERY"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

// HTTPStatus maps an error code onto the status the API responds with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInputValidationFailed:
		return http.StatusBadRequest
	case ErrCodeSubscriptionInvalid, ErrCodeSubscriptionExpired:
		return http.StatusForbidden
	case ErrCodeToolNotConfigured, ErrCodeVersionConflict:
		return http.StatusConflict
	case ErrCodeRuleSetInvalid:
		return http.StatusUnprocessableEntity
	case ErrCodeRuleSetLoadFailed, ErrCodeSubscriptionCheckFailed, ErrCodeDatabaseConnectionFailed, ErrCodeBrokerUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
