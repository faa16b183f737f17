// internal/common/errors/errors_test.go
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"tool-evaluator/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode ErrorCode
		retryable    bool
	}{
		{
			name:         "standard error passes through",
			err:          NewSubscriptionExpiredError("userId: u1"),
			expectedCode: ErrCodeSubscriptionExpired,
		},
		{
			name:         "wrapped standard error",
			err:          fmt.Errorf("evaluate: %w", NewRuleSetLoadFailedError("p1", stderrors.New("timeout"))),
			expectedCode: ErrCodeRuleSetLoadFailed,
			retryable:    true,
		},
		{
			name:         "validation error",
			err:          &engine.ValidationError{ProjectID: "p1", Version: 2, Problems: []string{"a", "b"}},
			expectedCode: ErrCodeRuleSetInvalid,
		},
		{
			name:         "invalid rule set sentinel",
			err:          fmt.Errorf("%w: decode", engine.ErrInvalidRuleSet),
			expectedCode: ErrCodeRuleSetInvalid,
		},
		{
			name:         "not configured sentinel",
			err:          engine.ErrNotConfigured,
			expectedCode: ErrCodeToolNotConfigured,
		},
		{
			name:         "unknown error",
			err:          stderrors.New("boom"),
			expectedCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.expectedCode, got.Code)
			assert.Equal(t, tt.retryable, got.Retryable)
		})
	}

	assert.Nil(t, Normalize(nil))
}

func TestNormalize_KeepsProblems(t *testing.T) {
	got := Normalize(&engine.ValidationError{ProjectID: "p1", Problems: []string{"gap", "overlap"}})
	assert.Equal(t, []string{"gap", "overlap"}, got.Metadata["problems"])
	assert.True(t, stderrors.Is(got, engine.ErrInvalidRuleSet))

	bpmn := ConvertToBPMNError(got)
	assert.Equal(t, "RULESET_INVALID", bpmn.Code)
	assert.Equal(t, 0, bpmn.Retries)
	assert.Equal(t, []string{"gap", "overlap"}, bpmn.ToErrorVariables()["problems"])
}

func TestConvertToBPMNError_Retries(t *testing.T) {
	retryable := NewRuleSetPublishFailedError("p1", stderrors.New("conn reset"))
	bpmn := ConvertToBPMNError(retryable)
	assert.Equal(t, 3, bpmn.Retries)
	assert.True(t, bpmn.Retryable)

	vars := bpmn.ToErrorVariables()
	assert.Equal(t, "RULESET_PUBLISH_FAILED", vars["errorCode"])
	assert.Equal(t, "RULESET_PUBLISH_FAILED", vars["originalErrorCode"])
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name          string
		err           *StandardError
		remaining     int32
		expectRetry   bool
		expectRetries int32
	}{
		{name: "business error never retries", err: NewInputValidationFailedError("x"), remaining: 3},
		{name: "retryable capped by code", err: NewRuleSetLoadFailedError("p", stderrors.New("x")), remaining: 10, expectRetry: true, expectRetries: 3},
		{name: "retryable counts down", err: NewRuleSetLoadFailedError("p", stderrors.New("x")), remaining: 2, expectRetry: true, expectRetries: 1},
		{name: "no retries left", err: NewRuleSetLoadFailedError("p", stderrors.New("x")), remaining: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retry, retries := Decide(tt.err, tt.remaining)
			assert.Equal(t, tt.expectRetry, retry)
			assert.Equal(t, tt.expectRetries, retries)
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrCodeInputValidationFailed))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrCodeToolNotConfigured))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(ErrCodeRuleSetInvalid))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(ErrCodeRuleSetLoadFailed))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(ErrCodeInternal))
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "RULESET", GetErrorCategory(ErrCodeVersionConflict))
	assert.Equal(t, "RULESET", GetErrorCategory(ErrCodeRuleSetInvalid))
	assert.Equal(t, "SUBSCRIPTION", GetErrorCategory(ErrCodeSubscriptionExpired))
	assert.Equal(t, "DELIVERY", GetErrorCategory(ErrCodeAnalyticsPublishFailed))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInputValidationFailed))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}
