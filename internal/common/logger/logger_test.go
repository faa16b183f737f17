// internal/common/logger/logger_test.go
package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, expected := range tests {
		assert.Equal(t, expected, ParseLevel(in), in)
	}
}

func TestZapAdapter_FieldsAreOrderedAndScoped(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).WithFields(map[string]interface{}{"taskType": "evaluate-responses"})

	log.Info("evaluation completed", map[string]interface{}{
		"projectId": "p1",
		"anomalies": 2,
	})
	log.WithError(errors.New("boom")).Error("publish failed", nil)

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "evaluation completed", first.Message)
	ctx := first.ContextMap()
	assert.Equal(t, "evaluate-responses", ctx["taskType"])
	assert.Equal(t, "p1", ctx["projectId"])
	assert.EqualValues(t, 2, ctx["anomalies"])

	keys := make([]string, 0, len(first.Context))
	for _, f := range first.Context {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"taskType", "anomalies", "projectId"}, keys)

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestNoOpLogger(t *testing.T) {
	log := NewNoOpLogger()
	assert.NotPanics(t, func() {
		log.With(map[string]interface{}{"a": 1}).Warn("ignored", nil)
	})
}
