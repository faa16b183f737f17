// internal/analytics/analytics_test.go
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "tool-evaluator/internal/common/errors"
	"tool-evaluator/internal/common/logger"
	"tool-evaluator/internal/common/metrics"
	"tool-evaluator/internal/engine"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func testEvent() Event {
	return NewEvent("worker", engine.TierBasic, engine.EventPayload{
		ProjectID:          "p1",
		Version:            3,
		RawScore:           61,
		OutcomeLabel:       "Medium",
		UpgradePromptCount: 1,
		AnomalyCount:       2,
		IsPartial:          true,
	})
}

type fakePublisher struct {
	payload interface{}
	attrs   map[string]string
	err     error
}

func (f *fakePublisher) PublishJSON(_ context.Context, payload interface{}, attrs map[string]string) (string, error) {
	f.payload = payload
	f.attrs = attrs
	return "msg-1", f.err
}

type recordingSink struct {
	mu     sync.Mutex
	name   string
	events []Event
	err    error
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type blockingSink struct {
	recordingSink
	release chan struct{}
}

func (b *blockingSink) Publish(ctx context.Context, e Event) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.recordingSink.Publish(ctx, e)
}

// ==========================
// Tests
// ==========================

func TestNewEvent(t *testing.T) {
	e := testEvent()

	assert.Len(t, e.ID, 36)
	assert.Equal(t, "basic", e.CallerTier)
	assert.NotEqual(t, e.ID, testEvent().ID)

	data, err := json.Marshal(e)
	require.NoError(t, err)
	var flat map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "p1", flat["projectId"], "payload fields are flattened into the event")
	assert.Equal(t, "Medium", flat["outcomeLabel"])
}

func TestSNSSink_Publish(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSNSSink(pub)

	require.NoError(t, sink.Publish(context.Background(), testEvent()))
	assert.Equal(t, map[string]string{
		"projectId": "p1",
		"outcome":   "Medium",
		"isPartial": "true",
		"surface":   "worker",
	}, pub.attrs)

	pub.err = errors.New("throttled")
	err := sink.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeAnalyticsPublishFailed, apperrors.Normalize(err).Code)
}

func TestElasticsearchSink_Publish(t *testing.T) {
	var gotPath, gotBody string
	status := http.StatusCreated
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotPath, gotBody = r.URL.Path, string(body)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	sink := NewElasticsearchSink(client, "evaluation-events")

	e := testEvent()
	require.NoError(t, sink.Publish(context.Background(), e))
	assert.True(t, strings.HasPrefix(gotPath, "/evaluation-events/"))
	assert.True(t, strings.HasSuffix(gotPath, e.ID))
	assert.Contains(t, gotBody, `"outcomeLabel":"Medium"`)

	status = http.StatusConflict
	assert.NoError(t, sink.Publish(context.Background(), e), "duplicate delivery is not an error")

	status = http.StatusInternalServerError
	assert.Error(t, sink.Publish(context.Background(), e))
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	bad := &recordingSink{name: "bad", err: errors.New("down")}

	err := Multi{bad, ok}.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, 1, ok.count(), "a failing sink does not stop the others")
}

func TestEmitter_FailuresAreCounted(t *testing.T) {
	bad := &recordingSink{name: "flaky-test-sink", err: errors.New("down")}
	emitter := NewEmitter(bad, time.Second, logger.NewTestLogger(t))

	before := testutil.ToFloat64(metrics.AnalyticsFailures.WithLabelValues("flaky-test-sink"))
	emitter.EmitSync(context.Background(), testEvent())
	after := testutil.ToFloat64(metrics.AnalyticsFailures.WithLabelValues("flaky-test-sink"))

	assert.Equal(t, before+1, after)
	assert.Equal(t, 1, bad.count())
}

func TestEmitter_EmitIsAsync(t *testing.T) {
	sink := &recordingSink{name: "async"}
	emitter := NewEmitter(sink, time.Second, logger.NewTestLogger(t))

	emitter.Emit(testEvent())
	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestEmitter_NilSink(t *testing.T) {
	emitter := NewEmitter(nil, time.Second, logger.NewNoOpLogger())
	emitter.EmitSync(context.Background(), testEvent())
}

func TestEmitter_CloseWaitsForInflightEvents(t *testing.T) {
	sink := &blockingSink{recordingSink: recordingSink{name: "blocking"}, release: make(chan struct{})}
	emitter := NewEmitter(sink, time.Minute, logger.NewTestLogger(t))

	emitter.Emit(testEvent())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := emitter.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, sink.count())

	close(sink.release)
	require.NoError(t, emitter.Close(context.Background()))
	assert.Equal(t, 1, sink.count(), "Close returns only after the pending event is delivered")
}

func TestEmitter_EmitAfterCloseIsDropped(t *testing.T) {
	sink := &recordingSink{name: "closed"}
	emitter := NewEmitter(sink, time.Second, logger.NewTestLogger(t))
	require.NoError(t, emitter.Close(context.Background()))

	emitter.Emit(testEvent())
	require.NoError(t, emitter.Close(context.Background()))
	assert.Equal(t, 0, sink.count())
}
