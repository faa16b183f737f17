// internal/analytics/emitter.go
package analytics

import (
	"context"
	"sync"
	"time"

	"tool-evaluator/internal/common/logger"
	"tool-evaluator/internal/common/metrics"
)

// Emitter publishes events off the request path. Emit never blocks the
// caller for longer than it takes to start a goroutine, and failures are only
// logged. Close waits for in-flight deliveries.
type Emitter struct {
	sink    Sink
	logger  logger.Logger
	timeout time.Duration

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func NewEmitter(sink Sink, timeout time.Duration, log logger.Logger) *Emitter {
	if sink == nil {
		sink = Nop{}
	}
	return &Emitter{sink: sink, logger: log, timeout: timeout}
}

func (e *Emitter) Emit(event Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.logger.Warn("emitter closed, dropping evaluation event", map[string]interface{}{
			"eventId":   event.ID,
			"projectId": event.ProjectID,
		})
		return
	}
	e.inflight.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.inflight.Done()
		e.send(event)
	}()
}

// Close stops accepting asynchronous events and waits until the ones already
// started are delivered or ctx is done.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EmitSync publishes on the calling goroutine. Workers use it so the job is
// completed only after delivery was attempted.
func (e *Emitter) EmitSync(ctx context.Context, event Event) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	e.deliver(ctx, event)
}

func (e *Emitter) send(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	e.deliver(ctx, event)
}

func (e *Emitter) deliver(ctx context.Context, event Event) {
	if err := e.sink.Publish(ctx, event); err != nil {
		metrics.AnalyticsFailures.WithLabelValues(e.sink.Name()).Inc()
		e.logger.Warn("failed to publish evaluation event", map[string]interface{}{
			"eventId":   event.ID,
			"projectId": event.ProjectID,
			"sink":      e.sink.Name(),
			"error":     err.Error(),
		})
	}
}
