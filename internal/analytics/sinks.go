// internal/analytics/sinks.go
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	apperrors "tool-evaluator/internal/common/errors"
	"tool-evaluator/internal/common/logger"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Publisher is the slice of aws.TopicPublisher used here.
type Publisher interface {
	PublishJSON(ctx context.Context, payload interface{}, attrs map[string]string) (string, error)
}

// SNSSink fans events out on an SNS topic. The outcome label and partial flag
// are message attributes so subscribers can filter.
type SNSSink struct {
	publisher Publisher
}

func NewSNSSink(p Publisher) *SNSSink {
	return &SNSSink{publisher: p}
}

func (s *SNSSink) Name() string { return "sns" }

func (s *SNSSink) Publish(ctx context.Context, event Event) error {
	_, err := s.publisher.PublishJSON(ctx, event, map[string]string{
		"projectId": event.ProjectID,
		"outcome":   event.OutcomeLabel,
		"isPartial": strconv.FormatBool(event.IsPartial),
		"surface":   event.Surface,
	})
	if err != nil {
		return apperrors.NewAnalyticsPublishFailedError(s.Name(), err)
	}
	return nil
}

// IndexMapping is applied when the events index is created.
const IndexMapping = `{
  "mappings": {
    "properties": {
      "id":                 {"type": "keyword"},
      "surface":            {"type": "keyword"},
      "callerTier":         {"type": "keyword"},
      "occurredAt":         {"type": "date"},
      "projectId":          {"type": "keyword"},
      "version":            {"type": "long"},
      "rawScore":           {"type": "double"},
      "outcomeLabel":       {"type": "keyword"},
      "upgradePromptCount": {"type": "integer"},
      "anomalyCount":       {"type": "integer"},
      "isPartial":          {"type": "boolean"}
    }
  }
}`

// ElasticsearchSink indexes each event as its own document, keyed by event ID
// so redelivery does not duplicate.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	return &ElasticsearchSink{client: client, index: index}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return apperrors.NewAnalyticsPublishFailedError(s.Name(), err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: event.ID,
		Body:       bytes.NewReader(body),
		OpType:     "create",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return apperrors.NewAnalyticsPublishFailedError(s.Name(), err)
	}
	defer res.Body.Close()

	// 409 means this event ID is already indexed.
	if res.IsError() && res.StatusCode != 409 {
		return apperrors.NewAnalyticsPublishFailedError(s.Name(), fmt.Errorf("index event: %s", res.Status()))
	}
	return nil
}

// Multi delivers to every sink and joins their errors.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Name() string                          { return "nop" }
func (Nop) Publish(context.Context, Event) error { return nil }

// LogSink writes events to the structured log. Used when no remote sink is
// configured.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(_ context.Context, event Event) error {
	s.logger.Info("evaluation event", map[string]interface{}{
		"eventId":            event.ID,
		"projectId":          event.ProjectID,
		"version":            event.Version,
		"surface":            event.Surface,
		"rawScore":           event.RawScore,
		"outcome":            event.OutcomeLabel,
		"upgradePromptCount": event.UpgradePromptCount,
		"anomalyCount":       event.AnomalyCount,
	})
	return nil
}
