// internal/common/aws/sns.go
package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func NewSNSClient(cfg awssdk.Config) *sns.Client {
	return sns.NewFromConfig(cfg)
}

// TopicPublisher publishes JSON documents to one topic.
type TopicPublisher struct {
	client   SNSAPI
	topicARN string
}

func NewTopicPublisher(client SNSAPI, topicARN string) *TopicPublisher {
	return &TopicPublisher{client: client, topicARN: topicARN}
}

func (p *TopicPublisher) TopicARN() string { return p.topicARN }

// PublishJSON marshals payload as the message body. attrs become string
// message attributes usable in subscription filter policies.
func (p *TopicPublisher) PublishJSON(ctx context.Context, payload interface{}, attrs map[string]string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal sns payload: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: awssdk.String(p.topicARN),
		Message:  awssdk.String(string(body)),
	}
	if len(attrs) > 0 {
		input.MessageAttributes = make(map[string]types.MessageAttributeValue, len(attrs))
		keys := make([]string, 0, len(attrs))
		for k := range attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			input.MessageAttributes[k] = types.MessageAttributeValue{
				DataType:    awssdk.String("String"),
				StringValue: awssdk.String(attrs[k]),
			}
		}
	}

	out, err := p.client.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("sns publish: %w", err)
	}
	return awssdk.ToString(out.MessageId), nil
}
