// internal/common/aws/ses.go
package aws

import (
	"context"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the slice of the SES client the mailer needs.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func NewSESClient(cfg awssdk.Config) *ses.Client {
	return ses.NewFromConfig(cfg)
}

// Mailer sends plain-text notification mail from a fixed sender.
type Mailer struct {
	client SESAPI
	from   string
}

func NewMailer(client SESAPI, from string) *Mailer {
	return &Mailer{client: client, from: from}
}

// Send delivers one text message and returns the SES message id.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) (string, error) {
	if strings.TrimSpace(to) == "" {
		return "", fmt.Errorf("recipient is required")
	}
	out, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: &types.Content{Data: awssdk.String(subject), Charset: awssdk.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: awssdk.String(body), Charset: awssdk.String("UTF-8")},
			},
		},
		Source: awssdk.String(m.from),
	})
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	return awssdk.ToString(out.MessageId), nil
}
