package service

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESTransport sends notifications as plain text email via Amazon SES
type SESTransport struct {
	client    *sesv2.Client
	fromEmail string
	fromName  string
	debug     bool
}

// NewSESTransport loads the default AWS configuration for region
func NewSESTransport(ctx context.Context, awsRegion, fromEmail, fromName string, debug bool) (*SESTransport, error) {
	if fromEmail == "" {
		return nil, fmt.Errorf("SES_FROM_EMAIL is required for the ses transport")
	}

	if debug {
		log.Printf("[DEBUG] Initializing SES transport: region=%s from=%s", awsRegion, fromEmail)
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Printf("Email notifications enabled via SES: from=%s, region=%s", fromEmail, awsRegion)

	return &SESTransport{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: fromEmail,
		fromName:  fromName,
		debug:     debug,
	}, nil
}

func (t *SESTransport) Send(ctx context.Context, n Notification) error {
	fromAddress := t.fromEmail
	if t.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", t.fromName, t.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{n.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(n.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(n.Text),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", n.To, err)
	}

	if t.debug && result.MessageId != nil {
		log.Printf("[DEBUG] SES message ID: %s", *result.MessageId)
	}
	log.Printf("Email sent: kind=%s to=%s", n.Kind, n.To)
	return nil
}
