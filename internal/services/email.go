package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// EmailSender delivers transactional mail. The core only ever sends short
// verification codes; the code itself is never logged.
type EmailSender interface {
	SendVerificationCode(ctx context.Context, recipient, code string) error
}

type SESEmailSender struct {
	client *sesv2.Client
	sender string
}

func NewSESEmailSender(cfg aws.Config, sender string) *SESEmailSender {
	return &SESEmailSender{
		client: sesv2.NewFromConfig(cfg),
		sender: sender,
	}
}

func (s *SESEmailSender) SendVerificationCode(ctx context.Context, recipient, code string) error {
	body := fmt.Sprintf(`<html><body><p>Your verification code is <strong>%s</strong>.</p></body></html>`, code)

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.sender),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String("CloudVault Account Verification")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}
	return nil
}
