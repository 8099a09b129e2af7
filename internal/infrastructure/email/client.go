// Package email provides the email client for sending alert notifications.
package email

import (
	"fmt"

	"github.com/resendlabs/resend-go"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/email/templates"
)

// Service defines the interface for sending emails, allowing for mock implementations in tests.
type Service interface {
	SendAlertEmail(to []string, alert templates.AlertEmailProps) error
}

// ResendClient is the concrete implementation of the email Service using the Resend API.
type ResendClient struct {
	client    *resend.Client
	fromEmail string
	fromName  string
}

// NewService creates a new email service client, returning the Service interface.
func NewService(apiKey, fromEmail string) (Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("RESEND_API_KEY is required for alert email")
	}
	if fromEmail == "" {
		fromEmail = "alerts@compliance-core.local"
	}

	return &ResendClient{
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
		fromName:  "Compliance Core Alerts",
	}, nil
}

// SendAlertEmail composes and sends a single alert notification.
func (c *ResendClient) SendAlertEmail(to []string, alert templates.AlertEmailProps) error {
	subject := fmt.Sprintf("[%s] %s", alert.Severity, alert.Message)

	htmlContent := templates.GetEmailLayout(templates.EmailLayoutProps{
		Preheader: alert.Message,
		Content:   templates.GetAlertEmailContent(alert),
	})

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromEmail),
		To:      to,
		Subject: subject,
		Html:    htmlContent,
	}

	if _, err := c.client.Emails.Send(params); err != nil {
		return fmt.Errorf("failed to send alert email via Resend: %w", err)
	}
	return nil
}
