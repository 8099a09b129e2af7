package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/email"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/email/templates"
)

// EmailNotifier mails newly activated alerts at or above a minimum severity.
// Sends beyond the hourly budget are skipped, not queued.
type EmailNotifier struct {
	service     email.Service
	recipients  []string
	minSeverity Severity
	limiter     *rate.Limiter
}

// NewEmailNotifier creates a notifier sending to the comma-separated
// recipients at most perHour times an hour.
func NewEmailNotifier(service email.Service, recipients string, perHour int) *EmailNotifier {
	if perHour < 1 {
		perHour = 1
	}
	var to []string
	for _, r := range strings.Split(recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	return &EmailNotifier{
		service:     service,
		recipients:  to,
		minSeverity: SeverityCritical,
		limiter:     rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), perHour),
	}
}

// ErrNotificationThrottled is returned when the hourly budget is spent.
var ErrNotificationThrottled = errors.New("alert notification throttled")

func (n *EmailNotifier) Notify(ctx context.Context, a Alert) error {
	if len(n.recipients) == 0 || a.Severity.rank() < n.minSeverity.rank() {
		return nil
	}
	if !n.limiter.Allow() {
		return fmt.Errorf("%w: %s", ErrNotificationThrottled, a.ID)
	}

	return n.service.SendAlertEmail(n.recipients, templates.AlertEmailProps{
		ID:        a.ID,
		Severity:  string(a.Severity),
		Message:   a.Message,
		Details:   a.Details,
		Timestamp: a.Timestamp,
	})
}
