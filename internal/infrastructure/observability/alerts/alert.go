// Package alerts evaluates rolling-window aggregates against fixed thresholds
// and keeps one deduplicated active alert per condition.
package alerts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidAlert rejects a malformed manual alert request.
var ErrInvalidAlert = errors.New("invalid alert")

// Severity ranks an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Stable ids of the built-in conditions.
const (
	IDHighErrorRate       = "high_error_rate"
	IDSlowResponses       = "slow_responses"
	IDMetricsFlushDropped = "metrics_flush_dropped"
	IDHealthCritical      = "health_critical"

	manualPrefix = "manual:"
)

// Alert is one active or historical condition. ID is stable per condition.
type Alert struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Severity    Severity       `json:"severity"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	FirstSeen   time.Time      `json:"firstSeen"`
	Occurrences int            `json:"occurrences"`
	ResolvedAt  *time.Time     `json:"resolvedAt,omitempty"`
}

// AlertRequest is a caller-raised alert.
type AlertRequest struct {
	Type     string         `json:"type"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// Validate checks the request and normalizes its fields.
func (r *AlertRequest) Validate() error {
	r.Type = strings.TrimSpace(r.Type)
	r.Message = strings.TrimSpace(r.Message)
	r.Severity = Severity(strings.ToLower(string(r.Severity)))

	switch {
	case r.Type == "":
		return fmt.Errorf("%w: type is required", ErrInvalidAlert)
	case strings.ContainsAny(r.Type, " /"):
		return fmt.Errorf("%w: type %q must not contain spaces or slashes", ErrInvalidAlert, r.Type)
	case r.Message == "":
		return fmt.Errorf("%w: message is required", ErrInvalidAlert)
	}

	switch r.Severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return nil
	}
	return fmt.Errorf("%w: severity %q must be info, warning or critical", ErrInvalidAlert, r.Severity)
}

// ManualID is the stable id of a caller-raised alert type.
func ManualID(alertType string) string {
	return manualPrefix + alertType
}

func cloneDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[k] = v
	}
	return out
}
