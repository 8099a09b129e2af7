// Package health runs the fixed battery of health checks, scores the results
// and keeps a bounded history of system health snapshots.
package health

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrCheckTimeout marks a check that did not finish within its timeout.
	ErrCheckTimeout = errors.New("health check timed out")
	// ErrDependencyUnavailable marks a probe that could not reach its dependency.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// Status is the outcome of a single check.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Valid reports whether s is one of the three check outcomes.
func (s Status) Valid() bool {
	return s == StatusHealthy || s == StatusWarning || s == StatusCritical
}

// Weight maps a status onto the 0-100 score scale.
func (s Status) Weight() float64 {
	switch s {
	case StatusHealthy:
		return 100
	case StatusWarning:
		return 60
	default:
		return 0
	}
}

// Overall is the bucketed system status.
type Overall string

const (
	OverallHealthy  Overall = "healthy"
	OverallDegraded Overall = "degraded"
	OverallCritical Overall = "critical"
)

// HealthCheckResult is produced fresh by every check run.
type HealthCheckResult struct {
	Component      string    `json:"component"`
	Status         Status    `json:"status"`
	ResponseTimeMs float64   `json:"responseTimeMs"`
	Details        string    `json:"details"`
	Timestamp      time.Time `json:"timestamp"`
}

// SystemHealthStatus is one scored run of the full battery.
type SystemHealthStatus struct {
	Overall       Overall             `json:"overall"`
	Score         float64             `json:"score"`
	Checks        []HealthCheckResult `json:"checks"`
	Uptime        time.Duration       `json:"-"`
	UptimeSeconds float64             `json:"uptimeSeconds"`
	LastCheck     time.Time           `json:"lastCheck"`
}

// CheckWeights returns each component's status weight normalized to 0-1.
func (s SystemHealthStatus) CheckWeights() map[string]float64 {
	weights := make(map[string]float64, len(s.Checks))
	for _, c := range s.Checks {
		weights[c.Component] = c.Status.Weight() / 100
	}
	return weights
}

// Score averages the status weights of results, rounded to one decimal.
// An empty battery scores zero.
func Score(results []HealthCheckResult) float64 {
	if len(results) == 0 {
		return 0
	}
	total := 0.0
	for _, r := range results {
		total += r.Status.Weight()
	}
	return math.Round(total/float64(len(results))*10) / 10
}

// Bucket maps a score onto the overall status.
func Bucket(score float64) Overall {
	switch {
	case score >= 90:
		return OverallHealthy
	case score >= 70:
		return OverallDegraded
	default:
		return OverallCritical
	}
}

// Report is the caller-facing summary of a snapshot.
type Report struct {
	Status          Overall   `json:"status"`
	Score           float64   `json:"score"`
	Issues          []string  `json:"issues"`
	Recommendations []string  `json:"recommendations"`
	LastCheck       time.Time `json:"lastCheck"`
}

var recommendations = map[string]string{
	"database":   "Check database connectivity and connection pool saturation",
	"latency":    "Investigate slow queries on the primary store and review indexes",
	"memory":     "Review heap growth and raise the memory limit or cut cache size",
	"cpu":        "Profile CPU hot paths and consider scaling out",
	"error_rate": "Inspect recent error-level logs for a failing dependency",
	"cache":      "Raise CACHE_MAX_ENTRIES or review key design; the cache is full and missing",
}

// BuildReport lists one issue per non-healthy check and one recommendation
// per affected component.
func BuildReport(status SystemHealthStatus) Report {
	report := Report{
		Status:          status.Overall,
		Score:           status.Score,
		Issues:          []string{},
		Recommendations: []string{},
		LastCheck:       status.LastCheck,
	}

	seen := make(map[string]bool)
	for _, check := range status.Checks {
		if check.Status == StatusHealthy {
			continue
		}
		report.Issues = append(report.Issues, fmt.Sprintf("%s is %s: %s", check.Component, check.Status, check.Details))
		if seen[check.Component] {
			continue
		}
		seen[check.Component] = true
		if rec, ok := recommendations[check.Component]; ok {
			report.Recommendations = append(report.Recommendations, rec)
		} else {
			report.Recommendations = append(report.Recommendations, "Investigate the "+check.Component+" component")
		}
	}
	return report
}
