package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/alerts"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/dashboard"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/health"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
)

// ErrAlertNotFound is returned when resolving an id that is not active.
var ErrAlertNotFound = errors.New("alert not found")

// ObservabilityService is the application-facing surface of the metrics,
// health and alert components.
type ObservabilityService struct {
	aggregator *dashboard.Aggregator
	engine     *health.Engine
	alerts     *alerts.Manager
	logger     *logging.ChanneledLogger
}

func NewObservabilityService(aggregator *dashboard.Aggregator, engine *health.Engine, alertManager *alerts.Manager, logger *logging.ChanneledLogger) *ObservabilityService {
	return &ObservabilityService{
		aggregator: aggregator,
		engine:     engine,
		alerts:     alertManager,
		logger:     logger,
	}
}

// GetSystemMetrics returns the dashboard view for timeRange ("1h", "24h", "7d" or "30d").
func (s *ObservabilityService) GetSystemMetrics(ctx context.Context, timeRange string) (*dashboard.SystemMetrics, error) {
	start := time.Now()
	view, err := s.aggregator.Aggregate(ctx, telemetry.TimeRange(timeRange))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, timeRange)
	}
	if len(view.Degraded) > 0 {
		s.logger.Metrics().Warn("System metrics served degraded", "range", view.Range, "degraded", view.Degraded, "duration", time.Since(start))
	} else {
		s.logger.Metrics().Debug("System metrics served", "range", view.Range, "duration", time.Since(start))
	}
	return view, nil
}

// GetHealthReport summarizes the latest scheduled health run. It never runs
// the checks itself.
func (s *ObservabilityService) GetHealthReport(ctx context.Context) health.Report {
	status, ok := s.engine.Latest()
	if !ok {
		return health.Report{
			Status:          health.OverallCritical,
			Issues:          []string{"no health run recorded yet"},
			Recommendations: []string{"Wait for the first scheduled health run"},
		}
	}
	return health.BuildReport(status)
}

// GetHealthStatus returns the latest full health run.
func (s *ObservabilityService) GetHealthStatus() (health.SystemHealthStatus, bool) {
	return s.engine.Latest()
}

// GetHealthHistory returns the retained runs, oldest first.
func (s *ObservabilityService) GetHealthHistory() []health.SystemHealthStatus {
	return s.engine.History().All()
}

// CreateAlert raises a manual alert.
func (s *ObservabilityService) CreateAlert(ctx context.Context, req alerts.AlertRequest) (alerts.Alert, error) {
	alert, err := s.alerts.CreateAlert(ctx, req)
	if err != nil {
		s.logger.Alert().Warn("Rejected alert request", "type", req.Type, "error", err.Error())
		return alerts.Alert{}, err
	}
	return alert, nil
}

// ResolveAlert clears an active alert by id.
func (s *ObservabilityService) ResolveAlert(ctx context.Context, id string) error {
	if !s.alerts.Resolve(ctx, id) {
		return fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	return nil
}

// ListAlerts returns the active alerts and, when requested, the bounded history.
func (s *ObservabilityService) ListAlerts(includeHistory bool) (active []alerts.Alert, history []alerts.Alert) {
	active = s.alerts.Active()
	if includeHistory {
		history = s.alerts.History()
	}
	return active, history
}
