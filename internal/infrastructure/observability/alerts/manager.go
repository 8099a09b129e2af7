package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/health"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/pkg/config"
)

// Notifier delivers newly activated alerts outside the process.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Observer is told the size of the active set after every change.
type Observer interface {
	SetActiveAlerts(n int)
}

// Config holds the evaluation thresholds.
type Config struct {
	EvalInterval       time.Duration
	ErrorWindow        time.Duration
	ErrorThreshold     int
	LatencyWindow      time.Duration
	LatencyThresholdMs float64
	HistorySize        int
}

// NewConfig reads the alert settings from the central config package.
func NewConfig() Config {
	return Config{
		EvalInterval:       config.AlertEvalInterval,
		ErrorWindow:        config.AlertErrorWindow,
		ErrorThreshold:     config.AlertErrorThreshold,
		LatencyWindow:      config.AlertLatencyWindow,
		LatencyThresholdMs: config.AlertLatencyThresholdMs,
		HistorySize:        config.AlertHistorySize,
	}
}

// Manager owns the active alert set. A condition that stays true refreshes its
// alert in place; a condition that clears resolves it.
type Manager struct {
	config Config
	window *SampleWindow
	store  telemetry.Repository
	logger *logging.ChanneledLogger
	now    func() time.Time

	mu        sync.RWMutex
	active    map[string]*Alert
	history   []Alert
	notifiers []Notifier
	observer  Observer

	notifyWG sync.WaitGroup
}

// NewManager creates a manager persisting alert activations to store. store may be nil.
func NewManager(cfg Config, store telemetry.Repository, logger *logging.ChanneledLogger) *Manager {
	if cfg.ErrorWindow <= 0 {
		cfg.ErrorWindow = 15 * time.Minute
	}
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = 5 * time.Minute
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = 10
	}
	if cfg.LatencyThresholdMs <= 0 {
		cfg.LatencyThresholdMs = 1000
	}
	if cfg.HistorySize < 1 {
		cfg.HistorySize = 500
	}
	if cfg.EvalInterval <= 0 {
		cfg.EvalInterval = time.Minute
	}

	span := cfg.ErrorWindow
	if cfg.LatencyWindow > span {
		span = cfg.LatencyWindow
	}

	return &Manager{
		config: cfg,
		window: NewSampleWindow(span, 0),
		store:  store,
		logger: logger,
		now:    time.Now,
		active: make(map[string]*Alert),
	}
}

// AddNotifier registers n for newly activated alerts.
func (m *Manager) AddNotifier(n Notifier) {
	m.mu.Lock()
	m.notifiers = append(m.notifiers, n)
	m.mu.Unlock()
}

// SetObserver attaches an active-set observer.
func (m *Manager) SetObserver(o Observer) {
	m.mu.Lock()
	m.observer = o
	m.mu.Unlock()
}

// Interval is the scheduled evaluation period.
func (m *Manager) Interval() time.Duration {
	return m.config.EvalInterval
}

// ObserveSample feeds the rolling window.
func (m *Manager) ObserveSample(s telemetry.MetricSample) {
	m.window.Add(s)
}

// Evaluate checks the rolling windows against the thresholds and returns the
// active alerts afterwards.
func (m *Manager) Evaluate(ctx context.Context) []Alert {
	now := m.now()

	errStats := m.window.Stats(now, m.config.ErrorWindow)
	if errStats.Errors > m.config.ErrorThreshold {
		m.raise(ctx, IDHighErrorRate, IDHighErrorRate, SeverityCritical,
			fmt.Sprintf("%d server errors in the last %s", errStats.Errors, m.config.ErrorWindow),
			map[string]any{
				"errors":    errStats.Errors,
				"requests":  errStats.Requests,
				"threshold": m.config.ErrorThreshold,
				"window":    m.config.ErrorWindow.String(),
			})
	} else {
		m.Resolve(ctx, IDHighErrorRate)
	}

	latStats := m.window.Stats(now, m.config.LatencyWindow)
	if latStats.Requests > 0 && latStats.AvgResponseMs > m.config.LatencyThresholdMs {
		m.raise(ctx, IDSlowResponses, IDSlowResponses, SeverityWarning,
			fmt.Sprintf("Mean response time %.0fms over the last %s", latStats.AvgResponseMs, m.config.LatencyWindow),
			map[string]any{
				"avgResponseMs": latStats.AvgResponseMs,
				"requests":      latStats.Requests,
				"thresholdMs":   m.config.LatencyThresholdMs,
				"window":        m.config.LatencyWindow.String(),
			})
	} else {
		m.Resolve(ctx, IDSlowResponses)
	}

	return m.Active()
}

// CreateAlert raises a caller-supplied alert under id manual:<type>.
func (m *Manager) CreateAlert(ctx context.Context, req AlertRequest) (Alert, error) {
	if err := req.Validate(); err != nil {
		return Alert{}, err
	}
	return m.raise(ctx, ManualID(req.Type), req.Type, req.Severity, req.Message, req.Details), nil
}

// NotifyFlushDropped raises the dropped-batch warning. It stays active until resolved.
func (m *Manager) NotifyFlushDropped(ctx context.Context, samples, attempts int, cause error) {
	details := map[string]any{"samples": samples, "attempts": attempts}
	if cause != nil {
		details["error"] = cause.Error()
	}
	message := fmt.Sprintf("Dropped %d metric samples after %d failed flushes", samples, attempts)
	if attempts == 0 {
		message = fmt.Sprintf("Dropped %d metric samples on buffer overflow", samples)
	}
	m.raise(ctx, IDMetricsFlushDropped, IDMetricsFlushDropped, SeverityWarning, message, details)
}

// OnHealthStatus raises an alert while overall health is critical.
func (m *Manager) OnHealthStatus(ctx context.Context, status health.SystemHealthStatus) {
	if status.Overall != health.OverallCritical {
		m.Resolve(ctx, IDHealthCritical)
		return
	}

	var failing []string
	for _, check := range status.Checks {
		if check.Status == health.StatusCritical {
			failing = append(failing, check.Component)
		}
	}
	m.raise(ctx, IDHealthCritical, IDHealthCritical, SeverityCritical,
		fmt.Sprintf("System health critical (score %.1f)", status.Score),
		map[string]any{"score": status.Score, "critical": strings.Join(failing, ",")})
}

// raise activates id or refreshes the existing alert in place.
func (m *Manager) raise(ctx context.Context, id, alertType string, severity Severity, message string, details map[string]any) Alert {
	now := m.now().UTC()

	m.mu.Lock()
	if existing, ok := m.active[id]; ok {
		existing.Timestamp = now
		existing.Message = message
		existing.Severity = severity
		existing.Details = cloneDetails(details)
		existing.Occurrences++
		snapshot := *existing
		m.mu.Unlock()

		m.logger.Alert().Debug("Alert refreshed", "id", id, "occurrences", snapshot.Occurrences)
		return snapshot
	}

	alert := &Alert{
		ID:          id,
		Type:        alertType,
		Severity:    severity,
		Message:     message,
		Details:     cloneDetails(details),
		Timestamp:   now,
		FirstSeen:   now,
		Occurrences: 1,
	}
	m.active[id] = alert
	snapshot := *alert
	m.appendHistoryLocked(snapshot)
	notifiers := append([]Notifier(nil), m.notifiers...)
	observer, activeCount := m.observer, len(m.active)
	m.mu.Unlock()

	m.logger.Alert().Warn("Alert activated", "id", id, "severity", severity, "message", message)
	if observer != nil {
		observer.SetActiveAlerts(activeCount)
	}
	m.persist(ctx, snapshot, "activated")
	m.dispatch(ctx, snapshot, notifiers)
	return snapshot
}

// Resolve removes id from the active set and reports whether it was active.
func (m *Manager) Resolve(ctx context.Context, id string) bool {
	m.mu.Lock()
	alert, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.active, id)
	resolvedAt := m.now().UTC()
	alert.ResolvedAt = &resolvedAt
	snapshot := *alert
	m.appendHistoryLocked(snapshot)
	observer, activeCount := m.observer, len(m.active)
	m.mu.Unlock()

	m.logger.Alert().Info("Alert resolved", "id", id, "activeFor", resolvedAt.Sub(snapshot.FirstSeen))
	if observer != nil {
		observer.SetActiveAlerts(activeCount)
	}
	m.persist(ctx, snapshot, "resolved")
	return true
}

// Active returns the active alerts, most severe first, then most recent.
func (m *Manager) Active() []Alert {
	m.mu.RLock()
	out := make([]Alert, 0, len(m.active))
	for _, a := range m.active {
		alert := *a
		alert.Details = cloneDetails(a.Details)
		out = append(out, alert)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity.rank() != out[j].Severity.rank() {
			return out[i].Severity.rank() > out[j].Severity.rank()
		}
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// History returns activations and resolutions, oldest first.
func (m *Manager) History() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Alert(nil), m.history...)
}

// Wait blocks until in-flight notifications finish. It runs on shutdown.
func (m *Manager) Wait() {
	m.notifyWG.Wait()
}

func (m *Manager) appendHistoryLocked(a Alert) {
	m.history = append(m.history, a)
	if over := len(m.history) - m.config.HistorySize; over > 0 {
		m.history = append(m.history[:0:0], m.history[over:]...)
	}
}

// persist writes the transition as a log entry. Failures are logged only.
func (m *Manager) persist(ctx context.Context, a Alert, transition string) {
	if m.store == nil {
		return
	}

	details, err := json.Marshal(a)
	if err != nil {
		m.logger.Alert().Error("Failed to encode alert", "id", a.ID, "error", err.Error())
		return
	}

	level := "info"
	if transition == "activated" {
		switch a.Severity {
		case SeverityCritical:
			level = "error"
		case SeverityWarning:
			level = "warn"
		}
	}

	entry := telemetry.LogEntry{
		ID:        ulid.Make().String(),
		Level:     level,
		Category:  "alert",
		Message:   fmt.Sprintf("alert %s %s: %s", a.ID, transition, a.Message),
		Details:   string(details),
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.InsertLogEntry(ctx, entry); err != nil {
		m.logger.Alert().Error("Failed to persist alert", "id", a.ID, "error", err.Error())
	}
}

// dispatch sends a to every notifier off the caller's path.
func (m *Manager) dispatch(ctx context.Context, a Alert, notifiers []Notifier) {
	if len(notifiers) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, n := range notifiers {
		n := n
		m.notifyWG.Add(1)
		go func() {
			defer m.notifyWG.Done()
			if err := n.Notify(ctx, a); err != nil {
				m.logger.Alert().Warn("Alert notification failed", "id", a.ID, "error", err.Error())
			}
		}()
	}
}
