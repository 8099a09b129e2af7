package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
)

type staticCheck struct {
	name   string
	status Status
	delay  time.Duration
	panics bool
}

func (c staticCheck) Name() string { return c.name }

func (c staticCheck) Run(ctx context.Context) HealthCheckResult {
	if c.panics {
		panic("probe exploded")
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return HealthCheckResult{Status: c.status, Details: "static"}
}

type fakeProber struct {
	delay time.Duration
	err   error
}

func (p fakeProber) Ping(ctx context.Context) error {
	time.Sleep(p.delay)
	return p.err
}

func (p fakeProber) ProbeQuery(ctx context.Context) error {
	return p.Ping(ctx)
}

func newEngine(timeout time.Duration, checks ...Check) *Engine {
	return NewEngine(checks, Config{Timeout: timeout, HistorySize: 3}, logging.NewDiscardLogger())
}

func TestScoreFormula(t *testing.T) {
	results := []HealthCheckResult{
		{Status: StatusHealthy}, {Status: StatusHealthy}, {Status: StatusCritical},
	}
	score := Score(results)
	assert.Equal(t, 66.7, score)
	assert.Equal(t, OverallDegraded, Bucket(score))

	assert.Equal(t, OverallHealthy, Bucket(Score([]HealthCheckResult{{Status: StatusHealthy}})))
	assert.Equal(t, OverallCritical, Bucket(Score([]HealthCheckResult{{Status: StatusWarning}})))
	assert.Equal(t, 0.0, Score(nil))
}

func TestPropertyScoreIsBoundedAndDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		statuses := rapid.SliceOfN(rapid.SampledFrom([]Status{StatusHealthy, StatusWarning, StatusCritical}), 1, 20).Draw(t, "statuses")
		results := make([]HealthCheckResult, len(statuses))
		for i, s := range statuses {
			results[i] = HealthCheckResult{Status: s}
		}

		score := Score(results)
		if score < 0 || score > 100 {
			t.Fatalf("score %v out of range", score)
		}
		if again := Score(results); again != score {
			t.Fatalf("score not deterministic: %v vs %v", score, again)
		}
		allHealthy := true
		for _, s := range statuses {
			if s != StatusHealthy {
				allHealthy = false
			}
		}
		if allHealthy && Bucket(score) != OverallHealthy {
			t.Fatalf("all healthy bucketed as %s", Bucket(score))
		}
	})
}

func TestEngineRunScoresAndRecordsHistory(t *testing.T) {
	engine := newEngine(time.Second,
		staticCheck{name: "a", status: StatusHealthy},
		staticCheck{name: "b", status: StatusHealthy},
		staticCheck{name: "c", status: StatusCritical},
	)

	status := engine.Run(context.Background())
	assert.Equal(t, 66.7, status.Score)
	assert.Equal(t, OverallDegraded, status.Overall)
	require.Len(t, status.Checks, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{status.Checks[0].Component, status.Checks[1].Component, status.Checks[2].Component})
	assert.Greater(t, status.UptimeSeconds, 0.0)

	latest, ok := engine.Latest()
	require.True(t, ok)
	assert.Equal(t, status.LastCheck, latest.LastCheck)
}

func TestHistoryIsBounded(t *testing.T) {
	engine := newEngine(time.Second, staticCheck{name: "a", status: StatusHealthy})
	for i := 0; i < 5; i++ {
		engine.Run(context.Background())
	}
	assert.Equal(t, 3, engine.History().Len())
	assert.Len(t, engine.History().All(), 3)
}

func TestTimeoutIsCriticalForThatCheckOnly(t *testing.T) {
	engine := newEngine(50*time.Millisecond,
		staticCheck{name: "slow", status: StatusHealthy, delay: 500 * time.Millisecond},
		staticCheck{name: "fast", status: StatusHealthy},
	)

	start := time.Now()
	status := engine.Run(context.Background())
	assert.Less(t, time.Since(start), 400*time.Millisecond, "a hung check must not hold the run")

	assert.Equal(t, StatusCritical, status.Checks[0].Status)
	assert.Contains(t, status.Checks[0].Details, ErrCheckTimeout.Error())
	assert.Equal(t, StatusHealthy, status.Checks[1].Status)
}

func TestPanickingAndInvalidChecksAreCritical(t *testing.T) {
	engine := newEngine(time.Second,
		staticCheck{name: "panics", panics: true},
		staticCheck{name: "bogus", status: Status("unknown")},
	)

	status := engine.Run(context.Background())
	assert.Equal(t, StatusCritical, status.Checks[0].Status)
	assert.Equal(t, StatusCritical, status.Checks[1].Status)
	assert.Equal(t, OverallCritical, status.Overall)
}

func TestInterruptedRunIsNotRecorded(t *testing.T) {
	engine := newEngine(time.Second, staticCheck{name: "db", status: StatusHealthy, delay: 200 * time.Millisecond})
	heard := 0
	engine.AddListener(ListenerFunc(func(ctx context.Context, status SystemHealthStatus) { heard++ }))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	status := engine.Run(ctx)

	assert.Equal(t, StatusCritical, status.Checks[0].Status)
	assert.Equal(t, 0, engine.History().Len())
	assert.Equal(t, 0, heard)
	_, ok := engine.Latest()
	assert.False(t, ok)
}

func TestListenersReceiveEveryRun(t *testing.T) {
	engine := newEngine(time.Second, staticCheck{name: "a", status: StatusCritical})

	var mu sync.Mutex
	var seen []Overall
	engine.AddListener(ListenerFunc(func(ctx context.Context, s SystemHealthStatus) {
		mu.Lock()
		seen = append(seen, s.Overall)
		mu.Unlock()
	}))

	engine.Run(context.Background())
	engine.Run(context.Background())
	assert.Equal(t, []Overall{OverallCritical, OverallCritical}, seen)
}

func TestProbeChecks(t *testing.T) {
	cases := []struct {
		name   string
		prober fakeProber
		want   Status
	}{
		{"fast", fakeProber{}, StatusHealthy},
		{"slow", fakeProber{delay: 150 * time.Millisecond}, StatusWarning},
		{"down", fakeProber{err: errors.New("connection refused")}, StatusCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := NewDatabaseCheck(tc.prober).Run(context.Background())
			assert.Equal(t, tc.want, result.Status)
			latency := NewLatencyCheck(tc.prober).Run(context.Background())
			assert.Equal(t, tc.want, latency.Status)
		})
	}

	down := NewDatabaseCheck(fakeProber{err: errors.New("refused")}).Run(context.Background())
	assert.Contains(t, down.Details, ErrDependencyUnavailable.Error())
}

func TestMemoryCheckThresholds(t *testing.T) {
	check := NewMemoryCheck(100)
	for used, want := range map[uint64]Status{50: StatusHealthy, 75: StatusWarning, 90: StatusCritical} {
		check.read = func() (uint64, uint64) { return used, 100 }
		assert.Equal(t, want, check.Run(context.Background()).Status, "used=%d", used)
	}
}

func TestCPUCheckThresholds(t *testing.T) {
	check := NewCPUCheck()
	check.cores = 2
	base := time.Now()
	check.lastWall, check.lastCPU = base, 0

	check.sample = func() (time.Time, time.Duration) { return base.Add(time.Second), 1800 * time.Millisecond }
	assert.Equal(t, StatusCritical, check.Run(context.Background()).Status)

	check.sample = func() (time.Time, time.Duration) { return base.Add(2 * time.Second), 2000 * time.Millisecond }
	assert.Equal(t, StatusHealthy, check.Run(context.Background()).Status)
}

func TestErrorRateCheck(t *testing.T) {
	check := &ErrorRateCheck{}
	cases := map[float64]Status{0.005: StatusHealthy, 0.02: StatusWarning, 0.2: StatusCritical}
	for rate, want := range cases {
		check.counts = func() logging.LevelCounts { return logging.LevelCounts{Total: 1000, ErrorRate: rate} }
		assert.Equal(t, want, check.Run(context.Background()).Status, "rate=%v", rate)
	}
}

func TestCacheCheckRequiresSustainedSaturation(t *testing.T) {
	store := stores.NewTaggedStore(stores.Config{MaxEntries: 2, DefaultTTL: time.Minute}, nil)
	check := NewCacheCheck(store, 0.5, 5*time.Minute)
	now := time.Now()
	check.now = func() time.Time { return now }

	assert.Equal(t, StatusHealthy, check.Run(context.Background()).Status)

	store.Set("a", 1, 0)
	store.Set("b", 2, 0)
	store.Get("missing")

	assert.Equal(t, StatusHealthy, check.Run(context.Background()).Status, "saturation just started")

	now = now.Add(5 * time.Minute)
	assert.Equal(t, StatusWarning, check.Run(context.Background()).Status)

	for i := 0; i < 5; i++ {
		store.Get("a")
	}
	assert.Equal(t, StatusHealthy, check.Run(context.Background()).Status, "hit rate recovered")
}

func TestCacheCheckUsesRecentHitRate(t *testing.T) {
	store := stores.NewTaggedStore(stores.Config{MaxEntries: 2, DefaultTTL: time.Hour}, nil)
	check := NewCacheCheck(store, 0.5, 5*time.Minute)
	now := time.Now()
	check.now = func() time.Time { return now }

	store.Set("a", 1, 0)
	store.Set("b", 2, 0)
	for i := 0; i < 100; i++ {
		store.Get("a")
	}
	assert.Equal(t, StatusHealthy, check.Run(context.Background()).Status)

	for i := 0; i < 10; i++ {
		store.Get("missing")
	}
	assert.Equal(t, StatusHealthy, check.Run(context.Background()).Status, "saturation just started")

	now = now.Add(5 * time.Minute)
	for i := 0; i < 10; i++ {
		store.Get("missing")
	}
	assert.Greater(t, store.Stats().HitRate, 0.5, "lifetime rate still looks fine")
	result := check.Run(context.Background())
	assert.Equal(t, StatusWarning, result.Status)
	assert.Contains(t, result.Details, "recent hit rate 0.0%")
}

func TestBuildReport(t *testing.T) {
	report := BuildReport(SystemHealthStatus{
		Overall: OverallDegraded,
		Score:   73.3,
		Checks: []HealthCheckResult{
			{Component: "database", Status: StatusHealthy},
			{Component: "memory", Status: StatusWarning, Details: "80%"},
			{Component: "custom", Status: StatusCritical, Details: "down"},
		},
	})

	assert.Equal(t, OverallDegraded, report.Status)
	assert.Len(t, report.Issues, 2)
	assert.Contains(t, report.Issues[0], "memory is warning")
	assert.Len(t, report.Recommendations, 2)
	assert.Contains(t, report.Recommendations[1], "custom")
}
