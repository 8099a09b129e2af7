package metrics

import (
	"runtime"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
)

// ResourceSnapshot is the process state captured at either end of an operation.
type ResourceSnapshot struct {
	HeapAllocBytes uint64
	CPUTime        time.Duration
}

// TakeSnapshot reads the current heap allocation and process CPU time.
func TakeSnapshot() ResourceSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return ResourceSnapshot{
		HeapAllocBytes: memStats.HeapAlloc,
		CPUTime:        processCPUTime(),
	}
}

// Marker measures a single in-flight operation.
type Marker struct {
	Route     string
	Method    string
	StartTime time.Time
	start     ResourceSnapshot
	completed bool
}

// Complete builds the sample for the finished operation from the resource
// delta between start and end. A marker completes once; later calls return false.
func (m *Marker) Complete(statusCode int, now time.Time, end ResourceSnapshot) (telemetry.MetricSample, bool) {
	if m == nil || m.completed {
		return telemetry.MetricSample{}, false
	}
	m.completed = true

	cpu := end.CPUTime - m.start.CPUTime
	if cpu < 0 {
		cpu = 0
	}

	return telemetry.MetricSample{
		ID:             ulid.Make().String(),
		Route:          m.Route,
		Method:         m.Method,
		ResponseTimeMs: float64(now.Sub(m.StartTime).Microseconds()) / 1000,
		StatusCode:     statusCode,
		MemoryMB:       (float64(end.HeapAllocBytes) - float64(m.start.HeapAllocBytes)) / (1024 * 1024),
		CPUMs:          float64(cpu.Microseconds()) / 1000,
		Timestamp:      now.UTC(),
	}, true
}
