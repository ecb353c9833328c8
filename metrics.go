package ridinglookup

import (
	"sort"
	"sync"
	"time"
)

// Metrics tracks job execution latency and outcomes across processing passes.
type Metrics struct {
	mu sync.RWMutex

	Processed   int64
	Succeeded   int64
	Failed      int64
	DeadLetters int64

	TotalJobTime      time.Duration
	AverageJobLatency time.Duration
	P95JobLatency     time.Duration
	P99JobLatency     time.Duration

	// Sliding window of the most recent execution durations.
	latencies  []time.Duration
	windowSize int
}

func NewMetrics() *Metrics {
	return &Metrics{
		latencies:  make([]time.Duration, 0, 1000),
		windowSize: 1000,
	}
}

func (m *Metrics) recordJobExecution(duration time.Duration, success, deadLettered bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Processed++
	m.TotalJobTime += duration

	if success {
		m.Succeeded++
	} else {
		m.Failed++
	}
	if deadLettered {
		m.DeadLetters++
	}

	m.updateLatencyPercentiles(duration)
}

func (m *Metrics) updateLatencyPercentiles(duration time.Duration) {
	m.AverageJobLatency = m.TotalJobTime / time.Duration(m.Processed)

	m.latencies = append(m.latencies, duration)
	if len(m.latencies) > m.windowSize {
		m.latencies = m.latencies[1:]
	}

	sorted := append([]time.Duration(nil), m.latencies...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	p95Index := min(int(float64(len(sorted))*0.95), len(sorted)-1)
	p99Index := min(int(float64(len(sorted))*0.99), len(sorted)-1)

	m.P95JobLatency = sorted[p95Index]
	m.P99JobLatency = sorted[p99Index]
}

// ExportMetrics returns a JSON-friendly snapshot, latencies in milliseconds.
func (m *Metrics) ExportMetrics() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	successRate := 0.0
	if m.Processed > 0 {
		successRate = float64(m.Succeeded) / float64(m.Processed) * 100
	}

	return map[string]any{
		"processed":    m.Processed,
		"succeeded":    m.Succeeded,
		"failed":       m.Failed,
		"dead_letters": m.DeadLetters,
		"success_rate": successRate,
		"avg_latency":  m.AverageJobLatency.Milliseconds(),
		"p95_latency":  m.P95JobLatency.Milliseconds(),
		"p99_latency":  m.P99JobLatency.Milliseconds(),
	}
}
