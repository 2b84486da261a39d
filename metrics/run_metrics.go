package metrics

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Pipeline stages
const (
	StageScan    = "scan"
	StageExtract = "extract"
	StageSplit   = "split"
	StageUpload  = "upload"
)

// RunMetrics tracks timing for the stages of one extraction run
type RunMetrics struct {
	RunID         string
	StartTime     time.Time
	TotalDuration time.Duration

	order   []string
	started map[string]time.Time
	timings map[string]time.Duration
	logger  *log.Logger
	mu      sync.Mutex
}

// NewRunMetrics creates a new metrics instance. A nil logger uses log.Default().
func NewRunMetrics(runID string, logger *log.Logger) *RunMetrics {
	if logger == nil {
		logger = log.Default()
	}
	return &RunMetrics{
		RunID:     runID,
		StartTime: time.Now(),
		started:   make(map[string]time.Time),
		timings:   make(map[string]time.Duration),
		logger:    logger,
	}
}

// Start marks the start of a stage
func (m *RunMetrics) Start(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.started[stage]; !seen {
		m.order = append(m.order, stage)
	}
	m.started[stage] = time.Now()
}

// End marks the end of a stage. Ending a stage that never started is a no-op.
func (m *RunMetrics) End(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start, ok := m.started[stage]
	if !ok {
		return
	}
	m.timings[stage] = time.Since(start)
	m.logger.Printf("[Metrics] Run %s: %s completed in %v", m.RunID, stage, m.timings[stage])
}

// Duration returns how long a finished stage took
func (m *RunMetrics) Duration(stage string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timings[stage]
}

// Timings returns finished stage durations in seconds, keyed by stage
func (m *RunMetrics) Timings() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.timings)+1)
	for stage, d := range m.timings {
		out[stage] = d.Seconds()
	}
	if m.TotalDuration > 0 {
		out["total"] = m.TotalDuration.Seconds()
	}
	return out
}

// Finalize calculates total duration and logs summary
func (m *RunMetrics) Finalize() {
	m.mu.Lock()
	m.TotalDuration = time.Since(m.StartTime)
	m.mu.Unlock()
	m.logger.Printf("[Metrics] Run %s: %s", m.RunID, strings.ReplaceAll(strings.TrimSpace(m.GetSummary()), "\n", ","))
}

// GetSummary returns a formatted summary of all metrics
func (m *RunMetrics) GetSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Total: %v\n", m.TotalDuration)
	for _, stage := range m.order {
		if d, ok := m.timings[stage]; ok {
			fmt.Fprintf(&b, " %s: %v\n", stage, d)
		}
	}
	return b.String()
}

// MetricsCollector keeps metrics for recent runs
type MetricsCollector struct {
	metrics map[string]*RunMetrics
	logger  *log.Logger
	mu      sync.RWMutex
}

// NewMetricsCollector creates a new metrics collector. A nil logger uses log.Default().
func NewMetricsCollector(logger *log.Logger) *MetricsCollector {
	if logger == nil {
		logger = log.Default()
	}
	return &MetricsCollector{
		metrics: make(map[string]*RunMetrics),
		logger:  logger,
	}
}

// StartRun creates metrics for a new run that log to logger, or to the
// collector's logger when nil.
func (c *MetricsCollector) StartRun(runID string, logger *log.Logger) *RunMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	if logger == nil {
		logger = c.logger
	}
	m := NewRunMetrics(runID, logger)
	c.metrics[runID] = m
	return m
}

// GetMetrics retrieves metrics for a run
func (c *MetricsCollector) GetMetrics(runID string) *RunMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metrics[runID]
}

// CleanupOldMetrics removes metrics older than the specified duration
func (c *MetricsCollector) CleanupOldMetrics(maxAge time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for runID, m := range c.metrics {
		if now.Sub(m.StartTime) > maxAge {
			delete(c.metrics, runID)
			c.logger.Printf("[Metrics] Cleaned up old metrics for run %s", runID)
		}
	}
}
