package resilience

import (
	"sync"
	"time"
)

// ErrorBudgetConfig configures the error budget monitor.
type ErrorBudgetConfig struct {
	// SLOTarget is the required success rate in (0, 1].
	// Default: 0.99
	SLOTarget float64

	// Window is how long an outcome stays in the rolling counts.
	// Default: 1 hour
	Window time.Duration

	// BurnRateThreshold is the normalized daily burn rate above which the
	// budget is considered violated.
	// Default: 1.0 (budget fully spent within a day at current pace)
	BurnRateThreshold float64
}

// ErrorBudgetMonitor tracks rolling success/failure counts against an SLO
// target. It performs no I/O and never blocks; every read recomputes rates
// from the live window.
type ErrorBudgetMonitor struct {
	config ErrorBudgetConfig

	mu       sync.Mutex
	outcomes []outcome
}

type outcome struct {
	at      time.Time
	success bool
}

// NewErrorBudgetMonitor creates a new monitor.
func NewErrorBudgetMonitor(config ErrorBudgetConfig) *ErrorBudgetMonitor {
	// Apply defaults
	if config.SLOTarget <= 0 || config.SLOTarget > 1 {
		config.SLOTarget = 0.99
	}
	if config.Window <= 0 {
		config.Window = time.Hour
	}
	if config.BurnRateThreshold <= 0 {
		config.BurnRateThreshold = 1.0
	}

	return &ErrorBudgetMonitor{config: config}
}

// RecordRequest appends one outcome to the rolling window.
func (m *ErrorBudgetMonitor) RecordRequest(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked(time.Now())
	m.outcomes = append(m.outcomes, outcome{at: time.Now(), success: success})
}

// pruneLocked ages out entries older than the window. Outcomes are appended
// in time order, so the expired prefix is contiguous.
func (m *ErrorBudgetMonitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-m.config.Window)
	i := 0
	for i < len(m.outcomes) && m.outcomes[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.outcomes = append(m.outcomes[:0], m.outcomes[i:]...)
	}
}

// ErrorBudgetMetrics is a point-in-time view of budget consumption.
type ErrorBudgetMetrics struct {
	SuccessCount         int
	TotalCount           int
	SuccessRate          float64
	ErrorBudgetConsumed  float64
	ErrorBudgetRemaining float64
	BurnRate             float64
	SLOCompliance        bool
	Violation            bool
}

// Metrics recomputes budget state from the current window contents.
func (m *ErrorBudgetMonitor) Metrics() ErrorBudgetMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked(time.Now())

	total := len(m.outcomes)
	successes := 0
	for _, o := range m.outcomes {
		if o.success {
			successes++
		}
	}

	// An empty window is a fully healthy one.
	successRate := 1.0
	if total > 0 {
		successRate = float64(successes) / float64(total)
	}

	consumed := 0.0
	if m.config.SLOTarget < 1 {
		consumed = (1 - successRate) / (1 - m.config.SLOTarget)
	} else if successRate < 1 {
		// A 100% SLO has no budget at all; any failure fully consumes it.
		consumed = 1
	}

	remaining := 1 - consumed
	if remaining < 0 {
		remaining = 0
	}

	burnRate := consumed * (24 * time.Hour).Hours() / m.config.Window.Hours()

	return ErrorBudgetMetrics{
		SuccessCount:         successes,
		TotalCount:           total,
		SuccessRate:          successRate,
		ErrorBudgetConsumed:  consumed,
		ErrorBudgetRemaining: remaining,
		BurnRate:             burnRate,
		SLOCompliance:        successRate >= m.config.SLOTarget,
		Violation:            burnRate > m.config.BurnRateThreshold,
	}
}

// Config returns the monitor configuration.
func (m *ErrorBudgetMonitor) Config() ErrorBudgetConfig {
	return m.config
}
