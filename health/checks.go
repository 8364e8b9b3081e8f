package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/eventops/dlq"
	"github.com/jonwraymond/eventops/resilience"
)

// BreakerChecker reports the health of a circuit breaker.
// An open circuit is unhealthy, a half-open circuit is degraded.
type BreakerChecker struct {
	name    string
	breaker *resilience.CircuitBreaker
}

// NewBreakerChecker creates a checker for the given circuit breaker.
func NewBreakerChecker(name string, breaker *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: breaker}
}

// Name returns the name of this checker.
func (c *BreakerChecker) Name() string {
	return c.name
}

// Check reports the breaker state.
func (c *BreakerChecker) Check(ctx context.Context) Result {
	m := c.breaker.Metrics()
	details := map[string]any{
		"state":    m.State.String(),
		"failures": m.Failures,
	}

	switch m.State {
	case resilience.StateOpen:
		return Unhealthy(fmt.Sprintf("circuit %q is open", m.Name), resilience.ErrCircuitOpen).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded(fmt.Sprintf("circuit %q is half-open", m.Name)).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("circuit %q is closed", m.Name)).WithDetails(details)
	}
}

// BudgetChecker reports the health of an error budget.
// A burn rate violation is unhealthy, a missed SLO target is degraded.
type BudgetChecker struct {
	name    string
	monitor *resilience.ErrorBudgetMonitor
}

// NewBudgetChecker creates a checker for the given error budget monitor.
func NewBudgetChecker(name string, monitor *resilience.ErrorBudgetMonitor) *BudgetChecker {
	return &BudgetChecker{name: name, monitor: monitor}
}

// Name returns the name of this checker.
func (c *BudgetChecker) Name() string {
	return c.name
}

// Check reports budget consumption and compliance.
func (c *BudgetChecker) Check(ctx context.Context) Result {
	m := c.monitor.Metrics()
	details := map[string]any{
		"success_rate":     m.SuccessRate,
		"budget_remaining": m.ErrorBudgetRemaining,
		"burn_rate":        m.BurnRate,
	}

	switch {
	case m.Violation:
		return Unhealthy(fmt.Sprintf("error budget burn rate %.2f exceeds threshold", m.BurnRate), nil).WithDetails(details)
	case !m.SLOCompliance:
		return Degraded(fmt.Sprintf("success rate %.4f below SLO target", m.SuccessRate)).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("success rate %.4f within SLO target", m.SuccessRate)).WithDetails(details)
	}
}

// DLQChecker reports the depth of a dead letter queue.
// Depth at or above the threshold is degraded; the queue holding
// events is expected during normal operation, so it never reports
// unhealthy on its own.
type DLQChecker struct {
	name      string
	store     *dlq.Store
	threshold int
}

// NewDLQChecker creates a checker that degrades when the store holds
// threshold or more entries. A threshold of zero or less defaults to 1.
func NewDLQChecker(name string, store *dlq.Store, threshold int) *DLQChecker {
	if threshold <= 0 {
		threshold = 1
	}
	return &DLQChecker{name: name, store: store, threshold: threshold}
}

// Name returns the name of this checker.
func (c *DLQChecker) Name() string {
	return c.name
}

// Check reports the queue depth.
func (c *DLQChecker) Check(ctx context.Context) Result {
	depth := c.store.Len()
	details := map[string]any{
		"depth":     depth,
		"threshold": c.threshold,
	}

	if depth >= c.threshold {
		return Degraded(fmt.Sprintf("dead letter queue holds %d events", depth)).WithDetails(details)
	}
	return Healthy("dead letter queue below threshold").WithDetails(details)
}
