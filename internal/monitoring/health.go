package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CheckStatus encodes the outcome of a health check.
type CheckStatus string

const (
	StatusUp       CheckStatus = "up"
	StatusDown     CheckStatus = "down"
	StatusDegraded CheckStatus = "degraded"
)

// Scope selects the endpoints a check is evaluated for. Scopes combine with |.
type Scope uint8

const (
	Liveness Scope = 1 << iota
	Readiness
)

const defaultCheckTimeout = 3 * time.Second

// CheckResult captures a single dependency check outcome.
type CheckResult struct {
	Component string        `json:"component"`
	Status    CheckStatus   `json:"status"`
	Critical  bool          `json:"critical"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport is the outcome of one evaluation. Success is false only when a
// critical check is not up; optional checks can at most degrade Status.
type HealthReport struct {
	Success bool          `json:"success"`
	Status  CheckStatus   `json:"status"`
	Checks  []CheckResult `json:"checks"`
}

// Check tests one dependency. Secrets cannot be created or read while a
// critical check fails; an optional check covers something with a fallback,
// such as Redis rate limiting or the redaction backlog.
type Check struct {
	Name     string
	Critical bool
	Run      func(ctx context.Context) CheckResult
}

// Critical builds a check whose failure takes the service out of rotation.
func Critical(name string, fn func(ctx context.Context) CheckResult) Check {
	return Check{Name: name, Critical: true, Run: fn}
}

// Optional builds a check whose failure only degrades the report.
func Optional(name string, fn func(ctx context.Context) CheckResult) Check {
	return Check{Name: name, Run: fn}
}

type registration struct {
	check Check
	scope Scope
}

// HealthManager runs registered checks concurrently, each under its own
// deadline. A check registered for several scopes runs once per evaluation.
type HealthManager struct {
	mu      sync.RWMutex
	checks  []registration
	timeout time.Duration
}

// HealthOption configures a HealthManager.
type HealthOption func(*HealthManager)

// WithCheckTimeout bounds each check. Non-positive values keep the default.
func WithCheckTimeout(timeout time.Duration) HealthOption {
	return func(m *HealthManager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// NewHealthManager returns a manager with no checks.
func NewHealthManager(opts ...HealthOption) *HealthManager {
	m := &HealthManager{timeout: defaultCheckTimeout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds check for scope. Registering the same name again widens its
// scope instead of adding a second copy.
func (m *HealthManager) Register(check Check, scope Scope) {
	if check.Name == "" || scope == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.checks {
		if m.checks[i].check.Name == check.Name {
			m.checks[i].scope |= scope
			return
		}
	}
	m.checks = append(m.checks, registration{check: check, scope: scope})
}

// Evaluate runs every check registered for any of the scopes in scope.
// Results keep registration order.
func (m *HealthManager) Evaluate(ctx context.Context, scope Scope) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.RLock()
	selected := make([]Check, 0, len(m.checks))
	for _, reg := range m.checks {
		if reg.scope&scope != 0 {
			selected = append(selected, reg.check)
		}
	}
	timeout := m.timeout
	m.mu.RUnlock()

	results := make([]CheckResult, len(selected))
	var wg sync.WaitGroup
	for i, check := range selected {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			results[i] = runCheck(checkCtx, check)
		}(i, check)
	}
	wg.Wait()

	return summarise(results)
}

func summarise(results []CheckResult) HealthReport {
	report := HealthReport{Success: true, Status: StatusUp, Checks: results}
	for _, r := range results {
		if r.Status == StatusUp {
			continue
		}
		if r.Critical {
			report.Success = false
		}
		if r.Critical && r.Status == StatusDown {
			report.Status = StatusDown
		} else if report.Status != StatusDown {
			report.Status = StatusDegraded
		}
	}
	return report
}

func runCheck(ctx context.Context, check Check) (result CheckResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = CheckResult{Status: StatusDown, Details: fmt.Sprint(rec)}
		}
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration <= 0 {
			result.Duration = time.Since(start)
		}
		result.Component = check.Name
		result.Critical = check.Critical
	}()

	if check.Run == nil {
		return CheckResult{Status: StatusDown, Details: "check not implemented"}
	}
	return check.Run(ctx)
}

// FromError maps err to a result timed from start. A check that ran out of
// time is degraded rather than down.
func FromError(err error, start time.Time) CheckResult {
	elapsed := time.Since(start)
	if err == nil {
		return CheckResult{Status: StatusUp, Duration: elapsed}
	}

	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}
	return CheckResult{Status: status, Details: err.Error(), Duration: elapsed}
}
