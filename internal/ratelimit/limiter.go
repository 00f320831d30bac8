// Package ratelimit tracks per-service call budgets over fixed time
// windows. The limiter is process-wide shared state: every job's
// coordinator acquires from the same budgets, so two concurrently
// active jobs cannot jointly exceed a service's quota.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Unbounded marks a denial with no reset time, returned for services
// with a zero or missing budget. It signals misconfiguration rather
// than silently proceeding.
const Unbounded = time.Duration(-1)

// Denial is not an error in the failure sense; it is a scheduling
// signal telling the caller how long to back off before retrying.
type Denial struct {
	Service    string
	RetryAfter time.Duration
}

func (d *Denial) Error() string {
	if d.Unbounded() {
		return fmt.Sprintf("rate limit: service %q has no budget configured", d.Service)
	}
	return fmt.Sprintf("rate limit: service %q exhausted, retry after %s", d.Service, d.RetryAfter)
}

// Unbounded reports whether the denial carries no reset time.
func (d *Denial) Unbounded() bool { return d.RetryAfter < 0 }

// Budget is the per-service quota: MaxCalls per Window.
type Budget struct {
	Window   time.Duration
	MaxCalls int
}

type window struct {
	start time.Time
	used  int
}

// Limiter gates outbound calls to each external service independently.
// Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	budgets map[string]Budget
	windows map[string]*window

	now func() time.Time
}

func New() *Limiter {
	return &Limiter{
		budgets: make(map[string]Budget),
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// SetBudget configures or replaces a service's quota. The service's
// current window restarts on the next Acquire.
func (l *Limiter) SetBudget(service string, b Budget) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.budgets[service] = b
	delete(l.windows, service)
}

// Acquire requests permission for one outbound call to service. It
// returns nil and consumes one call from the window, or a *Denial with
// the duration until the window resets. It never blocks; callers must
// not attempt the call on denial.
func (l *Limiter) Acquire(service string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.budgets[service]
	if !ok || b.MaxCalls <= 0 || b.Window <= 0 {
		return &Denial{Service: service, RetryAfter: Unbounded}
	}

	now := l.now()
	w := l.windows[service]
	if w == nil || !now.Before(w.start.Add(b.Window)) {
		w = &window{start: now}
		l.windows[service] = w
	}
	if w.used >= b.MaxCalls {
		return &Denial{Service: service, RetryAfter: w.start.Add(b.Window).Sub(now)}
	}
	w.used++
	return nil
}

// Remaining returns how many calls are left in the service's current
// window. For progress/diagnostic display only; do not use it to gate
// calls, Acquire is the authoritative check.
func (l *Limiter) Remaining(service string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.budgets[service]
	if !ok {
		return 0
	}
	w := l.windows[service]
	if w == nil || !l.now().Before(w.start.Add(b.Window)) {
		return b.MaxCalls
	}
	return b.MaxCalls - w.used
}
