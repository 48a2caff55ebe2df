package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the health of one check or of the whole service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const defaultCheckTimeout = 5 * time.Second

// Check is a named dependency check. A failing critical check makes the
// service unhealthy and not ready; any other failure only degrades it.
type Check struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Run      func(context.Context) error
}

// CheckResult is the outcome of one Check.
type CheckResult struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration"`
}

// Report is the body served on /health.
type Report struct {
	Status  Status                 `json:"status"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime"`
	Checks  map[string]CheckResult `json:"checks"`
}

// Checker holds the registered checks and runs them concurrently.
type Checker struct {
	mu      sync.RWMutex
	checks  []Check
	version string
	started time.Time
}

// NewChecker returns a Checker with no checks; it reports healthy.
func NewChecker() *Checker {
	return &Checker{version: "dev", started: time.Now()}
}

var defaultChecker = NewChecker()

// Health returns the process-wide checker served by RegisterRoutes.
func Health() *Checker {
	return defaultChecker
}

// SetVersion sets the version reported by the process-wide checker.
func SetVersion(v string) {
	defaultChecker.SetVersion(v)
}

func (c *Checker) SetVersion(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = v
}

// Register adds check, replacing a previous check of the same name.
func (c *Checker) Register(check Check) {
	if check.Timeout <= 0 {
		check.Timeout = defaultCheckTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.checks {
		if c.checks[i].Name == check.Name {
			c.checks[i] = check
			return
		}
	}
	c.checks = append(c.checks, check)
}

// Run executes every check and folds the results into a Report.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := slices.Clone(c.checks)
	version := c.version
	c.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			results[i] = runCheck(ctx, check)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:  StatusHealthy,
		Version: version,
		Uptime:  time.Since(c.started).Round(time.Second).String(),
		Checks:  make(map[string]CheckResult, len(checks)),
	}
	for i, check := range checks {
		res := results[i]
		report.Checks[check.Name] = res
		switch {
		case res.Status == StatusHealthy:
		case check.Critical:
			report.Status = StatusUnhealthy
		case report.Status == StatusHealthy:
			report.Status = StatusDegraded
		}
	}
	return report
}

// runCheck gives up on a check that ignores its context once the timeout hits.
func runCheck(ctx context.Context, check Check) CheckResult {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- check.Run(cctx) }()

	var err error
	select {
	case err = <-done:
	case <-cctx.Done():
		err = cctx.Err()
	}

	res := CheckResult{Status: StatusHealthy, Duration: time.Since(start).Round(time.Microsecond).String()}
	if err != nil {
		res.Status = StatusDegraded
		if check.Critical {
			res.Status = StatusUnhealthy
		}
		res.Message = err.Error()
	}
	return res
}

// CredentialsCheck degrades the service when the model provider has no
// credential. Chat calls fail then; stats and exports keep working.
func CredentialsCheck(providerName string, set func() bool) Check {
	return Check{
		Name:    "model_credentials",
		Timeout: time.Second,
		Run: func(context.Context) error {
			if !set() {
				return fmt.Errorf("no credential for provider %s", providerName)
			}
			return nil
		},
	}
}

// Pinger is a stats backend that can report its connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsBackendCheck is critical: a chat call cannot be recorded without it.
func StatsBackendCheck(p Pinger) Check {
	return Check{Name: "stats_backend", Critical: true, Run: p.Ping}
}

// RegisterStatsBackend registers StatsBackendCheck when backend implements
// Pinger. In-process backends have nothing to probe and are skipped.
func (c *Checker) RegisterStatsBackend(backend any) bool {
	p, ok := backend.(Pinger)
	if ok {
		c.Register(StatsBackendCheck(p))
	}
	return ok
}

// Handler serves the full Report; 503 when unhealthy.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

// ReadinessHandler reports ready only while every check passes.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.Run(r.Context()).Status != StatusHealthy {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// LivenessHandler always answers while the process serves HTTP.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Health] encode response: %v", err)
	}
}
