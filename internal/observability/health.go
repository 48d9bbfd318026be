package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

var started = time.Now()

// Readiness states.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// HealthResponse is the liveness body.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ReadinessResponse is the readiness body. Degraded still answers 200.
type ReadinessResponse struct {
	Status      string                 `json:"status"`
	Definitions int                    `json:"definitions"`
	Sessions    int                    `json:"sessions"`
	Checks      map[string]CheckResult `json:"checks"`
}

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Status    string `json:"status"`
	Required  bool   `json:"required"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck calls f(ctx).
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// ReadinessChecks describes what the readiness endpoint inspects.
type ReadinessChecks struct {
	// Definitions counts the registered screen definitions. Zero, or a nil
	// func, is not ready.
	Definitions func() int
	// Sessions counts open screen sessions; reported only.
	Sessions func() int
	// Required checks make the service not ready when they fail.
	Required map[string]HealthChecker
	// Optional checks only degrade it. The lookup cache is one: lookups
	// still reach the backend without it.
	Optional map[string]HealthChecker
}

const checkTimeout = 2 * time.Second

// HandleHealth returns the liveness handler.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeHealthJSON(w, http.StatusOK, HealthResponse{
			Status:        "ok",
			Version:       Version,
			Commit:        Commit,
			UptimeSeconds: int64(time.Since(started).Seconds()),
		})
	}
}

// HandleReady returns the readiness handler. Dependency checks run
// concurrently, each bounded by checkTimeout.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := ReadinessResponse{
			Status: StatusReady,
			Checks: make(map[string]CheckResult, len(checks.Required)+len(checks.Optional)),
		}
		if checks.Definitions != nil {
			resp.Definitions = checks.Definitions()
		}
		if checks.Sessions != nil {
			resp.Sessions = checks.Sessions()
		}

		var mu sync.Mutex
		var wg sync.WaitGroup
		start := func(set map[string]HealthChecker, required bool) {
			for name, checker := range set {
				if checker == nil {
					continue
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					res := runCheck(r.Context(), checker)
					res.Required = required
					mu.Lock()
					resp.Checks[name] = res
					mu.Unlock()
				}()
			}
		}
		start(checks.Required, true)
		start(checks.Optional, false)
		wg.Wait()

		for _, res := range resp.Checks {
			if res.Status == "ok" {
				continue
			}
			if res.Required {
				resp.Status = StatusNotReady
				break
			}
			resp.Status = StatusDegraded
		}
		if resp.Definitions == 0 {
			resp.Status = StatusNotReady
		}

		code := http.StatusOK
		if resp.Status == StatusNotReady {
			code = http.StatusServiceUnavailable
		}
		writeHealthJSON(w, code, resp)
	}
}

func writeHealthJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// runCheck executes one check under its own timeout.
func runCheck(parent context.Context, checker HealthChecker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	begin := time.Now()
	err := checker.HealthCheck(ctx)
	res := CheckResult{Status: "ok", LatencyMs: time.Since(begin).Milliseconds()}
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	return res
}
