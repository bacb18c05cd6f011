package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
	defaultCheckTimeout  = 3 * time.Second
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// HealthHandlers serves /healthz and /readyz.
type HealthHandlers struct {
	build        BuildInfo
	now          func() time.Time
	checks       map[string]HealthCheck
	checkTimeout time.Duration
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo sets the build metadata reported by both endpoints.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock used for uptime and timestamps.
func WithHealthClock(now func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if now != nil {
			h.now = now
		}
	}
}

// WithHealthCheck registers a readiness check under name.
func WithHealthCheck(name string, check HealthCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && check != nil {
			h.checks[name] = check
		}
	}
}

// NewHealthHandlers constructs health handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		now:          time.Now,
		checks:       make(map[string]HealthCheck),
		checkTimeout: defaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now()
	}
	return h
}

type healthResponse struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version,omitempty"`
	CommitSHA   string                 `json:"commitSha,omitempty"`
	Environment string                 `json:"environment,omitempty"`
	Uptime      string                 `json:"uptime"`
	Timestamp   string                 `json:"timestamp"`
	Checks      map[string]checkResult `json:"checks,omitempty"`
	Details     []string               `json:"details,omitempty"`
}

type checkResult struct {
	Status  string `json:"status"`
	Latency string `json:"latency"`
	Error   string `json:"error,omitempty"`
}

// Healthz reports liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	setNoStore(w)
	writeJSONResponse(w, http.StatusOK, h.baseResponse(healthStatusOK))
}

// Readyz runs every registered check concurrently and answers 503 when any fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]checkResult, len(h.checks))
	)
	for name, check := range h.checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()
			started := time.Now()
			err := check(ctx)
			res := checkResult{Status: healthStatusOK, Latency: time.Since(started).String()}
			if err != nil {
				res.Status = healthStatusDegraded
				res.Error = err.Error()
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	resp := h.baseResponse(healthStatusOK)
	resp.Checks = results
	for name, res := range results {
		if res.Status != healthStatusOK {
			resp.Details = append(resp.Details, name+": "+res.Error)
		}
	}
	sort.Strings(resp.Details)

	status := http.StatusOK
	if len(resp.Details) > 0 {
		resp.Status = healthStatusDegraded
		status = http.StatusServiceUnavailable
	}
	setNoStore(w)
	writeJSONResponse(w, status, resp)
}

func (h *HealthHandlers) baseResponse(status string) healthResponse {
	now := h.now()
	return healthResponse{
		Status:      status,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Truncate(time.Second).String(),
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
}
