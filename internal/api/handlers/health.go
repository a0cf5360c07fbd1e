// health.go — /health/live, /health/ready и /metrics.
package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danilomotos/moto-admin/internal/config"
)

const serviceName = "moto-admin"

// Статусы проверок готовности.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — проверка одной зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает "ok", "degraded" или "fail" и пояснение.
	CheckReady() (status string, message string)
}

type namedCheck struct {
	name    string
	checker ReadinessChecker
}

// HealthHandler — health endpoints и метрики.
type HealthHandler struct {
	checks  []namedCheck
	metrics http.Handler
}

// NewHealthHandler создаёт обработчик. Checker, равный nil, всегда даёт "fail".
func NewHealthHandler(pgChecker, workerChecker, authChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		checks: []namedCheck{
			{"postgresql", pgChecker},
			{"photo_worker", workerChecker},
			{"auth", authChecker},
		},
		metrics: promhttp.Handler(),
	}
}

type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type healthReadyResponse struct {
	healthLiveResponse
	Checks map[string]healthCheckResult `json:"checks"`
}

func liveResponse(status string) healthLiveResponse {
	return healthLiveResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}
}

// HealthLive — процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, liveResponse(statusOK))
}

// HealthReady опрашивает зависимости параллельно.
// 200 для ok/degraded, 503 для fail.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	results := make([]healthCheckResult, len(h.checks))
	var wg sync.WaitGroup
	for i, c := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = check(c.checker)
		}()
	}
	wg.Wait()

	checks := make(map[string]healthCheckResult, len(h.checks))
	statuses := make([]string, len(results))
	for i, res := range results {
		checks[h.checks[i].name] = res
		statuses[i] = res.Status
	}

	resp := healthReadyResponse{
		healthLiveResponse: liveResponse(overallStatus(statuses...)),
		Checks:             checks,
	}
	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetMetrics отдаёт метрики Prometheus.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

func check(c ReadinessChecker) healthCheckResult {
	if c == nil {
		return healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}
	status, msg := c.CheckReady()
	return healthCheckResult{Status: status, Message: msg}
}

// overallStatus: любой fail — fail, иначе любой degraded — degraded.
func overallStatus(statuses ...string) string {
	result := statusOK
	for _, s := range statuses {
		switch s {
		case statusFail:
			return statusFail
		case statusDegraded:
			result = statusDegraded
		}
	}
	return result
}
