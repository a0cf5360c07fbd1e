package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ma_http_requests_total",
			Help: "Общее количество HTTP-запросов к Moto Admin",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ma_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Moto Admin в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware считает запросы и их длительность по нормализованному пути.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)

			path := normalizePath(r.URL.Path)
			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath сводит путь к шаблону маршрута, чтобы id записей
// не раздували кардинальность: /api/v1/motos/cg-160/photos/1.jpg → /api/v1/motos/{id}/photos/{name}.
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/auth/login",
		"/api/v1/auth/logout",
		"/api/v1/auth/session",
		"/api/v1/editor",
		"/api/v1/motos",
		"/api/v1/catalog":
		return path
	}

	if rest, ok := strings.CutPrefix(path, "/api/v1/catalog/"); ok && rest != "" {
		return "/api/v1/catalog/{id}"
	}

	rest, ok := strings.CutPrefix(path, "/api/v1/motos/")
	if !ok || rest == "" {
		return "other"
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1:
		return "/api/v1/motos/{id}"
	case len(parts) == 2 && parts[1] == "status":
		return "/api/v1/motos/{id}/status"
	case len(parts) == 2 && parts[1] == "photos":
		return "/api/v1/motos/{id}/photos"
	case len(parts) == 3 && parts[1] == "photos":
		return "/api/v1/motos/{id}/photos/{name}"
	}
	return "other"
}
