// metrics.go — Prometheus метрики User Admin Module.
// Регистрирует: ua_http_requests_total, ua_http_request_duration_seconds,
// ua_callable_errors_total.
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
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ua_http_requests_total",
			Help: "Общее количество HTTP-запросов к User Admin Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ua_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к User Admin Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// callableErrorsTotal — ошибки callable-функций по видам.
	callableErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ua_callable_errors_total",
			Help: "Количество ошибок callable-функций по виду ошибки",
		},
		[]string{"function", "kind"},
	)
)

// callablePaths — известные callable-функции; прочие пути /v1/ в метриках
// схлопываются в /v1/{unknown}.
var callablePaths = map[string]bool{
	"/v1/createUserWithRole": true,
	"/v1/setUserStatus":      true,
	"/v1/setUserRole":        true,
	"/v1/whoami":             true,
}

// RecordCallableError учитывает ошибку callable-функции.
func RecordCallableError(function, kind string) {
	callableErrorsTotal.WithLabelValues(function, kind).Inc()
}

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newStatusRecorder(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// statusRecorder — обёртка для перехвата статус-кода.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath ограничивает кардинальность лейбла path.
func normalizePath(path string) string {
	switch {
	case path == "/health/live", path == "/health/ready", path == "/metrics":
		return path
	case callablePaths[path]:
		return path
	case strings.HasPrefix(path, "/v1/"):
		return "/v1/{unknown}"
	default:
		return "other"
	}
}
