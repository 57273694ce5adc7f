package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID_Generated(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/whoami", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("ожидался UUID, получен %q", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("заголовок %s = %q, ожидается %q", RequestIDHeader, got, seen)
	}
}

func TestRequestID_FromClient(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/whoami", nil)
	req.Header.Set(RequestIDHeader, "client-id-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "client-id-1" {
		t.Errorf("ожидался client-id-1, получен %q", seen)
	}
	if rec.Header().Get(RequestIDHeader) != "client-id-1" {
		t.Errorf("заголовок ответа = %q", rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusForbidden, "level=WARN"},
		{http.StatusInternalServerError, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			handler := RequestID()(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("ok"))
			})))

			req := httptest.NewRequest(http.MethodPost, "/v1/setUserRole", nil)
			req.Header.Set(RequestIDHeader, "rid-42")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			out := buf.String()
			if !strings.Contains(out, tt.level) {
				t.Errorf("ожидался %s, лог: %s", tt.level, out)
			}
			if !strings.Contains(out, "request_id=rid-42") {
				t.Errorf("в логе нет request_id: %s", out)
			}
			if !strings.Contains(out, "bytes=2") {
				t.Errorf("в логе нет размера ответа: %s", out)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/v1/createUserWithRole", "/v1/createUserWithRole"},
		{"/v1/setUserStatus", "/v1/setUserStatus"},
		{"/v1/setUserRole", "/v1/setUserRole"},
		{"/v1/whoami", "/v1/whoami"},
		{"/v1/deleteEverything", "/v1/{unknown}"},
		{"/health/live", "/health/live"},
		{"/health/ready", "/health/ready"},
		{"/metrics", "/metrics"},
		{"/wp-admin", "other"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, ожидается %q", tt.path, got, tt.want)
		}
	}
}

func TestMetricsMiddleware_PassesStatus(t *testing.T) {
	handler := MetricsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/createUserWithRole", nil))

	if rec.Code != http.StatusConflict {
		t.Errorf("ожидался статус 409, получен %d", rec.Code)
	}
}

func TestRequestIDHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRequestIDHandler(slog.NewTextHandler(&buf, nil))).
		With(slog.String("component", "test"))

	ctx := context.WithValue(context.Background(), ContextKeyRequestID, "rid-7")
	logger.WarnContext(ctx, "Callable error", slog.String("function", "whoami"))

	out := buf.String()
	if !strings.Contains(out, "request_id=rid-7") || !strings.Contains(out, "component=test") {
		t.Errorf("в логе нет request_id или атрибутов логгера: %s", out)
	}

	buf.Reset()
	logger.Info("без контекста запроса")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("request_id без контекста запроса: %s", buf.String())
	}
}

func TestRequestIDHandler_NoDuplicate(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRequestIDHandler(slog.NewTextHandler(&buf, nil)))

	ctx := context.WithValue(context.Background(), ContextKeyRequestID, "rid-8")
	logger.InfoContext(ctx, "HTTP запрос", slog.String("request_id", "rid-8"))

	if n := strings.Count(buf.String(), "request_id="); n != 1 {
		t.Errorf("request_id встречается %d раз: %s", n, buf.String())
	}
}
