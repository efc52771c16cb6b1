package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-tweet-bot/internal/traffic"
)

func TestCorrelationIDMiddlewareGeneratesID(t *testing.T) {
	var gotCtxID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Context().Value("correlation_id"); v != nil {
			gotCtxID = v.(string)
		}
		if _, ok := r.Context().Value("logger").(*zap.Logger); !ok {
			t.Error("logger missing from request context")
		}
	})

	handler := CorrelationIDMiddleware(zap.NewNop())(next)
	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	headerID := rec.Header().Get("X-Correlation-ID")
	if headerID == "" {
		t.Fatal("X-Correlation-ID header not set")
	}
	if gotCtxID != headerID {
		t.Errorf("context id %q != header id %q", gotCtxID, headerID)
	}
}

func TestCorrelationIDMiddlewarePreservesIncomingID(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	handler := CorrelationIDMiddleware(zap.NewNop())(next)
	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	req.Header.Set("X-Correlation-ID", "upstream-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != "upstream-id" {
		t.Errorf("X-Correlation-ID = %q, want upstream-id", got)
	}
}

func TestMetricsMiddlewarePassesThrough(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	handler := MetricsMiddleware(next)
	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("next handler not called")
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
	if n := InFlightCount(); n != 0 {
		t.Errorf("in-flight count = %d after request completed, want 0", n)
	}
}

func TestGetRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/run", "/run"},
		{"/status", "/status"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/unknown", "other"},
		{"/run/extra", "other"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if got := getRoute(req); got != tt.want {
			t.Errorf("getRoute(%s) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestTimeoutMiddlewareSetsDeadline(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		if !ok {
			t.Fatal("expected a deadline on the request context")
		}
		if time.Until(deadline) > time.Second {
			t.Errorf("deadline too far in the future: %v", time.Until(deadline))
		}
	})

	handler := TimeoutMiddleware(500 * time.Millisecond)(next)
	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestRateLimitMiddlewareDenies(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	handler := RateLimitMiddleware(limiter)(next)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/run", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/run", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "RATE_LIMITED" {
		t.Errorf("code = %s, want RATE_LIMITED", resp.Error.Code)
	}

	if got := traffic.DenialCount(time.Minute); got != 1 {
		t.Errorf("denial count = %d, want 1", got)
	}
}

func TestRateLimitMiddlewareNilLimiterPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := RateLimitMiddleware(nil)(next)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{404, "4xx"},
		{502, "5xx"},
	}

	for _, tt := range tests {
		if got := statusCodeString(tt.code); got != tt.want {
			t.Errorf("statusCodeString(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}
