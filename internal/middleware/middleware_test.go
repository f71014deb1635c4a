package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/medassist/med-ai/backend/internal/ratelimit"
	"github.com/medassist/med-ai/backend/internal/store"
)

func TestClientIDResolution(t *testing.T) {
	cases := []struct {
		name      string
		forwarded string
		realIP    string
		want      string
	}{
		{"forwarded single", "1.2.3.4", "", "1.2.3.4"},
		{"forwarded chain", " 1.2.3.4 , 5.6.7.8", "9.9.9.9", "1.2.3.4"},
		{"real ip fallback", "", " 5.6.7.8 ", "5.6.7.8"},
		{"no headers", "", "", "unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.forwarded != "" {
				req.Header.Set("x-forwarded-for", tc.forwarded)
			}
			if tc.realIP != "" {
				req.Header.Set("x-real-ip", tc.realIP)
			}
			if got := ClientID(req); got != tc.want {
				t.Fatalf("ClientID = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRateLimitMiddlewareDeniesPost(t *testing.T) {
	limiter := ratelimit.New(store.NewMemory(), 1, time.Minute)
	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("x-real-ip", "1.2.3.4")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp
	}

	if resp := post(); resp.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", resp.Code)
	}
	resp := post()
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") == "" {
		t.Fatal("denial must carry Retry-After")
	}

	// GET requests bypass the edge limiter.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-real-ip", "1.2.3.4")
	getResp := httptest.NewRecorder()
	handler.ServeHTTP(getResp, req)
	if getResp.Code != http.StatusOK {
		t.Fatalf("GET must bypass edge limiter, got %d", getResp.Code)
	}
}
