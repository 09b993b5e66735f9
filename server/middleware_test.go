package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name                      string
		username, password, token string
		reqUser, reqPass, reqTok  string
		want                      int
	}{
		{name: "no auth configured", want: http.StatusOK},
		{name: "valid basic auth", username: "admin", password: "s3cret", reqUser: "admin", reqPass: "s3cret", want: http.StatusOK},
		{name: "wrong user", username: "admin", password: "s3cret", reqUser: "root", reqPass: "s3cret", want: http.StatusUnauthorized},
		{name: "wrong password", username: "admin", password: "s3cret", reqUser: "admin", reqPass: "nope", want: http.StatusUnauthorized},
		{name: "no credentials", token: "tok", want: http.StatusUnauthorized},
		{name: "valid token", token: "tok", reqTok: "tok", want: http.StatusOK},
		{name: "wrong token", token: "tok", reqTok: "bad", want: http.StatusUnauthorized},
		{name: "token wins over bad basic auth", username: "admin", password: "s3cret", token: "tok", reqTok: "tok", reqUser: "x", reqPass: "y", want: http.StatusOK},
		{name: "password alone does not enable auth", password: "s3cret", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := adminAuth(okHandler(), newAuthConfig(tt.username, tt.password, tt.token))
			req := httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
			if tt.reqUser != "" || tt.reqPass != "" {
				req.SetBasicAuth(tt.reqUser, tt.reqPass)
			}
			if tt.reqTok != "" {
				req.Header.Set("X-Admin-Token", tt.reqTok)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if rr.Code == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate on 401")
			}
		})
	}
}

func TestRateLimiterWindow(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{enabled: true, requestsPerIP: 3, window: 100 * time.Millisecond})

	for i := 0; i < 3; i++ {
		if !limiter.allow("192.0.2.1") {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	if limiter.allow("192.0.2.1") {
		t.Fatal("4th request allowed")
	}
	if !limiter.allow("192.0.2.2") {
		t.Error("other IP rejected")
	}

	time.Sleep(150 * time.Millisecond)
	if !limiter.allow("192.0.2.1") {
		t.Error("request after window rejected")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{enabled: false, requestsPerIP: 1, window: time.Minute})
	for i := 0; i < 10; i++ {
		if !limiter.allow("192.0.2.1") {
			t.Fatalf("request %d rejected with limiter disabled", i+1)
		}
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := &ipRateLimiter{visitors: map[string]*visitor{}, cfg: &rateLimiterConfig{enabled: true, requestsPerIP: 1, window: time.Minute}}
	limiter.visitors["stale"] = &visitor{lastClean: time.Now().Add(-time.Hour)}
	limiter.visitors["fresh"] = &visitor{lastClean: time.Now()}
	limiter.cleanup()
	if _, ok := limiter.visitors["stale"]; ok {
		t.Error("stale visitor kept")
	}
	if _, ok := limiter.visitors["fresh"]; !ok {
		t.Error("fresh visitor dropped")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name, remote, forwarded, want string
	}{
		{"ipv4 with port", "192.0.2.1:1234", "", "192.0.2.1"},
		{"ipv6 with port", "[2001:db8::1]:1234", "", "2001:db8::1"},
		{"forwarded ipv4", "10.0.0.1:80", "198.51.100.7", "198.51.100.7"},
		{"forwarded chain takes first", "10.0.0.1:80", "198.51.100.7, 10.0.0.2", "198.51.100.7"},
		{"forwarded ipv6 without port", "10.0.0.1:80", "2001:db8::42", "2001:db8::42"},
		{"bracketed ipv6 without port", "[2001:db8::9]", "", "2001:db8::9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{enabled: true, requestsPerIP: 2, window: time.Minute})
	h := rateLimitMiddleware(okHandler(), limiter)

	// Differing source ports count as the same client.
	ports := []string{"1111", "2222", "3333"}
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i, port := range ports {
		req := httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
		req.RemoteAddr = "[2001:db8::1]:" + port
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != want[i] {
			t.Errorf("request %d: status = %d, want %d", i+1, rr.Code, want[i])
		}
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") != "60" {
			t.Errorf("Retry-After = %q", rr.Header().Get("Retry-After"))
		}
	}
}

func TestWithCORSConfig(t *testing.T) {
	tests := []struct {
		name        string
		permissive  bool
		origins     []string
		origin      string
		wantAllow   string
		wantCredits bool
	}{
		{"permissive allows all", true, nil, "https://example.com", "*", false},
		{"restricted exact match", false, []string{"https://example.com", "https://app.example.com"}, "https://example.com", "https://example.com", true},
		{"restricted mismatch", false, []string{"https://example.com"}, "https://evil.com", "", false},
		{"wildcard subdomain", false, []string{"*.example.com"}, "https://app.example.com", "https://app.example.com", true},
		{"restricted without origin header", false, []string{"https://example.com"}, "", "", false},
		{"blank configured origins ignored", false, []string{" ", ""}, "https://example.com", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := withCORSConfig(okHandler(), newCORSConfig(tt.permissive, tt.origins))
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if got := rr.Header().Get("Access-Control-Allow-Credentials") == "true"; got != tt.wantCredits {
				t.Errorf("Allow-Credentials = %v, want %v", got, tt.wantCredits)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := withCORSConfig(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler called for OPTIONS")
	}), newCORSConfig(true, nil))

	req := httptest.NewRequest(http.MethodOptions, "/admin/reload", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Methods") == "" || rr.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Error("preflight headers missing")
	}
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"exact", "https://example.com", []string{"https://other.com", "https://example.com"}, true},
		{"no match", "https://evil.com", []string{"https://example.com"}, false},
		{"wildcard", "https://app.example.com", []string{"*.example.com"}, true},
		{"wildcard deep", "https://api.v2.example.com", []string{"*.example.com"}, true},
		{"wildcard bare domain", "https://example.com", []string{"*.example.com"}, true},
		{"wildcard lookalike", "https://badexample.com", []string{"*.example.com"}, false},
		{"scheme mismatch", "http://example.com", []string{"https://example.com"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isOriginAllowed(tt.origin, tt.allowed); got != tt.want {
				t.Errorf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
