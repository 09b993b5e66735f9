package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/twitchbot/bot"
	"github.com/onnwee/twitchbot/oauth"
	"github.com/onnwee/twitchbot/testutil"
	"github.com/onnwee/twitchbot/twitchapi"
)

type fakeBot struct {
	mu     sync.Mutex
	status bot.Status
	events []string
}

func (f *fakeBot) Status() bot.Status { return f.status }

func (f *fakeBot) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, s)
}

func (f *fakeBot) HandleSubscriber(_ context.Context, e bot.SubscriberEvent) {
	f.record("sub:" + e.User)
}
func (f *fakeBot) HandleGift(_ context.Context, e bot.GiftEvent) {
	f.record("gift:" + e.User + ">" + e.Recipient)
}
func (f *fakeBot) HandleFollow(_ context.Context, e bot.FollowEvent) { f.record("follow:" + e.User) }
func (f *fakeBot) HandleRaid(_ context.Context, e bot.RaidEvent)     { f.record("raid:" + e.User) }

type memStore struct {
	tok   *oauth2.Token
	scope string
}

func (m *memStore) SaveToken(_ context.Context, _ string, tok *oauth2.Token, scope string) error {
	m.tok, m.scope = tok, scope
	return nil
}

func (m *memStore) LoadToken(context.Context, string) (*oauth2.Token, string, error) {
	return m.tok, m.scope, nil
}

func newTestMux(t *testing.T, opts Options) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if opts.RateLimitRequests == 0 {
		opts.RateLimitRequests = 100
		opts.RateLimitWindow = time.Minute
	}
	return NewMux(ctx, opts)
}

func do(h http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	h := newTestMux(t, Options{})
	rr := do(h, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing correlation id")
	}
}

func TestCorrelationIDPropagated(t *testing.T) {
	h := newTestMux(t, Options{})
	rr := do(h, http.MethodGet, "/healthz", map[string]string{"X-Correlation-ID": "abc-123"})
	if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("correlation id = %q", got)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		bot        Bot
		wantStatus int
		wantCheck  string
	}{
		{"no bot", nil, http.StatusServiceUnavailable, "commands"},
		{"no handlers", &fakeBot{}, http.StatusServiceUnavailable, "commands"},
		{"ready", &fakeBot{status: bot.Status{Handlers: 3}}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestMux(t, Options{Bot: tt.bot})
			rr := do(h, http.MethodGet, "/readyz", nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body["failed_check"] != tt.wantCheck {
				t.Errorf("failed_check = %q, want %q", body["failed_check"], tt.wantCheck)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	fb := &fakeBot{status: bot.Status{Handlers: 4, TimedMessages: 2, Conditions: 1, ActiveChatters: 7, TimerRunning: true}}
	h := newTestMux(t, Options{Bot: fb})
	rr := do(h, http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got statusResponse
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != fb.status {
		t.Errorf("status = %+v, want %+v", got.Status, fb.status)
	}
	if rr := do(h, http.MethodPost, "/status", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /status = %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestMux(t, Options{})
	if rr := do(h, http.MethodGet, "/metrics", nil); rr.Code != http.StatusOK {
		t.Errorf("metrics = %d", rr.Code)
	}
}

func TestAdminReload(t *testing.T) {
	tests := []struct {
		name       string
		reload     func(context.Context) error
		wantStatus int
		wantBody   string
	}{
		{"ok", func(context.Context) error { return nil }, http.StatusOK, `"status":"ok"`},
		{"failure keeps config", func(context.Context) error { return errors.New("line 3: unknown key") }, http.StatusBadRequest, "unknown key"},
		{"not configured", nil, http.StatusServiceUnavailable, "reload not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestMux(t, Options{Bot: &fakeBot{status: bot.Status{Handlers: 1}}, Reload: tt.reload})
			rr := do(h, http.MethodPost, "/admin/reload", nil)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want %q", rr.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestAdminTestEvents(t *testing.T) {
	tests := []struct {
		event      string
		wantStatus int
		wantEvent  string
	}{
		{"raid", http.StatusOK, "raid:Tester"},
		{"newsubscriber", http.StatusOK, "sub:Tester"},
		{"giftedsubscriber", http.StatusOK, "gift:Tester>Tester"},
		{"follower", http.StatusOK, "follow:Tester"},
		{"host", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			fb := &fakeBot{}
			h := newTestMux(t, Options{Bot: fb})
			rr := do(h, http.MethodPost, "/admin/test/"+tt.event, nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantEvent == "" {
				if len(fb.events) != 0 {
					t.Errorf("events = %v", fb.events)
				}
				return
			}
			if len(fb.events) != 1 || fb.events[0] != tt.wantEvent {
				t.Errorf("events = %v, want [%s]", fb.events, tt.wantEvent)
			}
		})
	}
}

func TestAdminRoutesProtected(t *testing.T) {
	fb := &fakeBot{}
	h := newTestMux(t, Options{Bot: fb, AdminToken: "secret", Reload: func(context.Context) error { return nil }})

	if rr := do(h, http.MethodPost, "/admin/test/raid", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated = %d", rr.Code)
	}
	if len(fb.events) != 0 {
		t.Errorf("event fired without auth: %v", fb.events)
	}
	if rr := do(h, http.MethodPost, "/admin/reload", map[string]string{"X-Admin-Token": "secret"}); rr.Code != http.StatusOK {
		t.Errorf("authenticated = %d", rr.Code)
	}
	// Public routes stay open.
	if rr := do(h, http.MethodGet, "/healthz", nil); rr.Code != http.StatusOK {
		t.Errorf("healthz = %d", rr.Code)
	}
}

func TestAdminRoutesRateLimited(t *testing.T) {
	h := newTestMux(t, Options{
		Bot:               &fakeBot{},
		RateLimitEnabled:  true,
		RateLimitRequests: 2,
		RateLimitWindow:   time.Minute,
	})
	var codes []int
	for i := 0; i < 3; i++ {
		codes = append(codes, do(h, http.MethodPost, "/admin/test/follower", nil).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
	for i := 0; i < 5; i++ {
		if rr := do(h, http.MethodGet, "/status", nil); rr.Code != http.StatusOK {
			t.Fatalf("status request %d limited: %d", i+1, rr.Code)
		}
	}
}

func TestCORSRestrictedMux(t *testing.T) {
	h := newTestMux(t, Options{CORSAllowedOrigins: []string{"https://dash.example.com"}})
	rr := do(h, http.MethodGet, "/status", map[string]string{"Origin": "https://dash.example.com"})
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://dash.example.com" {
		t.Errorf("allowed origin not echoed: %v", rr.Header())
	}
	rr = do(h, http.MethodGet, "/status", map[string]string{"Origin": "https://evil.example.org"})
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("foreign origin allowed")
	}
}

func TestTwitchOAuthFlow(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	m.JSON("POST /oauth2/token", http.StatusOK, map[string]any{
		"access_token":  "user-access",
		"refresh_token": "user-refresh",
		"expires_in":    3600,
		"token_type":    "bearer",
		"scope":         []string{"chat:read", "chat:edit"},
	})

	cfg := twitchapi.UserConfig("cid", "secret", "http://localhost/auth/twitch/callback", twitchapi.BotScopes)
	cfg.Endpoint.TokenURL = m.URL + "/oauth2/token"
	cfg.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	store := &memStore{}
	src := oauth.NewSource("twitch_bot", cfg, store)

	h := newTestMux(t, Options{Accounts: map[string]Account{"bot": {Config: cfg, Source: src}}})

	rr := do(h, http.MethodGet, "/auth/twitch/bot/start", nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("start = %d", rr.Code)
	}
	loc, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if loc.Query().Get("force_verify") != "true" || loc.Query().Get("client_id") != "cid" {
		t.Errorf("authorize url = %s", loc)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("no state in authorize url")
	}

	rr = do(h, http.MethodGet, "/auth/twitch/callback?code=abc&state="+state, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("callback = %d %s", rr.Code, rr.Body.String())
	}
	if store.tok == nil || store.tok.AccessToken != "user-access" || store.scope != "chat:read chat:edit" {
		t.Errorf("stored = %+v %q", store.tok, store.scope)
	}
	tok, err := src.Token()
	if err != nil || tok.AccessToken != "user-access" {
		t.Errorf("source token = %v, %v", tok, err)
	}

	// A state is single use.
	if rr := do(h, http.MethodGet, "/auth/twitch/callback?code=abc&state="+state, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("replayed state = %d", rr.Code)
	}
}

func TestTwitchOAuthErrors(t *testing.T) {
	cfg := twitchapi.UserConfig("cid", "secret", "http://localhost/cb", twitchapi.ChannelScopes)
	noRedirect := twitchapi.UserConfig("cid", "secret", "", twitchapi.ChannelScopes)
	h := newTestMux(t, Options{Accounts: map[string]Account{
		"channel":  {Config: cfg, Source: oauth.NewSource("twitch_channel", cfg, &memStore{})},
		"misconfd": {Config: noRedirect, Source: oauth.NewSource("x", noRedirect, &memStore{})},
	}})

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown account", "/auth/twitch/nobody/start", http.StatusNotFound},
		{"missing redirect", "/auth/twitch/misconfd/start", http.StatusBadRequest},
		{"missing code", "/auth/twitch/callback?state=x", http.StatusBadRequest},
		{"unknown state", "/auth/twitch/callback?code=c&state=forged", http.StatusBadRequest},
		{"denied", "/auth/twitch/callback?error=access_denied", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(h, http.MethodGet, tt.path, nil); rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestOAuthStateExpiry(t *testing.T) {
	h := NewHandlers(Options{})
	h.addOAuthState("old", "bot", time.Now().Add(-time.Second))
	h.addOAuthState("new", "channel", time.Now().Add(time.Minute))
	if _, ok := h.takeOAuthState("old"); ok {
		t.Error("expired state accepted")
	}
	if acct, ok := h.takeOAuthState("new"); !ok || acct != "channel" {
		t.Errorf("take = %q %v", acct, ok)
	}
}

func TestTokenScope(t *testing.T) {
	tests := []struct {
		name  string
		extra map[string]any
		want  string
	}{
		{"array", map[string]any{"scope": []any{"a", "b"}}, "a b"},
		{"string", map[string]any{"scope": "a b"}, "a b"},
		{"missing", map[string]any{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := (&oauth2.Token{AccessToken: "x"}).WithExtra(tt.extra)
			if got := tokenScope(tok); got != tt.want {
				t.Errorf("tokenScope() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStartShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Start(ctx, Options{}, addr) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/healthz")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never came up: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
