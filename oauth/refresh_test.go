package oauth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/twitchbot/db"
	"github.com/onnwee/twitchbot/testutil"
	"golang.org/x/oauth2"
)

type memStore struct {
	mu      sync.Mutex
	tokens  map[string]*oauth2.Token
	scopes  map[string]string
	saves   int
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{tokens: map[string]*oauth2.Token{}, scopes: map[string]string{}}
}

func (m *memStore) SaveToken(_ context.Context, provider string, tok *oauth2.Token, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *tok
	m.tokens[provider], m.scopes[provider] = &cp, scope
	return nil
}

func (m *memStore) LoadToken(_ context.Context, provider string) (*oauth2.Token, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[provider]
	if !ok {
		return nil, "", nil
	}
	cp := *tok
	return &cp, m.scopes[provider], nil
}

func (m *memStore) get(provider string) *oauth2.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[provider]
}

// tokenServer answers refresh_token grants, counting calls.
func tokenServer(t *testing.T, calls *atomic.Int32, refreshOut string) *oauth2.Config {
	t.Helper()
	m := testutil.NewMockTwitchServer(t)
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("refresh_token") != "old-refresh" {
			t.Errorf("refresh_token = %q", r.PostForm.Get("refresh_token"))
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		body := `{"access_token":"new-access","token_type":"bearer","expires_in":7200`
		if refreshOut != "" {
			body += `,"refresh_token":"` + refreshOut + `"`
		}
		_, _ = w.Write([]byte(body + `}`))
	}
	return &oauth2.Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: m.URL + "/oauth2/token", AuthStyle: oauth2.AuthStyleInParams},
	}
}

func TestSourceToken(t *testing.T) {
	tests := []struct {
		name        string
		expiresIn   time.Duration
		refreshOut  string
		wantAccess  string
		wantRefresh string
		wantCalls   int32
	}{
		{"valid token is served", time.Hour, "", "old-access", "old-refresh", 0},
		{"expiring token is refreshed", 30 * time.Second, "new-refresh", "new-access", "new-refresh", 1},
		{"refresh token kept when not rotated", -time.Minute, "", "new-access", "old-refresh", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			cfg := tokenServer(t, &calls, tt.refreshOut)
			store := newMemStore()
			_ = store.SaveToken(context.Background(), "bot", &oauth2.Token{
				AccessToken:  "old-access",
				RefreshToken: "old-refresh",
				Expiry:       time.Now().Add(tt.expiresIn),
			}, "chat:read")

			src := NewSource("bot", cfg, store)
			tok, err := src.Token()
			if err != nil {
				t.Fatal(err)
			}
			if tok.AccessToken != tt.wantAccess || tok.RefreshToken != tt.wantRefresh {
				t.Errorf("token = %s/%s, want %s/%s", tok.AccessToken, tok.RefreshToken, tt.wantAccess, tt.wantRefresh)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("refresh calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
			stored := store.get("bot")
			if stored.AccessToken != tt.wantAccess || stored.RefreshToken != tt.wantRefresh {
				t.Errorf("stored = %s/%s", stored.AccessToken, stored.RefreshToken)
			}
			if src.Scope() != "chat:read" {
				t.Errorf("scope = %q", src.Scope())
			}

			// second call is served from memory
			if _, err := src.Token(); err != nil {
				t.Fatal(err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("second call refreshed again")
			}
		})
	}
}

func TestSourceNoToken(t *testing.T) {
	src := NewSource("bot", &oauth2.Config{}, newMemStore())
	if _, err := src.Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("err = %v, want ErrNoToken", err)
	}
}

func TestSourceExpiredWithoutRefreshToken(t *testing.T) {
	store := newMemStore()
	_ = store.SaveToken(context.Background(), "bot", &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(-time.Hour)}, "")
	if _, err := NewSource("bot", &oauth2.Config{}, store).Token(); err == nil {
		t.Error("expected error for expired token without refresh token")
	}
}

func TestSourceRefreshError(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	m.JSON("/oauth2/token", http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
	cfg := &oauth2.Config{Endpoint: oauth2.Endpoint{TokenURL: m.URL + "/oauth2/token", AuthStyle: oauth2.AuthStyleInParams}}
	store := newMemStore()
	_ = store.SaveToken(context.Background(), "bot", &oauth2.Token{AccessToken: "old", RefreshToken: "old-refresh", Expiry: time.Now()}, "")
	if _, err := NewSource("bot", cfg, store).Token(); err == nil {
		t.Fatal("expected refresh error")
	}
	if store.get("bot").AccessToken != "old" {
		t.Error("stored token replaced after failed refresh")
	}
}

func TestSourceSaveFailureStillServesToken(t *testing.T) {
	var calls atomic.Int32
	cfg := tokenServer(t, &calls, "")
	store := newMemStore()
	_ = store.SaveToken(context.Background(), "bot", &oauth2.Token{AccessToken: "old", RefreshToken: "old-refresh", Expiry: time.Now()}, "")
	store.saveErr = errors.New("db down")
	tok, err := NewSource("bot", cfg, store).Token()
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "new-access" {
		t.Errorf("access = %q", tok.AccessToken)
	}
}

func TestSourceSet(t *testing.T) {
	store := newMemStore()
	src := NewSource("channel", &oauth2.Config{}, store)
	in := &oauth2.Token{AccessToken: "fresh", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}
	if err := src.Set(context.Background(), in, "channel:manage:broadcast"); err != nil {
		t.Fatal(err)
	}
	tok, err := src.Token()
	if err != nil || tok.AccessToken != "fresh" {
		t.Fatalf("token = %v, %v", tok, err)
	}
	if store.scopes["channel"] != "channel:manage:broadcast" {
		t.Errorf("scope = %q", store.scopes["channel"])
	}
}

func TestStartRefresherOutsideWindow(t *testing.T) {
	var calls atomic.Int32
	cfg := tokenServer(t, &calls, "")
	store := newMemStore()
	_ = store.SaveToken(context.Background(), "bot", &oauth2.Token{AccessToken: "old", RefreshToken: "old-refresh", Expiry: time.Now().Add(time.Hour)}, "")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	StartRefresher(ctx, NewSource("bot", cfg, store), 50*time.Millisecond, 30*time.Minute)
	<-ctx.Done()

	if calls.Load() != 0 {
		t.Error("refresh should not have been called for token that expires in 1 hour with 30 min window")
	}
}

func TestStartRefresherWithinWindow(t *testing.T) {
	var calls atomic.Int32
	cfg := tokenServer(t, &calls, "new-refresh")
	store := newMemStore()
	_ = store.SaveToken(context.Background(), "bot", &oauth2.Token{AccessToken: "old", RefreshToken: "old-refresh", Expiry: time.Now().Add(5 * time.Minute)}, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartRefresher(ctx, NewSource("bot", cfg, store), 50*time.Millisecond, 15*time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if calls.Load() == 0 {
		t.Fatal("refresh should have been called for token expiring within window")
	}
	if got := store.get("bot"); got.AccessToken != "new-access" || got.RefreshToken != "new-refresh" {
		t.Errorf("stored = %+v", got)
	}
}

func TestStartRefresherNoToken(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	// must not panic or spin without a stored token
	StartRefresher(ctx, NewSource("bot", &oauth2.Config{}, newMemStore()), 20*time.Millisecond, time.Minute)
	<-ctx.Done()
}

func TestSourceWithTokenStore(t *testing.T) {
	database := testutil.SetupTestDB(t)
	store, err := db.NewTokenStore(database, "")
	if err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int32
	cfg := tokenServer(t, &calls, "new-refresh")
	ctx := context.Background()
	_ = store.SaveToken(ctx, "test-refresh", &oauth2.Token{AccessToken: "old", RefreshToken: "old-refresh", Expiry: time.Now().Add(time.Second)}, "scope1")

	tok, err := NewSource("test-refresh", cfg, store).Token()
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "new-access" {
		t.Errorf("access = %q", tok.AccessToken)
	}
	stored, scope, err := store.LoadToken(ctx, "test-refresh")
	if err != nil {
		t.Fatal(err)
	}
	if stored.AccessToken != "new-access" || stored.RefreshToken != "new-refresh" || scope != "scope1" {
		t.Errorf("stored = %+v scope %q", stored, scope)
	}
}
