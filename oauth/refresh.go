// Package oauth keeps user tokens stored in the oauth_tokens table fresh. A
// Source hands out the stored token and refreshes it through the provider's
// token endpoint when it is about to expire; StartRefresher does the same in
// the background with jittered checks so idle bots keep a usable token.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoToken means no token has been stored for the provider yet.
var ErrNoToken = errors.New("oauth: no token stored")

// Store persists tokens by provider name. *db.TokenStore implements it.
type Store interface {
	SaveToken(ctx context.Context, provider string, tok *oauth2.Token, scope string) error
	LoadToken(ctx context.Context, provider string) (*oauth2.Token, string, error)
}

// Source is an oauth2.TokenSource backed by a Store. Refreshed tokens are
// written back so a restart picks up the newest refresh token.
type Source struct {
	Provider string
	Config   *oauth2.Config
	Store    Store
	// Now is overridable in tests.
	Now func() time.Time

	mu    sync.Mutex
	tok   *oauth2.Token
	scope string
}

// NewSource returns a Source for provider.
func NewSource(provider string, cfg *oauth2.Config, store Store) *Source {
	return &Source{Provider: provider, Config: cfg, Store: store, Now: time.Now}
}

// Token implements oauth2.TokenSource.
func (s *Source) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.token(ctx, time.Minute)
}

// Scope returns the scope string stored with the token.
func (s *Source) Scope() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// Set stores a freshly authorized token.
func (s *Source) Set(ctx context.Context, tok *oauth2.Token, scope string) error {
	if err := s.Store.SaveToken(ctx, s.Provider, tok, scope); err != nil {
		return err
	}
	s.mu.Lock()
	s.tok, s.scope = tok, scope
	s.mu.Unlock()
	return nil
}

// token returns the current token, refreshing it when fewer than window
// remain before expiry.
func (s *Source) token(ctx context.Context, window time.Duration) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok == nil {
		tok, scope, err := s.Store.LoadToken(ctx, s.Provider)
		if err != nil {
			return nil, err
		}
		if tok == nil {
			return nil, fmt.Errorf("%s: %w", s.Provider, ErrNoToken)
		}
		s.tok, s.scope = tok, scope
	}
	if s.tok.Expiry.IsZero() || s.tok.Expiry.Sub(s.Now()) > window {
		return s.tok, nil
	}
	if s.tok.RefreshToken == "" {
		return nil, fmt.Errorf("%s token expired and has no refresh token", s.Provider)
	}

	// An already expired token makes the oauth2 source refresh straight away.
	stale := *s.tok
	stale.Expiry = time.Unix(1, 0)
	fresh, err := s.Config.TokenSource(ctx, &stale).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh %s token: %w", s.Provider, err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = s.tok.RefreshToken
	}
	if err := s.Store.SaveToken(ctx, s.Provider, fresh, s.scope); err != nil {
		slog.Warn("token persist failed", slog.String("provider", s.Provider), slog.Any("err", err))
	}
	s.tok = fresh
	slog.Info("token refreshed", slog.String("provider", s.Provider), slog.Time("expires_at", fresh.Expiry))
	return fresh, nil
}

// StartRefresher launches a goroutine that periodically checks the source's
// token and refreshes it when its remaining lifetime is within window.
func StartRefresher(ctx context.Context, src *Source, interval, window time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	initialJitter := time.Duration(rand.Int64N(int64(interval/2) + 1))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// ±20% of interval
			jitterRange := int64(interval / 5)
			nextSleep := interval + time.Duration(rand.Int64N(jitterRange*2+1)-jitterRange)
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
			checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			_, err := src.token(checkCtx, window)
			cancel()
			if err != nil && !errors.Is(err, ErrNoToken) && ctx.Err() == nil {
				slog.Warn("token refresh failed", slog.String("provider", src.Provider), slog.Any("err", err))
			}
		}
	}()
}
