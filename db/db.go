// Package db provides the Postgres connection, embedded schema migrations and
// the OAuth token table.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
	"golang.org/x/oauth2"
)

// Connect opens a Postgres pool for dsn and verifies it answers.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("db: empty DSN")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return database, nil
}

// TokenStore persists OAuth tokens by provider name ("bot", "channel").
// With an encryption key, access and refresh tokens are stored encrypted;
// rows written without one stay readable.
type TokenStore struct {
	DB *sql.DB

	sealer *sealer
}

// NewTokenStore returns a store for database. An empty key stores tokens in
// plaintext.
func NewTokenStore(database *sql.DB, encryptionKey string) (*TokenStore, error) {
	s := &TokenStore{DB: database}
	if encryptionKey == "" {
		slog.Warn("ENCRYPTION_KEY not set, OAuth tokens will be stored in plaintext (not recommended for production)", slog.String("component", "db_encryption"))
		return s, nil
	}
	sl, err := newSealer(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	s.sealer = sl
	slog.Info("OAuth token encryption enabled (AES-256-GCM)", slog.String("component", "db_encryption"))
	return s, nil
}

// SaveToken stores or replaces the token for provider.
func (s *TokenStore) SaveToken(ctx context.Context, provider string, tok *oauth2.Token, scope string) error {
	access, refresh := tok.AccessToken, tok.RefreshToken
	version := 0
	if s.sealer != nil {
		var err error
		if access, err = s.sealer.seal(access); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		if refresh, err = s.sealer.seal(refresh); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		version = sealVersion
	}
	var expiry sql.NullTime
	if !tok.Expiry.IsZero() {
		expiry = sql.NullTime{Time: tok.Expiry, Valid: true}
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO oauth_tokens(provider, access_token, refresh_token, token_type, expires_at, scope, encryption_version, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,NOW())
		 ON CONFLICT(provider) DO UPDATE SET
		   access_token=EXCLUDED.access_token,
		   refresh_token=EXCLUDED.refresh_token,
		   token_type=EXCLUDED.token_type,
		   expires_at=EXCLUDED.expires_at,
		   scope=EXCLUDED.scope,
		   encryption_version=EXCLUDED.encryption_version,
		   updated_at=NOW()`,
		provider, access, refresh, tok.TokenType, expiry, scope, version)
	if err != nil {
		return fmt.Errorf("upsert oauth token %s: %w", provider, err)
	}
	return nil
}

// LoadToken returns the stored token for provider, or nil when there is none.
func (s *TokenStore) LoadToken(ctx context.Context, provider string) (*oauth2.Token, string, error) {
	var (
		tok     oauth2.Token
		expiry  sql.NullTime
		scope   string
		version int
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, token_type, expires_at, scope, encryption_version
		 FROM oauth_tokens WHERE provider = $1`, provider).
		Scan(&tok.AccessToken, &tok.RefreshToken, &tok.TokenType, &expiry, &scope, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("select oauth token %s: %w", provider, err)
	}
	if expiry.Valid {
		tok.Expiry = expiry.Time
	}

	if version == sealVersion {
		if s.sealer == nil {
			return nil, "", fmt.Errorf("token %s is encrypted but ENCRYPTION_KEY not configured", provider)
		}
		if tok.AccessToken, err = s.sealer.open(tok.AccessToken); err != nil {
			return nil, "", fmt.Errorf("decrypt access token: %w", err)
		}
		if tok.RefreshToken, err = s.sealer.open(tok.RefreshToken); err != nil {
			return nil, "", fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return &tok, scope, nil
}

// PlaintextProviders lists providers whose tokens are stored unencrypted.
func (s *TokenStore) PlaintextProviders(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT provider FROM oauth_tokens WHERE encryption_version = 0 ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("query plaintext tokens: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Seal encrypts the stored plaintext token of provider in place. It fails
// when the store has no encryption key or the row changed concurrently.
func (s *TokenStore) Seal(ctx context.Context, provider string) error {
	if s.sealer == nil {
		return errors.New("seal requires ENCRYPTION_KEY")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var access, refresh string
	err = tx.QueryRowContext(ctx,
		`SELECT access_token, refresh_token FROM oauth_tokens
		 WHERE provider = $1 AND encryption_version = 0 FOR UPDATE`, provider).
		Scan(&access, &refresh)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("token %s is not stored in plaintext", provider)
	}
	if err != nil {
		return fmt.Errorf("select oauth token %s: %w", provider, err)
	}
	if access, err = s.sealer.seal(access); err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	if refresh, err = s.sealer.seal(refresh); err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE oauth_tokens SET access_token = $1, refresh_token = $2, encryption_version = $3, updated_at = NOW()
		 WHERE provider = $4`, access, refresh, sealVersion, provider); err != nil {
		return fmt.Errorf("update token %s: %w", provider, err)
	}
	return tx.Commit()
}

// EncryptionStatus counts stored tokens by encryption version.
func (s *TokenStore) EncryptionStatus(ctx context.Context) (map[int]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT encryption_version, COUNT(*) FROM oauth_tokens GROUP BY encryption_version`)
	if err != nil {
		return nil, fmt.Errorf("query encryption status: %w", err)
	}
	defer rows.Close()
	out := map[int]int{}
	for rows.Next() {
		var version, n int
		if err := rows.Scan(&version, &n); err != nil {
			return nil, fmt.Errorf("scan status row: %w", err)
		}
		out[version] = n
	}
	return out, rows.Err()
}
