// Package auth provides LS Securities OpenAPI access tokens.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	// ErrNoToken is returned by a provider that has nothing to hand out.
	ErrNoToken = errors.New("no access token available")

	// ErrNoCredentials is returned when an app key or secret is missing.
	ErrNoCredentials = errors.New("app key and app secret are required")
)

// Credentials are the app key pair issued by the LS OpenAPI portal.
type Credentials struct {
	AppKey    string
	AppSecret string
}

// LoadCredentials validates and returns a credential pair.
func LoadCredentials(appKey, appSecret string) (*Credentials, error) {
	if appKey == "" || appSecret == "" {
		return nil, ErrNoCredentials
	}
	return &Credentials{AppKey: appKey, AppSecret: appSecret}, nil
}

// TokenProvider hands out a bearer token valid at the time of the call.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token, e.g. one supplied through the environment.
type Static string

// Token returns the static token.
func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// IssuedToken is a freshly issued access token.
type IssuedToken struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// Issuer performs the OAuth client-credentials exchange.
type Issuer interface {
	IssueToken(ctx context.Context) (IssuedToken, error)
}

// CachedToken is the on-disk token cache format.
type CachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiredAt   time.Time `json:"expired_at"`
}

// Valid reports whether the token is present and unexpired at now.
func (c CachedToken) Valid(now time.Time) bool {
	return c.AccessToken != "" && c.ExpiredAt.After(now)
}

// LoadCachedToken reads a token cache file.
func LoadCachedToken(path string) (CachedToken, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CachedToken{}, fmt.Errorf("read token cache: %w", err)
	}

	var tok CachedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return CachedToken{}, fmt.Errorf("parse token cache: %w", err)
	}
	return tok, nil
}

// SaveCachedToken writes a token cache file readable only by the owner.
func SaveCachedToken(path string, tok CachedToken) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token cache: %w", err)
	}
	return nil
}

// CachedProvider reuses a token until it expires, persisting it to a cache
// file so restarts do not request a new one. Safe for concurrent use.
type CachedProvider struct {
	path   string
	issuer Issuer
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	current CachedToken
}

// NewCachedProvider creates a provider backed by the cache file at path. An
// empty path keeps the token in memory only.
func NewCachedProvider(path string, issuer Issuer, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{
		path:   path,
		issuer: issuer,
		logger: logger,
		now:    time.Now,
	}
}

// Token returns the in-memory token, then the cached one, and only issues a
// new token when neither is valid.
func (p *CachedProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.current.Valid(now) {
		return p.current.AccessToken, nil
	}

	if p.path != "" {
		tok, err := LoadCachedToken(p.path)
		switch {
		case err != nil:
			p.logger.Debug("token cache unavailable", "path", p.path, "error", err)
		case tok.Valid(now):
			p.logger.Debug("using cached token", "expired_at", tok.ExpiredAt)
			p.current = tok
			return tok.AccessToken, nil
		default:
			p.logger.Info("cached token expired", "expired_at", tok.ExpiredAt)
		}
	}

	issued, err := p.issuer.IssueToken(ctx)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	if issued.AccessToken == "" {
		return "", ErrNoToken
	}

	p.current = CachedToken{
		AccessToken: issued.AccessToken,
		ExpiredAt:   now.Add(issued.ExpiresIn),
	}
	p.logger.Info("issued new token", "expired_at", p.current.ExpiredAt)

	if p.path != "" {
		if err := SaveCachedToken(p.path, p.current); err != nil {
			p.logger.Warn("failed to persist token", "path", p.path, "error", err)
		}
	}

	return p.current.AccessToken, nil
}
