package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

type fakeIssuer struct {
	calls atomic.Int32
	token string
	ttl   time.Duration
	err   error
}

func (f *fakeIssuer) IssueToken(context.Context) (IssuedToken, error) {
	f.calls.Add(1)
	if f.err != nil {
		return IssuedToken{}, f.err
	}
	return IssuedToken{AccessToken: f.token, ExpiresIn: f.ttl}, nil
}

func TestLoadCredentials(t *testing.T) {
	if _, err := LoadCredentials("", "secret"); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("missing key: err = %v", err)
	}
	if _, err := LoadCredentials("key", ""); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("missing secret: err = %v", err)
	}

	creds, err := LoadCredentials("key", "secret")
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds.AppKey != "key" || creds.AppSecret != "secret" {
		t.Errorf("creds = %+v", creds)
	}
}

func TestStatic(t *testing.T) {
	tok, err := Static("abc").Token(context.Background())
	if err != nil || tok != "abc" {
		t.Errorf("Token = %q, %v", tok, err)
	}

	if _, err := Static("").Token(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty static: err = %v", err)
	}
}

func TestCachedToken_RoundTripFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	want := CachedToken{
		AccessToken: "tok",
		ExpiredAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	if err := SaveCachedToken(path, want); err != nil {
		t.Fatalf("SaveCachedToken failed: %v", err)
	}

	got, err := LoadCachedToken(path)
	if err != nil {
		t.Fatalf("LoadCachedToken failed: %v", err)
	}
	if got.AccessToken != want.AccessToken || !got.ExpiredAt.Equal(want.ExpiredAt) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestCachedProvider_UsesValidCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := SaveCachedToken(path, CachedToken{
		AccessToken: "cached",
		ExpiredAt:   time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	issuer := &fakeIssuer{token: "fresh", ttl: time.Hour}
	p := NewCachedProvider(path, issuer, nil)

	tok, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "cached" {
		t.Errorf("Token = %q, want cached", tok)
	}
	if issuer.calls.Load() != 0 {
		t.Errorf("issuer called %d times", issuer.calls.Load())
	}
}

func TestCachedProvider_IssuesWhenExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := SaveCachedToken(path, CachedToken{
		AccessToken: "stale",
		ExpiredAt:   time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	issuer := &fakeIssuer{token: "fresh", ttl: 24 * time.Hour}
	p := NewCachedProvider(path, issuer, nil)

	for i := 0; i < 3; i++ {
		tok, err := p.Token(context.Background())
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		if tok != "fresh" {
			t.Errorf("Token = %q, want fresh", tok)
		}
	}
	if n := issuer.calls.Load(); n != 1 {
		t.Errorf("issuer called %d times, want 1", n)
	}

	saved, err := LoadCachedToken(path)
	if err != nil {
		t.Fatalf("LoadCachedToken failed: %v", err)
	}
	if saved.AccessToken != "fresh" || !saved.Valid(time.Now()) {
		t.Errorf("cache = %+v", saved)
	}
}

func TestCachedProvider_MissingCacheFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "token.json")
	issuer := &fakeIssuer{token: "fresh", ttl: time.Hour}
	p := NewCachedProvider(path, issuer, nil)

	// The cache directory does not exist, so persisting fails but the
	// token is still returned.
	tok, err := p.Token(context.Background())
	if err != nil || tok != "fresh" {
		t.Errorf("Token = %q, %v", tok, err)
	}
}

func TestCachedProvider_IssuerError(t *testing.T) {
	errDown := errors.New("oauth down")
	p := NewCachedProvider("", &fakeIssuer{err: errDown}, nil)

	if _, err := p.Token(context.Background()); !errors.Is(err, errDown) {
		t.Errorf("err = %v, want %v", err, errDown)
	}
}

func TestCachedProvider_ExpiryUsesClock(t *testing.T) {
	issuer := &fakeIssuer{token: "t", ttl: time.Minute}
	p := NewCachedProvider("", issuer, nil)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	if _, err := p.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := p.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := issuer.calls.Load(); n != 2 {
		t.Errorf("issuer called %d times, want 2", n)
	}
}
