package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rickgao/ls-relay/internal/auth"
)

const tokenPath = "/oauth2/token"

var _ auth.Issuer = (*Client)(nil)

// TokenResponse is the body returned by the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
	Scope       string `json:"scope"`
	TokenType   string `json:"token_type"`
}

// IssueToken performs the client-credentials exchange.
func (c *Client) IssueToken(ctx context.Context) (auth.IssuedToken, error) {
	if c.creds == nil {
		return auth.IssuedToken{}, auth.ErrNoCredentials
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("appkey", c.creds.AppKey)
	form.Set("appsecretkey", c.creds.AppSecret)
	form.Set("scope", "oob")

	body, err := c.doWithRetry(ctx, request{
		method:      http.MethodPost,
		path:        tokenPath,
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return auth.IssuedToken{}, fmt.Errorf("issue token: %w", err)
	}

	var resp TokenResponse
	if err := decodeStrict(body, &resp); err != nil {
		return auth.IssuedToken{}, fmt.Errorf("issue token: %w", err)
	}
	if resp.AccessToken == "" {
		return auth.IssuedToken{}, errors.New("issue token: empty access_token")
	}
	if !strings.EqualFold(resp.TokenType, "bearer") && resp.TokenType != "" {
		c.logger.Warn("unexpected token type", "token_type", resp.TokenType)
	}

	return auth.IssuedToken{
		AccessToken: resp.AccessToken,
		ExpiresIn:   time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}
