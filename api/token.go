package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// legacyTokenKey is the fixed key older deployments stored tokens under.
	legacyTokenKey = "arpg_api"

	// tokenValidityMargin is the minimum remaining lifetime for a token to be
	// used; anything closer to expiry triggers a refresh.
	tokenValidityMargin = 60 * time.Second

	// tokenFetchBackoff blocks fetch attempts after a failure so a down auth
	// endpoint is not hammered every request.
	tokenFetchBackoff = 10 * time.Minute

	defaultTokenLifetime = time.Hour
)

// tokenKey derives the storage key from the configured token endpoint.
func (c *Client) tokenKey() string {
	if c.TokenURL != "" {
		return "token:" + c.TokenURL
	}
	if c.BaseURL != "" {
		return "token:" + c.BaseURL + "/token"
	}
	return legacyTokenKey
}

func (c *Client) tokenEndpoint() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	if c.BaseURL != "" {
		return c.BaseURL + "/token"
	}
	return ""
}

// getAccessToken returns a usable bearer token, or "" when none can be
// obtained. Failures are logged rather than returned; callers proceed
// unauthenticated and the upstream answers 401 if auth was required.
func (c *Client) getAccessToken(ctx context.Context) string {
	c.mu.Lock()
	now := c.now()
	if !c.tokenFailUntil.IsZero() && now.Before(c.tokenFailUntil) {
		c.mu.Unlock()
		return ""
	}
	if c.accessToken != "" && validExpiry(&c.tokenExpiresAt, now) {
		token := c.accessToken
		c.mu.Unlock()
		return token
	}
	c.mu.Unlock()

	if token, exp := c.recoverStoredToken(now); token != "" {
		c.mu.Lock()
		c.accessToken = token
		c.tokenExpiresAt = *exp
		c.mu.Unlock()
		return token
	}

	token, exp, err := c.fetchToken(ctx)
	c.mu.Lock()
	if err != nil {
		log.Warn().Err(err).Msg("Token fetch failed, backing off")
		c.tokenFailUntil = c.now().Add(tokenFetchBackoff)
		c.mu.Unlock()
		return ""
	}
	c.accessToken = token
	c.tokenExpiresAt = exp
	c.tokenFailUntil = time.Time{}
	c.mu.Unlock()

	if c.tokens != nil {
		expCopy := exp
		if err := c.tokens.SetAPIToken(c.tokenKey(), token, &expCopy); err != nil {
			log.Warn().Err(err).Msg("Token store write failed")
		}
	}
	return token
}

func validExpiry(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && expiresAt.Sub(now) > tokenValidityMargin
}

// recoverStoredToken evaluates the durable lookups in order: the key derived
// from the configured endpoint, the legacy fixed key, then the stored token
// with the furthest expiry. The first token clearing the validity margin wins.
func (c *Client) recoverStoredToken(now time.Time) (string, *time.Time) {
	if c.tokens == nil {
		return "", nil
	}
	lookups := []func() (string, *time.Time, error){
		func() (string, *time.Time, error) { return c.tokens.GetAPIToken(c.tokenKey()) },
		func() (string, *time.Time, error) { return c.tokens.GetAPIToken(legacyTokenKey) },
		func() (string, *time.Time, error) {
			_, token, expiresAt, err := c.tokens.GetLatestAPIToken()
			return token, expiresAt, err
		},
	}
	for _, lookup := range lookups {
		token, expiresAt, err := lookup()
		if err != nil {
			log.Warn().Err(err).Msg("Token store read failed")
			return "", nil
		}
		if token != "" && validExpiry(expiresAt, now) {
			return token, expiresAt
		}
	}
	return "", nil
}

// invalidateToken clears the in-memory token and, best effort, the stored one.
// Called after observing a 401 from a protected endpoint.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.tokenExpiresAt = time.Time{}
	c.mu.Unlock()

	if c.tokens != nil {
		if err := c.tokens.SetAPIToken(c.tokenKey(), "", nil); err != nil {
			log.Warn().Err(err).Msg("Token store invalidate failed")
		}
	}
}

type tokenResponse struct {
	AccessToken string   `json:"access_token"`
	Token       string   `json:"token"`
	JWT         string   `json:"jwt"`
	ExpiresIn   *float64 `json:"expires_in"`
	Exp         *float64 `json:"exp"`
	ExpiresAt   string   `json:"expires_at"`
}

// fetchToken exchanges client credentials for a bearer token.
func (c *Client) fetchToken(ctx context.Context) (string, time.Time, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return "", time.Time{}, fmt.Errorf("API credentials not configured")
	}
	endpoint := c.tokenEndpoint()
	if endpoint == "" {
		return "", time.Time{}, fmt.Errorf("no token endpoint configured")
	}

	payload, err := json.Marshal(map[string]string{
		"clientId":     c.clientID,
		"clientSecret": c.clientSecret,
	})
	if err != nil {
		return "", time.Time{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.Info().Str("url", endpoint).Msg("Requesting API token")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return "", time.Time{}, fmt.Errorf("token request failed: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var data tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode token response: %w", err)
	}

	token := data.AccessToken
	if token == "" {
		token = data.Token
	}
	if token == "" {
		token = data.JWT
	}
	if token == "" {
		return "", time.Time{}, fmt.Errorf("token response contained no token")
	}

	now := c.now()
	expiresAt := now.Add(defaultTokenLifetime)
	switch {
	case data.ExpiresIn != nil:
		expiresAt = now.Add(time.Duration(*data.ExpiresIn * float64(time.Second)))
	case data.Exp != nil:
		expiresAt = time.Unix(int64(*data.Exp), 0).UTC()
	case data.ExpiresAt != "":
		if parsed := parseTimestamp(data.ExpiresAt); parsed != nil {
			expiresAt = *parsed
		}
	}
	return token, expiresAt, nil
}
