package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storedToken struct {
	token     string
	expiresAt *time.Time
}

// fakeTokenStore is an in-memory TokenStore with injectable read errors.
type fakeTokenStore struct {
	mu      sync.Mutex
	tokens  map[string]storedToken
	readErr error
	writes  []string
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: map[string]storedToken{}}
}

func (s *fakeTokenStore) GetAPIToken(key string) (string, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return "", nil, s.readErr
	}
	entry := s.tokens[key]
	return entry.token, entry.expiresAt, nil
}

func (s *fakeTokenStore) SetAPIToken(key, token string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = storedToken{token: token, expiresAt: expiresAt}
	s.writes = append(s.writes, key)
	return nil
}

func (s *fakeTokenStore) GetLatestAPIToken() (string, string, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return "", "", nil, s.readErr
	}
	var bestKey string
	var best storedToken
	for key, entry := range s.tokens {
		if entry.token == "" {
			continue
		}
		if bestKey == "" ||
			(entry.expiresAt != nil && (best.expiresAt == nil || entry.expiresAt.After(*best.expiresAt))) {
			bestKey, best = key, entry
		}
	}
	return bestKey, best.token, best.expiresAt, nil
}

// tokenServer serves a fixed JSON body for every POST and counts hits.
func tokenServer(t *testing.T, status int, body string) (*httptest.Server, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTokenTestClient(tokenURL string, store *fakeTokenStore, now func() time.Time) *Client {
	var tokens TokenStore
	if store != nil {
		tokens = store
	}
	c := NewClient("", tokenURL, "client-id", "client-secret", tokens, nil, nil)
	if now != nil {
		c.now = now
	}
	return c
}

func TestGetAccessTokenReusesMemoryToken(t *testing.T) {
	srv, hits := tokenServer(t, http.StatusOK, `{"access_token":"fresh"}`)
	now := time.Now()
	c := newTokenTestClient(srv.URL, nil, func() time.Time { return now })

	c.accessToken = "cached"
	c.tokenExpiresAt = now.Add(5 * time.Minute)

	assert.Equal(t, "cached", c.getAccessToken(context.Background()))
	assert.Equal(t, 0, *hits)
}

func TestGetAccessTokenRefreshesNearExpiry(t *testing.T) {
	srv, hits := tokenServer(t, http.StatusOK, `{"access_token":"fresh","expires_in":3600}`)
	store := newFakeTokenStore()
	now := time.Now()
	c := newTokenTestClient(srv.URL, store, func() time.Time { return now })

	// 30s left is inside the validity margin, so the token must be replaced.
	c.accessToken = "stale"
	c.tokenExpiresAt = now.Add(30 * time.Second)

	assert.Equal(t, "fresh", c.getAccessToken(context.Background()))
	assert.Equal(t, 1, *hits)

	stored, expiresAt, err := store.GetAPIToken(c.tokenKey())
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored)
	require.NotNil(t, expiresAt)
	assert.WithinDuration(t, now.Add(time.Hour), *expiresAt, time.Second)
}

func TestGetAccessTokenBacksOffAfterFailure(t *testing.T) {
	srv, hits := tokenServer(t, http.StatusInternalServerError, `upstream broken`)
	now := time.Now()
	c := newTokenTestClient(srv.URL, nil, func() time.Time { return now })

	assert.Equal(t, "", c.getAccessToken(context.Background()))
	assert.Equal(t, 1, *hits)

	// Inside the backoff window no further attempt is made.
	assert.Equal(t, "", c.getAccessToken(context.Background()))
	assert.Equal(t, 1, *hits)

	// Once the backoff elapses the fetch is retried.
	now = now.Add(tokenFetchBackoff + time.Second)
	assert.Equal(t, "", c.getAccessToken(context.Background()))
	assert.Equal(t, 2, *hits)
}

func TestGetAccessTokenWithoutCredentials(t *testing.T) {
	srv, hits := tokenServer(t, http.StatusOK, `{"access_token":"fresh"}`)
	c := NewClient("", srv.URL, "", "", nil, nil, nil)

	assert.Equal(t, "", c.getAccessToken(context.Background()))
	assert.Equal(t, 0, *hits)
}

func TestFetchTokenFieldPriority(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"access_token", `{"access_token":"a","token":"b","jwt":"c"}`, "a"},
		{"token", `{"token":"b","jwt":"c"}`, "b"},
		{"jwt", `{"jwt":"c"}`, "c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := tokenServer(t, http.StatusOK, tt.body)
			c := newTokenTestClient(srv.URL, nil, nil)

			token, _, err := c.fetchToken(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
		})
	}
}

func TestFetchTokenWithoutTokenField(t *testing.T) {
	srv, _ := tokenServer(t, http.StatusOK, `{"status":"ok"}`)
	c := newTokenTestClient(srv.URL, nil, nil)

	_, _, err := c.fetchToken(context.Background())
	assert.Error(t, err)
}

func TestFetchTokenExpiryPriority(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	exp := time.Date(2026, 8, 23, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		body string
		want time.Time
	}{
		{"expires_in", `{"token":"t","expires_in":120}`, now.Add(120 * time.Second)},
		{"expires_in wins over exp", fmt.Sprintf(`{"token":"t","expires_in":120,"exp":%d}`, exp.Unix()), now.Add(120 * time.Second)},
		{"exp", fmt.Sprintf(`{"token":"t","exp":%d}`, exp.Unix()), exp},
		{"expires_at", `{"token":"t","expires_at":"2026-08-23T14:30:00Z"}`, exp},
		{"default lifetime", `{"token":"t"}`, now.Add(time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := tokenServer(t, http.StatusOK, tt.body)
			c := newTokenTestClient(srv.URL, nil, func() time.Time { return now })

			_, expiresAt, err := c.fetchToken(context.Background())
			require.NoError(t, err)
			assert.WithinDuration(t, tt.want, expiresAt, time.Second)
		})
	}
}

func TestRecoverStoredTokenChain(t *testing.T) {
	now := time.Now()
	valid := now.Add(time.Hour)
	expired := now.Add(-time.Minute)

	t.Run("endpoint key wins", func(t *testing.T) {
		store := newFakeTokenStore()
		c := newTokenTestClient("https://auth.example/token", store, func() time.Time { return now })
		store.tokens[c.tokenKey()] = storedToken{token: "primary", expiresAt: &valid}
		store.tokens[legacyTokenKey] = storedToken{token: "legacy", expiresAt: &valid}

		token, _ := c.recoverStoredToken(now)
		assert.Equal(t, "primary", token)
	})

	t.Run("expired primary falls to legacy", func(t *testing.T) {
		store := newFakeTokenStore()
		c := newTokenTestClient("https://auth.example/token", store, func() time.Time { return now })
		store.tokens[c.tokenKey()] = storedToken{token: "primary", expiresAt: &expired}
		store.tokens[legacyTokenKey] = storedToken{token: "legacy", expiresAt: &valid}

		token, _ := c.recoverStoredToken(now)
		assert.Equal(t, "legacy", token)
	})

	t.Run("latest token is the last resort", func(t *testing.T) {
		store := newFakeTokenStore()
		c := newTokenTestClient("https://auth.example/token", store, func() time.Time { return now })
		store.tokens["token:https://other.example"] = storedToken{token: "other", expiresAt: &valid}

		token, _ := c.recoverStoredToken(now)
		assert.Equal(t, "other", token)
	})

	t.Run("expired everywhere yields nothing", func(t *testing.T) {
		store := newFakeTokenStore()
		c := newTokenTestClient("https://auth.example/token", store, func() time.Time { return now })
		store.tokens[c.tokenKey()] = storedToken{token: "primary", expiresAt: &expired}

		token, _ := c.recoverStoredToken(now)
		assert.Equal(t, "", token)
	})

	t.Run("store read error gives up to live fetch", func(t *testing.T) {
		store := newFakeTokenStore()
		store.readErr = fmt.Errorf("disk on fire")
		c := newTokenTestClient("https://auth.example/token", store, func() time.Time { return now })

		token, _ := c.recoverStoredToken(now)
		assert.Equal(t, "", token)
	})
}

func TestGetAccessTokenRecoversFromStore(t *testing.T) {
	srv, hits := tokenServer(t, http.StatusOK, `{"access_token":"fresh"}`)
	store := newFakeTokenStore()
	now := time.Now()
	c := newTokenTestClient(srv.URL, store, func() time.Time { return now })

	valid := now.Add(time.Hour)
	store.tokens[c.tokenKey()] = storedToken{token: "durable", expiresAt: &valid}

	assert.Equal(t, "durable", c.getAccessToken(context.Background()))
	assert.Equal(t, 0, *hits)

	// Recovered token is kept in memory for the next call.
	assert.Equal(t, "durable", c.accessToken)
}

func TestInvalidateToken(t *testing.T) {
	store := newFakeTokenStore()
	c := newTokenTestClient("https://auth.example/token", store, nil)

	valid := time.Now().Add(time.Hour)
	c.accessToken = "doomed"
	c.tokenExpiresAt = valid
	store.tokens[c.tokenKey()] = storedToken{token: "doomed", expiresAt: &valid}

	c.invalidateToken()

	assert.Equal(t, "", c.accessToken)
	stored, _, err := store.GetAPIToken(c.tokenKey())
	require.NoError(t, err)
	assert.Equal(t, "", stored)
}
