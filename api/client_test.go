package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cacheEntry struct {
	value     string
	expiresAt *time.Time
}

// fakeCacheStore is an in-memory CacheStore with injectable read errors.
type fakeCacheStore struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	readErr error
	writes  int
}

func newFakeCacheStore() *fakeCacheStore {
	return &fakeCacheStore{entries: map[string]cacheEntry{}}
}

func (s *fakeCacheStore) GetAPICache(key string) (string, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return "", nil, s.readErr
	}
	entry := s.entries[key]
	return entry.value, entry.expiresAt, nil
}

func (s *fakeCacheStore) SetAPICache(key, value string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cacheEntry{value: value, expiresAt: expiresAt}
	s.writes++
	return nil
}

func (s *fakeCacheStore) put(key, value string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cacheEntry{value: value, expiresAt: &expiresAt}
}

// apiServer serves canned JSON per path and counts requests per path.
func apiServer(t *testing.T, responses map[string]string) (*httptest.Server, map[string]*int) {
	t.Helper()
	counts := map[string]*int{}
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if counts[r.URL.Path] == nil {
			counts[r.URL.Path] = new(int)
		}
		*counts[r.URL.Path]++
		mu.Unlock()

		body, ok := responses[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, counts
}

func pathHits(counts map[string]*int, path string) int {
	if counts[path] == nil {
		return 0
	}
	return *counts[path]
}

func TestCachedGamesFreshCacheAvoidsHTTP(t *testing.T) {
	srv, counts := apiServer(t, map[string]string{
		"/games": `{"games":[{"slug":"live","name":"Live"}]}`,
	})
	cache := newFakeCacheStore()
	c := NewClient(srv.URL, "", "", "", nil, cache, nil)

	payload, err := json.Marshal([]Game{{Slug: "cached", Name: "Cached", Categories: []string{}}})
	require.NoError(t, err)
	cache.put(gamesCacheKey, string(payload), time.Now().Add(time.Minute))

	games := c.CachedGames(context.Background(), DefaultGamesTTL)
	require.Len(t, games, 1)
	assert.Equal(t, "cached", games[0].Slug)
	assert.Equal(t, 0, pathHits(counts, "/games"))
}

func TestCachedGamesExpiredCacheFetchesLive(t *testing.T) {
	srv, counts := apiServer(t, map[string]string{
		"/games": `{"games":[{"slug":"live","name":"Live"}]}`,
	})
	cache := newFakeCacheStore()
	c := NewClient(srv.URL, "", "", "", nil, cache, nil)

	payload, _ := json.Marshal([]Game{{Slug: "cached", Name: "Cached"}})
	cache.put(gamesCacheKey, string(payload), time.Now().Add(-time.Second))

	games := c.CachedGames(context.Background(), DefaultGamesTTL)
	require.Len(t, games, 1)
	assert.Equal(t, "live", games[0].Slug)
	assert.Equal(t, 1, pathHits(counts, "/games"))

	// The live result refreshed the cache.
	value, expiresAt, err := cache.GetAPICache(gamesCacheKey)
	require.NoError(t, err)
	assert.Contains(t, value, "live")
	require.NotNil(t, expiresAt)
	assert.WithinDuration(t, time.Now().Add(DefaultGamesTTL), *expiresAt, 5*time.Second)
}

func TestCachedGamesCorruptCacheFallsBack(t *testing.T) {
	srv, counts := apiServer(t, map[string]string{
		"/games": `{"games":[{"slug":"live","name":"Live"}]}`,
	})
	cache := newFakeCacheStore()
	c := NewClient(srv.URL, "", "", "", nil, cache, nil)

	cache.put(gamesCacheKey, `{{{not json`, time.Now().Add(time.Minute))

	games := c.CachedGames(context.Background(), DefaultGamesTTL)
	require.Len(t, games, 1)
	assert.Equal(t, "live", games[0].Slug)
	assert.Equal(t, 1, pathHits(counts, "/games"))
}

func TestCachedGamesEmptyResultNotCached(t *testing.T) {
	srv, _ := apiServer(t, map[string]string{
		"/games": `{"games":[]}`,
	})
	cache := newFakeCacheStore()
	c := NewClient(srv.URL, "", "", "", nil, cache, nil)

	games := c.CachedGames(context.Background(), DefaultGamesTTL)
	assert.Empty(t, games)
	assert.Equal(t, 0, cache.writes)
}

func TestCachedActiveSeasonsForceRefresh(t *testing.T) {
	srv, counts := apiServer(t, map[string]string{
		"/games/seasons": `{"seasons":[{"game":"poe","current":{"name":"Live","start":"2026-08-01T00:00:00Z"}}]}`,
	})
	cache := newFakeCacheStore()
	c := NewClient(srv.URL, "", "", "", nil, cache, nil)

	payload, _ := json.Marshal([]Season{{GameSlug: "poe", SeasonKey: "Cached"}})
	cache.put(seasonsCacheKey, string(payload), time.Now().Add(time.Minute))

	// Without force the fresh cache is served.
	seasons := c.CachedActiveSeasons(context.Background(), DefaultSeasonsTTL, false)
	require.Len(t, seasons, 1)
	assert.Equal(t, "Cached", seasons[0].SeasonKey)
	assert.Equal(t, 0, pathHits(counts, "/games/seasons"))

	// Force refresh bypasses it.
	seasons = c.CachedActiveSeasons(context.Background(), DefaultSeasonsTTL, true)
	require.Len(t, seasons, 1)
	assert.Equal(t, "Live:1785542400", seasons[0].SeasonKey)
	assert.Equal(t, 1, pathHits(counts, "/games/seasons"))
}

func TestFetchActiveSeasonsNextBlockDedup(t *testing.T) {
	// The same block appears as current and next; only one season survives.
	srv, _ := apiServer(t, map[string]string{
		"/games/seasons": `{"seasons":[{
			"game":"poe",
			"current":{"name":"Abyss","start":"2026-09-01T17:00:00Z"},
			"next":{"name":"Abyss","start":"2026-09-01T17:00:00Z"}
		}]}`,
	})
	c := NewClient(srv.URL, "", "", "", nil, nil, nil)

	seasons := c.FetchActiveSeasons(context.Background())
	require.Len(t, seasons, 1)
	assert.Equal(t, "Abyss:1788282000", seasons[0].SeasonKey)
}

func TestFetchActiveSeasonsCurrentAndNext(t *testing.T) {
	srv, _ := apiServer(t, map[string]string{
		"/games/seasons": `{"seasons":[{
			"game":"last-epoch",
			"current":{"name":"Eternal","start":"2026-06-01T00:00:00Z"},
			"next":{"name":"Harbinger","start":"2026-10-01T00:00:00Z"}
		}]}`,
	})
	c := NewClient(srv.URL, "", "", "", nil, nil, nil)

	seasons := c.FetchActiveSeasons(context.Background())
	require.Len(t, seasons, 2)
	assert.Equal(t, seasons[0].GameSlug, seasons[1].GameSlug)
	assert.NotEqual(t, seasons[0].SeasonKey, seasons[1].SeasonKey)
}

func TestFetchGamesEmptyOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "", "", "", nil, nil, nil)

	assert.Empty(t, c.FetchGames(context.Background()))
	assert.Empty(t, c.FetchActiveSeasons(context.Background()))
}

func TestFetchGamesSkipsMalformedEntries(t *testing.T) {
	srv, _ := apiServer(t, map[string]string{
		"/games": `{"games":[{"slug":"good","name":"Good"},{"name":"no slug"},"not an object"]}`,
	})
	c := NewClient(srv.URL, "", "", "", nil, nil, nil)

	games := c.FetchGames(context.Background())
	require.Len(t, games, 1)
	assert.Equal(t, "good", games[0].Slug)
}

func TestFetchGamesBareArrayResponse(t *testing.T) {
	srv, _ := apiServer(t, map[string]string{
		"/games": `[{"slug":"bare","name":"Bare"}]`,
	})
	c := NewClient(srv.URL, "", "", "", nil, nil, nil)

	games := c.FetchGames(context.Background())
	require.Len(t, games, 1)
	assert.Equal(t, "bare", games[0].Slug)
}

func TestGetJSONRetriesOnceAfter401(t *testing.T) {
	var mu sync.Mutex
	gameHits := 0
	tokensIssued := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokensIssued++
		n := tokensIssued
		mu.Unlock()
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":3600}`, n)
	})
	mux.HandleFunc("/games", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gameHits++
		first := gameHits == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"games":[{"slug":"poe","name":"PoE"}]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, srv.URL+"/token", "id", "secret", nil, nil, nil)

	games := c.FetchGames(context.Background())
	require.Len(t, games, 1)
	assert.Equal(t, 2, gameHits)
	assert.Equal(t, 2, tokensIssued)
}

func TestGetJSONGivesUpAfterSecond401(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "", "", "", nil, nil, nil)

	var out json.RawMessage
	err := c.getJSON(context.Background(), srv.URL+"/games", &out)
	assert.Error(t, err)
	assert.Equal(t, 2, hits)
}
