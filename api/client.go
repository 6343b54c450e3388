package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/arpg-timeline/discord-season-notify/internal/health"
)

const (
	gamesCacheKey   = "games:list"
	seasonsCacheKey = "seasons:active"

	// DefaultGamesTTL is how long the game catalog stays fresh in the cache.
	DefaultGamesTTL = 30 * time.Minute
	// DefaultSeasonsTTL is how long the active-seasons list stays fresh.
	DefaultSeasonsTTL = 5 * time.Minute

	requestTimeout = 15 * time.Second
)

// Client talks to the aRPG Timeline API. It manages the bearer token
// lifecycle and caches the game catalog and active-seasons list through a
// durable TTL cache.
type Client struct {
	BaseURL      string
	TokenURL     string
	clientID     string
	clientSecret string

	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     TokenStore
	cache      CacheStore
	health     *health.Aggregator

	mu             sync.Mutex
	accessToken    string
	tokenExpiresAt time.Time
	tokenFailUntil time.Time

	now func() time.Time
}

// NewClient creates an API client. tokens, cache and aggregator may be nil;
// the client then works without durable state or health reporting.
func NewClient(baseURL, tokenURL, clientID, clientSecret string, tokens TokenStore, cache CacheStore, aggregator *health.Aggregator) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		TokenURL:     strings.TrimSpace(tokenURL),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: requestTimeout},
		limiter:      rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
		tokens:       tokens,
		cache:        cache,
		health:       aggregator,
		now:          time.Now,
	}
}

func (c *Client) recordCall(success bool) {
	if c.health != nil {
		c.health.RecordCall(success)
	}
}

// getJSON performs an authenticated GET. A 401 response invalidates the
// cached token and the request is retried exactly once with a fresh one.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	const maxAuthRetries = 1

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if token := c.getAccessToken(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.recordCall(false)
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt < maxAuthRetries {
			resp.Body.Close()
			c.recordCall(false)
			log.Info().Str("url", url).Msg("Received 401, invalidating token and retrying")
			c.invalidateToken()
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
			resp.Body.Close()
			c.recordCall(false)
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			c.recordCall(false)
			return fmt.Errorf("failed to decode response: %w", err)
		}
		c.recordCall(true)
		return nil
	}
}

// extractArray unwraps either {"<field>": [...]} or a bare top-level array.
func extractArray(raw json.RawMessage, field string) []json.RawMessage {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err == nil {
		inner, ok := wrapper[field]
		if !ok {
			return nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(inner, &items); err != nil {
			return nil
		}
		return items
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}
