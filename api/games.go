package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// FetchGames retrieves the game catalog live. Failures are logged and yield
// an empty list; callers must treat empty as "unavailable", never as "no
// games exist".
func (c *Client) FetchGames(ctx context.Context) []Game {
	if c.BaseURL == "" {
		log.Error().Msg("API base URL not configured")
		return nil
	}
	url := c.BaseURL + "/games"

	var raw json.RawMessage
	if err := c.getJSON(ctx, url, &raw); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Games fetch failed")
		return nil
	}

	items := extractArray(raw, "games")
	out := make([]Game, 0, len(items))
	for _, item := range items {
		var payload gamePayload
		if err := json.Unmarshal(item, &payload); err != nil {
			continue // malformed entry, skip
		}
		if game := normalizeGame(payload); game != nil {
			out = append(out, *game)
		}
	}
	return out
}

// CachedGames returns the catalog from the durable cache when fresh,
// otherwise fetches live and refreshes the cache with the given TTL.
func (c *Client) CachedGames(ctx context.Context, ttl time.Duration) []Game {
	if c.cache != nil {
		value, expiresAt, err := c.cache.GetAPICache(gamesCacheKey)
		if err != nil {
			log.Warn().Err(err).Msg("Games cache read failed")
		} else if value != "" && expiresAt != nil && expiresAt.After(c.now()) {
			var payloads []gamePayload
			if err := json.Unmarshal([]byte(value), &payloads); err == nil {
				out := make([]Game, 0, len(payloads))
				for _, payload := range payloads {
					if game := normalizeGame(payload); game != nil {
						out = append(out, *game)
					}
				}
				return out
			}
			// corrupt entry, fall through to a live fetch
		}
	}

	games := c.FetchGames(ctx)
	if c.cache != nil && len(games) > 0 {
		if payload, err := json.Marshal(games); err == nil {
			expiresAt := c.now().Add(ttl)
			if err := c.cache.SetAPICache(gamesCacheKey, string(payload), &expiresAt); err != nil {
				log.Warn().Err(err).Msg("Games cache write failed")
			}
		}
	}
	return games
}
