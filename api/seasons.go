package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// FetchActiveSeasons retrieves active plus upcoming seasons live. Each
// per-game entry can carry a "current" and a "next" block; both are
// converted. A next block whose (game, key) already appeared in this fetch
// is dropped, guarding against the API duplicating an entry across blocks.
// Failures are logged and yield an empty list.
func (c *Client) FetchActiveSeasons(ctx context.Context) []Season {
	if c.BaseURL == "" {
		log.Error().Msg("API base URL not configured")
		return nil
	}
	url := c.BaseURL + "/games/seasons?scope=active"

	var raw json.RawMessage
	if err := c.getJSON(ctx, url, &raw); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Seasons fetch failed")
		return nil
	}

	items := extractArray(raw, "seasons")
	out := make([]Season, 0, len(items))
	for _, item := range items {
		var entry seasonEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			continue // malformed entry, skip
		}
		if current := seasonFromBlock(entry.Game, entry.Current, false); current != nil {
			out = append(out, *current)
		}
		if next := seasonFromBlock(entry.Game, entry.Next, true); next != nil {
			if !containsSeason(out, next.GameSlug, next.SeasonKey) {
				out = append(out, *next)
			}
		}
	}
	return out
}

func containsSeason(seasons []Season, gameSlug, seasonKey string) bool {
	for _, s := range seasons {
		if s.GameSlug == gameSlug && s.SeasonKey == seasonKey {
			return true
		}
	}
	return false
}

// CachedActiveSeasons returns the active-seasons list from the durable cache
// when fresh, unless forceRefresh bypasses it. Live results refresh the cache
// with the given TTL.
func (c *Client) CachedActiveSeasons(ctx context.Context, ttl time.Duration, forceRefresh bool) []Season {
	if !forceRefresh && c.cache != nil {
		value, expiresAt, err := c.cache.GetAPICache(seasonsCacheKey)
		if err != nil {
			log.Warn().Err(err).Msg("Seasons cache read failed")
		} else if value != "" && expiresAt != nil && expiresAt.After(c.now()) {
			var out []Season
			if err := json.Unmarshal([]byte(value), &out); err == nil {
				return out
			}
			// corrupt entry, fall through to a live fetch
		}
	}

	seasons := c.FetchActiveSeasons(ctx)
	if c.cache != nil && len(seasons) > 0 {
		if payload, err := json.Marshal(seasons); err == nil {
			expiresAt := c.now().Add(ttl)
			if err := c.cache.SetAPICache(seasonsCacheKey, string(payload), &expiresAt); err != nil {
				log.Warn().Err(err).Msg("Seasons cache write failed")
			}
		}
	}
	return seasons
}
