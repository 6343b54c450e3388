package api

import (
	"time"
)

// Game is one entry of the tracked-game catalog. Slug is the stable join key
// for all per-guild toggle state.
type Game struct {
	Slug          string   `json:"slug"`
	Name          string   `json:"name"`
	SeasonKeyword string   `json:"seasonKeyword,omitempty"`
	Categories    []string `json:"categories"`
}

// Season is a time-bounded content cycle for a game. Two seasons with equal
// (GameSlug, SeasonKey) are the same real-world season and dedupe to one
// notification. The JSON tags double as the durable cache format.
type Season struct {
	GameSlug      string     `json:"game_slug"`
	GameName      string     `json:"game_name"`
	SeasonKey     string     `json:"season_key"`
	Title         string     `json:"title"`
	StartsAt      *time.Time `json:"starts_at,omitempty"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
	URL           string     `json:"url,omitempty"`
	PatchNotesURL string     `json:"patch_notes_url,omitempty"`
}

// TokenStore persists bearer tokens across restarts.
type TokenStore interface {
	GetAPIToken(key string) (string, *time.Time, error)
	SetAPIToken(key, token string, expiresAt *time.Time) error
	GetLatestAPIToken() (string, string, *time.Time, error)
}

// CacheStore is a generic durable TTL cache of serialized payloads.
type CacheStore interface {
	GetAPICache(key string) (string, *time.Time, error)
	SetAPICache(key, value string, expiresAt *time.Time) error
}
