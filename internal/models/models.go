package models

import (
	"time"
)

// GuildSettings holds the global notification switch for a guild.
// Rows are created lazily with notifications enabled.
type GuildSettings struct {
	GuildID              string    `gorm:"primaryKey;column:guild_id"`
	NotificationsEnabled bool      `gorm:"column:notifications_enabled"`
	UpdatedAt            time.Time `gorm:"column:updated_at"`
}

func (GuildSettings) TableName() string {
	return "guild_settings"
}

// GuildGameToggle maps (guild, game) to an explicit opt-in. Games without a
// row are treated as disabled.
type GuildGameToggle struct {
	GuildID  string `gorm:"primaryKey;column:guild_id"`
	GameSlug string `gorm:"primaryKey;column:game_slug"`
	Enabled  bool   `gorm:"column:enabled"`
}

func (GuildGameToggle) TableName() string {
	return "guild_games"
}

// SeenSeason records a (guild, game, season) triple already acted upon.
// Append-only; presence means at-most-once notification is satisfied.
type SeenSeason struct {
	GuildID   string    `gorm:"primaryKey;column:guild_id"`
	GameSlug  string    `gorm:"primaryKey;column:game_slug"`
	SeasonKey string    `gorm:"primaryKey;column:season_key"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (SeenSeason) TableName() string {
	return "seen_seasons"
}

// APIToken is a persisted bearer token. ExpiresAt nil means no expiry tracked.
type APIToken struct {
	Key       string     `gorm:"primaryKey;column:key"`
	Token     string     `gorm:"column:token"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (APIToken) TableName() string {
	return "api_tokens"
}

// APICacheEntry is a generic TTL cache row holding a serialized payload.
type APICacheEntry struct {
	Key       string     `gorm:"primaryKey;column:key"`
	Value     string     `gorm:"column:value"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (APICacheEntry) TableName() string {
	return "api_cache"
}

type ServiceStatus struct {
	ServiceName   string    `gorm:"primaryKey;column:service_name"`
	Status        string    `gorm:"column:status"`
	LastHeartbeat time.Time `gorm:"column:last_heartbeat"`
	Details       string    `gorm:"column:details"`
}

func (ServiceStatus) TableName() string {
	return "service_status"
}

// APIHealthStat accumulates request outcome counters per upstream service.
type APIHealthStat struct {
	ServiceName        string `gorm:"primaryKey;column:service_name"`
	TotalRequests      uint64 `gorm:"column:total_requests"`
	SuccessfulRequests uint64 `gorm:"column:successful_requests"`
}

func (APIHealthStat) TableName() string {
	return "api_health_stats"
}
