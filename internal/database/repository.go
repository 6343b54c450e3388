package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arpg-timeline/discord-season-notify/internal/models"
)

// Repository handles database operations for guild settings, season dedup
// state, API tokens and the generic API cache.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository instance
func NewRepository() *Repository {
	return &Repository{db: DB}
}

// --- Guild settings ---

// EnsureGuild creates the default settings row for a guild if it does not
// exist yet. Idempotent; called before any settings read so getters stay
// side-effect free.
func (r *Repository) EnsureGuild(guildID string) error {
	return WithRetry(func() error {
		return r.db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.GuildSettings{
				GuildID:              guildID,
				NotificationsEnabled: true,
				UpdatedAt:            time.Now(),
			}).Error
	})
}

// GetGuildSettings returns the settings row for a guild. A missing row yields
// the defaults (notifications enabled) without writing anything.
func (r *Repository) GetGuildSettings(guildID string) (*models.GuildSettings, error) {
	var settings models.GuildSettings
	err := WithRetry(func() error {
		result := r.db.Where("guild_id = ?", guildID).First(&settings)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil // Not found is not an error
		}
		return result.Error
	})
	if err != nil {
		return nil, err
	}
	if settings.GuildID == "" {
		return &models.GuildSettings{GuildID: guildID, NotificationsEnabled: true}, nil
	}
	return &settings, nil
}

// SetGuildEnabled enables or disables all season notifications for a guild.
func (r *Repository) SetGuildEnabled(guildID string, enabled bool) error {
	return WithRetry(func() error {
		return r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"notifications_enabled", "updated_at"}),
		}).Create(&models.GuildSettings{
			GuildID:              guildID,
			NotificationsEnabled: enabled,
			UpdatedAt:            time.Now(),
		}).Error
	})
}

// --- Per-game toggles ---

// GetGameToggles returns the per-game opt-in map for a guild. Games without
// a row are absent from the map and treated as disabled by callers.
func (r *Repository) GetGameToggles(guildID string) (map[string]bool, error) {
	var rows []models.GuildGameToggle
	err := WithRetry(func() error {
		return r.db.Where("guild_id = ?", guildID).Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	toggles := make(map[string]bool, len(rows))
	for _, row := range rows {
		toggles[row.GameSlug] = row.Enabled
	}
	return toggles, nil
}

// SetGameToggle sets the opt-in state for one game in a guild.
func (r *Repository) SetGameToggle(guildID, gameSlug string, enabled bool) error {
	return WithRetry(func() error {
		return r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}, {Name: "game_slug"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled"}),
		}).Create(&models.GuildGameToggle{
			GuildID:  guildID,
			GameSlug: gameSlug,
			Enabled:  enabled,
		}).Error
	})
}

// --- Seen seasons ---

// IsSeasonSeen reports whether the (guild, game, season) triple was already
// acted upon.
func (r *Repository) IsSeasonSeen(guildID, gameSlug, seasonKey string) (bool, error) {
	var count int64
	err := WithRetry(func() error {
		return r.db.Model(&models.SeenSeason{}).
			Where("guild_id = ? AND game_slug = ? AND season_key = ?", guildID, gameSlug, seasonKey).
			Count(&count).Error
	})
	return count > 0, err
}

// MarkSeasonSeen records the triple. Inserting an existing triple is a no-op.
func (r *Repository) MarkSeasonSeen(guildID, gameSlug, seasonKey string) error {
	return WithRetry(func() error {
		return r.db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.SeenSeason{
				GuildID:   guildID,
				GameSlug:  gameSlug,
				SeasonKey: seasonKey,
				CreatedAt: time.Now(),
			}).Error
	})
}

// --- API tokens ---

// GetAPIToken returns the stored token and expiry for a key.
// Returns ("", nil, nil) if no record is found, which is not an error.
func (r *Repository) GetAPIToken(key string) (string, *time.Time, error) {
	var row models.APIToken
	err := WithRetry(func() error {
		result := r.db.Where("key = ?", key).First(&row)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil
		}
		return result.Error
	})
	if err != nil || row.Key == "" {
		return "", nil, err
	}
	return row.Token, row.ExpiresAt, nil
}

// SetAPIToken creates or updates the token stored under a key. An empty token
// invalidates the entry.
func (r *Repository) SetAPIToken(key, token string, expiresAt *time.Time) error {
	return WithRetry(func() error {
		return r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"token", "expires_at", "updated_at"}),
		}).Create(&models.APIToken{
			Key:       key,
			Token:     token,
			ExpiresAt: expiresAt,
			UpdatedAt: time.Now(),
		}).Error
	})
}

// GetLatestAPIToken returns the non-empty stored token with the furthest
// expiry, preferring tokens that track an expiry at all.
func (r *Repository) GetLatestAPIToken() (string, string, *time.Time, error) {
	var row models.APIToken
	err := WithRetry(func() error {
		result := r.db.Where("token <> ''").
			Order("(CASE WHEN expires_at IS NULL THEN 1 ELSE 0 END), expires_at DESC").
			First(&row)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil
		}
		return result.Error
	})
	if err != nil || row.Key == "" {
		return "", "", nil, err
	}
	return row.Key, row.Token, row.ExpiresAt, nil
}

// --- Generic API cache ---

// GetAPICache returns the cached payload and expiry for a key.
// Returns ("", nil, nil) if no record is found, which is not an error.
func (r *Repository) GetAPICache(key string) (string, *time.Time, error) {
	var row models.APICacheEntry
	err := WithRetry(func() error {
		result := r.db.Where("key = ?", key).First(&row)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil
		}
		return result.Error
	})
	if err != nil || row.Key == "" {
		return "", nil, err
	}
	return row.Value, row.ExpiresAt, nil
}

// SetAPICache creates or updates a cache entry with a fresh expiry.
func (r *Repository) SetAPICache(key, value string, expiresAt *time.Time) error {
	return WithRetry(func() error {
		return r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).Create(&models.APICacheEntry{
			Key:       key,
			Value:     value,
			ExpiresAt: expiresAt,
			UpdatedAt: time.Now(),
		}).Error
	})
}

// --- Service status & API health ---

func (r *Repository) UpsertServiceStatus(status *models.ServiceStatus) error {
	return WithRetry(func() error {
		// GORM's Save works as an upsert for records with a primary key.
		return r.db.Save(status).Error
	})
}

// UpdateAPIHealthBulk adds aggregated request counters for a service.
func (r *Repository) UpdateAPIHealthBulk(serviceName string, totalToAdd, successfulToAdd uint64) error {
	if totalToAdd == 0 && successfulToAdd == 0 {
		return nil
	}

	return WithRetry(func() error {
		return r.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "service_name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_requests":      gorm.Expr("api_health_stats.total_requests + ?", totalToAdd),
				"successful_requests": gorm.Expr("api_health_stats.successful_requests + ?", successfulToAdd),
			}),
		}).Create(&models.APIHealthStat{
			ServiceName:        serviceName,
			TotalRequests:      totalToAdd,
			SuccessfulRequests: successfulToAdd,
		}).Error
	})
}

// --- Guild lifecycle ---

// DeleteGuildData removes all rows belonging to a guild. Used when the bot
// is removed from a server.
func (r *Repository) DeleteGuildData(guildID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("guild_id = ?", guildID).Delete(&models.SeenSeason{}).Error; err != nil {
			return err
		}
		if err := tx.Where("guild_id = ?", guildID).Delete(&models.GuildGameToggle{}).Error; err != nil {
			return err
		}
		if err := tx.Where("guild_id = ?", guildID).Delete(&models.GuildSettings{}).Error; err != nil {
			return err
		}
		return nil
	})
}
