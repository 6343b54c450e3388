package tracker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arpg-timeline/discord-season-notify/api"
	"github.com/arpg-timeline/discord-season-notify/internal/models"
)

// bootstrapWindow is how far in the past a season start may lie before an
// unseen season is marked silently. Without it, the first poll after install
// would create noise for every long-running season.
const bootstrapWindow = 24 * time.Hour

// SettingsStore provides per-guild notification settings and game toggles.
type SettingsStore interface {
	EnsureGuild(guildID string) error
	GetGuildSettings(guildID string) (*models.GuildSettings, error)
	GetGameToggles(guildID string) (map[string]bool, error)
}

// SeenStore records which (guild, game, season) triples were acted upon.
type SeenStore interface {
	IsSeasonSeen(guildID, gameSlug, seasonKey string) (bool, error)
	MarkSeasonSeen(guildID, gameSlug, seasonKey string) error
}

// EventCreator creates guild calendar events for upcoming seasons.
type EventCreator interface {
	CanManageEvents(guildID string) bool
	CreateSeasonEvent(guildID string, season api.Season) error
}

// Engine decides, per guild and season, whether to create an event, mark the
// season seen silently, or leave it for a later cycle. It keeps no state
// between cycles other than what the stores persist.
type Engine struct {
	settings SettingsStore
	seen     SeenStore
	events   EventCreator

	now func() time.Time
}

// NewEngine creates a decision engine over the given stores.
func NewEngine(settings SettingsStore, seen SeenStore, events EventCreator) *Engine {
	return &Engine{
		settings: settings,
		seen:     seen,
		events:   events,
		now:      time.Now,
	}
}

// ProcessCycle runs one poll cycle over all guilds. A failure in one guild
// never aborts the others.
func (e *Engine) ProcessCycle(ctx context.Context, guildIDs []string, seasons []api.Season) {
	for _, guildID := range guildIDs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := e.ProcessGuild(guildID, seasons); err != nil {
			log.Error().Err(err).Str("guild", guildID).Msg("Error processing guild")
		}
	}
}

// ProcessGuild applies the notification decision procedure to every season
// for one guild.
func (e *Engine) ProcessGuild(guildID string, seasons []api.Season) error {
	if err := e.settings.EnsureGuild(guildID); err != nil {
		return err
	}
	settings, err := e.settings.GetGuildSettings(guildID)
	if err != nil {
		return err
	}
	if settings == nil || !settings.NotificationsEnabled {
		return nil
	}

	toggles, err := e.settings.GetGameToggles(guildID)
	if err != nil {
		return err
	}

	now := e.now()
	for _, season := range seasons {
		// Games default to disabled; an explicit opt-in is required.
		if !toggles[season.GameSlug] {
			log.Debug().Str("guild", guildID).Str("game", season.GameSlug).
				Str("season", season.SeasonKey).Msg("skip: toggle off")
			continue
		}

		seen, err := e.seen.IsSeasonSeen(guildID, season.GameSlug, season.SeasonKey)
		if err != nil {
			log.Error().Err(err).Str("guild", guildID).Str("game", season.GameSlug).
				Msg("Seen-set read failed")
			continue
		}
		if seen {
			continue
		}

		e.decide(guildID, season, now)
	}
	return nil
}

func (e *Engine) decide(guildID string, season api.Season, now time.Time) {
	isUpcoming := season.StartsAt != nil && season.StartsAt.After(now)

	if !isUpcoming && season.StartsAt != nil && now.Sub(*season.StartsAt) > bootstrapWindow {
		// Long-started season observed for the first time; swallow it.
		e.markSeen(guildID, season, "bootstrap")
		return
	}

	if isUpcoming {
		if !e.events.CanManageEvents(guildID) {
			log.Warn().Str("guild", guildID).Str("game", season.GameSlug).
				Str("season", season.SeasonKey).Msg("Missing manage-events permission, will retry")
			return
		}
		if err := e.events.CreateSeasonEvent(guildID, season); err != nil {
			// Left unmarked so the next cycle retries; failures here are
			// expected to be transient.
			log.Warn().Err(err).Str("guild", guildID).Str("game", season.GameSlug).
				Str("season", season.SeasonKey).Msg("Event creation failed, will retry")
			return
		}
		log.Info().Str("guild", guildID).Str("game", season.GameSlug).
			Str("season", season.SeasonKey).Msg("Created scheduled event")
		e.markSeen(guildID, season, "event created")
		return
	}

	// Started within the window: events are only created for future starts.
	e.markSeen(guildID, season, "started already")
}

func (e *Engine) markSeen(guildID string, season api.Season, reason string) {
	if err := e.seen.MarkSeasonSeen(guildID, season.GameSlug, season.SeasonKey); err != nil {
		log.Error().Err(err).Str("guild", guildID).Str("game", season.GameSlug).
			Str("season", season.SeasonKey).Msg("Failed to mark season seen")
		return
	}
	log.Debug().Str("guild", guildID).Str("game", season.GameSlug).
		Str("season", season.SeasonKey).Str("reason", reason).Msg("Marked season seen")
}
