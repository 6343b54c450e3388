package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/arpg-timeline/discord-season-notify/api"
	"github.com/arpg-timeline/discord-season-notify/internal/config"
	"github.com/arpg-timeline/discord-season-notify/internal/database"
	"github.com/arpg-timeline/discord-season-notify/internal/models"
	"github.com/arpg-timeline/discord-season-notify/internal/tracker"
)

type Bot struct {
	Session *discordgo.Session
	API     *api.Client
	Repo    *database.Repository
	Engine  *tracker.Engine

	stopChan chan struct{}
}

func New(apiClient *api.Client, repo *database.Repository) (*Bot, error) {
	discord, err := discordgo.New("Bot " + config.DiscordToken)
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		Session:  discord,
		API:      apiClient,
		Repo:     repo,
		stopChan: make(chan struct{}),
	}
	bot.Engine = tracker.NewEngine(repo, repo, &eventCreator{session: discord})

	bot.registerHandlers()

	return bot, nil
}

func (b *Bot) Start() error {
	err := b.Session.Open()
	if err != nil {
		return err
	}

	go b.pollSeasons()
	go b.heartbeat()

	return nil
}

func (b *Bot) Stop() {
	close(b.stopChan)
	b.Session.Close()
}

func (b *Bot) registerHandlers() {
	b.Session.AddHandler(b.ready)
	b.Session.AddHandler(b.interactionCreate)
	b.Session.AddHandler(b.guildCreate)
	b.Session.AddHandler(b.guildDelete)
}

func (b *Bot) guildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	log.Info().Str("guild", event.Guild.Name).Msg("Bot joined a new server")
	b.updateBotStatus()
}

func (b *Bot) guildDelete(s *discordgo.Session, event *discordgo.GuildDelete) {
	if !event.Unavailable {
		log.Info().Str("guild", event.ID).Msg("Bot removed from guild, cleaning up associated data")
		if err := b.Repo.DeleteGuildData(event.ID); err != nil {
			log.Error().Err(err).Str("guild", event.ID).Msg("Error deleting guild data")
		}
	} else {
		log.Warn().Str("guild", event.ID).Msg("Guild became unavailable")
	}

	b.updateBotStatus()
}

// pollSeasons drives the periodic season check. Poll cadence comes from
// configuration; the engine itself keeps no in-process state between cycles.
func (b *Bot) pollSeasons() {
	interval := time.Duration(config.PollIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Season polling started")
	b.runPollCycle()

	for {
		select {
		case <-b.stopChan:
			log.Info().Msg("Season polling stopped")
			return
		case <-ticker.C:
			b.runPollCycle()
		}
	}
}

func (b *Bot) runPollCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	seasons := b.API.CachedActiveSeasons(ctx, api.DefaultSeasonsTTL, false)
	if len(seasons) == 0 {
		return
	}

	guilds := b.Session.State.Guilds
	guildIDs := make([]string, 0, len(guilds))
	for _, guild := range guilds {
		guildIDs = append(guildIDs, guild.ID)
	}

	b.Engine.ProcessCycle(ctx, guildIDs, seasons)
}

func (b *Bot) heartbeat() {
	ticker := time.NewTicker(2 * time.Minute)
	defer ticker.Stop()

	for {
		status := &models.ServiceStatus{
			ServiceName:   "discord_bot",
			Status:        "operational",
			LastHeartbeat: time.Now(),
		}
		if err := b.Repo.UpsertServiceStatus(status); err != nil {
			log.Error().Err(err).Msg("Error sending heartbeat")
		}

		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
		}
	}
}

func (b *Bot) updateBotStatus() {
	serverCount := len(b.Session.State.Guilds)
	status := fmt.Sprintf("Tracking seasons in %d servers", serverCount)
	err := b.Session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{
			{
				Name: status,
				Type: discordgo.ActivityTypeWatching,
			},
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Error updating status")
	}
}
