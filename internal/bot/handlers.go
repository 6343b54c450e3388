package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/arpg-timeline/discord-season-notify/api"
	"github.com/arpg-timeline/discord-season-notify/internal/config"
	"github.com/arpg-timeline/discord-season-notify/internal/embed"
)

func (b *Bot) ready(s *discordgo.Session, event *discordgo.Ready) {
	log.Info().Msg("Bot is ready")
	b.registerCommands()
	b.updateBotStatus()
}

func (b *Bot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID == "" {
		b.respondToInteraction(s, i, "This command can only be used in a server.", true)
		return
	}

	name := i.ApplicationCommandData().Name

	// Configuration changes are restricted to the server owner.
	switch name {
	case "arpg-enable", "arpg-toggle-game":
		if !b.isGuildOwner(s, i) {
			b.respondToInteraction(s, i, "Only the server owner can use this command.", true)
			return
		}
	}

	switch name {
	case "arpg-enable":
		b.handleEnableCommand(s, i)
	case "arpg-toggle-game":
		b.handleToggleGameCommand(s, i)
	case "arpg-status":
		b.handleStatusCommand(s, i)
	case "arpg-seasons":
		b.handleSeasonsCommand(s, i)
	case "arpg-check-permissions":
		b.handleCheckPermissionsCommand(s, i)
	}
}

func (b *Bot) isGuildOwner(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.Member == nil || i.Member.User == nil {
		return false
	}
	// The bot owner may configure any guild, mainly for support.
	if config.BotOwnerID != "" && i.Member.User.ID == config.BotOwnerID {
		return true
	}
	guild, err := s.State.Guild(i.GuildID)
	if err != nil {
		guild, err = s.Guild(i.GuildID)
		if err != nil {
			log.Error().Err(err).Str("guild", i.GuildID).Msg("Could not resolve guild for owner check")
			return false
		}
	}
	return i.Member.User.ID == guild.OwnerID
}

func (b *Bot) handleEnableCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	enabled := i.ApplicationCommandData().Options[0].BoolValue()

	if enabled && !canManageEvents(s, i.GuildID) {
		b.respondWithEmbed(s, i, embed.PermissionCheckFailed(), false)
		return
	}

	if err := b.Repo.EnsureGuild(i.GuildID); err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Msg("Error ensuring guild settings")
	}
	if err := b.Repo.SetGuildEnabled(i.GuildID, enabled); err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Msg("Error updating guild settings")
		b.respondToInteraction(s, i, "An error occurred while saving the setting. Please try again later.", true)
		return
	}

	msg := "Notifications disabled."
	if enabled {
		msg = "Notifications enabled. The bot has the required permissions."
	}
	b.respondToInteraction(s, i, msg, false)
}

func (b *Bot) handleToggleGameCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	slug := strings.ToLower(strings.TrimSpace(options[0].StringValue()))
	enabled := options[1].BoolValue()

	if slug == "" {
		b.respondToInteraction(s, i, "Please provide a game slug. Use /arpg-status to see known games.", true)
		return
	}

	if enabled && !canManageEvents(s, i.GuildID) {
		b.respondWithEmbed(s, i, embed.PermissionCheckFailed(), false)
		return
	}

	// Validate the slug against the catalog when one is available. An empty
	// catalog means the API is unreachable; accept the toggle rather than
	// block configuration on an outage.
	ctx := context.Background()
	games := b.API.CachedGames(ctx, api.DefaultGamesTTL)
	if len(games) > 0 && !knownGame(games, slug) {
		b.respondToInteraction(s, i,
			fmt.Sprintf("Unknown game `%s`. Use /arpg-status to see the tracked games.", slug), true)
		return
	}

	if err := b.Repo.SetGameToggle(i.GuildID, slug, enabled); err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Str("game", slug).Msg("Error updating game toggle")
		b.respondToInteraction(s, i, "An error occurred while saving the toggle. Please try again later.", true)
		return
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	b.respondToInteraction(s, i, fmt.Sprintf("Toggled `%s`: %s.", slug, state), false)
}

func (b *Bot) handleStatusCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := b.Repo.EnsureGuild(i.GuildID); err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Msg("Error ensuring guild settings")
	}
	settings, err := b.Repo.GetGuildSettings(i.GuildID)
	if err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Msg("Error reading guild settings")
		b.respondToInteraction(s, i, "An error occurred while reading settings. Please try again later.", true)
		return
	}
	toggles, err := b.Repo.GetGameToggles(i.GuildID)
	if err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Msg("Error reading game toggles")
		toggles = map[string]bool{}
	}

	games := b.API.CachedGames(context.Background(), api.DefaultGamesTTL)
	guildName := i.GuildID
	if guild, err := s.State.Guild(i.GuildID); err == nil {
		guildName = guild.Name
	}

	permOK := canManageEvents(s, i.GuildID)
	b.respondWithEmbed(s, i, embed.Status(guildName, settings.NotificationsEnabled, permOK, games, toggles), false)
}

func (b *Bot) handleSeasonsCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		log.Error().Err(err).Msg("Error deferring interaction")
		return
	}

	forceRefresh := false
	for _, option := range i.ApplicationCommandData().Options {
		if option.Name == "refresh" {
			forceRefresh = option.BoolValue()
		}
	}

	seasons := b.API.CachedActiveSeasons(context.Background(), api.DefaultSeasonsTTL, forceRefresh)

	_, err = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed.SeasonList(seasons)},
	})
	if err != nil {
		log.Error().Err(err).Msg("Error sending seasons list")
	}
}

func (b *Bot) handleCheckPermissionsCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.respondWithEmbed(s, i, embed.PermissionCheck(canManageEvents(s, i.GuildID)), false)
}

func knownGame(games []api.Game, slug string) bool {
	for _, game := range games {
		if game.Slug == slug {
			return true
		}
	}
	return false
}

func (b *Bot) respondToInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Error responding to interaction")
	}
}

func (b *Bot) respondWithEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, e *discordgo.MessageEmbed, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{e},
			Flags:  flags,
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Error responding to interaction")
	}
}
