package bot

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

func (b *Bot) registerCommands() {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "arpg-enable",
			Description: "Enable or disable all season notifications for this server",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Enable or disable all notifications",
					Required:    true,
				},
			},
		},
		{
			Name:        "arpg-toggle-game",
			Description: "Enable or disable season notifications for one game (default is off)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "game",
					Description: "Game slug, e.g. path-of-exile-2",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Enable or disable this game",
					Required:    true,
				},
			},
		},
		{
			Name:        "arpg-status",
			Description: "Show current season notification settings",
		},
		{
			Name:        "arpg-seasons",
			Description: "List currently active and upcoming ARPG seasons",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "refresh",
					Description: "Bypass the cache and fetch live data",
					Required:    false,
				},
			},
		},
		{
			Name:        "arpg-check-permissions",
			Description: "Check if the bot has the permissions needed to create events",
		},
	}

	_, err := b.Session.ApplicationCommandBulkOverwrite(b.Session.State.User.ID, "", commands)
	if err != nil {
		log.Error().Err(err).Msg("Error registering commands")
	}
}
