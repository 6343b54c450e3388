// Package embed builds the Discord message embeds used by the slash
// commands.
package embed

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/arpg-timeline/discord-season-notify/api"
)

const (
	colorGood = 0x00AA88
	colorBad  = 0xE02B2B
	colorInfo = 0x5865F2
)

// Status summarizes a guild's notification configuration.
func Status(guildName string, enabled bool, permOK bool, games []api.Game, toggles map[string]bool) *discordgo.MessageEmbed {
	color := colorGood
	state := "enabled"
	if !enabled {
		color = colorBad
		state = "disabled"
	}

	perm := "✅ Can create scheduled events"
	if !permOK {
		perm = "❌ Missing the Manage Events permission"
	}

	embed := &discordgo.MessageEmbed{
		Title:       "aRPG Timeline settings",
		Description: fmt.Sprintf("Season notifications for **%s** are **%s**.", guildName, state),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "Permissions",
				Value: perm,
			},
			{
				Name:  "Games",
				Value: gameList(games, toggles),
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Games are off by default. Opt in with /arpg-toggle-game.",
		},
	}
	return embed
}

// gameList renders the known games with their per-guild toggle state. Games a
// guild toggled that are no longer in the catalog are listed too, so stale
// opt-ins stay visible.
func gameList(games []api.Game, toggles map[string]bool) string {
	if len(games) == 0 && len(toggles) == 0 {
		return "No games available right now."
	}

	known := make(map[string]bool, len(games))
	var lines []string
	for _, game := range games {
		known[game.Slug] = true
		lines = append(lines, fmt.Sprintf("%s `%s` — %s", toggleMark(toggles[game.Slug]), game.Slug, game.Name))
	}

	var stale []string
	for slug, on := range toggles {
		if !known[slug] {
			stale = append(stale, fmt.Sprintf("%s `%s`", toggleMark(on), slug))
		}
	}
	sort.Strings(stale)
	lines = append(lines, stale...)

	return strings.Join(lines, "\n")
}

func toggleMark(on bool) string {
	if on {
		return "🔔"
	}
	return "🔕"
}

// SeasonList renders the current and upcoming seasons across all games.
func SeasonList(seasons []api.Season) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Active and upcoming seasons",
		Color: colorInfo,
	}

	if len(seasons) == 0 {
		embed.Description = "No season data available right now. Try again later."
		return embed
	}

	now := time.Now()
	for _, season := range seasons {
		var parts []string
		if season.StartsAt != nil {
			if season.StartsAt.After(now) {
				parts = append(parts, fmt.Sprintf("Starts <t:%d:R>", season.StartsAt.Unix()))
			} else {
				parts = append(parts, fmt.Sprintf("Started <t:%d:R>", season.StartsAt.Unix()))
			}
		} else {
			parts = append(parts, "Start date unknown")
		}
		if season.EndsAt != nil {
			parts = append(parts, fmt.Sprintf("ends <t:%d:R>", season.EndsAt.Unix()))
		}
		if season.URL != "" {
			parts = append(parts, fmt.Sprintf("[details](%s)", season.URL))
		}

		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%s — %s", season.GameName, season.Title),
			Value: strings.Join(parts, " · "),
		})
	}

	return embed
}

// PermissionCheck reports whether the bot can create scheduled events.
func PermissionCheck(ok bool) *discordgo.MessageEmbed {
	if ok {
		return &discordgo.MessageEmbed{
			Title:       "Permission check",
			Description: "✅ The bot can create scheduled events in this server.",
			Color:       colorGood,
		}
	}
	return &discordgo.MessageEmbed{
		Title:       "Permission check",
		Description: "❌ The bot is missing the **Manage Events** permission. Grant it to the bot's role and run this check again.",
		Color:       colorBad,
	}
}

// PermissionCheckFailed is shown when an enable request is refused because
// the bot could not create events anyway.
func PermissionCheckFailed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Missing permissions",
		Description: "Notifications stay off until the bot has the **Manage Events** permission. Grant it and try again, or run /arpg-check-permissions.",
		Color:       colorBad,
	}
}
