package bot

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/arpg-timeline/discord-season-notify/api"
)

const (
	eventLocation = "aRPG Timeline"
	eventDuration = 2 * time.Hour
)

// eventCreator implements tracker.EventCreator on top of Discord scheduled
// events.
type eventCreator struct {
	session *discordgo.Session
}

func (c *eventCreator) CanManageEvents(guildID string) bool {
	return canManageEvents(c.session, guildID)
}

// CreateSeasonEvent creates an external scheduled event for an upcoming
// season. Only future-dated seasons generate events.
func (c *eventCreator) CreateSeasonEvent(guildID string, season api.Season) error {
	if season.StartsAt == nil || !season.StartsAt.After(time.Now()) {
		return fmt.Errorf("season %s/%s has no future start time", season.GameSlug, season.SeasonKey)
	}

	start := *season.StartsAt
	end := start.Add(eventDuration)
	description := season.URL
	if description == "" {
		description = "New season tracked by aRPG Timeline"
	}

	_, err := c.session.GuildScheduledEventCreate(guildID, &discordgo.GuildScheduledEventParams{
		Name:               fmt.Sprintf("%s: %s", season.GameName, season.Title),
		Description:        description,
		ScheduledStartTime: &start,
		ScheduledEndTime:   &end,
		PrivacyLevel:       discordgo.GuildScheduledEventPrivacyLevelGuildOnly,
		EntityType:         discordgo.GuildScheduledEventEntityTypeExternal,
		EntityMetadata: &discordgo.GuildScheduledEventEntityMetadata{
			Location: eventLocation,
		},
	})
	return err
}

// canManageEvents reports whether the bot holds the Manage Events permission
// in a guild, from the guild owner flag or its role set.
func canManageEvents(s *discordgo.Session, guildID string) bool {
	if s.State.User == nil {
		return false
	}
	botID := s.State.User.ID

	guild, err := s.State.Guild(guildID)
	if err != nil {
		return false
	}
	if guild.OwnerID == botID {
		return true
	}

	member, err := s.State.Member(guildID, botID)
	if err != nil {
		member, err = s.GuildMember(guildID, botID)
		if err != nil {
			return false
		}
	}

	var perms int64
	for _, role := range guild.Roles {
		if role.ID == guildID { // @everyone
			perms |= role.Permissions
			continue
		}
		for _, roleID := range member.Roles {
			if roleID == role.ID {
				perms |= role.Permissions
				break
			}
		}
	}

	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return perms&discordgo.PermissionManageEvents != 0
}
