// Package discord adapts the verification services to Discord through
// github.com/bwmarrin/discordgo. It implements services.Platform and
// services.Notifier over the REST API, registers the slash commands and turns
// gateway events (member updates, interactions) into service calls.
package discord

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// Session is the subset of *discordgo.Session used by the adapter.
type Session interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMemberNickname(guildID, userID, nickname string, options ...discordgo.RequestOption) error
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

var _ Session = (*discordgo.Session)(nil)

// restCode extracts the Discord JSON error code, 0 if err is not a REST error.
func restCode(err error) int {
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Message != nil {
		return rerr.Message.Code
	}
	return 0
}

// isNotFound reports whether err is a 404 or one of the given "unknown
// entity" codes.
func isNotFound(err error, codes ...int) bool {
	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) {
		return false
	}
	if rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound {
		return true
	}
	code := restCode(err)
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}
