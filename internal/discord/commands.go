package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-alliance-bot/internal/interaction"
)

// Commands returns the slash command set. Alliance administration requires
// Administrator; /verify requires Manage Nicknames.
func Commands() []*discordgo.ApplicationCommand {
	admin := int64(discordgo.PermissionAdministrator)
	nicks := int64(discordgo.PermissionManageNicknames)
	noDM := false

	role := func(desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: desc, Required: true,
		}
	}
	textChannels := []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     interaction.CmdAllianceAdd,
			Description:              "Add an alliance mapping: role → prefix → approval channel",
			DefaultMemberPermissions: &admin,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				role("Alliance role"),
				{Type: discordgo.ApplicationCommandOptionString, Name: "prefix", Description: "Prefix shown in nickname, e.g. TLG", Required: true, MaxLength: 10},
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Approval channel", Required: true, ChannelTypes: textChannels},
			},
		},
		{
			Name:                     interaction.CmdAllianceEdit,
			Description:              "Edit an alliance mapping",
			DefaultMemberPermissions: &admin,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				role("Alliance role"),
				{Type: discordgo.ApplicationCommandOptionString, Name: "prefix", Description: "New prefix, e.g. TLG", MaxLength: 10},
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "New approval channel", ChannelTypes: textChannels},
				{Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled", Description: "Enable/disable"},
			},
		},
		{
			Name:                     interaction.CmdAllianceApprovers,
			Description:              "Set approver roles for an alliance (optional). If empty, alliance role can approve.",
			DefaultMemberPermissions: &admin,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				role("Alliance role"),
				{Type: discordgo.ApplicationCommandOptionString, Name: "approver_role_ids", Description: "Comma-separated role IDs", Required: true},
			},
		},
		{
			Name:                     interaction.CmdAllianceList,
			Description:              "List configured alliances",
			DefaultMemberPermissions: &admin,
			DMPermission:             &noDM,
		},
		{
			Name:                     interaction.CmdVerify,
			Description:              "Prompt a user to submit IGN and start approval",
			DefaultMemberPermissions: &nicks,
			DMPermission:             &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member", Required: true},
			},
		},
	}
}

// SyncCommands overwrites the registered command set, globally when guildID
// is empty and for that guild otherwise.
func SyncCommands(ctx context.Context, s Session, appID, guildID string) error {
	if appID == "" {
		return fmt.Errorf("sync commands: empty application id")
	}
	cmds, err := s.ApplicationCommandBulkOverwrite(appID, guildID, Commands(), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sync commands: %w", err)
	}
	scope := "global"
	if guildID != "" {
		scope = "guild:" + guildID
	}
	log.Info().Str("scope", scope).Int("count", len(cmds)).Msg("slash commands registered")
	return nil
}
