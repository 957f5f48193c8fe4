package main

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-alliance-bot/internal/discord"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(a.cfg.DB)
			if err != nil {
				return err
			}
			closeDB(db)
			log.Info().Str("driver", a.cfg.DB.Driver).Msg("schema up to date")
			return nil
		},
	}
}

func (a *app) commandsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Manage the bot's slash commands",
	}
	var guildID string
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Overwrite the registered slash commands and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.RequireDiscord(); err != nil {
				return err
			}
			s, err := discord.NewSession(a.cfg.Discord.Token)
			if err != nil {
				return err
			}
			appID := a.cfg.Discord.AppID
			if appID == "" {
				me, err := s.User("@me", discordgo.WithContext(cmd.Context()))
				if err != nil {
					return fmt.Errorf("resolve application id: %w", err)
				}
				appID = me.ID
			}
			if guildID == "" {
				guildID = a.cfg.Discord.GuildID
			}
			return discord.SyncCommands(cmd.Context(), s, appID, guildID)
		},
	}
	sync.Flags().StringVar(&guildID, "guild", "", "register for one guild instead of globally (defaults to DISCORD_GUILD_ID)")
	cmd.AddCommand(sync)
	return cmd
}
