package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-alliance-bot/internal/sysutil"
)

// Intents needed for role-grant triggers and interactions.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

// NewSession creates an unopened bot session with member caching enabled so
// member updates carry the previous role set.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	s.State.TrackMembers = true
	s.State.TrackRoles = true
	return s, nil
}

// Bot owns the gateway connection and routes events to a Handler.
type Bot struct {
	Session *discordgo.Session
	Handler *Handler

	// AppID falls back to the logged-in user id.
	AppID string
	// GuildID registers commands for one guild instead of globally.
	GuildID string
	// SyncCommands overwrites the slash command set on ready.
	SyncCommands bool
}

// Run opens the gateway and blocks until ctx is cancelled. Event handlers run
// with contexts derived from ctx.
func (b *Bot) Run(ctx context.Context) error {
	removers := []func(){
		b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
			log.Info().Str("user", r.User.String()).Int("guilds", len(r.Guilds)).Msg("logged in")
			if !b.SyncCommands {
				return
			}
			appID := sysutil.FirstNonEmpty(b.AppID, r.User.ID)
			if err := SyncCommands(ctx, b.Session, appID, b.GuildID); err != nil {
				log.Error().Err(err).Msg("slash command registration failed")
			}
		}),
		b.Session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
			b.Handler.OnMemberUpdate(ctx, e)
		}),
		b.Session.AddHandler(func(_ *discordgo.Session, e *discordgo.InteractionCreate) {
			b.Handler.OnInteraction(ctx, e)
		}),
	}
	defer func() {
		for _, rm := range removers {
			rm()
		}
	}()

	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	<-ctx.Done()
	log.Info().Msg("closing gateway")
	if err := b.Session.Close(); err != nil {
		return fmt.Errorf("close gateway: %w", err)
	}
	return nil
}
