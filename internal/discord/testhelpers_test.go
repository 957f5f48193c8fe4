package discord

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tbourn/go-alliance-bot/internal/repo"
	"github.com/tbourn/go-alliance-bot/internal/services"
)

// ----- Fake session -----

type sent struct {
	ChannelID string
	Msg       *discordgo.MessageSend
}

type fakeSession struct {
	mu sync.Mutex

	members  map[string]*discordgo.Member // user id -> member
	roles    []*discordgo.Role
	channels []*discordgo.Channel

	dmErr      error
	sendErr    map[string]error // channel id -> error
	nickErr    error
	rolesErr   error
	overwriteE error

	nicknames []string // "user=nick"
	roleAdds  []string // "user+role"
	messages  []sent
	responses []*discordgo.InteractionResponse
	commands  []*discordgo.ApplicationCommand
	cmdScope  string
	chanLooks int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		members: map[string]*discordgo.Member{},
		roles: []*discordgo.Role{
			{ID: "r-tlg", Name: "TLG"},
			{ID: "r-abc", Name: "ABC"},
			{ID: "r-lead", Name: "Leaders"},
			{ID: "r-bot", Name: "Bot"},
			{ID: "r-verified", Name: "Verified"},
		},
		channels: []*discordgo.Channel{
			{ID: "approvals", GuildID: "g1", Name: "approvals", Type: discordgo.ChannelTypeGuildText},
			{ID: "log", GuildID: "g1", Name: "verification-log", Type: discordgo.ChannelTypeGuildText},
			{ID: "voice", GuildID: "g1", Name: "voice", Type: discordgo.ChannelTypeGuildVoice},
			{ID: "foreign", GuildID: "g2", Name: "approvals", Type: discordgo.ChannelTypeGuildText},
		},
		sendErr: map[string]error{},
	}
}

func restErr(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "error"},
	}
}

func (s *fakeSession) addMember(id, nick string, roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[id] = &discordgo.Member{
		GuildID: "g1",
		User:    &discordgo.User{ID: id, Username: "user-" + id},
		Nick:    nick,
		Roles:   roles,
	}
}

func (s *fakeSession) GuildMember(_, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[userID]
	if !ok {
		return nil, restErr(http.StatusNotFound, discordgo.ErrCodeUnknownMember)
	}
	cp := *m
	return &cp, nil
}

func (s *fakeSession) GuildRoles(string, ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rolesErr != nil {
		return nil, s.rolesErr
	}
	return s.roles, nil
}

func (s *fakeSession) GuildChannels(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chanLooks++
	var out []*discordgo.Channel
	for _, c := range s.channels {
		if c.GuildID == guildID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeSession) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.channels {
		if c.ID == channelID {
			return c, nil
		}
	}
	return nil, restErr(http.StatusNotFound, discordgo.ErrCodeUnknownChannel)
}

func (s *fakeSession) GuildMemberNickname(_, userID, nickname string, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nickErr != nil {
		return s.nickErr
	}
	s.nicknames = append(s.nicknames, userID+"="+nickname)
	if m, ok := s.members[userID]; ok {
		m.Nick = nickname
	}
	return nil
}

func (s *fakeSession) GuildMemberRoleAdd(_, userID, roleID string, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleAdds = append(s.roleAdds, userID+"+"+roleID)
	return nil
}

func (s *fakeSession) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dmErr != nil {
		return nil, s.dmErr
	}
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

func (s *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sendErr[channelID]; err != nil {
		return nil, err
	}
	s.messages = append(s.messages, sent{ChannelID: channelID, Msg: data})
	return &discordgo.Message{ID: fmt.Sprintf("m%d", len(s.messages)), ChannelID: channelID}, nil
}

func (s *fakeSession) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
	return nil
}

func (s *fakeSession) ApplicationCommandBulkOverwrite(_, guildID string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overwriteE != nil {
		return nil, s.overwriteE
	}
	s.commands = cmds
	s.cmdScope = guildID
	return cmds, nil
}

// sentTo returns the messages posted to channelID.
func (s *fakeSession) sentTo(channelID string) []*discordgo.MessageSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*discordgo.MessageSend
	for _, m := range s.messages {
		if m.ChannelID == channelID {
			out = append(out, m.Msg)
		}
	}
	return out
}

func (s *fakeSession) auditContains(sub string) bool {
	for _, m := range s.sentTo("log") {
		if strings.Contains(m.Content, sub) {
			return true
		}
	}
	return false
}

func (s *fakeSession) lastResponse(t *testing.T) *discordgo.InteractionResponse {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		t.Fatal("no interaction response")
	}
	return s.responses[len(s.responses)-1]
}

// ----- Handler fixture over SQLite -----

type fixture struct {
	h         *Handler
	session   *fakeSession
	platform  *Platform
	verifier  *services.Verifier
	alliances *repo.Alliances
	requests  *repo.Requests
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "discord_test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	s := newFakeSession()
	p := NewPlatform(s, services.DefaultNickTemplate, "verification-log")
	alliances := &repo.Alliances{DB: db}
	requests := &repo.Requests{DB: db}
	v := services.NewVerifier(alliances, &repo.Members{DB: db}, requests, p, p, services.DefaultPolicy())

	var mu sync.Mutex
	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	v.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Millisecond)
		return clock
	}

	h := &Handler{
		Session:   s,
		Platform:  p,
		Engine:    v,
		Admin:     services.NewAllianceService(alliances, p),
		Timeout:   5 * time.Second,
		IGNMinLen: 2,
		IGNMaxLen: 20,
	}
	return &fixture{h: h, session: s, platform: p, verifier: v, alliances: alliances, requests: requests}
}

func (f *fixture) seedAlliance(t *testing.T, roleID, prefix string, approvers ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.alliances.Upsert(ctx, "g1", roleID, prefix, "approvals"); err != nil {
		t.Fatalf("seed alliance: %v", err)
	}
	if len(approvers) > 0 {
		if _, err := f.alliances.SetApprovers(ctx, "g1", roleID, approvers); err != nil {
			t.Fatalf("seed approvers: %v", err)
		}
	}
}

// ----- Interaction builders -----

func guildMember(id string, perms int64, roles ...string) *discordgo.Member {
	return &discordgo.Member{
		User:        &discordgo.User{ID: id, Username: "user-" + id, Discriminator: "0"},
		Roles:       roles,
		Permissions: perms,
	}
}

func buttonPress(guildID, customID string, by *discordgo.Member, msg *discordgo.Message) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		GuildID: guildID,
		Member:  by,
		Message: msg,
		Data:    discordgo.MessageComponentInteractionData{CustomID: customID},
	}}
}

func dmButtonPress(customID, userID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		User: &discordgo.User{ID: userID, Username: "user-" + userID, Discriminator: "0"},
		Data: discordgo.MessageComponentInteractionData{CustomID: customID},
	}}
}

func modalSubmit(customID, userID, ign string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionModalSubmit,
		User: &discordgo.User{ID: userID, Username: "user-" + userID, Discriminator: "0"},
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: customID,
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: ignInputID, Value: ign},
				}},
			},
		},
	}}
}

func slash(name string, by *discordgo.Member, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "g1",
		Member:  by,
		Data:    discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}
}

func opt(name string, value any) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Value: value}
}

// buttonIDs returns the custom ids of all buttons in a component tree.
func buttonIDs(components []discordgo.MessageComponent) []string {
	var ids []string
	for _, c := range components {
		if row, ok := c.(discordgo.ActionsRow); ok {
			for _, inner := range row.Components {
				if b, ok := inner.(discordgo.Button); ok {
					ids = append(ids, b.CustomID)
				}
			}
		}
	}
	return ids
}
