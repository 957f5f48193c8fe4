package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/tbourn/go-alliance-bot/internal/services"
	"github.com/tbourn/go-alliance-bot/internal/sysutil"
)

// Platform implements services.Platform and services.Notifier on top of a
// Discord session.
type Platform struct {
	Session Session

	// NickTemplate renders the nickname example shown in the DM prompt.
	NickTemplate string
	// LogChannelName is the guild text channel receiving audit lines.
	LogChannelName string

	mu          sync.Mutex
	logChannels map[string]string // guild -> channel id
}

var (
	_ services.Platform = (*Platform)(nil)
	_ services.Notifier = (*Platform)(nil)
)

// NewPlatform constructs a Platform.
func NewPlatform(s Session, nickTemplate, logChannelName string) *Platform {
	return &Platform{
		Session:        s,
		NickTemplate:   nickTemplate,
		LogChannelName: logChannelName,
		logChannels:    make(map[string]string),
	}
}

// Member fetches a guild member and resolves their role names.
func (p *Platform) Member(ctx context.Context, communityID, memberID string) (*services.Member, error) {
	m, err := p.Session.GuildMember(communityID, memberID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err, discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser) {
			return nil, fmt.Errorf("member %s: %w", memberID, services.ErrNotFound)
		}
		return nil, fmt.Errorf("guild member %s: %w", memberID, err)
	}
	return p.ToMember(ctx, communityID, m)
}

// ToMember converts a discordgo member, looking up the names of its roles.
func (p *Platform) ToMember(ctx context.Context, communityID string, m *discordgo.Member) (*services.Member, error) {
	if m == nil || m.User == nil {
		return nil, fmt.Errorf("member without user: %w", services.ErrInvalidInput)
	}
	names, err := p.roleNames(ctx, communityID)
	if err != nil {
		return nil, err
	}
	out := &services.Member{
		ID:       m.User.ID,
		Username: sysutil.FirstNonEmpty(m.User.GlobalName, m.User.Username),
		Nickname: m.Nick,
		Roles:    make([]services.Role, 0, len(m.Roles)),
	}
	for _, id := range m.Roles {
		out.Roles = append(out.Roles, services.Role{ID: id, Name: names[id]})
	}
	return out, nil
}

func (p *Platform) roleNames(ctx context.Context, communityID string) (map[string]string, error) {
	roles, err := p.Session.GuildRoles(communityID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("guild roles: %w", err)
	}
	names := make(map[string]string, len(roles))
	for _, r := range roles {
		names[r.ID] = r.Name
	}
	return names, nil
}

// PromptIGN sends the collection prompt by direct message.
func (p *Platform) PromptIGN(ctx context.Context, target services.CollectionTarget) error {
	dm, err := p.Session.UserChannelCreate(target.MemberID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open DM: %w", err)
	}
	if _, err := p.Session.ChannelMessageSendComplex(dm.ID, promptMessage(target, p.NickTemplate), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send prompt: %w", err)
	}
	return nil
}

// CheckApprovalChannel verifies that channelID is a text channel of the guild.
func (p *Platform) CheckApprovalChannel(ctx context.Context, communityID, channelID string) error {
	ch, err := p.Session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("channel %s: %v: %w", channelID, err, services.ErrChannelUnavailable)
	}
	if ch.GuildID != communityID || !textBased(ch.Type) {
		return fmt.Errorf("channel %s is not a text channel of this server: %w", channelID, services.ErrChannelUnavailable)
	}
	return nil
}

// PostApproval posts the approval card with Approve/Reject buttons.
func (p *Platform) PostApproval(ctx context.Context, card services.ApprovalCard) error {
	_, err := p.Session.ChannelMessageSendComplex(card.ChannelID, approvalMessage(card), discordgo.WithContext(ctx))
	return err
}

// SetNickname changes the member's guild nickname.
func (p *Platform) SetNickname(ctx context.Context, communityID, memberID, nickname, reason string) error {
	return p.Session.GuildMemberNickname(communityID, memberID, nickname,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
}

// AddRole grants roleID to the member.
func (p *Platform) AddRole(ctx context.Context, communityID, memberID, roleID string) error {
	return p.Session.GuildMemberRoleAdd(communityID, memberID, roleID, discordgo.WithContext(ctx))
}

// RoleIDByName finds a guild role by exact name.
func (p *Platform) RoleIDByName(ctx context.Context, communityID, name string) (string, bool, error) {
	roles, err := p.Session.GuildRoles(communityID, discordgo.WithContext(ctx))
	if err != nil {
		return "", false, fmt.Errorf("guild roles: %w", err)
	}
	for _, r := range roles {
		if r.Name == name {
			return r.ID, true, nil
		}
	}
	return "", false, nil
}

// SendDM sends a plain direct message.
func (p *Platform) SendDM(ctx context.Context, memberID, content string) error {
	dm, err := p.Session.UserChannelCreate(memberID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open DM: %w", err)
	}
	_, err = p.Session.ChannelMessageSendComplex(dm.ID, &discordgo.MessageSend{Content: content}, discordgo.WithContext(ctx))
	return err
}

// Audit posts line to the guild's log channel without pinging anyone.
func (p *Platform) Audit(ctx context.Context, communityID, line string) error {
	chID, err := p.logChannel(ctx, communityID)
	if err != nil {
		return err
	}
	_, err = p.Session.ChannelMessageSendComplex(chID, &discordgo.MessageSend{
		Content:         line,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		// The channel may have been deleted or renamed; look it up again next time.
		p.mu.Lock()
		delete(p.logChannels, communityID)
		p.mu.Unlock()
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

func (p *Platform) logChannel(ctx context.Context, communityID string) (string, error) {
	p.mu.Lock()
	if p.logChannels == nil {
		p.logChannels = make(map[string]string)
	}
	id, ok := p.logChannels[communityID]
	p.mu.Unlock()
	if ok {
		return id, nil
	}

	chans, err := p.Session.GuildChannels(communityID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("guild channels: %w", err)
	}
	for _, c := range chans {
		if c.Name == p.LogChannelName && textBased(c.Type) {
			p.mu.Lock()
			p.logChannels[communityID] = c.ID
			p.mu.Unlock()
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("log channel %q: %w", p.LogChannelName, services.ErrNotFound)
}

func textBased(t discordgo.ChannelType) bool {
	switch t {
	case discordgo.ChannelTypeGuildText,
		discordgo.ChannelTypeGuildNews,
		discordgo.ChannelTypeGuildNewsThread,
		discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread:
		return true
	}
	return false
}
