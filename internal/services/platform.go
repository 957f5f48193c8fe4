package services

import (
	"context"
	"time"
)

// Role is a community role as seen by the engine.
type Role struct {
	ID   string
	Name string
}

// Member is a snapshot of a community member fetched from the chat platform.
type Member struct {
	ID string
	// Username is the account-wide display name, the global name when set.
	Username string
	Nickname string
	Roles    []Role
}

// RoleIDs returns the ids of the member's roles.
func (m Member) RoleIDs() []string {
	ids := make([]string, 0, len(m.Roles))
	for _, r := range m.Roles {
		ids = append(ids, r.ID)
	}
	return ids
}

// DisplayName is the nickname when set, else the username.
func (m Member) DisplayName() string {
	if m.Nickname != "" {
		return m.Nickname
	}
	return m.Username
}

// roleName returns the name of roleID if the member holds it.
func (m Member) roleName(roleID string) string {
	for _, r := range m.Roles {
		if r.ID == roleID {
			return r.Name
		}
	}
	return ""
}

// Actor is the party performing a decision or an administrative action.
// Admin is the platform's administrative capability.
type Actor struct {
	ID      string
	Tag     string
	RoleIDs []string
	Admin   bool
}

// Label is the human-readable name used in audit lines.
func (a Actor) Label() string {
	if a.Tag != "" {
		return a.Tag
	}
	if a.ID != "" {
		return "<@" + a.ID + ">"
	}
	return "system"
}

// CollectionTarget identifies one pending IGN collection: who is asked, and
// for which alliance role. It is what the collection form carries.
type CollectionTarget struct {
	CommunityID string
	MemberID    string
	RoleID      string
	RoleName    string
	Prefix      string
}

// ApprovalCard is the message posted to an alliance's approval channel.
type ApprovalCard struct {
	CommunityID string
	ChannelID   string
	RequestID   string
	MemberID    string
	RoleID      string
	IGN         string
	// Preview is the nickname the member gets if approved.
	Preview   string
	CreatedAt time.Time
}

// Platform is the chat-platform collaborator consumed by the engine.
//
// Member returns an error wrapping ErrNotFound when the member is no longer
// in the community. CheckApprovalChannel returns an error wrapping
// ErrChannelUnavailable when the channel is missing or not text based.
type Platform interface {
	Member(ctx context.Context, communityID, memberID string) (*Member, error)
	PromptIGN(ctx context.Context, target CollectionTarget) error
	CheckApprovalChannel(ctx context.Context, communityID, channelID string) error
	PostApproval(ctx context.Context, card ApprovalCard) error
	SetNickname(ctx context.Context, communityID, memberID, nickname, reason string) error
	AddRole(ctx context.Context, communityID, memberID, roleID string) error
	RoleIDByName(ctx context.Context, communityID, name string) (string, bool, error)
	SendDM(ctx context.Context, memberID, content string) error
}

// Notifier posts human-readable audit lines. Errors are logged and dropped by
// the callers; the audit channel is diagnostic only.
type Notifier interface {
	Audit(ctx context.Context, communityID, line string) error
}
