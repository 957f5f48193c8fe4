// Package services – nickname synchronization
//
// Render builds the canonical display name from the configured template and
// Synchronizer applies it through the chat platform. Applying is best effort:
// a refused mutation (role hierarchy, rate limit) comes back as false and the
// caller decides whether to surface it.
package services

import (
	"context"
	"strings"
	"unicode/utf8"
)

const (
	// MaxNicknameLen is Discord's display-name limit.
	MaxNicknameLen = 32

	// DefaultNickTemplate renders "TLG | Nexus".
	DefaultNickTemplate = "{ALLIANCE} | {IGN}"

	placeholderAlliance = "{ALLIANCE}"
	placeholderIGN      = "{IGN}"

	nicknameReason = "Kingshot nickname policy"
)

// Render substitutes every {ALLIANCE} and {IGN} in template. No other
// placeholders are recognized; values are inserted verbatim, so a prefix that
// happens to contain "{IGN}" is not expanded again.
func Render(template, prefix, ign string) string {
	return strings.NewReplacer(placeholderAlliance, prefix, placeholderIGN, ign).Replace(template)
}

// Truncate clips name to MaxNicknameLen runes.
func Truncate(name string) string {
	if utf8.RuneCountInString(name) <= MaxNicknameLen {
		return name
	}
	return string([]rune(name)[:MaxNicknameLen])
}

// NicknameSetter is the part of Platform the synchronizer needs.
type NicknameSetter interface {
	SetNickname(ctx context.Context, communityID, memberID, nickname, reason string) error
}

// Synchronizer applies canonical nicknames.
type Synchronizer struct {
	Platform NicknameSetter
}

// Apply truncates name and sets it on the member. It reports false instead of
// returning the platform error.
func (s *Synchronizer) Apply(ctx context.Context, communityID, memberID, name string) bool {
	name = Truncate(name)
	if err := s.Platform.SetNickname(ctx, communityID, memberID, name, nicknameReason); err != nil {
		loggerFrom(ctx).Warn().Err(err).
			Str("community_id", communityID).
			Str("member_id", memberID).
			Msg("nickname not applied")
		nicknameApplies.WithLabelValues("failed").Inc()
		return false
	}
	nicknameApplies.WithLabelValues("ok").Inc()
	return true
}
