package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Default IGN bounds, in runes.
const (
	DefaultIGNMinLen = 2
	DefaultIGNMaxLen = 20
)

// Policy is the verification configuration handed to the engine at
// construction. The engine never reads configuration from anywhere else.
type Policy struct {
	// NickTemplate is rendered with Render; DefaultNickTemplate when empty.
	NickTemplate string
	// BypassRoleNames exempts members holding any of these roles.
	BypassRoleNames []string
	// VerifiedRoleName is granted on approval when such a role exists.
	VerifiedRoleName string
	// EnforceOnManualNickChange enables the drift check.
	EnforceOnManualNickChange bool

	IGNMinLen int
	IGNMaxLen int
}

// DefaultPolicy mirrors the stock bot configuration.
func DefaultPolicy() Policy {
	return Policy{
		NickTemplate:     DefaultNickTemplate,
		BypassRoleNames:  []string{"Bot", "Admin"},
		VerifiedRoleName: "Verified",
		IGNMinLen:        DefaultIGNMinLen,
		IGNMaxLen:        DefaultIGNMaxLen,
	}
}

func (p Policy) template() string {
	if p.NickTemplate == "" {
		return DefaultNickTemplate
	}
	return p.NickTemplate
}

func (p Policy) bounds() (int, int) {
	lo, hi := p.IGNMinLen, p.IGNMaxLen
	if lo <= 0 {
		lo = DefaultIGNMinLen
	}
	if hi <= 0 {
		hi = DefaultIGNMaxLen
	}
	return lo, hi
}

// bypassed reports whether m holds one of the bypass roles (matched by name).
func (p Policy) bypassed(m Member) bool {
	for _, r := range m.Roles {
		for _, name := range p.BypassRoleNames {
			if r.Name == name {
				return true
			}
		}
	}
	return false
}

// NormalizeIGN trims and NFC-normalizes raw, then enforces the policy's rune
// bounds (inclusive).
func (p Policy) NormalizeIGN(raw string) (string, error) {
	ign := norm.NFC.String(strings.TrimSpace(raw))
	lo, hi := p.bounds()
	n := utf8.RuneCountInString(ign)
	if n < lo || n > hi {
		return "", fmt.Errorf("IGN must be %d–%d characters: %w", lo, hi, ErrInvalidInput)
	}
	return ign, nil
}
