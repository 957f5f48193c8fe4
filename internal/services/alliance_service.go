// Package services – AllianceService
//
// AllianceService backs the administrative surface (slash commands and the
// admin HTTP API): it validates prefixes and approver lists, maps repository
// errors onto the service taxonomy and writes an audit line per change.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-alliance-bot/internal/domain"
	"github.com/tbourn/go-alliance-bot/internal/repo"
)

// maxPrefixRunes keeps a prefix short enough to leave room for the IGN.
const maxPrefixRunes = 10

// AllianceStore is the full alliance registry contract.
type AllianceStore interface {
	AllianceRegistry
	Upsert(ctx context.Context, communityID, roleID, prefix, channelID string) (*domain.Alliance, error)
	Update(ctx context.Context, communityID, roleID string, patch domain.AlliancePatch) (*domain.Alliance, error)
	SetApprovers(ctx context.Context, communityID, roleID string, roleIDs []string) (*domain.Alliance, error)
	List(ctx context.Context, communityID string) ([]domain.Alliance, error)
}

// AllianceService administers alliance mappings.
type AllianceService struct {
	Repo     AllianceStore
	Notifier Notifier
}

// NewAllianceService constructs an AllianceService. n may be nil.
func NewAllianceService(r AllianceStore, n Notifier) *AllianceService {
	return &AllianceService{Repo: r, Notifier: n}
}

// Add creates or overwrites the mapping for roleID and enables it.
func (s *AllianceService) Add(ctx context.Context, actor Actor, communityID, roleID, prefix, channelID string) (*domain.Alliance, error) {
	ctx, span := otel.Tracer("services/AllianceService").Start(ctx, "Add",
		trace.WithAttributes(
			attribute.String("community.id", communityID),
			attribute.String("role.id", roleID),
		),
	)
	defer span.End()

	prefix, err := normalizePrefix(prefix)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(roleID) == "" || strings.TrimSpace(channelID) == "" {
		return nil, fmt.Errorf("role and channel are required: %w", ErrInvalidInput)
	}
	a, err := s.Repo.Upsert(ctx, communityID, roleID, prefix, channelID)
	if err != nil {
		return nil, err
	}
	audit(ctx, s.Notifier, communityID, fmt.Sprintf("🛠️ %s updated alliance <@&%s> (prefix: %s, channel: <#%s>)", actor.Label(), roleID, prefix, channelID))
	return a, nil
}

// Edit applies a partial update. ErrNotFound when no mapping exists.
func (s *AllianceService) Edit(ctx context.Context, actor Actor, communityID, roleID string, patch domain.AlliancePatch) (*domain.Alliance, error) {
	ctx, span := otel.Tracer("services/AllianceService").Start(ctx, "Edit",
		trace.WithAttributes(
			attribute.String("community.id", communityID),
			attribute.String("role.id", roleID),
		),
	)
	defer span.End()

	if patch.Prefix != nil {
		p, err := normalizePrefix(*patch.Prefix)
		if err != nil {
			return nil, err
		}
		patch.Prefix = &p
	}
	if patch.ApprovalChannelID != nil && strings.TrimSpace(*patch.ApprovalChannelID) == "" {
		return nil, fmt.Errorf("approval channel must not be empty: %w", ErrInvalidInput)
	}
	a, err := s.Repo.Update(ctx, communityID, roleID, patch)
	if err != nil {
		return nil, mapRepoErr(err, "alliance mapping")
	}
	audit(ctx, s.Notifier, communityID, fmt.Sprintf("🛠️ %s edited alliance <@&%s>", actor.Label(), roleID))
	return a, nil
}

// SetApprovers replaces the approver role list. Ids are trimmed and
// de-duplicated; an empty list restores the self-governing fallback.
func (s *AllianceService) SetApprovers(ctx context.Context, actor Actor, communityID, roleID string, approverRoleIDs []string) (*domain.Alliance, error) {
	ctx, span := otel.Tracer("services/AllianceService").Start(ctx, "SetApprovers",
		trace.WithAttributes(
			attribute.String("community.id", communityID),
			attribute.String("role.id", roleID),
			attribute.Int("approvers.count", len(approverRoleIDs)),
		),
	)
	defer span.End()

	ids := cleanRoleIDs(approverRoleIDs)
	a, err := s.Repo.SetApprovers(ctx, communityID, roleID, ids)
	if err != nil {
		return nil, mapRepoErr(err, "alliance mapping")
	}
	audit(ctx, s.Notifier, communityID, fmt.Sprintf("🛠️ %s set approvers for <@&%s> (%d role IDs)", actor.Label(), roleID, len(ids)))
	return a, nil
}

// Get returns one mapping.
func (s *AllianceService) Get(ctx context.Context, communityID, roleID string) (*domain.Alliance, error) {
	a, err := s.Repo.Get(ctx, communityID, roleID)
	if err != nil {
		return nil, mapRepoErr(err, "alliance mapping")
	}
	return a, nil
}

// List returns every mapping of the community, including disabled ones.
func (s *AllianceService) List(ctx context.Context, communityID string) ([]domain.Alliance, error) {
	return s.Repo.List(ctx, communityID)
}

// ParseRoleIDs splits a comma-separated list of role ids.
func ParseRoleIDs(s string) []string {
	return cleanRoleIDs(strings.Split(s, ","))
}

func cleanRoleIDs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" || domain.ContainsRole(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func normalizePrefix(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("prefix must not be empty: %w", ErrInvalidInput)
	}
	if utf8.RuneCountInString(p) > maxPrefixRunes {
		return "", fmt.Errorf("prefix longer than %d characters: %w", maxPrefixRunes, ErrInvalidInput)
	}
	return p, nil
}

func mapRepoErr(err error, what string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}
