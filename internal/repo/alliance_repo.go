// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the alliance registry: the durable
// mapping from (community, role) to alliance configuration.
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving validation (non-empty prefix, permissions) to the
// services package.
//
// Error semantics:
//   - Missing mappings are reported as ErrNotFound (gorm.ErrRecordNotFound).
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-alliance-bot/internal/domain"
)

// Alliances is the GORM-backed alliance registry.
type Alliances struct {
	DB *gorm.DB
}

// Upsert creates the mapping for (communityID, roleID) or overwrites its
// prefix and approval channel, always forcing Enabled=true. The approver list
// of an existing mapping is preserved; a new mapping starts with an empty list.
func (r *Alliances) Upsert(ctx context.Context, communityID, roleID, prefix, channelID string) (*domain.Alliance, error) {
	a := &domain.Alliance{
		CommunityID:       communityID,
		RoleID:            roleID,
		Prefix:            prefix,
		ApprovalChannelID: channelID,
		ApproverRoleIDs:   []string{},
		Enabled:           true,
	}
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "community_id"}, {Name: "role_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"prefix", "approval_channel_id", "enabled"}),
	}).Create(a).Error
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, communityID, roleID)
}

// Update applies a partial update. It returns ErrNotFound when no mapping
// exists; an empty patch only checks existence.
func (r *Alliances) Update(ctx context.Context, communityID, roleID string, patch domain.AlliancePatch) (*domain.Alliance, error) {
	var out *domain.Alliance
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getAlliance(tx, communityID, roleID); err != nil {
			return err
		}
		cols := map[string]any{}
		if patch.Prefix != nil {
			cols["prefix"] = *patch.Prefix
		}
		if patch.ApprovalChannelID != nil {
			cols["approval_channel_id"] = *patch.ApprovalChannelID
		}
		if patch.Enabled != nil {
			cols["enabled"] = *patch.Enabled
		}
		if len(cols) > 0 {
			err := tx.Model(&domain.Alliance{}).
				Where("community_id = ? AND role_id = ?", communityID, roleID).
				Updates(cols).Error
			if err != nil {
				return err
			}
		}
		a, err := getAlliance(tx, communityID, roleID)
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetApprovers replaces the approver role list. A nil or empty list restores
// the self-governing fallback. Returns ErrNotFound when no mapping exists.
func (r *Alliances) SetApprovers(ctx context.Context, communityID, roleID string, roleIDs []string) (*domain.Alliance, error) {
	if roleIDs == nil {
		roleIDs = []string{}
	}
	var out *domain.Alliance
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := getAlliance(tx, communityID, roleID)
		if err != nil {
			return err
		}
		a.ApproverRoleIDs = roleIDs
		// Select forces the serializer to run even when the list is empty.
		if err := tx.Model(a).Select("approver_role_ids").Updates(a).Error; err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the mapping for (communityID, roleID) or ErrNotFound.
func (r *Alliances) Get(ctx context.Context, communityID, roleID string) (*domain.Alliance, error) {
	return getAlliance(r.DB.WithContext(ctx), communityID, roleID)
}

// List returns every mapping of the community, enabled or not.
func (r *Alliances) List(ctx context.Context, communityID string) ([]domain.Alliance, error) {
	var out []domain.Alliance
	err := r.DB.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("role_id").
		Find(&out).Error
	return out, err
}

// ListEnabled returns the enabled mappings of the community. Callers must not
// rely on the order.
func (r *Alliances) ListEnabled(ctx context.Context, communityID string) ([]domain.Alliance, error) {
	var out []domain.Alliance
	err := r.DB.WithContext(ctx).
		Where("community_id = ? AND enabled = ?", communityID, true).
		Find(&out).Error
	return out, err
}

// FindForMember returns the first enabled mapping whose role is held by the
// member, or ErrNotFound. A member holding two alliance roles is bound to the
// first one found; that is not an error.
func (r *Alliances) FindForMember(ctx context.Context, communityID string, memberRoleIDs []string) (*domain.Alliance, error) {
	if len(memberRoleIDs) == 0 {
		return nil, ErrNotFound
	}
	rows, err := r.ListEnabled(ctx, communityID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if domain.ContainsRole(memberRoleIDs, rows[i].RoleID) {
			return &rows[i], nil
		}
	}
	return nil, ErrNotFound
}

func getAlliance(db *gorm.DB, communityID, roleID string) (*domain.Alliance, error) {
	var a domain.Alliance
	err := db.Where("community_id = ? AND role_id = ?", communityID, roleID).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
