// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the membership store, a cache of the
// last accepted IGN per (community, member). It is not a source of truth for
// request outcomes; the request ledger is.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-alliance-bot/internal/domain"
)

// Members is the GORM-backed membership store.
type Members struct {
	DB *gorm.DB
	// Now is the clock used for UpdatedAt; nil means time.Now.
	Now func() time.Time
}

// SetIgn stores ign for the member, overwriting any previous value.
func (r *Members) SetIgn(ctx context.Context, communityID, memberID, ign string) error {
	m := &domain.Member{
		CommunityID: communityID,
		MemberID:    memberID,
		IGN:         &ign,
		UpdatedAt:   r.now(),
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "community_id"}, {Name: "member_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ign", "updated_at"}),
	}).Create(m).Error
}

// GetIgn returns the stored IGN. ok is false when the member has no record or
// the record carries no IGN.
func (r *Members) GetIgn(ctx context.Context, communityID, memberID string) (ign string, ok bool, err error) {
	m, err := r.Get(ctx, communityID, memberID)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if m.IGN == nil || *m.IGN == "" {
		return "", false, nil
	}
	return *m.IGN, true, nil
}

// Get returns the full member record or ErrNotFound.
func (r *Members) Get(ctx context.Context, communityID, memberID string) (*domain.Member, error) {
	var m domain.Member
	err := r.DB.WithContext(ctx).
		Where("community_id = ? AND member_id = ?", communityID, memberID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *Members) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
