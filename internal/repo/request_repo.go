// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the request ledger: the durable record
// of verification requests and their single decision.
//
// Decide is the only synchronization primitive of the verification engine.
// It is one conditional UPDATE guarded by status = 'PENDING' and reports
// whether this call performed the transition, so of N racing decisions on one
// request exactly one observes applied=true.
//
// Functions:
//
//   - Create(ctx, communityID, requestID, memberID, roleID, ign) -> *domain.VerificationRequest, error
//     Inserts a PENDING row; ErrDuplicate when the id is taken in that community.
//
//   - Get(ctx, communityID, requestID) -> *domain.VerificationRequest, error
//
//   - Decide(ctx, communityID, requestID, outcome, deciderID) -> applied bool, error
//
//   - List(ctx, communityID, filter) -> []domain.VerificationRequest, error
//     Newest first; used by the admin API.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-alliance-bot/internal/domain"
)

// maxListLimit caps ledger listings.
const maxListLimit = 200

// Requests is the GORM-backed request ledger.
type Requests struct {
	DB *gorm.DB
	// Now is the clock used for CreatedAt/DecidedAt; nil means time.Now.
	Now func() time.Time
}

// Create inserts a PENDING request.
func (r *Requests) Create(ctx context.Context, communityID, requestID, memberID, roleID, ign string) (*domain.VerificationRequest, error) {
	req := &domain.VerificationRequest{
		CommunityID: communityID,
		RequestID:   requestID,
		MemberID:    memberID,
		RoleID:      roleID,
		IGN:         ign,
		Status:      domain.StatusPending,
		CreatedAt:   r.now(),
	}
	if err := r.DB.WithContext(ctx).Create(req).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return req, nil
}

// Get returns the request or ErrNotFound.
func (r *Requests) Get(ctx context.Context, communityID, requestID string) (*domain.VerificationRequest, error) {
	var req domain.VerificationRequest
	err := r.DB.WithContext(ctx).
		Where("community_id = ? AND request_id = ?", communityID, requestID).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// Decide moves a PENDING request to outcome in a single check-and-set.
// applied is false when the request was already decided (or does not exist);
// callers re-read the row to learn the current status.
func (r *Requests) Decide(ctx context.Context, communityID, requestID string, outcome domain.RequestStatus, deciderID string) (bool, error) {
	if !outcome.Terminal() {
		return false, fmt.Errorf("decide: %q is not a terminal status", outcome)
	}
	now := r.now()
	res := r.DB.WithContext(ctx).
		Session(&gorm.Session{SkipDefaultTransaction: true}).
		Model(&domain.VerificationRequest{}).
		Where("community_id = ? AND request_id = ? AND status = ?", communityID, requestID, domain.StatusPending).
		Updates(map[string]any{
			"status":     outcome,
			"decided_by": deciderID,
			"decided_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// List returns requests of the community matching filter, newest first.
func (r *Requests) List(ctx context.Context, communityID string, filter domain.RequestFilter) ([]domain.VerificationRequest, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	q := r.DB.WithContext(ctx).Where("community_id = ?", communityID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.MemberID != "" {
		q = q.Where("member_id = ?", filter.MemberID)
	}
	var out []domain.VerificationRequest
	err := q.Order("created_at desc").Order("request_id desc").Limit(limit).Find(&out).Error
	return out, err
}

func (r *Requests) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
