// Package domain defines the persistence models for alliances, member
// identities and verification requests. These types are mapped with GORM and
// form the core data layer of the alliance bot. Every entity is partitioned by
// community (the chat-platform guild it belongs to).
package domain

import (
	"slices"
	"time"
)

// Alliance maps one community role to an alliance configuration.
//
// Fields:
//   - CommunityID / RoleID: composite primary key; at most one mapping per pair.
//   - Prefix: short tag rendered into nicknames (never empty).
//   - ApprovalChannelID: channel where IGN submissions are posted for review.
//   - ApproverRoleIDs: roles allowed to decide requests. Empty means the alliance
//     role itself decides (self-governing fallback). Stored as a JSON array.
//   - Enabled: disabled mappings are ignored by triggers and submissions. Mappings
//     are never deleted, only disabled.
type Alliance struct {
	CommunityID       string   `json:"community_id"        gorm:"type:varchar(32);primaryKey"`
	RoleID            string   `json:"role_id"             gorm:"type:varchar(32);primaryKey"`
	Prefix            string   `json:"prefix"              gorm:"type:varchar(32);not null"`
	ApprovalChannelID string   `json:"approval_channel_id" gorm:"type:varchar(32);not null"`
	ApproverRoleIDs   []string `json:"approver_role_ids"   gorm:"type:text;not null;serializer:json"`
	Enabled           bool     `json:"enabled"             gorm:"not null;index"`
}

// TableName returns the database table name for Alliance.
func (Alliance) TableName() string { return "alliances" }

// HasApprovers reports whether an explicit approver list is configured.
func (a Alliance) HasApprovers() bool { return len(a.ApproverRoleIDs) > 0 }

// AlliancePatch is a partial update of an Alliance. Nil fields are left as-is.
type AlliancePatch struct {
	Prefix            *string `json:"prefix,omitempty"`
	ApprovalChannelID *string `json:"approval_channel_id,omitempty"`
	Enabled           *bool   `json:"enabled,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p AlliancePatch) Empty() bool {
	return p.Prefix == nil && p.ApprovalChannelID == nil && p.Enabled == nil
}

// Member caches the last accepted IGN of a community member. It is written
// only when a request is approved and read by the nickname drift check.
type Member struct {
	CommunityID string    `json:"community_id" gorm:"type:varchar(32);primaryKey"`
	MemberID    string    `json:"member_id"    gorm:"type:varchar(32);primaryKey"`
	IGN         *string   `json:"ign"          gorm:"type:varchar(64)"`
	Locked      bool      `json:"locked"       gorm:"not null"` // reserved
	UpdatedAt   time.Time `json:"updated_at"   gorm:"not null"`
}

// TableName returns the database table name for Member.
func (Member) TableName() string { return "members" }

// RequestStatus is the lifecycle state of a VerificationRequest.
type RequestStatus string

const (
	// StatusPending is the only non-terminal state.
	StatusPending RequestStatus = "PENDING"
	// StatusApproved means the IGN was accepted.
	StatusApproved RequestStatus = "APPROVED"
	// StatusRejected means the IGN was refused or the member left.
	StatusRejected RequestStatus = "REJECTED"
)

// Terminal reports whether s is a final state.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether s is one of the three known states.
func (s RequestStatus) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// VerificationRequest records one IGN submission and its single decision.
// Rows are never deleted; the table doubles as the audit trail.
//
// Fields:
//   - RequestID: "<unix-millis>-<member id>", unique per community.
//   - Status: PENDING until decided exactly once.
//   - DecidedBy / DecidedAt: set together by the decision, nil while pending.
type VerificationRequest struct {
	CommunityID string        `json:"community_id" gorm:"type:varchar(32);primaryKey"`
	RequestID   string        `json:"request_id"   gorm:"type:varchar(64);primaryKey"`
	MemberID    string        `json:"member_id"    gorm:"type:varchar(32);not null;index:idx_requests_member"`
	RoleID      string        `json:"role_id"      gorm:"type:varchar(32);not null"`
	IGN         string        `json:"ign"          gorm:"type:varchar(64);not null"`
	Status      RequestStatus `json:"status"       gorm:"type:varchar(16);not null;index;check:status IN ('PENDING','APPROVED','REJECTED')"`
	CreatedAt   time.Time     `json:"created_at"   gorm:"not null;index"`
	DecidedBy   *string       `json:"decided_by,omitempty" gorm:"type:varchar(32)"`
	DecidedAt   *time.Time    `json:"decided_at,omitempty"`
}

// TableName returns the database table name for VerificationRequest.
func (VerificationRequest) TableName() string { return "requests" }

// RequestFilter narrows a ledger listing. Zero values mean "any".
type RequestFilter struct {
	Status   RequestStatus
	MemberID string
	Limit    int
}

// ContainsRole reports whether roleID is present in roleIDs.
func ContainsRole(roleIDs []string, roleID string) bool {
	return slices.Contains(roleIDs, roleID)
}
