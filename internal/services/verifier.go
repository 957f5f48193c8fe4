// Package services – Verifier
//
// Verifier is the verification lifecycle engine. It takes a role-grant
// trigger through IGN collection, a single approve/reject decision and the
// nickname side effects:
//
//	(no request) --IGN submitted & alliance enabled--> PENDING
//	PENDING --approve (authorized)--> APPROVED
//	PENDING --reject  (authorized)--> REJECTED
//	PENDING --member left---------> REJECTED (auto)
//
// The engine keeps no state between calls. Every operation reads and writes
// through the stores; RequestLedger.Decide is the only synchronization point,
// so racing decisions on one request end with exactly one applied transition.
// Side effects before that transition (IGN write, nickname, verified role)
// may run more than once under a race and are idempotent.
//
// Observability: public methods are OpenTelemetry-instrumented and counted in
// the alliancebot_* Prometheus collectors.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-alliance-bot/internal/domain"
	"github.com/tbourn/go-alliance-bot/internal/repo"
)

// AllianceRegistry is the read side of the alliance registry used by the engine.
type AllianceRegistry interface {
	Get(ctx context.Context, communityID, roleID string) (*domain.Alliance, error)
	FindForMember(ctx context.Context, communityID string, memberRoleIDs []string) (*domain.Alliance, error)
}

// MembershipStore caches the last accepted IGN per member.
type MembershipStore interface {
	SetIgn(ctx context.Context, communityID, memberID, ign string) error
	GetIgn(ctx context.Context, communityID, memberID string) (string, bool, error)
}

// RequestLedger records verification requests and their single decision.
type RequestLedger interface {
	Create(ctx context.Context, communityID, requestID, memberID, roleID, ign string) (*domain.VerificationRequest, error)
	Get(ctx context.Context, communityID, requestID string) (*domain.VerificationRequest, error)
	Decide(ctx context.Context, communityID, requestID string, outcome domain.RequestStatus, deciderID string) (bool, error)
}

// Verifier orchestrates trigger → collect → decide → apply.
type Verifier struct {
	Alliances AllianceRegistry
	Members   MembershipStore
	Requests  RequestLedger
	Platform  Platform
	Notifier  Notifier
	Nick      *Synchronizer
	Policy    Policy

	// Now stamps request ids; nil means time.Now.
	Now func() time.Time
}

// NewVerifier wires an engine. notifier may be nil.
func NewVerifier(a AllianceRegistry, m MembershipStore, r RequestLedger, p Platform, n Notifier, policy Policy) *Verifier {
	return &Verifier{
		Alliances: a,
		Members:   m,
		Requests:  r,
		Platform:  p,
		Notifier:  n,
		Nick:      &Synchronizer{Platform: p},
		Policy:    policy,
	}
}

// MemberUpdate is a role/nickname change observed on the platform. Before is
// the previous role-id set; nil when the platform did not know it.
type MemberUpdate struct {
	CommunityID string
	Before      []string
	After       Member
}

// UpdateAction is what HandleMemberUpdate did.
type UpdateAction string

const (
	UpdateIgnored      UpdateAction = "ignored"
	UpdateBypassed     UpdateAction = "bypassed"
	UpdatePrompted     UpdateAction = "prompted"
	UpdatePromptFailed UpdateAction = "prompt_failed"
	UpdateDriftChecked UpdateAction = "drift_checked"
)

// UpdateResult reports the outcome of HandleMemberUpdate.
type UpdateResult struct {
	Action UpdateAction
	Target *CollectionTarget
	Drift  *DriftResult
}

// HandleMemberUpdate is the role-granted trigger. It prompts the member for an
// IGN when one of the newly added roles maps to an enabled alliance. No ledger
// row is created here; repeated prompts never produce duplicate requests.
func (v *Verifier) HandleMemberUpdate(ctx context.Context, u MemberUpdate) (*UpdateResult, error) {
	ctx, span := otel.Tracer("services/Verifier").Start(ctx, "HandleMemberUpdate",
		trace.WithAttributes(
			attribute.String("community.id", u.CommunityID),
			attribute.String("member.id", u.After.ID),
		),
	)
	defer span.End()

	if v.Policy.bypassed(u.After) {
		return &UpdateResult{Action: UpdateBypassed}, nil
	}

	added := addedRoles(u.Before, u.After.RoleIDs())
	if len(added) == 0 {
		if !v.Policy.EnforceOnManualNickChange {
			return &UpdateResult{Action: UpdateIgnored}, nil
		}
		d, err := v.CheckDrift(ctx, u.CommunityID, u.After)
		if err != nil {
			return nil, err
		}
		return &UpdateResult{Action: UpdateDriftChecked, Drift: d}, nil
	}

	var alliance *domain.Alliance
	for _, rid := range added {
		a, err := v.Alliances.Get(ctx, u.CommunityID, rid)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if a.Enabled {
			alliance = a
			break
		}
	}
	if alliance == nil {
		return &UpdateResult{Action: UpdateIgnored}, nil
	}

	target := &CollectionTarget{
		CommunityID: u.CommunityID,
		MemberID:    u.After.ID,
		RoleID:      alliance.RoleID,
		RoleName:    u.After.roleName(alliance.RoleID),
		Prefix:      alliance.Prefix,
	}
	if err := v.prompt(ctx, target); err != nil {
		return &UpdateResult{Action: UpdatePromptFailed, Target: target}, nil
	}
	return &UpdateResult{Action: UpdatePrompted, Target: target}, nil
}

// StartVerification resolves the collection target of a member on demand
// (the /verify command). It fails with ErrNotFound when the member is not in
// the community or holds no enabled alliance role.
func (v *Verifier) StartVerification(ctx context.Context, communityID, memberID string) (*CollectionTarget, error) {
	ctx, span := otel.Tracer("services/Verifier").Start(ctx, "StartVerification",
		trace.WithAttributes(
			attribute.String("community.id", communityID),
			attribute.String("member.id", memberID),
		),
	)
	defer span.End()

	m, err := v.Platform.Member(ctx, communityID, memberID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("member %s: %w", memberID, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch member: %w", err)
	}
	a, err := v.Alliances.FindForMember(ctx, communityID, m.RoleIDs())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("member %s has no configured alliance role: %w", memberID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &CollectionTarget{
		CommunityID: communityID,
		MemberID:    m.ID,
		RoleID:      a.RoleID,
		RoleName:    m.roleName(a.RoleID),
		Prefix:      a.Prefix,
	}, nil
}

// PromptMember resolves the member's alliance and sends the collection
// prompt by direct message. A closed DM channel yields ErrExternalFailure.
func (v *Verifier) PromptMember(ctx context.Context, communityID, memberID string) (*CollectionTarget, error) {
	target, err := v.StartVerification(ctx, communityID, memberID)
	if err != nil {
		return nil, err
	}
	if err := v.prompt(ctx, target); err != nil {
		return target, fmt.Errorf("prompt member: %v: %w", err, ErrExternalFailure)
	}
	return target, nil
}

// CanOpenForm allows only the prompted member to open their collection form.
func (v *Verifier) CanOpenForm(actorID string, target CollectionTarget) error {
	if actorID != target.MemberID {
		return fmt.Errorf("form belongs to another member: %w", ErrForbidden)
	}
	return nil
}

func (v *Verifier) prompt(ctx context.Context, target *CollectionTarget) error {
	if err := v.Platform.PromptIGN(ctx, *target); err != nil {
		promptsTotal.WithLabelValues("failed").Inc()
		loggerFrom(ctx).Info().Err(err).
			Str("community_id", target.CommunityID).
			Str("member_id", target.MemberID).
			Msg("could not DM member for IGN")
		v.audit(ctx, target.CommunityID, fmt.Sprintf("⚠️ Could not DM <@%s> to collect IGN (DMs closed). Use /verify.", target.MemberID))
		return err
	}
	promptsTotal.WithLabelValues("sent").Inc()
	return nil
}

// Submission is an IGN entered in a collection form.
type Submission struct {
	CommunityID string
	MemberID    string
	RoleID      string
	IGN         string
}

// Submit validates the IGN, records a PENDING request and posts it to the
// alliance's approval channel.
//
// Errors: ErrInvalidInput (IGN bounds), ErrNotFound (alliance missing or
// disabled), ErrChannelUnavailable (channel unusable, checked before the row
// is created and again if posting fails), ErrConflict (duplicate id).
func (v *Verifier) Submit(ctx context.Context, s Submission) (*domain.VerificationRequest, error) {
	ctx, span := otel.Tracer("services/Verifier").Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("community.id", s.CommunityID),
			attribute.String("member.id", s.MemberID),
			attribute.String("role.id", s.RoleID),
		),
	)
	defer span.End()

	req, err := v.submit(ctx, s)
	if err != nil {
		submissionsTotal.WithLabelValues(resultLabel(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	submissionsTotal.WithLabelValues("accepted").Inc()
	span.SetAttributes(attribute.String("request.id", req.RequestID))
	return req, nil
}

func (v *Verifier) submit(ctx context.Context, s Submission) (*domain.VerificationRequest, error) {
	ign, err := v.Policy.NormalizeIGN(s.IGN)
	if err != nil {
		return nil, err
	}

	a, err := v.Alliances.Get(ctx, s.CommunityID, s.RoleID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !a.Enabled) {
		return nil, fmt.Errorf("alliance mapping missing or disabled: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := v.Platform.CheckApprovalChannel(ctx, s.CommunityID, a.ApprovalChannelID); err != nil {
		return nil, channelErr(err)
	}

	requestID := NewRequestID(v.now(), s.MemberID)
	req, err := v.Requests.Create(ctx, s.CommunityID, requestID, s.MemberID, s.RoleID, ign)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, fmt.Errorf("request %s: %w", requestID, ErrConflict)
	}
	if err != nil {
		return nil, err
	}

	card := ApprovalCard{
		CommunityID: s.CommunityID,
		ChannelID:   a.ApprovalChannelID,
		RequestID:   req.RequestID,
		MemberID:    s.MemberID,
		RoleID:      s.RoleID,
		IGN:         ign,
		Preview:     Truncate(Render(v.Policy.template(), a.Prefix, ign)),
		CreatedAt:   req.CreatedAt,
	}
	if err := v.Platform.PostApproval(ctx, card); err != nil {
		// The row stays PENDING; the submitter is told nobody will see it.
		loggerFrom(ctx).Error().Err(err).
			Str("community_id", s.CommunityID).
			Str("request_id", req.RequestID).
			Msg("approval card not posted")
		return nil, channelErr(err)
	}

	v.audit(ctx, s.CommunityID, fmt.Sprintf("📥 IGN submitted by <@%s> for role <@&%s>: `%s`", s.MemberID, s.RoleID, ign))
	return req, nil
}

// Decision is an approve/reject press on an approval card.
type Decision struct {
	CommunityID string
	RequestID   string
	Outcome     domain.RequestStatus
	Actor       Actor
}

// DecisionResult reports what Decide did. Applied is true only for the call
// that performed the ledger transition; AlreadyDecided covers stale presses
// and lost races, with Status holding the current terminal state.
type DecisionResult struct {
	Request        *domain.VerificationRequest
	Status         domain.RequestStatus
	Applied        bool
	AlreadyDecided bool
	// Stale is set when the request was decided before this call started.
	Stale        bool
	AutoRejected bool
	Nickname     string
	NicknameSet  bool
	RoleGranted  bool
}

// Decide runs the decision path.
//
// Errors: ErrInvalidInput (outcome not terminal), ErrNotFound (request or
// alliance missing), ErrForbidden (actor may not decide). Nickname, role and
// DM failures never fail the decision; they show up in the result and the
// audit channel.
func (v *Verifier) Decide(ctx context.Context, d Decision) (*DecisionResult, error) {
	ctx, span := otel.Tracer("services/Verifier").Start(ctx, "Decide",
		trace.WithAttributes(
			attribute.String("community.id", d.CommunityID),
			attribute.String("request.id", d.RequestID),
			attribute.String("decision.outcome", string(d.Outcome)),
			attribute.String("actor.id", d.Actor.ID),
		),
	)
	defer span.End()

	res, err := v.decide(ctx, d)
	if err != nil {
		decisionsTotal.WithLabelValues(string(d.Outcome), resultLabel(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	decisionsTotal.WithLabelValues(string(d.Outcome), res.label()).Inc()
	span.SetAttributes(
		attribute.Bool("decision.applied", res.Applied),
		attribute.String("request.status", string(res.Status)),
	)
	return res, nil
}

func (v *Verifier) decide(ctx context.Context, d Decision) (*DecisionResult, error) {
	if !d.Outcome.Terminal() {
		return nil, fmt.Errorf("outcome %q: %w", d.Outcome, ErrInvalidInput)
	}

	req, err := v.Requests.Get(ctx, d.CommunityID, d.RequestID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("request %s: %w", d.RequestID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if req.Status != domain.StatusPending {
		return &DecisionResult{Request: req, Status: req.Status, AlreadyDecided: true, Stale: true}, nil
	}

	a, err := v.Alliances.Get(ctx, d.CommunityID, req.RoleID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("alliance mapping missing for this request: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !CanDecide(d.Actor, *a) {
		return nil, fmt.Errorf("actor %s may not decide for role %s: %w", d.Actor.ID, a.RoleID, ErrForbidden)
	}

	log := loggerFrom(ctx).With().
		Str("community_id", d.CommunityID).
		Str("request_id", d.RequestID).
		Str("member_id", req.MemberID).
		Logger()

	target, err := v.Platform.Member(ctx, d.CommunityID, req.MemberID)
	if errors.Is(err, ErrNotFound) {
		res, err := v.transition(ctx, req, domain.StatusRejected, d.Actor.ID)
		if err != nil {
			return nil, err
		}
		res.AutoRejected = true
		if res.Applied {
			log.Info().Msg("member left; request auto-rejected")
			v.audit(ctx, d.CommunityID, fmt.Sprintf("❌ Auto-rejected <@%s> IGN=`%s` (member left the server)", req.MemberID, req.IGN))
		}
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch member %s: %v: %w", req.MemberID, err, ErrExternalFailure)
	}

	if d.Outcome == domain.StatusRejected {
		res, err := v.transition(ctx, req, domain.StatusRejected, d.Actor.ID)
		if err != nil {
			return nil, err
		}
		if res.Applied {
			v.audit(ctx, d.CommunityID, fmt.Sprintf("❌ Rejected <@%s> IGN=`%s`", req.MemberID, req.IGN))
		}
		return res, nil
	}

	// Approve. Side effects first, then the check-and-set.
	if err := v.Members.SetIgn(ctx, d.CommunityID, target.ID, req.IGN); err != nil {
		return nil, err
	}
	nick := Truncate(Render(v.Policy.template(), a.Prefix, req.IGN))
	nickSet := v.Nick.Apply(ctx, d.CommunityID, target.ID, nick)
	granted := v.grantVerified(ctx, d.CommunityID, target.ID)

	res, err := v.transition(ctx, req, domain.StatusApproved, d.Actor.ID)
	if err != nil {
		return nil, err
	}
	res.Nickname, res.NicknameSet, res.RoleGranted = nick, nickSet, granted
	if !res.Applied {
		log.Info().Str("status", string(res.Status)).Msg("decision lost the race; side effects kept")
		return res, nil
	}

	if err := v.Platform.SendDM(ctx, target.ID, fmt.Sprintf("✅ You’ve been verified. Your nickname has been set to: `%s`", nick)); err != nil {
		log.Debug().Err(err).Msg("verification DM not delivered")
	}
	v.audit(ctx, d.CommunityID, fmt.Sprintf("✅ Approved <@%s> IGN=`%s` nickSet=%t roleGranted=%t", target.ID, req.IGN, nickSet, granted))
	return res, nil
}

// transition runs the ledger check-and-set and re-reads the row when this
// call did not win.
func (v *Verifier) transition(ctx context.Context, req *domain.VerificationRequest, outcome domain.RequestStatus, deciderID string) (*DecisionResult, error) {
	applied, err := v.Requests.Decide(ctx, req.CommunityID, req.RequestID, outcome, deciderID)
	if err != nil {
		return nil, err
	}
	current, err := v.Requests.Get(ctx, req.CommunityID, req.RequestID)
	if err != nil {
		return nil, err
	}
	return &DecisionResult{
		Request:        current,
		Status:         current.Status,
		Applied:        applied,
		AlreadyDecided: !applied,
	}, nil
}

// grantVerified adds the verified marker role when the community has one.
func (v *Verifier) grantVerified(ctx context.Context, communityID, memberID string) bool {
	if v.Policy.VerifiedRoleName == "" {
		return false
	}
	roleID, ok, err := v.Platform.RoleIDByName(ctx, communityID, v.Policy.VerifiedRoleName)
	if err != nil || !ok {
		return false
	}
	if err := v.Platform.AddRole(ctx, communityID, memberID, roleID); err != nil {
		loggerFrom(ctx).Warn().Err(err).
			Str("community_id", communityID).
			Str("member_id", memberID).
			Msg("verified role not granted")
		return false
	}
	return true
}

// DriftResult reports a manual-drift check.
type DriftResult struct {
	Expected  string
	InSync    bool
	Reapplied bool
	Skipped   bool
}

// CheckDrift re-applies the canonical nickname when the member's display name
// differs from it. The comparison is against the rendered (and truncated)
// name, so the platform echoing the change back is a no-op.
func (v *Verifier) CheckDrift(ctx context.Context, communityID string, m Member) (*DriftResult, error) {
	ctx, span := otel.Tracer("services/Verifier").Start(ctx, "CheckDrift",
		trace.WithAttributes(
			attribute.String("community.id", communityID),
			attribute.String("member.id", m.ID),
		),
	)
	defer span.End()

	a, err := v.Alliances.FindForMember(ctx, communityID, m.RoleIDs())
	if errors.Is(err, repo.ErrNotFound) {
		driftChecks.WithLabelValues("skipped").Inc()
		return &DriftResult{Skipped: true}, nil
	}
	if err != nil {
		return nil, err
	}
	ign, ok, err := v.Members.GetIgn(ctx, communityID, m.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		driftChecks.WithLabelValues("skipped").Inc()
		return &DriftResult{Skipped: true}, nil
	}

	expected := Truncate(Render(v.Policy.template(), a.Prefix, ign))
	if m.DisplayName() == expected {
		driftChecks.WithLabelValues("in_sync").Inc()
		return &DriftResult{Expected: expected, InSync: true}, nil
	}
	if !v.Nick.Apply(ctx, communityID, m.ID, expected) {
		driftChecks.WithLabelValues("failed").Inc()
		v.audit(ctx, communityID, fmt.Sprintf("⚠️ Could not re-apply nickname for <@%s> → `%s`", m.ID, expected))
		return &DriftResult{Expected: expected}, nil
	}
	driftChecks.WithLabelValues("reapplied").Inc()
	v.audit(ctx, communityID, fmt.Sprintf("🔁 Re-applied nickname for <@%s> → `%s`", m.ID, expected))
	return &DriftResult{Expected: expected, Reapplied: true}, nil
}

// audit posts a line and drops any error.
func (v *Verifier) audit(ctx context.Context, communityID, line string) {
	audit(ctx, v.Notifier, communityID, line)
}

func audit(ctx context.Context, n Notifier, communityID, line string) {
	if n == nil {
		return
	}
	if err := n.Audit(ctx, communityID, line); err != nil {
		loggerFrom(ctx).Debug().Err(err).Str("community_id", communityID).Msg("audit line dropped")
	}
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// NewRequestID returns "<unix-millis>-<memberID>".
func NewRequestID(at time.Time, memberID string) string {
	return fmt.Sprintf("%d-%s", at.UnixMilli(), memberID)
}

// addedRoles returns the ids in after that are not in before, in after's order.
func addedRoles(before, after []string) []string {
	var out []string
	for _, rid := range after {
		if !domain.ContainsRole(before, rid) {
			out = append(out, rid)
		}
	}
	return out
}

func channelErr(err error) error {
	if errors.Is(err, ErrChannelUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
}

func (r *DecisionResult) label() string {
	switch {
	case r.AutoRejected && r.Applied:
		return "auto_rejected"
	case r.Applied:
		return "applied"
	case r.Stale:
		return "stale"
	default:
		return "lost_race"
	}
}

// resultLabel maps an error to a bounded metric label.
func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrChannelUnavailable):
		return "channel_unavailable"
	case errors.Is(err, ErrExternalFailure):
		return "external_failure"
	default:
		return "error"
	}
}
