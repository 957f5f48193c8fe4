package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-alliance-bot/internal/domain"
	"github.com/tbourn/go-alliance-bot/internal/interaction"
	"github.com/tbourn/go-alliance-bot/internal/ratelimit"
	"github.com/tbourn/go-alliance-bot/internal/services"
)

// Engine is the verification lifecycle consumed by the handler.
type Engine interface {
	HandleMemberUpdate(ctx context.Context, u services.MemberUpdate) (*services.UpdateResult, error)
	StartVerification(ctx context.Context, communityID, memberID string) (*services.CollectionTarget, error)
	CanOpenForm(actorID string, target services.CollectionTarget) error
	Submit(ctx context.Context, s services.Submission) (*domain.VerificationRequest, error)
	Decide(ctx context.Context, d services.Decision) (*services.DecisionResult, error)
}

// Admin is the alliance administration consumed by the slash commands.
type Admin interface {
	Add(ctx context.Context, actor services.Actor, communityID, roleID, prefix, channelID string) (*domain.Alliance, error)
	Edit(ctx context.Context, actor services.Actor, communityID, roleID string, patch domain.AlliancePatch) (*domain.Alliance, error)
	SetApprovers(ctx context.Context, actor services.Actor, communityID, roleID string, approverRoleIDs []string) (*domain.Alliance, error)
	List(ctx context.Context, communityID string) ([]domain.Alliance, error)
}

// Handler turns gateway events into service calls and replies.
type Handler struct {
	Session  Session
	Platform *Platform
	Engine   Engine
	Admin    Admin

	// Limiter throttles interactions per user; nil disables throttling.
	Limiter *ratelimit.Keyed
	// Timeout bounds the handling of one event.
	Timeout time.Duration

	IGNMinLen int
	IGNMaxLen int
}

// errReplied marks a handler error after which the user already got a reply.
var errReplied = errors.New("replied")

// eventContext derives the per-event context, logger and span.
func (h *Handler) eventContext(parent context.Context, kind string, fields map[string]string) (context.Context, func()) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(parent, timeout)

	lc := log.With().Str("event", kind).Str("event_id", uuid.NewString())
	attrs := []attribute.KeyValue{attribute.String("discord.event", kind)}
	for k, v := range fields {
		if v == "" {
			continue
		}
		lc = lc.Str(k, v)
		attrs = append(attrs, attribute.String(k, v))
	}
	logger := lc.Logger()
	ctx = logger.WithContext(ctx)

	ctx, span := otel.Tracer("discord/Handler").Start(ctx, kind, trace.WithAttributes(attrs...))
	return ctx, func() {
		span.End()
		cancel()
	}
}

// OnMemberUpdate handles a guild member update: the role-grant trigger and,
// when enabled, nickname drift enforcement. Errors are logged and dropped.
func (h *Handler) OnMemberUpdate(parent context.Context, e *discordgo.GuildMemberUpdate) {
	if e == nil || e.Member == nil || e.User == nil {
		return
	}
	start := time.Now()
	ctx, done := h.eventContext(parent, "member_update", map[string]string{
		"community_id": e.GuildID,
		"member_id":    e.User.ID,
	})
	defer done()
	logger := zerolog.Ctx(ctx)

	result := "ok"
	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			logger.Error().Interface("panic", r).Msg("member update handler panicked")
		}
		eventsTotal.WithLabelValues("member_update", result).Inc()
		eventDuration.WithLabelValues("member_update").Observe(time.Since(start).Seconds())
	}()

	after, err := h.Platform.ToMember(ctx, e.GuildID, e.Member)
	if err != nil {
		result = "error"
		logger.Warn().Err(err).Msg("resolve member")
		return
	}
	var before []string
	if e.BeforeUpdate != nil {
		before = e.BeforeUpdate.Roles
	}

	res, err := h.Engine.HandleMemberUpdate(ctx, services.MemberUpdate{
		CommunityID: e.GuildID,
		Before:      before,
		After:       *after,
	})
	if err != nil {
		result = "error"
		logger.Warn().Err(err).Msg("member update")
		return
	}
	logger.Debug().Str("action", string(res.Action)).Msg("member update handled")
}

// OnInteraction handles slash commands, button presses and modal submits.
// Unexpected failures and panics become a generic ephemeral reply.
func (h *Handler) OnInteraction(parent context.Context, e *discordgo.InteractionCreate) {
	if e == nil || e.Interaction == nil {
		return
	}
	i := e.Interaction
	kind := interactionKind(i.Type)
	start := time.Now()
	ctx, done := h.eventContext(parent, kind, map[string]string{
		"community_id": i.GuildID,
		"actor_id":     userID(i),
	})
	defer done()
	logger := zerolog.Ctx(ctx)

	result := "ok"
	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			logger.Error().Interface("panic", r).Msg("interaction handler panicked")
			h.reply(ctx, i, ephemeral(msgGeneric))
		}
		eventsTotal.WithLabelValues(kind, result).Inc()
		eventDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	if !h.Limiter.Allow(userID(i)) {
		result = "rate_limited"
		h.reply(ctx, i, ephemeral(msgSlowDown))
		return
	}

	var err error
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		err = h.command(ctx, i)
	case discordgo.InteractionMessageComponent:
		err = h.component(ctx, i)
	case discordgo.InteractionModalSubmit:
		err = h.modal(ctx, i)
	default:
		return
	}
	switch {
	case err == nil:
	case errors.Is(err, errReplied):
		result = "rejected"
	default:
		result = "error"
		logger.Error().Err(err).Msg("interaction failed")
		h.reply(ctx, i, ephemeral(msgGeneric))
	}
}

func (h *Handler) reply(ctx context.Context, i *discordgo.Interaction, resp *discordgo.InteractionResponse) {
	if err := h.Session.InteractionRespond(i, resp, discordgo.WithContext(ctx)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("interaction response failed")
	}
}

// refuse replies with an ephemeral message and reports errReplied.
func (h *Handler) refuse(ctx context.Context, i *discordgo.Interaction, msg string) error {
	h.reply(ctx, i, ephemeral(msg))
	return errReplied
}

// ----- components and modals -----

func (h *Handler) component(ctx context.Context, i *discordgo.Interaction) error {
	req, err := interaction.Parse(i.MessageComponentData().CustomID)
	if err != nil {
		zerolog.Ctx(ctx).Info().Err(err).Msg("unknown component")
		return h.refuse(ctx, i, msgGeneric)
	}
	switch r := req.(type) {
	case interaction.OpenCollectionForm:
		target := services.CollectionTarget{CommunityID: r.CommunityID, MemberID: r.MemberID, RoleID: r.RoleID}
		if err := h.Engine.CanOpenForm(userID(i), target); err != nil {
			return h.refuse(ctx, i, msgNotYourButton)
		}
		minLen, maxLen := h.ignBounds()
		h.reply(ctx, i, collectionModal(r.Form(), minLen, maxLen))
		return nil
	case interaction.Decision:
		return h.decide(ctx, i, r)
	}
	return h.refuse(ctx, i, msgGeneric)
}

func (h *Handler) decide(ctx context.Context, i *discordgo.Interaction, d interaction.Decision) error {
	if i.GuildID == "" || i.GuildID != d.CommunityID {
		return h.refuse(ctx, i, msgInvalidGuild)
	}
	act := actor(i)
	res, err := h.Engine.Decide(ctx, services.Decision{
		CommunityID: d.CommunityID,
		RequestID:   d.RequestID,
		Outcome:     d.Outcome,
		Actor:       act,
	})
	switch {
	case errors.Is(err, services.ErrNotFound):
		return h.refuse(ctx, i, msgRequestMissing)
	case errors.Is(err, services.ErrForbidden):
		return h.refuse(ctx, i, msgNoPermission)
	case err != nil:
		return err
	}

	switch {
	case res.AutoRejected:
		return h.refuse(ctx, i, msgMemberLeft)
	case !res.Applied:
		return h.refuse(ctx, i, fmt.Sprintf("This request is already **%s**.", res.Status))
	}
	h.reply(ctx, i, decidedCard(i.Message, res.Status, act))
	return nil
}

func (h *Handler) modal(ctx context.Context, i *discordgo.Interaction) error {
	data := i.ModalSubmitData()
	req, err := interaction.Parse(data.CustomID)
	if err != nil {
		return h.refuse(ctx, i, msgGeneric)
	}
	form, ok := req.(interaction.SubmitCollectionForm)
	if !ok {
		return h.refuse(ctx, i, msgGeneric)
	}

	_, err = h.Engine.Submit(ctx, services.Submission{
		CommunityID: form.CommunityID,
		MemberID:    form.MemberID,
		RoleID:      form.RoleID,
		IGN:         textInput(data, ignInputID),
	})
	switch {
	case err == nil:
		h.reply(ctx, i, ephemeral(msgSubmitted))
		return nil
	case errors.Is(err, services.ErrInvalidInput):
		minLen, maxLen := h.ignBounds()
		return h.refuse(ctx, i, fmt.Sprintf("IGN must be %d–%d characters.", minLen, maxLen))
	case errors.Is(err, services.ErrNotFound):
		return h.refuse(ctx, i, msgAllianceMissing)
	case errors.Is(err, services.ErrChannelUnavailable):
		return h.refuse(ctx, i, msgChannelMissing)
	case errors.Is(err, services.ErrConflict):
		return h.refuse(ctx, i, msgDuplicate)
	}
	return err
}

// ----- slash commands -----

func (h *Handler) command(ctx context.Context, i *discordgo.Interaction) error {
	data := i.ApplicationCommandData()
	cmd, err := interaction.Command(data.Name)
	if err != nil {
		return h.refuse(ctx, i, msgGeneric)
	}
	if i.GuildID == "" {
		return h.refuse(ctx, i, msgGuildOnly)
	}
	opts := options(data.Options)
	g, act := i.GuildID, actor(i)

	switch cmd.Name {
	case interaction.CmdAllianceAdd:
		role, prefix, channel := opts.str("role"), opts.str("prefix"), opts.str("channel")
		a, err := h.Admin.Add(ctx, act, g, role, prefix, channel)
		if errors.Is(err, services.ErrInvalidInput) {
			return h.refuse(ctx, i, "❌ "+reason(err, services.ErrInvalidInput))
		}
		if err != nil {
			return err
		}
		h.reply(ctx, i, ephemeral(fmt.Sprintf("✅ Alliance saved: <@&%s> → prefix `%s` → approvals <#%s>", a.RoleID, a.Prefix, a.ApprovalChannelID)))
		return nil

	case interaction.CmdAllianceEdit:
		role := opts.str("role")
		var patch domain.AlliancePatch
		if v, ok := opts["prefix"]; ok {
			s := optString(v)
			patch.Prefix = &s
		}
		if v, ok := opts["channel"]; ok {
			s := optString(v)
			patch.ApprovalChannelID = &s
		}
		if v, ok := opts["enabled"]; ok {
			b, _ := v.Value.(bool)
			patch.Enabled = &b
		}
		a, err := h.Admin.Edit(ctx, act, g, role, patch)
		switch {
		case errors.Is(err, services.ErrNotFound):
			return h.refuse(ctx, i, fmt.Sprintf("❌ No alliance mapping exists for <@&%s>. Use /alliance-add.", role))
		case errors.Is(err, services.ErrInvalidInput):
			return h.refuse(ctx, i, "❌ "+reason(err, services.ErrInvalidInput))
		case err != nil:
			return err
		}
		h.reply(ctx, i, ephemeral(fmt.Sprintf("✅ Updated <@&%s>: prefix `%s`, channel <#%s>, enabled=%t", a.RoleID, a.Prefix, a.ApprovalChannelID, a.Enabled)))
		return nil

	case interaction.CmdAllianceApprovers:
		role := opts.str("role")
		_, err := h.Admin.SetApprovers(ctx, act, g, role, services.ParseRoleIDs(opts.str("approver_role_ids")))
		if errors.Is(err, services.ErrNotFound) {
			return h.refuse(ctx, i, fmt.Sprintf("❌ No alliance mapping exists for <@&%s>. Use /alliance-add first.", role))
		}
		if err != nil {
			return err
		}
		h.reply(ctx, i, ephemeral(fmt.Sprintf("✅ Approvers set for <@&%s>.\nIf you set an empty list, anyone with the alliance role can approve.", role)))
		return nil

	case interaction.CmdAllianceList:
		list, err := h.Admin.List(ctx, g)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			h.reply(ctx, i, ephemeral(msgNoAlliances))
			return nil
		}
		lines := make([]string, 0, len(list))
		for _, a := range list {
			lines = append(lines, fmt.Sprintf("• <@&%s> → `%s` → <#%s> → enabled=%t", a.RoleID, a.Prefix, a.ApprovalChannelID, a.Enabled))
		}
		h.reply(ctx, i, ephemeral(strings.Join(lines, "\n")))
		return nil

	case interaction.CmdVerify:
		target, err := h.Engine.StartVerification(ctx, g, opts.str("user"))
		if errors.Is(err, services.ErrNotFound) {
			return h.refuse(ctx, i, msgNoAlliance)
		}
		if err != nil {
			return err
		}
		form := interaction.SubmitCollectionForm{CommunityID: g, MemberID: target.MemberID, RoleID: target.RoleID}
		minLen, maxLen := h.ignBounds()
		h.reply(ctx, i, collectionModal(form, minLen, maxLen))
		return nil
	}
	return h.refuse(ctx, i, msgGeneric)
}

// ----- helpers -----

func (h *Handler) ignBounds() (int, int) {
	minLen, maxLen := h.IGNMinLen, h.IGNMaxLen
	if minLen <= 0 {
		minLen = services.DefaultIGNMinLen
	}
	if maxLen < minLen {
		maxLen = max(services.DefaultIGNMaxLen, minLen)
	}
	return minLen, maxLen
}

type optionMap map[string]*discordgo.ApplicationCommandInteractionDataOption

func options(in []*discordgo.ApplicationCommandInteractionDataOption) optionMap {
	m := make(optionMap, len(in))
	for _, o := range in {
		m[o.Name] = o
	}
	return m
}

func (m optionMap) str(name string) string {
	return optString(m[name])
}

// optString reads string, role, channel and user options, which all carry a
// string value.
func optString(o *discordgo.ApplicationCommandInteractionDataOption) string {
	if o == nil {
		return ""
	}
	s, _ := o.Value.(string)
	return s
}

func textInput(data discordgo.ModalSubmitInteractionData, id string) string {
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if ti, ok := inner.(*discordgo.TextInput); ok && ti.CustomID == id {
				return ti.Value
			}
		}
	}
	return ""
}

// userID is the interacting user, in a guild or in a DM.
func userID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func actor(i *discordgo.Interaction) services.Actor {
	a := services.Actor{ID: userID(i)}
	if i.Member != nil {
		a.RoleIDs = i.Member.Roles
		a.Admin = i.Member.Permissions&discordgo.PermissionAdministrator != 0
		if i.Member.User != nil {
			a.Tag = i.Member.User.String()
		}
	} else if i.User != nil {
		a.Tag = i.User.String()
	}
	return a
}

// reason strips the sentinel suffix from a wrapped error message.
func reason(err, sentinel error) string {
	return strings.TrimSuffix(err.Error(), ": "+sentinel.Error())
}

func interactionKind(t discordgo.InteractionType) string {
	switch t {
	case discordgo.InteractionApplicationCommand:
		return "command"
	case discordgo.InteractionMessageComponent:
		return "component"
	case discordgo.InteractionModalSubmit:
		return "modal"
	}
	return "interaction"
}
