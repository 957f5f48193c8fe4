package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-alliance-bot/internal/domain"
	"github.com/tbourn/go-alliance-bot/internal/http/middleware"
	"github.com/tbourn/go-alliance-bot/internal/services"
)

// AllianceAdmin administers alliance mappings.
type AllianceAdmin interface {
	Add(ctx context.Context, actor services.Actor, communityID, roleID, prefix, channelID string) (*domain.Alliance, error)
	Edit(ctx context.Context, actor services.Actor, communityID, roleID string, patch domain.AlliancePatch) (*domain.Alliance, error)
	SetApprovers(ctx context.Context, actor services.Actor, communityID, roleID string, approverRoleIDs []string) (*domain.Alliance, error)
	Get(ctx context.Context, communityID, roleID string) (*domain.Alliance, error)
	List(ctx context.Context, communityID string) ([]domain.Alliance, error)
}

// Ledger reads verification requests.
type Ledger interface {
	Get(ctx context.Context, communityID, requestID string) (*domain.VerificationRequest, error)
	List(ctx context.Context, communityID string, f domain.RequestFilter) ([]domain.VerificationRequest, error)
}

// Prompter starts IGN collection for a member by direct message.
type Prompter interface {
	PromptMember(ctx context.Context, communityID, memberID string) (*services.CollectionTarget, error)
}

// ChannelChecker validates an approval channel before it is stored.
type ChannelChecker interface {
	CheckApprovalChannel(ctx context.Context, communityID, channelID string) error
}

// Handlers groups the admin endpoints. Channels may be nil, in which case
// approval channels are stored unchecked.
type Handlers struct {
	alliances AllianceAdmin
	ledger    Ledger
	prompter  Prompter
	channels  ChannelChecker
}

// New constructs Handlers bound to the given services.
func New(alliances AllianceAdmin, ledger Ledger, prompter Prompter, channels ChannelChecker) *Handlers {
	return &Handlers{alliances: alliances, ledger: ledger, prompter: prompter, channels: channels}
}

// actor is the identity recorded in audit lines for API changes.
func actor(c *gin.Context) services.Actor {
	tag := middleware.ActorFrom(c)
	if tag == "" {
		tag = "admin-api"
	}
	return services.Actor{Tag: tag, Admin: true}
}

func (h *Handlers) checkChannel(ctx context.Context, communityID, channelID string) error {
	if h.channels == nil || channelID == "" {
		return nil
	}
	return h.channels.CheckApprovalChannel(ctx, communityID, channelID)
}
