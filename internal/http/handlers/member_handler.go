package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-alliance-bot/internal/http/middleware"
)

// VerifyResponse describes the prompt that was sent.
type VerifyResponse struct {
	CommunityID string `json:"community_id"`
	MemberID    string `json:"member_id"`
	RoleID      string `json:"role_id"`
	Prefix      string `json:"prefix"`
}

// VerifyMember godoc
// @ID          verifyMember
// @Summary     Prompt a member for their IGN
// @Description DMs the IGN prompt to a member holding an alliance role. 202 means the prompt
// @Description was delivered; the submission arrives later through the chat platform.
// @Tags        Members
// @Produce     json
// @Security    BearerAuth
//
// @Param       community  path    string  true  "Community (guild) ID"
// @Param       member     path    string  true  "Member ID"
//
// @Success     202  {object}  handlers.VerifyResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Member or alliance role not found"
// @Failure     502  {object}  handlers.ErrorResponse  "DM could not be delivered"
// @Router      /communities/{community}/members/{member}/verify [post]
func (h *Handlers) VerifyMember(c *gin.Context) {
	target, err := h.prompter.PromptMember(c.Request.Context(), c.Param("community"), c.Param("member"))
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.LoggerFrom(c).Info().
		Str("member_id", target.MemberID).
		Str("role_id", target.RoleID).
		Msg("verification prompt sent")
	ok(c, http.StatusAccepted, VerifyResponse{
		CommunityID: target.CommunityID,
		MemberID:    target.MemberID,
		RoleID:      target.RoleID,
		Prefix:      target.Prefix,
	})
}
