// Alliance HTTP handlers.
//
//   - GET   /communities/{community}/alliances                   (list)
//   - GET   /communities/{community}/alliances/{role}            (one mapping)
//   - PUT   /communities/{community}/alliances/{role}            (create or overwrite, enables)
//   - PATCH /communities/{community}/alliances/{role}            (partial update)
//   - PUT   /communities/{community}/alliances/{role}/approvers  (replace approver roles)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-alliance-bot/internal/domain"
)

// UpsertAllianceRequest is the payload of PUT .../alliances/{role}.
type UpsertAllianceRequest struct {
	Prefix            string `json:"prefix" binding:"required"`
	ApprovalChannelID string `json:"approval_channel_id" binding:"required"`
}

// SetApproversRequest is the payload of PUT .../approvers. An empty list
// hands decisions back to the alliance role itself.
type SetApproversRequest struct {
	ApproverRoleIDs []string `json:"approver_role_ids" binding:"required"`
}

// ListAlliancesResponse wraps every mapping of a community.
type ListAlliancesResponse struct {
	Alliances []domain.Alliance `json:"alliances"`
}

// ListAlliances godoc
// @ID          listAlliances
// @Summary     List alliance mappings
// @Description Returns every mapping of the community, disabled ones included.
// @Tags        Alliances
// @Produce     json
// @Security    BearerAuth
//
// @Param       community  path    string  true  "Community (guild) ID"
//
// @Success     200  {object}  handlers.ListAlliancesResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or wrong token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /communities/{community}/alliances [get]
func (h *Handlers) ListAlliances(c *gin.Context) {
	out, err := h.alliances.List(c.Request.Context(), c.Param("community"))
	if err != nil {
		failErr(c, err)
		return
	}
	if out == nil {
		out = []domain.Alliance{}
	}
	ok(c, http.StatusOK, ListAlliancesResponse{Alliances: out})
}

// GetAlliance godoc
// @ID          getAlliance
// @Summary     Get one alliance mapping
// @Tags        Alliances
// @Produce     json
// @Security    BearerAuth
//
// @Param       community  path    string  true  "Community (guild) ID"
// @Param       role       path    string  true  "Alliance role ID"
//
// @Success     200  {object}  domain.Alliance
// @Failure     404  {object}  handlers.ErrorResponse  "No mapping for the role"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /communities/{community}/alliances/{role} [get]
func (h *Handlers) GetAlliance(c *gin.Context) {
	a, err := h.alliances.Get(c.Request.Context(), c.Param("community"), c.Param("role"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// UpsertAlliance godoc
// @ID          upsertAlliance
// @Summary     Create or overwrite an alliance mapping
// @Description Sets prefix and approval channel and enables the mapping. Existing approvers are kept.
// @Tags        Alliances
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       community  path    string  true  "Community (guild) ID"
// @Param       role       path    string  true  "Alliance role ID"
// @Param       body       body    handlers.UpsertAllianceRequest  true  "Mapping payload"
//
// @Success     200  {object}  domain.Alliance
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or invalid prefix"
// @Failure     422  {object}  handlers.ErrorResponse  "Approval channel missing or not a text channel"
// @Failure     502  {object}  handlers.ErrorResponse  "Chat platform request failed"
// @Router      /communities/{community}/alliances/{role} [put]
func (h *Handlers) UpsertAlliance(c *gin.Context) {
	var req UpsertAllianceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "prefix and approval_channel_id are required")
		return
	}
	ctx := c.Request.Context()
	community := c.Param("community")
	if err := h.checkChannel(ctx, community, req.ApprovalChannelID); err != nil {
		failErr(c, err)
		return
	}
	a, err := h.alliances.Add(ctx, actor(c), community, c.Param("role"), req.Prefix, req.ApprovalChannelID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// PatchAlliance godoc
// @ID          patchAlliance
// @Summary     Update an alliance mapping
// @Description Applies a partial update; omitted fields are left unchanged.
// @Tags        Alliances
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       community  path    string  true  "Community (guild) ID"
// @Param       role       path    string  true  "Alliance role ID"
// @Param       body       body    domain.AlliancePatch  true  "Fields to change"
//
// @Success     200  {object}  domain.Alliance
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or empty patch"
// @Failure     404  {object}  handlers.ErrorResponse  "No mapping for the role"
// @Failure     422  {object}  handlers.ErrorResponse  "Approval channel missing or not a text channel"
// @Router      /communities/{community}/alliances/{role} [patch]
func (h *Handlers) PatchAlliance(c *gin.Context) {
	var patch domain.AlliancePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if patch.Empty() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "nothing to update")
		return
	}
	ctx := c.Request.Context()
	community := c.Param("community")
	if patch.ApprovalChannelID != nil {
		if err := h.checkChannel(ctx, community, *patch.ApprovalChannelID); err != nil {
			failErr(c, err)
			return
		}
	}
	a, err := h.alliances.Edit(ctx, actor(c), community, c.Param("role"), patch)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// SetApprovers godoc
// @ID          setApprovers
// @Summary     Replace the approver roles of a mapping
// @Description An empty list lets holders of the alliance role decide.
// @Tags        Alliances
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       community  path    string  true  "Community (guild) ID"
// @Param       role       path    string  true  "Alliance role ID"
// @Param       body       body    handlers.SetApproversRequest  true  "Approver role IDs"
//
// @Success     200  {object}  domain.Alliance
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "No mapping for the role"
// @Router      /communities/{community}/alliances/{role}/approvers [put]
func (h *Handlers) SetApprovers(c *gin.Context) {
	var req SetApproversRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "approver_role_ids is required")
		return
	}
	a, err := h.alliances.SetApprovers(c.Request.Context(), actor(c), c.Param("community"), c.Param("role"), req.ApproverRoleIDs)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}
