package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-alliance-bot/internal/domain"
)

// defaultRequestLimit applies when the limit query parameter is absent.
const defaultRequestLimit = 50

// ListRequestsResponse wraps a ledger page, newest first.
type ListRequestsResponse struct {
	Requests []domain.VerificationRequest `json:"requests"`
}

// ListRequests godoc
// @ID          listRequests
// @Summary     List verification requests
// @Description Returns ledger rows newest first, optionally filtered by status and member.
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
//
// @Param       community  path    string  true  "Community (guild) ID"
// @Param       status     query   string  false "PENDING, APPROVED or REJECTED (case-insensitive)"
// @Param       member     query   string  false "Member ID"
// @Param       limit      query   int     false "Maximum rows"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object}  handlers.ListRequestsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown status or bad limit"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /communities/{community}/requests [get]
func (h *Handlers) ListRequests(c *gin.Context) {
	f := domain.RequestFilter{
		Status:   domain.RequestStatus(strings.TrimSpace(c.Query("status"))),
		MemberID: strings.TrimSpace(c.Query("member")),
		Limit:    defaultRequestLimit,
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	out, err := h.ledger.List(c.Request.Context(), c.Param("community"), f)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListRequestsResponse{Requests: out})
}

// GetRequest godoc
// @ID          getRequest
// @Summary     Get one verification request
// @Tags        Requests
// @Produce     json
// @Security    BearerAuth
//
// @Param       community  path    string  true  "Community (guild) ID"
// @Param       id         path    string  true  "Request ID (<unix-millis>-<memberId>)"
//
// @Success     200  {object}  domain.VerificationRequest
// @Failure     404  {object}  handlers.ErrorResponse  "Request not found"
// @Router      /communities/{community}/requests/{id} [get]
func (h *Handlers) GetRequest(c *gin.Context) {
	r, err := h.ledger.Get(c.Request.Context(), c.Param("community"), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}
