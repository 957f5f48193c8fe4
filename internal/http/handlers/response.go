// Package handlers provides the admin API endpoints.
//
// This file holds the response helpers shared by every endpoint. All errors
// use ErrorResponse with a stable code; fail() logs 5xx responses with the
// request-scoped logger. failErr() translates the service error taxonomy:
//
//	ErrInvalidInput       → 400 bad_request
//	ErrForbidden          → 403 forbidden
//	ErrNotFound           → 404 not_found
//	ErrConflict           → 409 conflict
//	ErrChannelUnavailable → 422 channel_unavailable
//	ErrExternalFailure    → 502 upstream_failed
//	anything else         → 500 internal_error
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-alliance-bot/internal/http/middleware"
	"github.com/tbourn/go-alliance-bot/internal/services"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// fail aborts with an ErrorResponse. Server errors (>=500) are logged.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail for the router fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps a service error onto a status and code. User errors carry the
// wrapped message; internal errors never leak their text.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrChannelUnavailable):
		fail(c, http.StatusUnprocessableEntity, ErrCodeChannelUnavailable, err.Error())
	case errors.Is(err, services.ErrExternalFailure):
		_ = c.Error(err)
		fail(c, http.StatusBadGateway, ErrCodeUpstreamFailed, "chat platform request failed")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
