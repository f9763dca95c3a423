package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zaqqye/seb_proctor/internal/services"
	"github.com/zaqqye/seb_proctor/internal/store"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type scheduleLockedResponse struct {
	Error            string      `json:"error"`
	Reason           string      `json:"reason"`
	Message          string      `json:"message"`
	OverrideRequired bool        `json:"override_required"`
	NextAvailable    interface{} `json:"next_available"`
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{services.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
	{services.ErrCodeConsumed, http.StatusConflict, "code_consumed"},
	{services.ErrNotLocked, http.StatusConflict, "not_locked"},
	{services.ErrSessionLocked, http.StatusLocked, "session_locked"},
	{services.ErrSessionEnded, http.StatusConflict, "session_ended"},
	{services.ErrSessionNotFound, http.StatusNotFound, "not_found"},
	{services.ErrAssessmentNotFound, http.StatusNotFound, "not_found"},
	{services.ErrCodeNotFound, http.StatusNotFound, "not_found"},
	{store.ErrNotFound, http.StatusNotFound, "not_found"},
	{services.ErrForbidden, http.StatusForbidden, "forbidden"},
}

// respondError maps domain errors to the JSON error contract. Unknown errors
// are logged and reported as 500 without detail.
func respondError(c *gin.Context, err error) {
	var denied *services.ScheduleDeniedError
	if errors.As(err, &denied) {
		var next interface{}
		if denied.NextAvailable != nil {
			next = denied.NextAvailable
		}
		c.JSON(http.StatusForbidden, scheduleLockedResponse{
			Error:            "schedule_locked",
			Reason:           "schedule_locked",
			Message:          denied.Error(),
			OverrideRequired: true,
			NextAvailable:    next,
		})
		return
	}
	if errors.Is(err, services.ErrInvalidArgument) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_argument", Message: err.Error()})
		return
	}
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			c.JSON(m.status, errorResponse{Error: m.code, Message: m.err.Error()})
			return
		}
	}
	log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_argument", Message: err.Error()})
}
