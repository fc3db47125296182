package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/services"
	"github.com/smartfix-dev/smartfix-api/utils"
)

var kindStatus = map[services.Kind]struct {
	status int
	code   string
}{
	services.KindValidation:   {http.StatusBadRequest, "VALIDATION_ERROR"},
	services.KindNotFound:     {http.StatusNotFound, "NOT_FOUND"},
	services.KindForbidden:    {http.StatusForbidden, "FORBIDDEN"},
	services.KindUnauthorized: {http.StatusUnauthorized, "UNAUTHORIZED"},
	services.KindConflict:     {http.StatusConflict, "CONFLICT"},
	services.KindTransient:    {http.StatusServiceUnavailable, "TRANSIENT_ERROR"},
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondError writes err in the error envelope. Internal errors are logged
// and answered with a generic message.
func respondError(c *gin.Context, err error) {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		if mapped, ok := kindStatus[svcErr.Kind]; ok {
			if svcErr.Kind == services.KindTransient {
				log.Warn().Err(err).Str("path", c.FullPath()).Msg("transient store error")
			}
			respondErrorCode(c, mapped.status, mapped.code, svcErr.Message)
			return
		}
	}

	log.Error().Err(err).Str("method", c.Request.Method).Str("path", c.FullPath()).Msg("internal error")
	respondErrorCode(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
}

// respondBindError answers a request body that failed to bind
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request data",
			"details": utils.TranslateValidationError(err),
		},
	})
}

// idParam parses a positive numeric path parameter, answering 400 when it is not one
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondErrorCode(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}
