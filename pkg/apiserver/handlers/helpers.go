package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/apiserver/middleware"
	"github.com/courselab/courselab/pkg/apperr"
)

const timeRFC3339 = time.RFC3339

func statusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodePreconditionFailed:
		return http.StatusUnprocessableEntity
	case apperr.CodeExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps a domain error onto the HTTP surface. Internal
// failures are logged in full but never leak their cause.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Code != apperr.CodeInternal {
		c.JSON(statusOf(appErr.Code), gin.H{
			"error": appErr.Message,
			"code":  string(appErr.Code),
		})
		return
	}

	logger.Error("request failed",
		zap.Error(err),
		zap.String("path", c.Request.URL.Path))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func requesterID(c *gin.Context) string {
	return c.GetString(middleware.ContextRequesterID)
}

func parseLimit(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func formatTime(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := value.UTC().Format(timeRFC3339)
	return &formatted
}
