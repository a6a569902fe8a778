package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"cvbuilder/internal/api/middleware"
	"cvbuilder/internal/cv"
	"cvbuilder/internal/persistence"
	"cvbuilder/internal/service"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

const schemaMismatchMessage = "database schema is behind the application, an operator must run migrations"

// RespondError 把领域错误映射为 HTTP 响应。
func RespondError(c *gin.Context, err error) {
	logger := middleware.LoggerFromContext(c)

	if ent, ok := service.AsEntitlementError(err); ok {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   ent.Error(),
			"action":  ent.Action,
			"upgrade": true,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrNotOwner):
		Forbidden(c, "forbidden")
	case errors.Is(err, service.ErrNotFound):
		NotFound(c, "cv not found")
	case errors.Is(err, service.ErrPDFNotReady):
		Conflict(c, "pdf not ready")
	case errors.Is(err, cv.ErrInvalidDocument):
		BadRequest(c, err.Error())
	case persistence.IsSchemaMismatch(err):
		logger.Error("schema mismatch", slog.Any("error", err))
		Internal(c, schemaMismatchMessage)
	default:
		logger.Error("request failed", slog.Any("error", err))
		Internal(c, "internal error")
	}
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	return middleware.UserID(c)
}
