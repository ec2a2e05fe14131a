package utils

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dinewithlocals/backend/internal/apperrors"
	"github.com/dinewithlocals/backend/internal/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RespondError writes err as JSON. Anything that is not an *APIError is
// logged and reported as a 500 without leaking its message.
func RespondError(c *gin.Context, err error) {
	var apiErr *apperrors.APIError
	if !errors.As(err, &apiErr) {
		logger.Log.Error("unhandled error",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
		apiErr = apperrors.Internal("internal server error")
	}

	fields := []zap.Field{
		zap.String("code", string(apiErr.Code)),
		zap.String("message", apiErr.Message),
		zap.String("path", c.Request.URL.Path),
	}
	if apiErr.Field != "" {
		fields = append(fields, zap.String("field", apiErr.Field))
	}
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Log.Error("API error", fields...)
	} else {
		logger.Log.Warn("API error", fields...)
	}

	c.AbortWithStatusJSON(apiErr.Status, apiErr)
}

// RespondBindError reports a request binding/validation failure.
func RespondBindError(c *gin.Context, err error) {
	RespondError(c, apperrors.BadRequest(err.Error()))
}

// ParseIDParam reads a positive numeric path parameter.
func ParseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		RespondError(c, apperrors.Validation(name, "invalid "+name))
		return 0, false
	}
	return uint(id), true
}

// Page describes a limit/offset window read from the query string.
type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ParsePage reads ?page=&limit= with sane bounds.
func ParsePage(c *gin.Context, defaultLimit, maxLimit int) Page {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return Page{Page: page, Limit: limit}
}
