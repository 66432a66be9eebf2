package middleware

import (
	"net/http"

	apperrors "github.com/relaymux/relaymux/internal/errors"
	"github.com/relaymux/relaymux/internal/httpformat"
	"github.com/gin-gonic/gin"
)

// MaxBodySize rejects request bodies larger than limit with 413 before any
// routing, credential selection, or protocol translation runs. It wraps the
// request body in http.MaxBytesReader, so a body that exceeds the limit
// fails on read rather than being fully buffered first.
func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			respondTooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func respondTooLarge(c *gin.Context) {
	err := apperrors.New(
		http.StatusRequestEntityTooLarge,
		"request_too_large",
		"invalid_request_error",
		"request body exceeds the maximum allowed size",
	)
	format := httpformat.DetectFromContext(c)
	payload, marshalErr := err.ToJSON(format)
	if marshalErr != nil {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": gin.H{"message": err.Message, "type": err.Type, "code": err.Code},
		})
		return
	}
	c.Data(http.StatusRequestEntityTooLarge, "application/json", payload)
	c.Abort()
}
