// Package common holds the response helpers every protocol handler
// shares: protocol-correct error bodies and SSE preamble setup.
package common

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/relaymux/relaymux/internal/errors"
	"github.com/relaymux/relaymux/internal/httpformat"
)

// AbortWithAPIError writes err in the protocol the request arrived in and
// aborts the handler chain.
func AbortWithAPIError(c *gin.Context, err *apperrors.APIError) {
	if err == nil {
		err = apperrors.New(http.StatusInternalServerError, "server_error", "server_error", "unknown error")
	}
	payload, marshalErr := err.ToJSON(httpformat.DetectFromContext(c))
	if marshalErr != nil {
		c.AbortWithStatusJSON(err.HTTPStatus, gin.H{
			"error": gin.H{"message": err.Message, "type": err.Type, "code": err.Code},
		})
		return
	}
	if err.RetryAfterSec > 0 {
		c.Header("Retry-After", strconv.Itoa(err.RetryAfterSec))
	}
	c.Data(err.HTTPStatus, "application/json", payload)
	c.Abort()
}

// AbortWithError builds an APIError from parts and aborts with it.
func AbortWithError(c *gin.Context, status int, typ, message string) {
	AbortWithAPIError(c, apperrors.New(status, typ, typ, message))
}
