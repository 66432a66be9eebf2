// Package httpformat decides which protocol's error envelope a response
// should use, based on the route the request arrived on.
package httpformat

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/relaymux/relaymux/internal/errors"
)

// DetectFromContext resolves the error format for a gin request.
func DetectFromContext(c *gin.Context) apperrors.ErrorFormat {
	if c == nil || c.Request == nil {
		return apperrors.FormatOpenAI
	}
	return DetectFromRequest(c.Request)
}

// DetectFromRequest resolves the error format for a plain HTTP request.
func DetectFromRequest(r *http.Request) apperrors.ErrorFormat {
	if r == nil || r.URL == nil {
		return apperrors.FormatOpenAI
	}
	return DetectFromPath(r.URL.Path)
}

// DetectFromPath resolves the error format from a request path.
func DetectFromPath(path string) apperrors.ErrorFormat {
	path = strings.ToLower(path)
	switch {
	case strings.Contains(path, "/v1beta/"),
		strings.Contains(path, ":generatecontent"),
		strings.Contains(path, ":streamgeneratecontent"),
		strings.Contains(path, ":counttokens"):
		return apperrors.FormatGemini
	case strings.Contains(path, "/v1/messages"):
		return apperrors.FormatAnthropic
	default:
		return apperrors.FormatOpenAI
	}
}
