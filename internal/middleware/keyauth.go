package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/relaymux/relaymux/internal/errors"
	"github.com/relaymux/relaymux/internal/httpformat"
)

// APIKeyAuth enforces a single API key. The key may arrive as a bearer
// token, an x-api-key header (Anthropic clients), an x-goog-api-key
// header (Gemini clients), or a ?key= query parameter.
func APIKeyAuth(requiredKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := extractKey(c)
		if key == "" {
			respondUnauthorized(c, "API key not provided")
			return
		}
		if key != requiredKey {
			respondUnauthorized(c, "Invalid API key")
			return
		}
		c.Set("api_key", key)
		c.Next()
	}
}

func extractKey(c *gin.Context) string {
	if auth := strings.TrimSpace(c.GetHeader("Authorization")); auth != "" {
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			return strings.TrimSpace(auth[7:])
		}
		return auth
	}
	if key := c.GetHeader("x-api-key"); key != "" {
		return key
	}
	if key := c.GetHeader("x-goog-api-key"); key != "" {
		return key
	}
	return c.Query("key")
}

func respondUnauthorized(c *gin.Context, message string) {
	apiErr := apperrors.AuthFailed.WithMessage(message)
	payload, err := apiErr.ToJSON(httpformat.DetectFromContext(c))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"message": message, "type": apiErr.Type},
		})
		return
	}
	c.Data(http.StatusUnauthorized, "application/json", payload)
	c.Abort()
}
