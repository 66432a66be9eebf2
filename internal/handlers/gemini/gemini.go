// Package gemini serves the Gemini-native surface: generateContent and
// streamGenerateContent under /v1beta/models/{model}, plus the model
// list. Bodies are already in the Gemini wire shape, so the pipeline's
// translation step reduces to unwrapping the Code Assist envelope on the
// way back.
package gemini

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/relaymux/relaymux/internal/config"
	common "github.com/relaymux/relaymux/internal/handlers/common"
	"github.com/relaymux/relaymux/internal/pipeline"
	"github.com/relaymux/relaymux/internal/router"
	"github.com/relaymux/relaymux/internal/translator"
)

// Handler serves the /v1beta Gemini routes.
type Handler struct {
	cfg *config.Config
	pl  *pipeline.Pipeline
}

// New constructs a Handler bound to the shared pipeline.
func New(cfg *config.Config, pl *pipeline.Pipeline) *Handler {
	return &Handler{cfg: cfg, pl: pl}
}

// Action dispatches POST /v1beta/models/{model}:{action}. Gin cannot
// route a literal colon inside a path segment, so the route captures the
// whole "{model}:{action}" tail as one parameter and this splits it.
func (h *Handler) Action(c *gin.Context) {
	tail := strings.TrimPrefix(c.Param("path"), "/")
	model, action, ok := strings.Cut(tail, ":")
	if !ok || model == "" {
		common.AbortWithError(c, http.StatusNotFound, "not_found", "expected models/{model}:{action}")
		return
	}
	switch action {
	case "generateContent":
		h.generate(c, model, false)
	case "streamGenerateContent":
		h.generate(c, model, true)
	default:
		common.AbortWithError(c, http.StatusNotFound, "not_found", "unknown action "+action)
	}
}

func (h *Handler) generate(c *gin.Context, model string, stream bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		if strings.Contains(err.Error(), "too large") {
			common.AbortWithError(c, http.StatusRequestEntityTooLarge, "request_too_large", "request body exceeds the maximum allowed size")
			return
		}
		common.AbortWithError(c, http.StatusBadRequest, "invalid_request_error", "failed to read request body")
		return
	}

	res := h.pl.Execute(pipeline.Request{
		Ctx:         c.Request.Context(),
		Format:      translator.FormatGemini,
		ClientModel: model,
		Body:        body,
		Headers:     c.Request.Header,
		Stream:      stream,
		Method:      c.Request.Method,
		Path:        c.Request.URL.Path,
		TraceID:     c.GetString("request_id"),
	})

	if res.Err != nil {
		common.AbortWithAPIError(c, res.Err)
		return
	}
	if res.UsedModel != "" {
		c.Header("X-Resolved-Model", res.UsedModel)
	}
	if res.IsStream {
		common.StreamSSE(c, res.Stream)
		return
	}
	c.Data(http.StatusOK, "application/json", res.Body)
}

// ListModels handles GET /v1beta/models.
func (h *Handler) ListModels(c *gin.Context) {
	models := router.KnownModels(h.cfg.CustomModelMapping)
	data := make([]gin.H, 0, len(models))
	for _, id := range models {
		data = append(data, gin.H{
			"name":                       "models/" + id,
			"displayName":                id,
			"supportedGenerationMethods": []string{"generateContent", "streamGenerateContent"},
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": data})
}
