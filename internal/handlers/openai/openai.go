// Package openai serves the OpenAI-compatible surface: chat completions
// (buffered and streaming), the model list, and the model-detect
// diagnostic. Like the Anthropic handler it parses just enough of the
// body to know the model and streaming flag, then delegates everything
// else to the shared request pipeline.
package openai

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/relaymux/relaymux/internal/config"
	common "github.com/relaymux/relaymux/internal/handlers/common"
	"github.com/relaymux/relaymux/internal/pipeline"
	"github.com/relaymux/relaymux/internal/router"
	"github.com/relaymux/relaymux/internal/translator"
)

// Handler serves the /v1 OpenAI-compatible routes.
type Handler struct {
	cfg *config.Config
	pl  *pipeline.Pipeline
}

// New constructs a Handler bound to the shared pipeline.
func New(cfg *config.Config, pl *pipeline.Pipeline) *Handler {
	return &Handler{cfg: cfg, pl: pl}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *Handler) ChatCompletions(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		if strings.Contains(err.Error(), "too large") {
			common.AbortWithError(c, http.StatusRequestEntityTooLarge, "request_too_large", "request body exceeds the maximum allowed size")
			return
		}
		common.AbortWithError(c, http.StatusBadRequest, "invalid_request_error", "failed to read request body")
		return
	}

	model := gjson.GetBytes(body, "model").String()
	if model == "" {
		common.AbortWithError(c, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}
	if !gjson.GetBytes(body, "messages").IsArray() {
		common.AbortWithError(c, http.StatusBadRequest, "invalid_request_error", "messages is required")
		return
	}
	stream := gjson.GetBytes(body, "stream").Bool()

	res := h.pl.Execute(pipeline.Request{
		Ctx:         c.Request.Context(),
		Format:      translator.FormatOpenAI,
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

// ListModels handles GET /v1/models.
func (h *Handler) ListModels(c *gin.Context) {
	created := time.Now().Unix()
	models := router.KnownModels(h.cfg.CustomModelMapping)

	data := make([]gin.H, 0, len(models))
	for _, id := range models {
		data = append(data, gin.H{
			"id":       id,
			"object":   "model",
			"created":  created,
			"owned_by": "relaymux",
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

// DetectModel handles POST /v1/models/detect: report how a model name
// would route without dispatching anything.
func (h *Handler) DetectModel(c *gin.Context) {
	var req struct {
		Model string `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Model == "" {
		common.AbortWithError(c, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}

	resolution, err := router.Resolve(req.Model, h.cfg.CustomModelMapping)
	if err != nil {
		common.AbortWithError(c, http.StatusBadRequest, "unknown_model", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"model":        req.Model,
		"mapped_model": resolution.Upstream,
		"type":         modelFamily(resolution.Upstream),
		"features":     modelFeatures(req.Model),
	})
}

func modelFamily(upstreamModel string) string {
	lower := strings.ToLower(upstreamModel)
	switch {
	case strings.HasPrefix(lower, "claude-"), strings.HasPrefix(lower, "glm-"):
		return "anthropic"
	case strings.HasPrefix(lower, "gemini"), strings.HasPrefix(lower, "gemma"):
		return "gemini"
	default:
		return "openai"
	}
}

func modelFeatures(model string) gin.H {
	lower := strings.ToLower(model)
	features := gin.H{
		"thinking": strings.Contains(lower, "thinking"),
		"search":   strings.Contains(lower, "search"),
		"image":    strings.Contains(lower, "image"),
	}
	if strings.Contains(lower, "image") {
		for _, size := range []string{"1k", "2k", "4k"} {
			if strings.Contains(lower, "-"+size) {
				features["image_size"] = strings.ToUpper(size)
				break
			}
		}
		for _, ratio := range []string{"1x1", "16x9", "9x16", "4x3", "3x4", "21x9"} {
			if strings.Contains(lower, "-"+ratio) {
				features["aspect_ratio"] = strings.Replace(ratio, "x", ":", 1)
				break
			}
		}
	}
	return features
}
