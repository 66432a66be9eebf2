package anthropic

import (
	"io"
	"net/http"
	"strings"

	common "github.com/relaymux/relaymux/internal/handlers/common"
	"github.com/relaymux/relaymux/internal/pipeline"
	"github.com/relaymux/relaymux/internal/translator"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// Messages handles POST /v1/messages: read the body, hand it to the
// pipeline in the Anthropic format, and translate the verdict back into
// the client's protocol (the pipeline already returns bytes/a stream in
// that protocol, so this is mostly plumbing).
func (h *Handler) Messages(c *gin.Context) {
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
	stream := gjson.GetBytes(body, "stream").Bool()

	res := h.pl.Execute(pipeline.Request{
		Ctx:         c.Request.Context(),
		Format:      translator.FormatAnthropic,
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
		writeStream(c, res.Stream)
		return
	}

	c.Data(http.StatusOK, "application/json", res.Body)
}
