// Package anthropic serves the Anthropic Messages API by delegating every
// request to the shared request pipeline (package pipeline), the same
// credential/health/adaptive machinery the OpenAI and Gemini handlers
// delegate to. Like those two, this handler never talks to the upstream
// provider or the credential manager directly: it parses just
// enough of the inbound body to hand the pipeline a protocol-agnostic
// request and translates the pipeline's verdict into an HTTP response.
package anthropic

import (
	"github.com/relaymux/relaymux/internal/config"
	"github.com/relaymux/relaymux/internal/pipeline"
)

// Handler serves POST /v1/messages.
type Handler struct {
	cfg *config.Config
	pl  *pipeline.Pipeline
}

// New constructs a Handler bound to the given pipeline.
func New(cfg *config.Config, pl *pipeline.Pipeline) *Handler {
	return &Handler{cfg: cfg, pl: pl}
}
