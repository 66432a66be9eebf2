package pipeline

import (
	"errors"
	"time"

	"github.com/relaymux/relaymux/internal/translator"
)

// cheapProbeTimeout bounds the background 1-token probe CheapProbe fires
// after a successful request; it must never outlive the request that
// triggered it by much.
const cheapProbeTimeout = 15 * time.Second

var errNoProvider = errors.New("pipeline: no upstream provider registered for this model")

// probeBody builds the minimal single-token request body CheapProbe sends,
// in whichever client protocol the original request used so the
// translator layer doesn't need a dedicated probe format.
func probeBody(format translator.Format) []byte {
	switch format {
	case translator.FormatAnthropic:
		return []byte(`{"max_tokens":1,"messages":[{"role":"user","content":"."}]}`)
	case translator.FormatGemini:
		return []byte(`{"contents":[{"role":"user","parts":[{"text":"."}]}],"generationConfig":{"maxOutputTokens":1}}`)
	default:
		return []byte(`{"max_tokens":1,"messages":[{"role":"user","content":"."}]}`)
	}
}
