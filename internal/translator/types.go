// Package translator converts request and response bodies between the
// three client protocols (OpenAI chat, Anthropic Messages, Gemini
// generateContent) and the Gemini upstream wire shape, including the SSE
// stream re-encoding. Transforms are pure functions registered per
// (from, to) pair; an unregistered pair passes bytes through untouched.
// Gemini-native requests reach the Gemini upstream that way; their
// responses only have the Code Assist envelope stripped (gemini_native.go).
package translator

import (
	"context"
	"io"

	"github.com/tidwall/gjson"
)

// Format names a wire protocol.
type Format string

const (
	FormatOpenAI    Format = "openai"
	FormatGemini    Format = "gemini"
	FormatAnthropic Format = "anthropic"
)

// Generation parameter clamps applied when mapping into Gemini's
// generationConfig.
const (
	defaultTopK     = 64
	maxTopK         = 64
	maxOutputTokens = 65535
)

// RequestTransform converts a request body.
type RequestTransform func(model string, rawJSON []byte, stream bool) []byte

// ResponseTransform converts a buffered response body.
type ResponseTransform func(ctx context.Context, model string, responseBody []byte) ([]byte, error)

// StreamTransform converts an SSE stream as it is read.
type StreamTransform func(ctx context.Context, model string, upstream io.Reader) (io.Reader, error)

// TranslatorConfig bundles the transforms for one (from, to) pair.
type TranslatorConfig struct {
	RequestTransform  RequestTransform
	ResponseTransform ResponseTransform
	StreamTransform   StreamTransform
}

// geminiRoot unwraps the Code Assist response envelope: the interesting
// payload sits under "response" when the call went through v1internal,
// and at the top level when it didn't.
func geminiRoot(result gjson.Result) gjson.Result {
	if inner := result.Get("response"); inner.Exists() {
		return inner
	}
	return result
}
