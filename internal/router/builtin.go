package router

// builtinTable is the system default model map covering the well-known
// OpenAI and Anthropic client names. It is deliberately small and
// explicit: adding an upstream model here is a conscious decision, not a
// side effect of a wildcard.
var builtinTable = map[string]string{
	// Claude family routed onto the Gemini upstream.
	"claude-opus-4-5-thinking":       "claude-opus-4-5-thinking",
	"claude-opus-4-5":                "claude-opus-4-5-thinking",
	"claude-sonnet-4-5":              "claude-sonnet-4-5",
	"claude-sonnet-4-5-thinking":     "claude-sonnet-4-5-thinking",
	"claude-sonnet-4-5-20250929":     "claude-sonnet-4-5-thinking",
	"claude-3-5-sonnet-20241022":     "claude-sonnet-4-5",
	"claude-3-5-sonnet-20240620":     "claude-sonnet-4-5",
	"claude-opus-4":                  "claude-opus-4-5-thinking",
	"claude-opus-4-5-20251101":       "claude-opus-4-5-thinking",
	"claude-haiku-4":                 "claude-sonnet-4-5",
	"claude-3-haiku-20240307":        "claude-sonnet-4-5",
	"claude-haiku-4-5-20251001":      "claude-sonnet-4-5",

	// OpenAI protocol table.
	"gpt-4":                    "gemini-2.5-pro",
	"gpt-4-turbo":              "gemini-2.5-pro",
	"gpt-4-turbo-preview":      "gemini-2.5-pro",
	"gpt-4-0125-preview":       "gemini-2.5-pro",
	"gpt-4-1106-preview":       "gemini-2.5-pro",
	"gpt-4-0613":               "gemini-2.5-pro",
	"gpt-4o":                   "gemini-2.5-pro",
	"gpt-4o-2024-05-13":        "gemini-2.5-pro",
	"gpt-4o-2024-08-06":        "gemini-2.5-pro",
	"gpt-4o-mini":              "gemini-2.5-flash",
	"gpt-4o-mini-2024-07-18":   "gemini-2.5-flash",
	"gpt-3.5-turbo":            "gemini-2.5-flash",
	"gpt-3.5-turbo-16k":        "gemini-2.5-flash",
	"gpt-3.5-turbo-0125":       "gemini-2.5-flash",
	"gpt-3.5-turbo-1106":       "gemini-2.5-flash",
	"gpt-3.5-turbo-0613":       "gemini-2.5-flash",

	// Gemini protocol table (identity entries keep the names in the
	// supported-models list even though passthrough would also match them).
	"gemini-2.5-flash-lite":    "gemini-2.5-flash-lite",
	"gemini-2.5-flash-thinking": "gemini-2.5-flash-thinking",
	"gemini-3-pro-low":         "gemini-3-pro-low",
	"gemini-3-pro-high":        "gemini-3-pro-high",
	"gemini-3-pro-preview":     "gemini-3-pro-preview",
	"gemini-3-pro":             "gemini-3-pro",
	"gemini-2.5-flash":         "gemini-2.5-flash",
	"gemini-3-flash":           "gemini-3-flash",
	"gemini-3-pro-image":       "gemini-3-pro-image",
}
