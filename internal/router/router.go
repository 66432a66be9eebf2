// Package router resolves a client-supplied model name to the upstream
// model name the proxy should actually call, per the priority order:
// exact custom mapping, then wildcard custom mapping, then the built-in
// table, then a known-prefix passthrough. An unmapped name is always an
// error — there is no silent default model.
package router

import (
	"fmt"
	"strings"
)

// ErrUnknownModel is returned when no mapping rule, wildcard, or built-in
// entry resolves the requested model and it doesn't match a passthrough
// prefix either.
type ErrUnknownModel struct {
	Model string
}

func (e *ErrUnknownModel) Error() string {
	return fmt.Sprintf("unknown model: %q. No mapping rule found. Add it to custom_mapping or use a supported model.", e.Model)
}

// Reason describes which rule resolved a lookup, useful for request logs.
type Reason string

const (
	ReasonExact       Reason = "exact"
	ReasonWildcard    Reason = "wildcard"
	ReasonBuiltin     Reason = "builtin"
	ReasonPassthrough Reason = "passthrough"
)

// Resolution is the outcome of a successful Resolve call.
type Resolution struct {
	Upstream string
	Reason   Reason
	Pattern  string // the custom_mapping pattern that matched, if any
}

// Resolve maps clientModel to an upstream model name. custom is consulted
// under the caller's lock (router itself takes no lock — callers already
// hold one around their mapping table, matching config.ConfigManager's
// existing locking convention).
func Resolve(clientModel string, custom map[string]string) (Resolution, error) {
	clientModel = strings.TrimSpace(clientModel)
	if clientModel == "" {
		return Resolution{}, &ErrUnknownModel{Model: clientModel}
	}

	// 1. Exact match in custom mapping.
	if target, ok := custom[clientModel]; ok {
		return Resolution{Upstream: target, Reason: ReasonExact, Pattern: clientModel}, nil
	}

	// 2. Wildcard match in custom mapping (exactly one '*' per pattern).
	for pattern, target := range custom {
		if !strings.Contains(pattern, "*") {
			continue
		}
		if wildcardMatch(pattern, clientModel) {
			return Resolution{Upstream: target, Reason: ReasonWildcard, Pattern: pattern}, nil
		}
	}

	// 3. Built-in table.
	if target, ok := builtinTable[clientModel]; ok {
		return Resolution{Upstream: target, Reason: ReasonBuiltin}, nil
	}

	// 4. Pass-through for known upstream families / dynamic thinking suffixes.
	if isPassthroughable(clientModel) {
		return Resolution{Upstream: clientModel, Reason: ReasonPassthrough}, nil
	}

	// 5. No fallback.
	return Resolution{}, &ErrUnknownModel{Model: clientModel}
}

// wildcardMatch implements a single '*' wildcard, anywhere in pattern:
// everything before '*' must prefix text, everything after must suffix it.
func wildcardMatch(pattern, text string) bool {
	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return pattern == text
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	return strings.HasPrefix(text, prefix) && strings.HasSuffix(text, suffix)
}

func isPassthroughable(model string) bool {
	return strings.HasPrefix(model, "gemini-") ||
		strings.HasPrefix(model, "claude-") ||
		strings.Contains(model, "thinking")
}

// SupportedModels returns the keys of the built-in table. The /models
// endpoints list KnownModels instead.
func SupportedModels() []string {
	out := make([]string, 0, len(builtinTable))
	for k := range builtinTable {
		out = append(out, k)
	}
	return out
}
