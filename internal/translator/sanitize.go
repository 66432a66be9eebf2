package translator

import "strings"

// sanitizeText strips characters the upstream rejects: NUL bytes and the
// C0 control range except tab/newline/carriage return.
func sanitizeText(text string) string {
	if text == "" {
		return text
	}
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)
}

// sanitizeParts cleans each text part in place and drops parts whose text
// sanitized down to nothing.
func sanitizeParts(parts []interface{}) []interface{} {
	out := parts[:0]
	for _, part := range parts {
		if mp, ok := part.(map[string]interface{}); ok {
			if text, ok := mp["text"].(string); ok {
				cleaned := sanitizeText(text)
				if cleaned == "" && len(mp) == 1 {
					continue
				}
				mp["text"] = cleaned
			}
		}
		out = append(out, part)
	}
	return out
}

// sanitizeMessages applies sanitizeParts to every message and drops
// messages left with no parts, so empty-content turns never reach the
// upstream.
func sanitizeMessages(messages []interface{}) []interface{} {
	out := messages[:0]
	for _, item := range messages {
		msg, ok := item.(map[string]interface{})
		if !ok {
			out = append(out, item)
			continue
		}
		if parts, ok := msg["parts"].([]interface{}); ok {
			cleaned := sanitizeParts(parts)
			if len(cleaned) == 0 {
				continue
			}
			msg["parts"] = cleaned
		}
		out = append(out, msg)
	}
	return out
}
