package translator

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func init() {
	Register(FormatOpenAI, FormatGemini, TranslatorConfig{
		RequestTransform: OpenAIToGeminiRequest,
	})
}

// OpenAIToGeminiRequest converts an OpenAI chat-completions request into
// the Gemini generateContent body: system/developer messages hoist into
// systemInstruction, assistant tool_calls become functionCall parts, tool
// results become functionResponse parts, and the sampling parameters land
// in generationConfig with the upstream's clamps applied.
func OpenAIToGeminiRequest(model string, rawJSON []byte, stream bool) []byte {
	out := `{"contents":[]}`

	genConfig := buildOpenAIGenerationConfig(model, rawJSON)
	genConfigJSON, _ := json.Marshal(genConfig)
	out, _ = sjson.SetRaw(out, "generationConfig", string(genConfigJSON))

	contents, systemParts := translateOpenAIMessages(rawJSON)
	contentsJSON, _ := json.Marshal(contents)
	out, _ = sjson.SetRaw(out, "contents", string(contentsJSON))

	if len(systemParts) > 0 {
		sysJSON, _ := json.Marshal(map[string]interface{}{"parts": systemParts})
		out, _ = sjson.SetRaw(out, "systemInstruction", string(sysJSON))
	}

	out = applyOpenAIToolDeclarations(out, rawJSON)
	return []byte(out)
}

func buildOpenAIGenerationConfig(model string, rawJSON []byte) map[string]interface{} {
	genConfig := map[string]interface{}{"candidateCount": 1}

	if temp := gjson.GetBytes(rawJSON, "temperature"); temp.Exists() {
		genConfig["temperature"] = temp.Value()
	}
	if topP := gjson.GetBytes(rawJSON, "top_p"); topP.Exists() {
		genConfig["topP"] = topP.Value()
	}
	topKValue := defaultTopK
	if topK := gjson.GetBytes(rawJSON, "top_k"); topK.Exists() {
		value := int(topK.Int())
		if value <= 0 {
			value = defaultTopK
		}
		if value > maxTopK {
			value = maxTopK
		}
		topKValue = value
	}
	genConfig["topK"] = topKValue

	maxTokens := gjson.GetBytes(rawJSON, "max_completion_tokens")
	if !maxTokens.Exists() {
		maxTokens = gjson.GetBytes(rawJSON, "max_tokens")
	}
	if maxTokens.Exists() {
		value := int(maxTokens.Int())
		if value > maxOutputTokens {
			value = maxOutputTokens
		}
		if value > 0 {
			genConfig["maxOutputTokens"] = value
		}
	}

	if stop := gjson.GetBytes(rawJSON, "stop"); stop.Exists() {
		var seqs []string
		if stop.IsArray() {
			for _, s := range stop.Array() {
				seqs = append(seqs, s.String())
			}
		} else if stop.String() != "" {
			seqs = []string{stop.String()}
		}
		if len(seqs) > 0 {
			genConfig["stopSequences"] = seqs
		}
	}

	if img := imageHints(model); img != nil {
		genConfig["imageConfig"] = img
	}
	return genConfig
}

// imageHints reads the image-generation parameters an image model carries
// in its name suffix: "-2k"/"-4k" pick the output size, "-16x9" and
// friends the aspect ratio. Non-image models get none.
func imageHints(model string) map[string]interface{} {
	lower := strings.ToLower(model)
	if !strings.Contains(lower, "image") {
		return nil
	}
	hints := map[string]interface{}{}
	for _, size := range []string{"1k", "2k", "4k"} {
		if strings.Contains(lower, "-"+size) {
			hints["imageSize"] = strings.ToUpper(size)
			break
		}
	}
	for _, ratio := range []string{"1x1", "16x9", "9x16", "4x3", "3x4", "21x9"} {
		if strings.Contains(lower, "-"+ratio) {
			hints["aspectRatio"] = strings.Replace(ratio, "x", ":", 1)
			break
		}
	}
	if len(hints) == 0 {
		return nil
	}
	return hints
}

func translateOpenAIMessages(rawJSON []byte) (contents []interface{}, systemParts []interface{}) {
	// tool_call_id -> function name, so tool-result messages can name the
	// function they answer.
	callNames := map[string]string{}

	for _, msg := range gjson.GetBytes(rawJSON, "messages").Array() {
		role := msg.Get("role").String()
		switch role {
		case "system", "developer":
			if text := contentText(msg.Get("content")); text != "" {
				systemParts = append(systemParts, map[string]interface{}{"text": sanitizeText(text)})
			}
		case "assistant":
			parts := assistantParts(msg, callNames)
			if len(parts) > 0 {
				contents = append(contents, map[string]interface{}{"role": "model", "parts": parts})
			}
		case "tool":
			name := callNames[msg.Get("tool_call_id").String()]
			if name == "" {
				name = msg.Get("name").String()
			}
			contents = append(contents, map[string]interface{}{
				"role": "user",
				"parts": []interface{}{map[string]interface{}{
					"functionResponse": map[string]interface{}{
						"name":     name,
						"response": map[string]interface{}{"result": contentText(msg.Get("content"))},
					},
				}},
			})
		default: // user
			parts := userParts(msg.Get("content"))
			if len(parts) > 0 {
				contents = append(contents, map[string]interface{}{"role": "user", "parts": parts})
			}
		}
	}

	contents = sanitizeMessages(contents)
	systemParts = sanitizeParts(systemParts)
	return contents, systemParts
}

func assistantParts(msg gjson.Result, callNames map[string]string) []interface{} {
	var parts []interface{}
	if text := contentText(msg.Get("content")); text != "" {
		parts = append(parts, map[string]interface{}{"text": sanitizeText(text)})
	}
	for _, call := range msg.Get("tool_calls").Array() {
		name := call.Get("function.name").String()
		callNames[call.Get("id").String()] = name

		args := map[string]interface{}{}
		if raw := call.Get("function.arguments").String(); raw != "" {
			_ = json.Unmarshal([]byte(raw), &args)
		}
		parts = append(parts, map[string]interface{}{
			"functionCall": map[string]interface{}{"name": name, "args": args},
		})
	}
	return parts
}

func userParts(content gjson.Result) []interface{} {
	if !content.IsArray() {
		if text := content.String(); text != "" {
			return []interface{}{map[string]interface{}{"text": sanitizeText(text)}}
		}
		return nil
	}

	var parts []interface{}
	for _, item := range content.Array() {
		switch item.Get("type").String() {
		case "image_url":
			if part := inlineImagePart(item.Get("image_url.url").String()); part != nil {
				parts = append(parts, part)
			}
		default:
			if text := item.Get("text").String(); text != "" {
				parts = append(parts, map[string]interface{}{"text": sanitizeText(text)})
			}
		}
	}
	return parts
}

// inlineImagePart converts a data: URI into a Gemini inlineData part.
// Remote URLs are dropped: the upstream fetches nothing on the client's
// behalf.
func inlineImagePart(url string) map[string]interface{} {
	if !strings.HasPrefix(url, "data:") {
		return nil
	}
	meta, data, ok := strings.Cut(strings.TrimPrefix(url, "data:"), ",")
	if !ok {
		return nil
	}
	mime, _, _ := strings.Cut(meta, ";")
	return map[string]interface{}{
		"inlineData": map[string]interface{}{"mimeType": mime, "data": data},
	}
}

func contentText(content gjson.Result) string {
	if content.IsArray() {
		var b strings.Builder
		for _, item := range content.Array() {
			if t := item.Get("text"); t.Exists() {
				b.WriteString(t.String())
			}
		}
		return b.String()
	}
	return content.String()
}

func applyOpenAIToolDeclarations(out string, rawJSON []byte) string {
	var fnDecls []interface{}
	for _, tool := range gjson.GetBytes(rawJSON, "tools").Array() {
		fn := tool.Get("function")
		if !fn.Exists() {
			continue
		}
		decl := map[string]interface{}{
			"name":        fn.Get("name").String(),
			"description": fn.Get("description").String(),
		}
		if params := fn.Get("parameters"); params.Exists() {
			decl["parameters"] = params.Value()
		}
		fnDecls = append(fnDecls, decl)
	}
	if len(fnDecls) == 0 {
		return out
	}
	toolsJSON, _ := json.Marshal([]interface{}{
		map[string]interface{}{"functionDeclarations": fnDecls},
	})
	out, _ = sjson.SetRaw(out, "tools", string(toolsJSON))
	return out
}
