package translator

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func init() {
	Register(FormatAnthropic, FormatGemini, TranslatorConfig{
		RequestTransform: AnthropicToGeminiRequest,
	})
}

// AnthropicToGeminiRequest converts an Anthropic Messages request to the
// Gemini generateContent/streamGenerateContent body, mirroring
// OpenAIToGeminiRequest's shape (build generationConfig, translate
// messages, splice in tool declarations) but reading Anthropic's own
// field names (max_tokens at the top level, system as string-or-blocks,
// input_schema instead of parameters).
func AnthropicToGeminiRequest(model string, rawJSON []byte, stream bool) []byte {
	out := `{"contents":[]}`

	genConfig := buildAnthropicGenerationConfig(rawJSON)
	genConfigJSON, _ := json.Marshal(genConfig)
	out, _ = sjson.SetRaw(out, "generationConfig", string(genConfigJSON))

	contents, systemInstructions := translateAnthropicMessages(rawJSON)
	contentsJSON, _ := json.Marshal(contents)
	out, _ = sjson.SetRaw(out, "contents", string(contentsJSON))

	if len(systemInstructions) > 0 {
		sysJSON, _ := json.Marshal(map[string]interface{}{"parts": systemInstructions})
		out, _ = sjson.SetRaw(out, "systemInstruction", string(sysJSON))
	}

	out = applyAnthropicToolDeclarations(out, rawJSON)

	return []byte(out)
}

func buildAnthropicGenerationConfig(rawJSON []byte) map[string]interface{} {
	genConfig := make(map[string]interface{})
	genConfig["candidateCount"] = 1

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

	if maxTokens := gjson.GetBytes(rawJSON, "max_tokens"); maxTokens.Exists() {
		value := int(maxTokens.Int())
		if value > maxOutputTokens {
			value = maxOutputTokens
		}
		if value > 0 {
			genConfig["maxOutputTokens"] = value
		}
	}

	if stop := gjson.GetBytes(rawJSON, "stop_sequences"); stop.Exists() && stop.IsArray() {
		var seqs []string
		for _, s := range stop.Array() {
			seqs = append(seqs, s.String())
		}
		if len(seqs) > 0 {
			genConfig["stopSequences"] = seqs
		}
	}

	if thinking := gjson.GetBytes(rawJSON, "thinking"); thinking.Exists() {
		if thinking.Get("type").String() == "enabled" {
			budget := int(thinking.Get("budget_tokens").Int())
			if budget <= 0 {
				budget = -1
			}
			genConfig["thinkingConfig"] = map[string]interface{}{
				"thinkingBudget":  budget,
				"includeThoughts": true,
			}
		}
	}

	return genConfig
}

// translateAnthropicMessages converts the Anthropic system + messages
// arrays into Gemini contents/systemInstruction parts. Anthropic's
// tool_result content blocks map onto Gemini functionResponse parts the
// same way the OpenAI translator maps "tool" role messages.
func translateAnthropicMessages(rawJSON []byte) ([]interface{}, []interface{}) {
	var systemInstructions []interface{}

	if sys := gjson.GetBytes(rawJSON, "system"); sys.Exists() {
		if sys.IsArray() {
			for _, block := range sys.Array() {
				systemInstructions = append(systemInstructions, map[string]interface{}{
					"text": sanitizeText(block.Get("text").String()),
				})
			}
		} else if sys.String() != "" {
			systemInstructions = append(systemInstructions, map[string]interface{}{
				"text": sanitizeText(sys.String()),
			})
		}
	}

	var contents []interface{}
	messages := gjson.GetBytes(rawJSON, "messages")
	for _, msg := range messages.Array() {
		role := msg.Get("role").String()
		geminiRole := "user"
		if role == "assistant" {
			geminiRole = "model"
		}

		content := msg.Get("content")
		var parts []interface{}

		if content.IsArray() {
			for _, block := range content.Array() {
				parts = append(parts, convertAnthropicContentBlock(block)...)
			}
		} else if content.String() != "" {
			parts = append(parts, map[string]interface{}{"text": sanitizeText(content.String())})
		}

		if len(parts) == 0 {
			continue
		}
		contents = append(contents, map[string]interface{}{
			"role":  geminiRole,
			"parts": parts,
		})
	}

	contents = sanitizeMessages(contents)
	systemInstructions = sanitizeParts(systemInstructions)
	return contents, systemInstructions
}

// convertAnthropicContentBlock returns zero or more Gemini parts for a
// single Anthropic content block; tool_result blocks can themselves
// contain an array of sub-blocks, hence the slice return.
func convertAnthropicContentBlock(block gjson.Result) []interface{} {
	switch block.Get("type").String() {
	case "text":
		return []interface{}{map[string]interface{}{"text": sanitizeText(block.Get("text").String())}}

	case "image":
		source := block.Get("source")
		if source.Get("type").String() == "base64" {
			return []interface{}{map[string]interface{}{
				"inlineData": map[string]interface{}{
					"mimeType": source.Get("media_type").String(),
					"data":     source.Get("data").String(),
				},
			}}
		}
		if url := source.Get("url"); url.Exists() {
			return []interface{}{map[string]interface{}{
				"fileData": map[string]interface{}{"fileUri": url.String()},
			}}
		}
		return nil

	case "tool_use":
		var args interface{}
		input := block.Get("input")
		if input.Exists() {
			args = input.Value()
		} else {
			args = map[string]interface{}{}
		}
		return []interface{}{map[string]interface{}{
			"functionCall": map[string]interface{}{
				"name": block.Get("name").String(),
				"args": args,
			},
		}}

	case "tool_result":
		name := block.Get("tool_use_id").String()
		var response interface{}
		resultContent := block.Get("content")
		if resultContent.IsArray() {
			var text string
			for _, sub := range resultContent.Array() {
				if sub.Get("type").String() == "text" {
					text += sub.Get("text").String()
				}
			}
			response = map[string]interface{}{"result": sanitizeText(text)}
		} else {
			response = map[string]interface{}{"result": sanitizeText(resultContent.String())}
		}
		return []interface{}{map[string]interface{}{
			"functionResponse": map[string]interface{}{
				"name":     name,
				"response": response,
				"id":       block.Get("tool_use_id").String(),
			},
		}}

	default:
		var result interface{}
		if err := json.Unmarshal([]byte(block.Raw), &result); err == nil {
			return []interface{}{result}
		}
		return []interface{}{map[string]interface{}{"text": sanitizeText(block.Raw)}}
	}
}

func applyAnthropicToolDeclarations(out string, rawJSON []byte) string {
	tools := gjson.GetBytes(rawJSON, "tools")
	if !tools.Exists() || !tools.IsArray() {
		return out
	}

	var fnDecls []interface{}
	for _, tool := range tools.Array() {
		if tool.Get("type").String() != "" && tool.Get("name").String() == "" {
			// Anthropic server tools (e.g. "computer_20241022") carry no
			// input_schema the Gemini upstream can use; skip them.
			continue
		}
		decl := map[string]interface{}{
			"name":        tool.Get("name").String(),
			"description": tool.Get("description").String(),
		}
		if schema := tool.Get("input_schema"); schema.Exists() {
			decl["parameters"] = schema.Value()
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
