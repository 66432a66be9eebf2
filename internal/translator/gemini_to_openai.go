package translator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/tidwall/gjson"
)

func init() {
	Register(FormatGemini, FormatOpenAI, TranslatorConfig{
		ResponseTransform: GeminiToOpenAIResponse,
		StreamTransform:   GeminiToOpenAIStream,
	})
}

// mapOpenAIFinishReason collapses Gemini finish reasons into OpenAI's
// vocabulary; anything unknown becomes "stop".
func mapOpenAIFinishReason(reason string, sawToolCall bool) string {
	if sawToolCall {
		return "tool_calls"
	}
	switch reason {
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "PROHIBITED_CONTENT", "BLOCKLIST":
		return "content_filter"
	default:
		return "stop"
	}
}

// GeminiToOpenAIResponse converts a buffered Gemini response into an
// OpenAI chat-completion object.
func GeminiToOpenAIResponse(ctx context.Context, model string, responseBody []byte) ([]byte, error) {
	result := geminiRoot(gjson.ParseBytes(responseBody))

	if errMsg := result.Get("error"); errMsg.Exists() {
		return responseBody, nil
	}
	candidates := result.Get("candidates")
	if !candidates.Exists() || len(candidates.Array()) == 0 {
		return responseBody, nil
	}
	candidate := candidates.Array()[0]

	var text bytes.Buffer
	var toolCalls []map[string]interface{}
	for _, part := range candidate.Get("content.parts").Array() {
		if t := part.Get("text"); t.Exists() {
			text.WriteString(t.String())
			continue
		}
		if fnCall := part.Get("functionCall"); fnCall.Exists() {
			args := "{}"
			if a := fnCall.Get("args"); a.Exists() {
				argsJSON, _ := json.Marshal(a.Value())
				args = string(argsJSON)
			}
			toolCalls = append(toolCalls, map[string]interface{}{
				"id":   fmt.Sprintf("call_%s_%d", fnCall.Get("name").String(), len(toolCalls)),
				"type": "function",
				"function": map[string]interface{}{
					"name":      fnCall.Get("name").String(),
					"arguments": args,
				},
			})
		}
	}

	message := map[string]interface{}{"role": "assistant", "content": text.String()}
	if len(toolCalls) > 0 {
		message["tool_calls"] = toolCalls
		message["content"] = nil
	}

	usage := result.Get("usageMetadata")
	response := map[string]interface{}{
		"id":      fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []interface{}{map[string]interface{}{
			"index":         0,
			"message":       message,
			"finish_reason": mapOpenAIFinishReason(candidate.Get("finishReason").String(), len(toolCalls) > 0),
		}},
		"usage": map[string]interface{}{
			"prompt_tokens":     usage.Get("promptTokenCount").Int(),
			"completion_tokens": usage.Get("candidatesTokenCount").Int(),
			"total_tokens":      usage.Get("totalTokenCount").Int(),
		},
	}
	return json.Marshal(response)
}

// GeminiToOpenAIStream re-encodes a Gemini SSE stream as OpenAI chat
// chunks, ending with the usage-bearing final chunk and "data: [DONE]".
// A pipe-backed goroutine scans upstream lines and writes translated
// events as they arrive; empty content deltas are dropped.
func GeminiToOpenAIStream(ctx context.Context, model string, reader io.Reader) (io.Reader, error) {
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

		id := fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
		created := time.Now().Unix()
		sawToolCall := false
		toolIndex := -1
		var promptTokens, completionTokens int64
		finished := false

		writeChunk := func(delta map[string]interface{}, finishReason interface{}, usage map[string]interface{}) {
			chunk := map[string]interface{}{
				"id":      id,
				"object":  "chat.completion.chunk",
				"created": created,
				"model":   model,
				"choices": []interface{}{map[string]interface{}{
					"index":         0,
					"delta":         delta,
					"finish_reason": finishReason,
				}},
			}
			if usage != nil {
				chunk["usage"] = usage
			}
			payload, _ := json.Marshal(chunk)
			pw.Write([]byte("data: "))
			pw.Write(payload)
			pw.Write([]byte("\n\n"))
		}

		finish := func(reason string) {
			if finished {
				return
			}
			finished = true
			writeChunk(map[string]interface{}{}, reason, map[string]interface{}{
				"prompt_tokens":     promptTokens,
				"completion_tokens": completionTokens,
				"total_tokens":      promptTokens + completionTokens,
			})
			pw.Write([]byte("data: [DONE]\n\n"))
		}

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}
			jsonData := bytes.TrimPrefix(line, []byte("data: "))
			if bytes.Equal(jsonData, []byte("[DONE]")) {
				break
			}

			result := geminiRoot(gjson.ParseBytes(jsonData))
			if usage := result.Get("usageMetadata"); usage.Exists() {
				promptTokens = usage.Get("promptTokenCount").Int()
				completionTokens = usage.Get("candidatesTokenCount").Int()
			}

			for _, candidate := range result.Get("candidates").Array() {
				for _, part := range candidate.Get("content.parts").Array() {
					if t := part.Get("text"); t.Exists() && t.String() != "" {
						writeChunk(map[string]interface{}{"content": t.String()}, nil, nil)
						continue
					}
					if fnCall := part.Get("functionCall"); fnCall.Exists() {
						sawToolCall = true
						toolIndex++
						args := "{}"
						if a := fnCall.Get("args"); a.Exists() {
							argsJSON, _ := json.Marshal(a.Value())
							args = string(argsJSON)
						}
						writeChunk(map[string]interface{}{
							"tool_calls": []interface{}{map[string]interface{}{
								"index": toolIndex,
								"id":    fmt.Sprintf("call_%s_%d", fnCall.Get("name").String(), toolIndex),
								"type":  "function",
								"function": map[string]interface{}{
									"name":      fnCall.Get("name").String(),
									"arguments": args,
								},
							}},
						}, nil, nil)
					}
				}
				if fr := candidate.Get("finishReason"); fr.Exists() && fr.String() != "" {
					finish(mapOpenAIFinishReason(fr.String(), sawToolCall))
					return
				}
			}
		}

		finish(mapOpenAIFinishReason("", sawToolCall))
	}()

	return pr, nil
}
