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
	Register(FormatGemini, FormatAnthropic, TranslatorConfig{
		ResponseTransform: GeminiToAnthropicResponse,
		StreamTransform:   GeminiToAnthropicStream,
	})
}

// GeminiToAnthropicResponse converts a non-streaming Gemini response into
// an Anthropic Messages response, following the same candidate/part walk
// as GeminiToOpenAIResponse but emitting Anthropic's content-block array
// and stop_reason vocabulary instead of OpenAI's choices/finish_reason.
func GeminiToAnthropicResponse(ctx context.Context, model string, responseBody []byte) ([]byte, error) {
	result := geminiRoot(gjson.ParseBytes(responseBody))

	if errMsg := result.Get("error"); errMsg.Exists() {
		return responseBody, nil
	}

	candidates := result.Get("candidates")
	if !candidates.Exists() || len(candidates.Array()) == 0 {
		return responseBody, nil
	}
	candidate := candidates.Array()[0]

	blocks, sawToolUse := anthropicContentBlocksFromParts(candidate.Get("content.parts").Array())

	stopReason := "end_turn"
	switch candidate.Get("finishReason").String() {
	case "MAX_TOKENS":
		stopReason = "max_tokens"
	case "SAFETY", "RECITATION":
		stopReason = "stop_sequence"
	}
	if sawToolUse {
		stopReason = "tool_use"
	}

	usage := result.Get("usageMetadata")
	response := map[string]interface{}{
		"id":          fmt.Sprintf("msg_%d", time.Now().UnixNano()),
		"type":        "message",
		"role":        "assistant",
		"model":       model,
		"content":     blocks,
		"stop_reason": stopReason,
		"usage": map[string]interface{}{
			"input_tokens":  usage.Get("promptTokenCount").Int(),
			"output_tokens": usage.Get("candidatesTokenCount").Int(),
		},
	}

	return json.Marshal(response)
}

func anthropicContentBlocksFromParts(parts []gjson.Result) ([]map[string]interface{}, bool) {
	var blocks []map[string]interface{}
	sawToolUse := false

	for _, part := range parts {
		if thought := part.Get("thought"); thought.Exists() {
			blocks = append(blocks, map[string]interface{}{
				"type": "text",
				"text": thought.String(),
			})
			continue
		}
		if text := part.Get("text"); text.Exists() {
			blocks = append(blocks, map[string]interface{}{
				"type": "text",
				"text": text.String(),
			})
			continue
		}
		if fnCall := part.Get("functionCall"); fnCall.Exists() {
			sawToolUse = true
			var input interface{} = map[string]interface{}{}
			if args := fnCall.Get("args"); args.Exists() {
				input = args.Value()
			}
			blocks = append(blocks, map[string]interface{}{
				"type":  "tool_use",
				"id":    fmt.Sprintf("toolu_%s_%d", fnCall.Get("name").String(), len(blocks)),
				"name":  fnCall.Get("name").String(),
				"input": input,
			})
		}
	}
	return blocks, sawToolUse
}

// GeminiToAnthropicStream converts Gemini's streamGenerateContent SSE
// stream into Anthropic's message_start/content_block_delta/message_stop
// event sequence. Structured the same way as GeminiToOpenAIStream: a
// pipe-backed goroutine scans Gemini SSE lines and writes translated
// events as they arrive, so the first upstream byte can reach the client
// without waiting for the whole response.
func GeminiToAnthropicStream(ctx context.Context, model string, reader io.Reader) (io.Reader, error) {
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

		messageID := fmt.Sprintf("msg_%d", time.Now().UnixNano())
		started := false
		blockIndex := -1
		blockOpen := false
		sawToolUse := false
		var outputTokens int64

		writeEvent := func(eventType string, data map[string]interface{}) {
			payload, _ := json.Marshal(data)
			pw.Write([]byte("event: " + eventType + "\n"))
			pw.Write([]byte("data: "))
			pw.Write(payload)
			pw.Write([]byte("\n\n"))
		}

		ensureStarted := func() {
			if started {
				return
			}
			started = true
			writeEvent("message_start", map[string]interface{}{
				"type": "message_start",
				"message": map[string]interface{}{
					"id":      messageID,
					"type":    "message",
					"role":    "assistant",
					"model":   model,
					"content": []interface{}{},
					"usage":   map[string]interface{}{"input_tokens": 0, "output_tokens": 0},
				},
			})
		}

		closeBlock := func() {
			if blockOpen {
				writeEvent("content_block_stop", map[string]interface{}{
					"type":  "content_block_stop",
					"index": blockIndex,
				})
				blockOpen = false
			}
		}

		openTextBlock := func() {
			closeBlock()
			blockIndex++
			blockOpen = true
			writeEvent("content_block_start", map[string]interface{}{
				"type":  "content_block_start",
				"index": blockIndex,
				"content_block": map[string]interface{}{
					"type": "text",
					"text": "",
				},
			})
		}

		openToolBlock := func(name string) {
			closeBlock()
			blockIndex++
			blockOpen = true
			writeEvent("content_block_start", map[string]interface{}{
				"type":  "content_block_start",
				"index": blockIndex,
				"content_block": map[string]interface{}{
					"type":  "tool_use",
					"id":    fmt.Sprintf("toolu_%s_%d", name, blockIndex),
					"name":  name,
					"input": map[string]interface{}{},
				},
			})
		}

		lastBlockWasText := false

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			if !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}
			jsonData := bytes.TrimPrefix(line, []byte("data: "))
			if bytes.Equal(jsonData, []byte("[DONE]")) {
				break
			}

			result := geminiRoot(gjson.ParseBytes(jsonData))
			if errMsg := result.Get("error"); errMsg.Exists() {
				ensureStarted()
				closeBlock()
				writeEvent("error", map[string]interface{}{
					"type": "error",
					"error": map[string]interface{}{
						"type":    "api_error",
						"message": errMsg.Get("message").String(),
					},
				})
				return
			}

			candidates := result.Get("candidates")
			if !candidates.Exists() {
				continue
			}

			if usage := result.Get("usageMetadata"); usage.Exists() {
				outputTokens = usage.Get("candidatesTokenCount").Int()
			}

			for _, candidate := range candidates.Array() {
				ensureStarted()
				parts := candidate.Get("content.parts").Array()

				for _, part := range parts {
					if text := part.Get("text"); text.Exists() {
						if !blockOpen || !lastBlockWasText {
							openTextBlock()
							lastBlockWasText = true
						}
						writeEvent("content_block_delta", map[string]interface{}{
							"type":  "content_block_delta",
							"index": blockIndex,
							"delta": map[string]interface{}{
								"type": "text_delta",
								"text": text.String(),
							},
						})
						continue
					}
					if fnCall := part.Get("functionCall"); fnCall.Exists() {
						sawToolUse = true
						name := fnCall.Get("name").String()
						openToolBlock(name)
						lastBlockWasText = false

						var argsJSON []byte
						if args := fnCall.Get("args"); args.Exists() {
							argsJSON, _ = json.Marshal(args.Value())
						} else {
							argsJSON = []byte("{}")
						}
						writeEvent("content_block_delta", map[string]interface{}{
							"type":  "content_block_delta",
							"index": blockIndex,
							"delta": map[string]interface{}{
								"type":         "input_json_delta",
								"partial_json": string(argsJSON),
							},
						})
					}
				}

				if fr := candidate.Get("finishReason"); fr.Exists() && fr.String() != "" {
					closeBlock()
					stopReason := "end_turn"
					switch fr.String() {
					case "MAX_TOKENS":
						stopReason = "max_tokens"
					case "SAFETY", "RECITATION":
						stopReason = "stop_sequence"
					}
					if sawToolUse {
						stopReason = "tool_use"
					}
					writeEvent("message_delta", map[string]interface{}{
						"type":  "message_delta",
						"delta": map[string]interface{}{"stop_reason": stopReason},
						"usage": map[string]interface{}{"output_tokens": outputTokens},
					})
					writeEvent("message_stop", map[string]interface{}{"type": "message_stop"})
					return
				}
			}
		}

		ensureStarted()
		closeBlock()
		writeEvent("message_delta", map[string]interface{}{
			"type":  "message_delta",
			"delta": map[string]interface{}{"stop_reason": "end_turn"},
			"usage": map[string]interface{}{"output_tokens": outputTokens},
		})
		writeEvent("message_stop", map[string]interface{}{"type": "message_stop"})
	}()

	return pr, nil
}
