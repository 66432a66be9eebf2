package translator

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/tidwall/gjson"
)

func init() {
	Register(FormatGemini, FormatGemini, TranslatorConfig{
		ResponseTransform: UnwrapGeminiResponse,
		StreamTransform:   UnwrapGeminiStream,
	})
}

// UnwrapGeminiResponse strips the Code Assist {"response": ...} envelope
// so Gemini-native clients see the plain generateContent body. Bodies
// without the envelope (errors, direct API responses) pass through.
func UnwrapGeminiResponse(ctx context.Context, model string, responseBody []byte) ([]byte, error) {
	if inner := gjson.GetBytes(responseBody, "response"); inner.Exists() {
		return []byte(inner.Raw), nil
	}
	return responseBody, nil
}

// UnwrapGeminiStream rewrites each SSE data line with the envelope
// stripped, preserving event order and non-data lines.
func UnwrapGeminiStream(ctx context.Context, model string, upstream io.Reader) (io.Reader, error) {
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()

		scanner := bufio.NewScanner(upstream)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if !bytes.HasPrefix(line, []byte("data: ")) {
				pw.Write(line)
				pw.Write([]byte("\n"))
				continue
			}
			jsonData := bytes.TrimPrefix(line, []byte("data: "))
			if inner := gjson.GetBytes(jsonData, "response"); inner.Exists() {
				jsonData = []byte(inner.Raw)
			}
			pw.Write([]byte("data: "))
			pw.Write(jsonData)
			pw.Write([]byte("\n\n"))
		}
	}()

	return pr, nil
}
