package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestMapHTTPErrorPreservesUpstreamMessage(t *testing.T) {
	err := MapHTTPError(429, []byte(`{"error":{"message":"quota exceeded for today","retry_after":30}}`))
	assert.Equal(t, 429, err.HTTPStatus)
	assert.Equal(t, "rate_limit_exceeded", err.Code)
	assert.Equal(t, "quota exceeded for today", err.Message)
	assert.Equal(t, 30, err.RetryAfterSec)
}

func TestMapHTTPError529(t *testing.T) {
	err := MapHTTPError(529, nil)
	assert.Equal(t, 529, err.HTTPStatus)
	assert.Equal(t, "overloaded_error", err.Code)
}

func TestMapHTTPErrorTruncatesRawBody(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := MapHTTPError(500, long)
	assert.LessOrEqual(t, len(err.Message), 204)
}

func TestToJSONShapes(t *testing.T) {
	e := New(429, "rate_limit_exceeded", "rate_limit_error", "slow down").WithRetryAfter(5)

	openai, err := e.ToJSON(FormatOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "slow down", gjson.GetBytes(openai, "error.message").String())
	assert.EqualValues(t, 5, gjson.GetBytes(openai, "error.retry_after").Int())

	anthropic, err := e.ToJSON(FormatAnthropic)
	require.NoError(t, err)
	assert.Equal(t, "error", gjson.GetBytes(anthropic, "type").String())
	assert.Equal(t, "rate_limit_error", gjson.GetBytes(anthropic, "error.type").String())

	gemini, err := e.ToJSON(FormatGemini)
	require.NoError(t, err)
	assert.EqualValues(t, 429, gjson.GetBytes(gemini, "error.code").Int())
	assert.Equal(t, "RESOURCE_EXHAUSTED", gjson.GetBytes(gemini, "error.status").String())
}

func TestWithMessageDoesNotMutateSentinel(t *testing.T) {
	before := UnknownModel.Message
	_ = UnknownModel.WithMessage("model gpt-x not found")
	assert.Equal(t, before, UnknownModel.Message)
}

func TestPersistenceErrorWraps(t *testing.T) {
	inner := fmt.Errorf("disk full")
	err := &PersistenceError{Op: "append", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "append")
}
