package pipeline

import (
	"io"

	apierrors "github.com/relaymux/relaymux/internal/errors"
	"github.com/relaymux/relaymux/internal/sigcache"
	"github.com/relaymux/relaymux/internal/translator"
	"github.com/relaymux/relaymux/internal/upstream"
)

// translateResponse converts a successful upstream response back into the
// caller's protocol, buffered for a plain response or wrapped in a
// translating reader for a stream.
func (p *Pipeline) translateResponse(req Request, resp upstream.ProviderResponse, resolvedModel string, sel selection) Response {
	from := translator.FormatGemini
	if sel.useZAI {
		from = translator.FormatAnthropic
	}

	if req.Stream {
		if resp.Resp == nil || resp.Resp.Body == nil {
			return Response{StatusCode: 502, Err: apierrors.New(502, "empty_upstream_body", "api_error", "Upstream returned no stream body")}
		}
		reader, err := p.translators.TranslateStream(req.Ctx, from, req.Format, resolvedModel, resp.Resp.Body)
		if err != nil {
			resp.Resp.Body.Close()
			return Response{StatusCode: 502, Err: apierrors.New(502, "stream_translation_failed", "api_error", err.Error())}
		}
		wrapped := closingReader{Reader: reader, closeFn: resp.Resp.Body.Close}
		return Response{StatusCode: 200, Stream: wrapped, IsStream: true, CredentialID: sel.accountID, UsedModel: resolvedModel}
	}

	body, err := upstream.ReadAll(resp.Resp)
	if err != nil {
		return Response{StatusCode: 502, Err: apierrors.New(502, "upstream_read_failed", "api_error", err.Error())}
	}
	if p.sigs != nil {
		p.recordSignature(req.Body, sel.accountID)
	}
	translated, err := p.translators.TranslateResponse(req.Ctx, from, req.Format, resolvedModel, body)
	if err != nil {
		return Response{StatusCode: 502, Err: apierrors.New(502, "response_translation_failed", "api_error", err.Error())}
	}
	return Response{StatusCode: 200, Body: translated, CredentialID: sel.accountID, UsedModel: resolvedModel}
}

// closingReader lets a handler cancel the upstream connection that feeds a
// translating reader without needing to know it's looking at an
// io.Pipe-backed translator: closing it closes the original upstream body,
// which unblocks the translator goroutine and, in turn, the handler's Read.
type closingReader struct {
	io.Reader
	closeFn func() error
}

func (c closingReader) Close() error { return c.closeFn() }

// recordSignature memoizes the request's canonical-body signature so a
// retried identical submission against the same account can skip
// recomputing it. The cached value is the signature itself, not the
// response: this is reuse of a cryptographic signature, not a response
// cache.
func (p *Pipeline) recordSignature(canonicalBody []byte, accountID string) {
	key := sigcache.Key(canonicalBody, accountID)
	if _, ok := p.sigs.Get(key); ok {
		return
	}
	p.sigs.Put(key, key)
}
