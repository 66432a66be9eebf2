package pipeline

import (
	"time"

	apierrors "github.com/relaymux/relaymux/internal/errors"
	"github.com/relaymux/relaymux/internal/router"
	"github.com/relaymux/relaymux/internal/upstream"
)

// Execute runs a request all the way through: model resolution, the
// bounded account-retry loop, protocol translation in both directions,
// and the terminal accounting every outcome needs (credential manager,
// circuit breaker, quarantine monitor, AIMD tracker, sticky table).
//
// A 429 or error that arrives after a stream has already started
// buffering to the client is never retried: only the initial dispatch
// result drives the retry decision, matching the pipeline's
// mid-stream-failure-is-terminal rule.
func (p *Pipeline) Execute(req Request) Response {
	start := time.Now()

	resolution, err := router.Resolve(req.ClientModel, p.cfg.CustomModelMapping)
	if err != nil {
		res := Response{StatusCode: apierrors.UnknownModel.HTTPStatus, Err: apierrors.UnknownModel.WithMessage(err.Error())}
		p.logTerminal(req, res, req.ClientModel, 0, start)
		return res
	}
	resolvedModel := resolution.Upstream

	fp := ""
	if p.cfg.SchedulingEnabled {
		fp = fingerprint(req.Headers)
	}
	exclude := map[string]bool{}
	attempts := maxRetries(p.cfg) + 1

	var last *apierrors.APIError
	for attempt := 1; attempt <= attempts; attempt++ {
		sel, ok := p.selectCredential(resolvedModel, fp, exclude)
		if !ok {
			// Exhausting the pool mid-retry surfaces the last upstream
			// error; NoEligibleAccount is reserved for an eligible set
			// that was empty before anything got dispatched.
			if last == nil {
				last = apierrors.NoEligibleAccount
			}
			break
		}

		upstreamResp, winner := p.dispatch(req.Ctx, req, sel, resolvedModel)
		status := statusCode(upstreamResp)

		if upstreamResp.Err != nil || status >= 400 {
			p.recordFailure(winner, status, upstreamResp)
			exclude[winner.accountID] = true
			last = errorFor(status, upstreamResp)

			if !retryable(status, upstreamResp.Err) || attempt == attempts {
				res := Response{StatusCode: last.HTTPStatus, CredentialID: winner.accountID, Err: last}
				p.logTerminal(req, res, resolvedModel, attempt, start)
				return res
			}
			continue
		}

		p.recordSuccess(winner, fp)

		res := p.translateResponse(req, upstreamResp, resolvedModel, winner)
		p.logTerminal(req, res, resolvedModel, attempt, start)
		return res
	}

	if last == nil {
		last = apierrors.NoEligibleAccount
	}
	res := Response{StatusCode: last.HTTPStatus, Err: last}
	p.logTerminal(req, res, resolvedModel, attempts, start)
	return res
}

func statusCode(resp upstream.ProviderResponse) int {
	if resp.Resp == nil {
		return 0
	}
	return resp.Resp.StatusCode
}

func retryable(status int, err error) bool {
	if err != nil && status == 0 {
		return true
	}
	switch status {
	case 401, 403, 429, 500, 502, 503, 504, 529:
		return true
	}
	return false
}

func errorFor(status int, resp upstream.ProviderResponse) *apierrors.APIError {
	if status == 0 {
		return apierrors.New(502, "upstream_unreachable", "api_error", resp.Err.Error())
	}
	body, _ := upstream.ReadAll(resp.Resp)
	return apierrors.MapHTTPError(status, body)
}

func (p *Pipeline) recordFailure(sel selection, status int, resp upstream.ProviderResponse) {
	if sel.cred != nil {
		reason := "upstream_error"
		if resp.Err != nil {
			reason = resp.Err.Error()
		}
		p.credMgr.MarkFailure(sel.cred.ID, reason, status)
	}
	if status == 429 {
		// Rate limiting is the AIMD tracker's business (the dispatch leg
		// already applied the multiplicative decrease); it never counts
		// against the circuit.
		return
	}
	if status == 401 || status == 403 {
		p.quarantine.RecordAuthFailure(sel.accountID, status)
		p.sticky.UnbindAccount(sel.accountID)
		return
	}
	// 529 is upstream overload: retryable, but it says nothing about this
	// account's health, so it carries no circuit cost.
	if (status >= 500 && status != 529) || status == 0 {
		p.breaker.RecordFailure(sel.accountID)
	}
}

func (p *Pipeline) recordSuccess(sel selection, fp string) {
	if sel.cred != nil {
		p.credMgr.MarkSuccess(sel.cred.ID)
	}
	p.breaker.RecordSuccess(sel.accountID)
	p.quarantine.MarkSuccess(sel.accountID)
	if fp != "" {
		p.sticky.Bind(fp, sel.accountID)
	}
}
