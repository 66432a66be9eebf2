package pipeline

import (
	"context"

	"github.com/relaymux/relaymux/internal/prober"
	"github.com/relaymux/relaymux/internal/translator"
	"github.com/relaymux/relaymux/internal/upstream"
)

// targetFormat decides which wire format the translated request body must
// be in for the provider that is about to receive it: z.ai speaks the
// native Anthropic Messages wire format, everything else goes through
// Gemini Code Assist's contents/generationConfig shape.
func targetFormat(providerName string) translator.Format {
	if providerName == "zai" {
		return translator.FormatAnthropic
	}
	return translator.FormatGemini
}

func (p *Pipeline) providerByName(name string) upstream.Provider {
	for _, pr := range p.providers.Providers() {
		if pr.Name() == name {
			return pr
		}
	}
	return nil
}

func (p *Pipeline) providerFor(sel selection, resolvedModel string) upstream.Provider {
	if sel.useZAI {
		return p.providerByName("zai")
	}
	return p.providers.ProviderFor(resolvedModel)
}

// callProvider issues exactly one upstream call (streaming or not) for the
// given selection, translating the request body into that provider's wire
// format first.
func (p *Pipeline) callProvider(ctx context.Context, req Request, sel selection, resolvedModel string) upstream.ProviderResponse {
	provider := p.providerFor(sel, resolvedModel)
	if provider == nil {
		return upstream.ProviderResponse{Err: errNoProvider}
	}

	to := targetFormat(provider.Name())
	body := p.translators.TranslateRequest(req.Format, to, resolvedModel, req.Body, req.Stream)

	var projectID string
	if sel.cred != nil {
		projectID = sel.cred.ProjectID
	}

	rc := upstream.RequestContext{
		Ctx:             ctx,
		Credential:      sel.cred,
		BaseModel:       resolvedModel,
		ProjectID:       projectID,
		Body:            body,
		HeaderOverrides: req.Headers,
	}

	if req.Stream {
		return provider.Stream(rc)
	}
	return provider.Generate(rc)
}

// dispatch runs one logical request end to end, consulting the prober for
// which hedge strategy (if any) this usage ratio calls for. It owns the
// AIMD begin/end pairing for every account leg it actually dispatches, so
// callers never need to track inflight accounting themselves. The
// returned selection is the account whose response is being returned —
// under hedging that may be the second leg, and all terminal accounting
// must attribute to it.
func (p *Pipeline) dispatch(ctx context.Context, req Request, sel selection, resolvedModel string) (upstream.ProviderResponse, selection) {
	ratio := p.adaptive.UsageRatio(sel.accountID)
	strategy := prober.Select(ratio)

	switch strategy {
	case prober.DelayedHedge, prober.ImmediateHedge:
		second, ok := p.selectCredential(resolvedModel, "", map[string]bool{sel.accountID: true})
		if !ok {
			return p.runLeg(ctx, req, sel, resolvedModel, false), sel
		}
		return p.hedge(ctx, req, sel, second, resolvedModel, strategy)
	default:
		return p.runLeg(ctx, req, sel, resolvedModel, strategy == prober.CheapProbe), sel
	}
}

// runLeg dispatches a single account attempt, bracketing it with exactly
// one AIMD begin/end pair.
func (p *Pipeline) runLeg(ctx context.Context, req Request, sel selection, resolvedModel string, cheapProbe bool) upstream.ProviderResponse {
	p.adaptive.BeginRequest(sel.accountID)
	release := p.adaptive.EndOnce(sel.accountID)

	resp := p.callProvider(ctx, req, sel, resolvedModel)
	release(statusCode(resp) == 429)

	if cheapProbe && resp.Err == nil {
		go p.fireCheapProbe(req, sel, resolvedModel)
	}
	return resp
}

// legRunner adapts runLeg's begin/end-bracketed dispatch into a
// prober.Attempt, so both legs of a hedge race release their own slot the
// moment they finish regardless of which one wins.
func (p *Pipeline) legRunner(req Request, sel selection, resolvedModel string) func(context.Context) (upstream.ProviderResponse, error) {
	return func(legCtx context.Context) (upstream.ProviderResponse, error) {
		r := p.runLeg(legCtx, req, sel, resolvedModel, false)
		return r, r.Err
	}
}

func (p *Pipeline) hedge(ctx context.Context, req Request, primary, secondary selection, resolvedModel string, strategy prober.Strategy) (upstream.ProviderResponse, selection) {
	attempts := []prober.Attempt[upstream.ProviderResponse]{
		{AccountID: primary.accountID, Run: p.legRunner(req, primary, resolvedModel)},
		{AccountID: secondary.accountID, Run: p.legRunner(req, secondary, resolvedModel)},
	}

	var result prober.Result[upstream.ProviderResponse]
	if strategy == prober.ImmediateHedge {
		result = prober.Immediate(ctx, attempts...)
	} else {
		result = prober.Delayed(ctx, prober.DefaultHedgeDelay, attempts...)
	}
	if result.Err != nil && result.Value.Err == nil {
		result.Value.Err = result.Err
	}

	winner := primary
	if result.AccountID == secondary.accountID {
		winner = secondary
	}
	return result.Value, winner
}

// fireCheapProbe sends a minimal follow-up request after a success to
// confirm the account can sustain a higher concurrent limit; on success it
// force-expands the account's AIMD window.
func (p *Pipeline) fireCheapProbe(req Request, sel selection, resolvedModel string) {
	probeReq := req
	probeReq.Body = probeBody(req.Format)
	probeReq.Stream = false

	ctx, cancel := context.WithTimeout(context.Background(), cheapProbeTimeout)
	defer cancel()

	resp := p.callProvider(ctx, probeReq, sel, resolvedModel)
	if resp.Resp != nil && resp.Resp.Body != nil {
		_ = resp.Resp.Body.Close()
	}
	if resp.Err == nil {
		p.adaptive.ForceExpand(sel.accountID)
	}
}
