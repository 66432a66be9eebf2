package pipeline

import (
	"sync/atomic"

	"github.com/relaymux/relaymux/internal/credential"
	"github.com/relaymux/relaymux/internal/zai"
)

const zaiAccountID = "zai:default"

// selection is what selectCredential hands back: either a real pooled
// credential or the synthetic z.ai account id, never both.
type selection struct {
	cred      *credential.Credential
	accountID string
	useZAI    bool
}

// selectCredential applies the health/circuit/quarantine/adaptive gates on
// top of the credential manager's scoring, preferring a sticky binding
// when one exists and it still passes every gate.
func (p *Pipeline) selectCredential(baseModel string, fp string, exclude map[string]bool) (selection, bool) {
	mode := zai.Mode(p.cfg)
	zaiEligible := mode != zai.ModeOff && p.providerSupportsZAI(baseModel) && !exclude[zaiAccountID] &&
		p.breaker.Allow(zaiAccountID) && !p.quarantine.IsQuarantined(zaiAccountID)

	if mode == zai.ModeExclusive && zaiEligible {
		return p.zaiSelection(exclude)
	}

	preferID := ""
	if fp != "" {
		if id, ok := p.sticky.Lookup(fp); ok {
			preferID = id
		}
	}

	gates := credential.HealthGates{
		CircuitAllows:  p.breaker.Allow,
		NotQuarantined: func(id string) bool { return !p.quarantine.IsQuarantined(id) },
		UnderCapacity:  func(id string) bool { return p.adaptive.UsageRatio(id) < 1.0 },
	}

	// "pooled" mode: z.ai is just one more account in the pool, weighted by
	// how many normal credentials are currently eligible, not a last
	// resort. A sticky binding to a real credential still wins outright.
	if mode == zai.ModePooled && zaiEligible && preferID == "" {
		n := p.credMgr.EligibleCount(gates, exclude)
		turn := atomic.AddUint64(&p.zaiPoolTurn, 1)
		if turn%uint64(n+1) == 0 {
			return p.zaiSelection(exclude)
		}
	}

	cred, ok := p.credMgr.SelectEligible(gates, preferID, exclude)
	if !ok {
		// "fallback" mode (and pooled, once the real pool is exhausted)
		// both land here: z.ai is tried only after the primary pool fails.
		if zaiEligible {
			return p.zaiSelection(exclude)
		}
		return selection{}, false
	}
	if fp != "" {
		p.sticky.Bind(fp, cred.ID)
	}
	return selection{cred: cred, accountID: cred.ID}, true
}

func (p *Pipeline) zaiSelection(exclude map[string]bool) (selection, bool) {
	if exclude[zaiAccountID] {
		return selection{}, false
	}
	if !p.breaker.Allow(zaiAccountID) || p.quarantine.IsQuarantined(zaiAccountID) {
		return selection{}, false
	}
	return selection{accountID: zaiAccountID, useZAI: true}, true
}

func (p *Pipeline) providerSupportsZAI(baseModel string) bool {
	for _, pr := range p.providers.Providers() {
		if pr.Name() == "zai" {
			return pr.SupportsModel(baseModel)
		}
	}
	return false
}
