// Package prober implements the smart dispatch strategy selection that
// sits between the adaptive limiter and the upstream dispatcher: given an
// account's current usage ratio, it decides whether a request goes out
// plain, gets a cheap background probe after it completes, or gets
// raced against a second account.
package prober

// Strategy names the dispatch path chosen for a single request.
type Strategy string

const (
	// None dispatches a single request with no probing or hedging.
	None Strategy = "none"
	// CheapProbe dispatches a single request; on success, a minimal
	// 1-token probe is fired asynchronously afterward to test for
	// headroom, and force-expands the account's limit if it succeeds.
	CheapProbe Strategy = "cheap_probe"
	// DelayedHedge dispatches a single request but races a second
	// account's request if the primary hasn't begun responding within
	// DefaultHedgeDelay.
	DelayedHedge Strategy = "delayed_hedge"
	// ImmediateHedge races two accounts from the start; the first
	// response to begin streaming wins and the other is cancelled.
	ImmediateHedge Strategy = "immediate_hedge"
)

// Thresholds gates which Strategy a usage ratio selects. Boundaries are
// inclusive on the low end.
type Thresholds struct {
	CheapProbeAt     float64
	DelayedHedgeAt   float64
	ImmediateHedgeAt float64
}

// DefaultThresholds: r<0.5 None, [0.5,0.8) CheapProbe, [0.8,0.95)
// DelayedHedge, >=0.95 ImmediateHedge.
var DefaultThresholds = Thresholds{
	CheapProbeAt:     0.5,
	DelayedHedgeAt:   0.8,
	ImmediateHedgeAt: 0.95,
}

// Select returns the dispatch Strategy for a usage ratio, using
// DefaultThresholds.
func Select(usageRatio float64) Strategy {
	return SelectWith(usageRatio, DefaultThresholds)
}

// SelectWith returns the dispatch Strategy for usageRatio under a custom
// Thresholds, for deployments that want to tune the cutover points.
func SelectWith(usageRatio float64, t Thresholds) Strategy {
	switch {
	case usageRatio >= t.ImmediateHedgeAt:
		return ImmediateHedge
	case usageRatio >= t.DelayedHedgeAt:
		return DelayedHedge
	case usageRatio >= t.CheapProbeAt:
		return CheapProbe
	default:
		return None
	}
}
