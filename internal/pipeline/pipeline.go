// Package pipeline implements the single request pipeline every protocol
// handler (OpenAI, Gemini, Anthropic) dispatches through. It owns model
// resolution, credential selection under the health/circuit/quarantine/
// adaptive gates, protocol translation, upstream dispatch (including the
// prober's hedge strategies and the z.ai alternate upstream), response
// translation, and the one-terminal-row-per-request event/usage recording.
//
// Lifting this out of the handler packages means the three protocol
// handlers share one implementation instead of three copies that would
// drift the moment one of them grew a new gate.
package pipeline

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/relaymux/relaymux/internal/adaptive"
	"github.com/relaymux/relaymux/internal/breaker"
	"github.com/relaymux/relaymux/internal/config"
	"github.com/relaymux/relaymux/internal/credential"
	apierrors "github.com/relaymux/relaymux/internal/errors"
	"github.com/relaymux/relaymux/internal/events"
	"github.com/relaymux/relaymux/internal/monitor"
	"github.com/relaymux/relaymux/internal/quarantine"
	"github.com/relaymux/relaymux/internal/sigcache"
	"github.com/relaymux/relaymux/internal/sticky"
	"github.com/relaymux/relaymux/internal/translator"
	"github.com/relaymux/relaymux/internal/upstream"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Pipeline wires the per-account health machinery to a protocol-agnostic
// dispatch loop. One Pipeline is shared by every protocol handler.
type Pipeline struct {
	cfg         *config.Config
	credMgr     *credential.Manager
	providers   *upstream.Manager
	translators *translator.Registry

	breaker    *breaker.Breaker
	quarantine *quarantine.Monitor
	adaptive   *adaptive.Tracker
	sticky     *sticky.Table
	sigs       *sigcache.Cache

	publisher events.Publisher
	monitor   *monitor.Monitor

	// zaiPoolTurn round-robins "pooled" dispatch-mode z.ai selection against
	// the normal credential pool; see selectCredential in select.go.
	zaiPoolTurn uint64
}

// Options bundles the pieces New needs; nil optional fields fall back to
// sensible defaults so callers in tests don't have to construct all of
// them.
type Options struct {
	Config      *config.Config
	Credentials *credential.Manager
	Providers   *upstream.Manager
	Translators *translator.Registry

	Breaker    *breaker.Breaker
	Quarantine *quarantine.Monitor
	Adaptive   *adaptive.Tracker
	Sticky     *sticky.Table
	SigCache   *sigcache.Cache

	Publisher events.Publisher
	Monitor   *monitor.Monitor
}

// New constructs a Pipeline from Options, filling in defaults for any
// unset sub-component so a caller only needs to supply what it cares
// about (tests typically only set Config/Credentials/Providers).
func New(opts Options) *Pipeline {
	p := &Pipeline{
		cfg:         opts.Config,
		credMgr:     opts.Credentials,
		providers:   opts.Providers,
		translators: opts.Translators,
		breaker:     opts.Breaker,
		quarantine:  opts.Quarantine,
		adaptive:    opts.Adaptive,
		sticky:      opts.Sticky,
		sigs:        opts.SigCache,
		publisher:   opts.Publisher,
		monitor:     opts.Monitor,
	}
	if p.translators == nil {
		p.translators = translator.Default()
	}
	if p.breaker == nil {
		p.breaker = breaker.New(breaker.DefaultConfig)
	}
	if p.quarantine == nil {
		p.quarantine = quarantine.New(quarantine.DefaultConfig)
	}
	if p.adaptive == nil {
		p.adaptive = adaptive.NewTracker()
	}
	if p.sticky == nil {
		ttl := time.Duration(60) * time.Second
		if p.cfg != nil && p.cfg.SchedulingTTLSec > 0 {
			ttl = time.Duration(p.cfg.SchedulingTTLSec) * time.Second
		}
		p.sticky = sticky.New(ttl)
	}
	if p.sigs == nil && p.cfg != nil && p.cfg.ExperimentalSignatureCache {
		p.sigs = sigcache.New(p.cfg.ExperimentalSigCacheCap, time.Duration(p.cfg.ExperimentalSigCacheTTLSec)*time.Second)
	}
	return p
}

// Request is the protocol-agnostic inbound request a handler hands to the
// pipeline after it has parsed just enough of the body to know the model
// and the streaming flag.
type Request struct {
	Ctx         context.Context
	Format      translator.Format
	ClientModel string
	Body        []byte
	Headers     http.Header
	Stream      bool

	// Method, Path, and TraceID identify the inbound HTTP request in the
	// terminal log row; the handler fills them from its own context.
	Method  string
	Path    string
	TraceID string
}

// Response is what the pipeline hands back to the handler: either a
// translated, buffered body or a translated streaming reader, already in
// the caller's protocol.
type Response struct {
	StatusCode   int
	Body         []byte
	Stream       io.Reader
	IsStream     bool
	CredentialID string
	UsedModel    string
	Err          *apierrors.APIError
}

func maxRetries(cfg *config.Config) int {
	if cfg == nil || cfg.MaxAccountRetries <= 0 {
		return 2
	}
	return cfg.MaxAccountRetries
}

// logTerminal emits the single terminal log/event/usage row a client
// request produces, regardless of how many account attempts it took or
// which protocol it arrived in.
func (p *Pipeline) logTerminal(req Request, res Response, resolved string, attempt int, start time.Time) {
	fields := log.Fields{
		"model":      req.ClientModel,
		"resolved":   resolved,
		"stream":     req.Stream,
		"attempt":    attempt,
		"credential": res.CredentialID,
		"status":     res.StatusCode,
	}
	success := res.Err == nil
	if success {
		log.WithFields(fields).Info("request completed")
	} else {
		log.WithFields(fields).Warn("request failed")
	}

	// When a monitor is wired in, its Append fans the row out to the event
	// hub already; publishing here too would emit every request twice.
	if p.monitor == nil && p.publisher != nil {
		meta := map[string]string{
			"model":      req.ClientModel,
			"resolved":   resolved,
			"credential": res.CredentialID,
		}
		p.publisher.Publish(req.Ctx, events.TopicRequestCompleted, map[string]interface{}{
			"status":  res.StatusCode,
			"success": success,
			"attempt": attempt,
			"stream":  req.Stream,
		}, meta)
	}

	inTokens, outTokens := usageTokens(req.Format, res)

	if p.monitor != nil {
		p.monitor.Append(req.Ctx, monitor.Row{
			Timestamp:    start,
			Method:       req.Method,
			URL:          req.Path,
			Status:       res.StatusCode,
			DurationMS:   time.Since(start).Milliseconds(),
			Model:        req.ClientModel,
			MappedModel:  resolved,
			AccountEmail: p.accountEmail(res.CredentialID),
			InputTokens:  inTokens,
			OutputTokens: outTokens,
			TraceID:      req.TraceID,
		})
	}
}

func (p *Pipeline) accountEmail(accountID string) string {
	if accountID == "" || p.credMgr == nil {
		return ""
	}
	if cred, ok := p.credMgr.GetCredentialByID(accountID); ok {
		return cred.Email
	}
	return ""
}

// usageTokens pulls the token counts out of a buffered terminal body in
// whichever protocol the client asked for. Streaming responses report
// zero here: their usage arrives inside the stream, after the terminal
// row has already been cut.
func usageTokens(format translator.Format, res Response) (int64, int64) {
	if res.IsStream || len(res.Body) == 0 {
		return 0, 0
	}
	switch format {
	case translator.FormatAnthropic:
		return gjson.GetBytes(res.Body, "usage.input_tokens").Int(),
			gjson.GetBytes(res.Body, "usage.output_tokens").Int()
	case translator.FormatGemini:
		return gjson.GetBytes(res.Body, "usageMetadata.promptTokenCount").Int(),
			gjson.GetBytes(res.Body, "usageMetadata.candidatesTokenCount").Int()
	default:
		return gjson.GetBytes(res.Body, "usage.prompt_tokens").Int(),
			gjson.GetBytes(res.Body, "usage.completion_tokens").Int()
	}
}

