// Package server assembles the HTTP engine: one gin engine, one shared
// request pipeline behind all three protocol surfaces, the auth-mode
// gate, and the admin API.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/relaymux/relaymux/internal/adaptive"
	"github.com/relaymux/relaymux/internal/admin"
	"github.com/relaymux/relaymux/internal/breaker"
	"github.com/relaymux/relaymux/internal/config"
	"github.com/relaymux/relaymux/internal/credential"
	"github.com/relaymux/relaymux/internal/events"
	ah "github.com/relaymux/relaymux/internal/handlers/anthropic"
	gh "github.com/relaymux/relaymux/internal/handlers/gemini"
	oh "github.com/relaymux/relaymux/internal/handlers/openai"
	mw "github.com/relaymux/relaymux/internal/middleware"
	"github.com/relaymux/relaymux/internal/monitor"
	"github.com/relaymux/relaymux/internal/pipeline"
	"github.com/relaymux/relaymux/internal/quarantine"
	"github.com/relaymux/relaymux/internal/sticky"
	"github.com/relaymux/relaymux/internal/upstream"
	"github.com/relaymux/relaymux/internal/zai"
)

// maxRequestBody bounds request bodies at 100 MiB; larger ones get 413
// before any routing or credential work.
const maxRequestBody = 100 << 20

// Server bundles the engine with the shared state the caller may want to
// reach after construction (tests, shutdown hooks).
type Server struct {
	Engine  *gin.Engine
	Admin   *admin.Handler
	Monitor *monitor.Monitor
	Hub     *events.Hub
}

// Options carries construction inputs. Only Config and Creds are
// required; everything else defaults.
type Options struct {
	Config     *config.Config
	ConfigPath string
	Creds      *credential.Manager

	// Providers overrides the upstream set (tests inject fakes here).
	Providers *upstream.Manager
	// Sink overrides the monitor's persistent log sink.
	Sink monitor.LogSink
}

// New wires the whole proxy together.
func New(opts Options) *Server {
	cfg := opts.Config

	hub := events.NewHub()
	sink := opts.Sink
	if sink == nil {
		fs, err := monitor.NewFileSink(cfg.DataDir)
		if err != nil {
			log.WithError(err).Warn("request log file sink unavailable, keeping ring only")
		} else {
			sink = fs
		}
	}
	mon := monitor.New(monitor.DefaultRingCapacity, sink, hub)
	monitor.SetDefault(mon)

	providers := opts.Providers
	if providers == nil {
		providerList := []upstream.Provider{upstream.NewGeminiProvider(cfg, opts.Creds)}
		if cfg.ZAI.Enabled && zai.Mode(cfg) != zai.ModeOff {
			providerList = append(providerList, zai.NewProvider(cfg))
		}
		providers = upstream.NewManager(providerList...)
	}

	// One set of health gates for every protocol: the pipeline is the
	// only dispatch path, so circuit/quarantine/AIMD state cannot fork.
	br := breaker.New(breaker.DefaultConfig)
	quar := quarantine.New(quarantine.DefaultConfig)
	tracker := adaptive.NewTracker()

	stickyTTL := 5 * time.Minute
	if cfg.SchedulingTTLSec > 0 {
		stickyTTL = time.Duration(cfg.SchedulingTTLSec) * time.Second
	}

	pl := pipeline.New(pipeline.Options{
		Config:      cfg,
		Credentials: opts.Creds,
		Providers:   providers,
		Breaker:     br,
		Quarantine:  quar,
		Adaptive:    tracker,
		Sticky:      sticky.New(stickyTTL),
		Monitor:     mon,
	})

	adminHandler := admin.New(admin.Options{
		Config:     cfg,
		ConfigPath: opts.ConfigPath,
		Creds:      opts.Creds,
		Monitor:    mon,
		Breaker:    br,
		Quarantine: quar,
		Adaptive:   tracker,
		Hub:        hub,
	})

	engine := buildEngine(cfg, pl, adminHandler)
	return &Server{Engine: engine, Admin: adminHandler, Monitor: mon, Hub: hub}
}

func buildEngine(cfg *config.Config, pl *pipeline.Pipeline, adminHandler *admin.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		mw.RequestID(),
		mw.Recovery(),
		mw.CORS(),
		mw.Metrics(),
		mw.MaxBodySize(maxRequestBody),
		mw.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	clientAuth := mw.AuthModeGate(cfg.AuthMode, cfg.APIKey != "", mw.APIKeyAuth(cfg.APIKey))
	guard := pausedGuard(adminHandler)

	openaiHandler := oh.New(cfg, pl)
	anthropicHandler := ah.New(cfg, pl)
	geminiHandler := gh.New(cfg, pl)

	engine.GET("/health", clientAuth, healthHandler)
	engine.GET("/healthz", clientAuth, healthHandler)
	engine.GET("/metrics", mw.MetricsHandler())

	v1 := engine.Group("/v1", clientAuth, guard)
	{
		v1.GET("/models", openaiHandler.ListModels)
		v1.POST("/models/detect", openaiHandler.DetectModel)
		v1.POST("/chat/completions", openaiHandler.ChatCompletions)
		v1.POST("/messages", anthropicHandler.Messages)
	}

	v1beta := engine.Group("/v1beta", clientAuth, guard)
	{
		v1beta.GET("/models", geminiHandler.ListModels)
		// Gin cannot mix a path parameter with a literal colon in one
		// segment; the catch-all hands "{model}:{action}" to the handler
		// to split.
		v1beta.POST("/models/*path", geminiHandler.Action)
	}

	adminAuth := mw.AuthModeGate(cfg.AuthMode, cfg.AdminAPIKey() != "", mw.APIKeyAuth(cfg.AdminAPIKey()))
	adminHandler.Register(engine.Group("/api", adminAuth))

	return engine
}

// healthHandler answers the liveness probes; whether it sits behind auth
// is the auth-mode gate's call (all-except-health and key-less auto
// leave it open).
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// pausedGuard rejects protocol requests while the admin StopProxy switch
// is set.
func pausedGuard(adminHandler *admin.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminHandler.Paused() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": gin.H{"message": "proxy is stopped", "type": "server_error"},
			})
			return
		}
		c.Next()
	}
}
