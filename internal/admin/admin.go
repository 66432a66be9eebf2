// Package admin serves the /api management surface: account lifecycle,
// config, request logs, proxy stats, API-key generation, and the proxy
// start/stop switch. It is deliberately read-mostly; everything that
// changes request routing goes through the same shared state the
// pipeline reads.
package admin

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/relaymux/relaymux/internal/adaptive"
	"github.com/relaymux/relaymux/internal/breaker"
	"github.com/relaymux/relaymux/internal/config"
	"github.com/relaymux/relaymux/internal/credential"
	"github.com/relaymux/relaymux/internal/events"
	"github.com/relaymux/relaymux/internal/monitor"
	"github.com/relaymux/relaymux/internal/quarantine"
)

// Handler carries the shared state the admin routes expose.
type Handler struct {
	cfg        *config.Config
	configPath string

	creds      *credential.Manager
	monitor    *monitor.Monitor
	breaker    *breaker.Breaker
	quarantine *quarantine.Monitor
	adaptive   *adaptive.Tracker
	hub        *events.Hub

	paused atomic.Bool
}

// Options bundles Handler's dependencies.
type Options struct {
	Config     *config.Config
	ConfigPath string
	Creds      *credential.Manager
	Monitor    *monitor.Monitor
	Breaker    *breaker.Breaker
	Quarantine *quarantine.Monitor
	Adaptive   *adaptive.Tracker
	Hub        *events.Hub
}

// New constructs the admin handler.
func New(opts Options) *Handler {
	return &Handler{
		cfg:        opts.Config,
		configPath: opts.ConfigPath,
		creds:      opts.Creds,
		monitor:    opts.Monitor,
		breaker:    opts.Breaker,
		quarantine: opts.Quarantine,
		adaptive:   opts.Adaptive,
		hub:        opts.Hub,
	}
}

// Paused reports whether StopProxy has paused request handling; the
// server's guard middleware consults this per request.
func (h *Handler) Paused() bool { return h.paused.Load() }

// Register mounts every admin route on the given group.
func (h *Handler) Register(group *gin.RouterGroup) {
	group.GET("/accounts", h.ListAccounts)
	group.POST("/accounts/:id/enable", h.EnableAccount)
	group.POST("/accounts/:id/disable", h.DisableAccount)
	group.DELETE("/accounts/:id", h.DeleteAccount)

	group.GET("/config", h.GetConfig)
	group.PUT("/config", h.UpdateConfig)

	group.GET("/logs", h.GetLogs)
	group.POST("/logs/clear", h.ClearLogs)
	group.DELETE("/logs", h.ClearLogs)
	group.GET("/logs/stream", h.StreamLogs)

	group.GET("/stats", h.GetStats)
	group.POST("/keys/generate", h.GenerateAPIKey)
	group.POST("/proxy/start", h.StartProxy)
	group.POST("/proxy/stop", h.StopProxy)
}

// ListAccounts returns every account with its live health state.
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts := make([]gin.H, 0)
	for _, cred := range h.creds.List() {
		accounts = append(accounts, gin.H{
			"id":             cred.ID,
			"email":          cred.Email,
			"name":           cred.Name,
			"disabled":       cred.Disabled,
			"disabled_reason": cred.DisabledReason,
			"proxy_disabled": cred.ProxyDisabled,
			"last_used":      cred.LastUsed,
			"circuit_open":   !h.breaker.Allow(cred.ID),
			"quarantined":    h.quarantine.IsQuarantined(cred.ID),
			"usage_ratio":    h.adaptive.UsageRatio(cred.ID),
			"limit":          h.adaptive.Limit(cred.ID),
			"fail_streak":    h.creds.FailStreak(cred.ID),
		})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts, "count": len(accounts)})
}

// EnableAccount clears an account's disabled flag.
func (h *Handler) EnableAccount(c *gin.Context) {
	h.setDisabled(c, false, "")
}

// DisableAccount sets an account's disabled flag.
func (h *Handler) DisableAccount(c *gin.Context) {
	reason := strings.TrimSpace(c.Query("reason"))
	if reason == "" {
		reason = "disabled by operator"
	}
	h.setDisabled(c, true, reason)
}

func (h *Handler) setDisabled(c *gin.Context, disabled bool, reason string) {
	id := c.Param("id")
	if !h.creds.SetDisabled(id, disabled, reason) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "disabled": disabled})
}

// DeleteAccount removes an account from the pool and the store.
func (h *Handler) DeleteAccount(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.creds.GetCredentialByID(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown account"})
		return
	}
	if err := h.creds.Delete(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

// GetConfig returns the live configuration with secrets masked.
func (h *Handler) GetConfig(c *gin.Context) {
	masked := *h.cfg
	masked.APIKey = maskKey(masked.APIKey)
	masked.AdminKey = maskKey(masked.AdminKey)
	masked.ZAI.APIKey = maskKey(masked.ZAI.APIKey)
	masked.OAuth.ClientSecret = maskKey(masked.OAuth.ClientSecret)
	c.JSON(http.StatusOK, gin.H{"proxy": masked})
}

// UpdateConfig applies the mutable subset of the configuration and
// persists it. Fields that require a restart (port, data_dir) are
// rejected.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var req struct {
		AuthMode          *string            `json:"auth_mode"`
		RequestTimeoutSec *int               `json:"request_timeout_s"`
		MaxAccountRetries *int               `json:"max_account_retries"`
		CustomMapping     *map[string]string `json:"custom_mapping"`
		SchedulingEnabled *bool              `json:"scheduling_enabled"`
		SchedulingTTLSec  *int               `json:"scheduling_ttl_s"`
		Port              *int               `json:"port"`
		DataDir           *string            `json:"data_dir"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Port != nil || req.DataDir != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "port and data_dir require a restart; edit the config file"})
		return
	}

	if req.AuthMode != nil {
		probe := *h.cfg
		probe.AuthMode = *req.AuthMode
		if err := probe.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.cfg.AuthMode = *req.AuthMode
	}
	if req.RequestTimeoutSec != nil {
		h.cfg.RequestTimeoutSec = *req.RequestTimeoutSec
	}
	if req.MaxAccountRetries != nil {
		h.cfg.MaxAccountRetries = *req.MaxAccountRetries
	}
	if req.CustomMapping != nil {
		h.cfg.CustomModelMapping = *req.CustomMapping
	}
	if req.SchedulingEnabled != nil {
		h.cfg.SchedulingEnabled = *req.SchedulingEnabled
	}
	if req.SchedulingTTLSec != nil {
		h.cfg.SchedulingTTLSec = *req.SchedulingTTLSec
	}

	if h.configPath != "" {
		if err := config.Save(h.cfg, h.configPath); err != nil {
			log.WithError(err).Warn("failed to persist config update")
		}
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// GetLogs returns recent terminal request-log rows, newest first.
func (h *Handler) GetLogs(c *gin.Context) {
	limit := 100
	if lp := strings.TrimSpace(c.Query("limit")); lp != "" {
		v, err := strconv.Atoi(lp)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if v > 1000 {
			v = 1000
		}
		limit = v
	}
	rows := h.monitor.GetLogs(c.Request.Context(), limit)
	c.JSON(http.StatusOK, gin.H{"logs": rows, "count": len(rows)})
}

// ClearLogs drops both the ring and the persistent rows.
func (h *Handler) ClearLogs(c *gin.Context) {
	if err := h.monitor.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// GetStats summarizes the proxy's live state.
func (h *Handler) GetStats(c *gin.Context) {
	creds := h.creds.List()
	eligible := 0
	for _, cred := range creds {
		if !cred.Disabled && !cred.ProxyDisabled &&
			h.breaker.Allow(cred.ID) && !h.quarantine.IsQuarantined(cred.ID) {
			eligible++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"accounts":          len(creds),
		"eligible_accounts": eligible,
		"paused":            h.Paused(),
		"recent_requests":   h.monitor.Len(),
	})
}

// GenerateAPIKey mints a new client API key, installs it as the live
// key, and persists the config.
func (h *Handler) GenerateAPIKey(c *gin.Context) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate key"})
		return
	}
	key := "sk-" + hex.EncodeToString(raw)
	h.cfg.APIKey = key
	if h.configPath != "" {
		if err := config.Save(h.cfg, h.configPath); err != nil {
			log.WithError(err).Warn("failed to persist generated key")
		}
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}

// StartProxy resumes request handling after StopProxy.
func (h *Handler) StartProxy(c *gin.Context) {
	h.paused.Store(false)
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

// StopProxy pauses request handling: the protocol routes answer 503
// while paused. Admin routes stay reachable so the operator can start
// it again.
func (h *Handler) StopProxy(c *gin.Context) {
	h.paused.Store(true)
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func maskKey(key string) string {
	if len(key) <= 8 {
		if key == "" {
			return ""
		}
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
