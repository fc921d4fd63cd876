// Package handlers provides HTTP handlers for the admin control plane:
// bridge status, live connection management, the ban table, rate-limit
// violations, geolocation statistics and operator broadcasts.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/justachat/irc-bridge/internal/ban"
	"github.com/justachat/irc-bridge/internal/bridge"
	"github.com/justachat/irc-bridge/internal/config"
	"github.com/justachat/irc-bridge/internal/constants"
	"github.com/justachat/irc-bridge/internal/geoip"
	"github.com/justachat/irc-bridge/internal/ratelimit"
	"github.com/justachat/irc-bridge/internal/utils"
)

// AdminHandler handles admin control plane requests.
type AdminHandler struct {
	cfg        *config.AppConfig
	registry   *bridge.Registry
	bans       *ban.Manager
	rates      *ratelimit.Tracker
	geo        *geoip.Resolver
	tlsEnabled func() bool
	startedAt  time.Time
}

// NewAdminHandler creates a new AdminHandler over the bridge's shared
// components. tlsEnabled reports whether the TLS listener came up.
func NewAdminHandler(cfg *config.AppConfig, registry *bridge.Registry, bans *ban.Manager, rates *ratelimit.Tracker, geo *geoip.Resolver, tlsEnabled func() bool) *AdminHandler {
	return &AdminHandler{
		cfg:        cfg,
		registry:   registry,
		bans:       bans,
		rates:      rates,
		geo:        geo,
		tlsEnabled: tlsEnabled,
		startedAt:  time.Now(),
	}
}

// BanRequest represents a request to ban an IP address. Duration is in
// minutes; zero or absent means permanent.
type BanRequest struct {
	IP           string `json:"ip" validate:"required,ipv4"`
	Reason       string `json:"reason" validate:"omitempty,max=200"`
	Duration     int    `json:"duration" validate:"omitempty,min=0"`
	KickExisting bool   `json:"kickExisting"`
}

// UnbanRequest represents a request to lift a ban.
type UnbanRequest struct {
	IP string `json:"ip" validate:"required,ipv4"`
}

// BroadcastRequest represents an operator notice sent to every connected
// client. Length is checked against MaxBroadcastLength in the handler.
type BroadcastRequest struct {
	Message string `json:"message" validate:"required"`
}

// Status handles GET /status. It is the only unauthenticated endpoint and
// returns operational counters without any client-identifying data.
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"name":             h.cfg.App.Name,
		"version":          h.cfg.App.Version,
		"uptime_seconds":   int64(time.Since(h.startedAt).Seconds()),
		"connections":      h.registry.Count(),
		"connections_ever": h.registry.Total(),
		"bans":             h.bans.Count(),
		"tls":              h.tlsEnabled(),
		"geo_enabled":      h.cfg.Geo.Enabled,
		"geo":              h.geo.Stats(),
		"rate_limit":       h.rates.Stats(),
	})
}

// ListConnections handles GET /connections, returning a snapshot of every
// live client connection.
func (h *AdminHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns := h.registry.List()
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(conns),
		"connections": conns,
	})
}

// KickConnection handles POST /kick/{id}, disconnecting one client with a
// KILL notice.
func (h *AdminHandler) KickConnection(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.BadRequest(w, "Connection ID must be a number", nil)
		return
	}

	if !h.registry.Kick(id, "Disconnected by administrator") {
		utils.ErrorFromAppError(w, utils.NewNotFoundError("Connection", id))
		return
	}

	log.Info().Uint64("conn", id).Msg("Connection kicked by administrator")
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"kicked": id,
	})
}

// ListBans handles GET /bans, returning the ban table newest first.
func (h *AdminHandler) ListBans(w http.ResponseWriter, r *http.Request) {
	records := h.bans.List()
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"count": len(records),
		"bans":  records,
	})
}

// BanIP handles POST /ban. A zero or missing duration creates a permanent
// ban; kickExisting also disconnects any live connections from the IP.
func (h *AdminHandler) BanIP(w http.ResponseWriter, r *http.Request) {
	var req BanRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		if appErr, ok := utils.IsAppError(err); ok {
			utils.ErrorFromAppError(w, appErr)
		} else {
			utils.BadRequest(w, constants.MsgMalformedJSON, nil)
		}
		return
	}

	if errs := utils.ValidateStruct(&req); errs != nil {
		utils.ValidationError(w, errs)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "Banned by administrator"
	}

	record := h.bans.Ban(req.IP, reason, time.Duration(req.Duration)*time.Minute, req.KickExisting)
	utils.JSON(w, http.StatusCreated, record)
}

// UnbanIP handles POST /unban. Lifting a ban also clears the IP's
// accumulated rate-limit violations so it is not instantly re-banned.
func (h *AdminHandler) UnbanIP(w http.ResponseWriter, r *http.Request) {
	var req UnbanRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		if appErr, ok := utils.IsAppError(err); ok {
			utils.ErrorFromAppError(w, appErr)
		} else {
			utils.BadRequest(w, constants.MsgMalformedJSON, nil)
		}
		return
	}

	if errs := utils.ValidateStruct(&req); errs != nil {
		utils.ValidationError(w, errs)
		return
	}

	if !h.bans.Unban(req.IP) {
		utils.ErrorFromAppError(w, utils.NewNotFoundError("Ban", req.IP))
		return
	}

	h.rates.ClearViolations(req.IP)
	log.Info().Str("ip", req.IP).Msg("Ban lifted by administrator")
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"unbanned": req.IP,
	})
}

// ListViolations handles GET /violations, returning per-IP rate-limit
// violation counters sorted by count.
func (h *AdminHandler) ListViolations(w http.ResponseWriter, r *http.Request) {
	entries := h.rates.Violations()
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"count":      len(entries),
		"violations": entries,
	})
}

// GeoIPStats handles GET /geoip, returning lookup counters and the current
// cache contents.
func (h *AdminHandler) GeoIPStats(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"enabled":   h.cfg.Geo.Enabled,
		"mode":      h.cfg.Geo.Mode,
		"countries": h.cfg.Geo.Countries,
		"stats":     h.geo.Stats(),
		"cache":     h.geo.CacheSnapshot(),
	})
}

// Broadcast handles POST /broadcast, delivering an operator notice to every
// connected client.
func (h *AdminHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		if appErr, ok := utils.IsAppError(err); ok {
			utils.ErrorFromAppError(w, appErr)
		} else {
			utils.BadRequest(w, constants.MsgMalformedJSON, nil)
		}
		return
	}

	if errs := utils.ValidateStruct(&req); errs != nil {
		utils.ValidationError(w, errs)
		return
	}
	if len(req.Message) > constants.MaxBroadcastLength {
		utils.ValidationError(w, map[string]string{
			"message": fmt.Sprintf("Must be at most %d characters", constants.MaxBroadcastLength),
		})
		return
	}

	sent := h.registry.Broadcast(req.Message)
	log.Info().Int("sent", sent).Msg("Administrator broadcast delivered")
	utils.SendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"sent":    sent,
	})
}
