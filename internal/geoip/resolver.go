// Package geoip resolves client IP addresses to geographic locations and
// applies the bridge's geographic admission policy.
//
// Lookups go to an external HTTP geolocation service and are cached with a
// TTL. The resolver never returns a hard error to the admission pipeline: a
// failed lookup resolves to nil and the fail-open/fail-closed policy decides
// the outcome.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/justachat/irc-bridge/internal/config"
	"github.com/justachat/irc-bridge/internal/constants"
)

// Result holds the location fields resolved for an IP address.
type Result struct {
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	City        string `json:"city"`
	Region      string `json:"region"`
	ISP         string `json:"isp"`
}

// Decision is the outcome of a geographic admission check.
type Decision struct {
	Allowed bool
	Reason  string

	// Result carries the resolved location when a lookup was performed, so
	// callers can reuse it for display without a second lookup.
	Result *Result
}

// Stats is a snapshot of resolver counters.
type Stats struct {
	Lookups   uint64 `json:"lookups"`
	CacheHits uint64 `json:"cache_hits"`
	Errors    uint64 `json:"errors"`
	Allowed   uint64 `json:"allowed"`
	Blocked   uint64 `json:"blocked"`
}

// CacheEntry is an exported view of a cached, unexpired resolution.
type CacheEntry struct {
	IP string `json:"ip"`
	Result
	ExpiresAt time.Time `json:"expires_at"`
}

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

// lookupResponse mirrors the ip-api.com JSON payload.
type lookupResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	Region      string `json:"regionName"`
	City        string `json:"city"`
	ISP         string `json:"isp"`
}

// Resolver resolves IPs to locations with a time-bounded cache and applies
// the configured country policy. All methods are safe for concurrent use.
type Resolver struct {
	cfg    *config.GeoSettings
	client *http.Client

	mu    sync.RWMutex
	cache map[string]cacheEntry

	lookups   atomic.Uint64
	cacheHits atomic.Uint64
	errors    atomic.Uint64
	allowed   atomic.Uint64
	blocked   atomic.Uint64
}

// NewResolver creates a resolver for the given geo policy settings.
func NewResolver(cfg *config.GeoSettings) *Resolver {
	return &Resolver{
		cfg:    cfg,
		client: &http.Client{Timeout: constants.GeoLookupTimeout},
		cache:  make(map[string]cacheEntry),
	}
}

// Start runs the periodic cache sweep until the context is cancelled.
func (r *Resolver) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(constants.GeoSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

// Lookup resolves an IP to a location, serving from the cache when possible.
// It returns nil when the external lookup fails, times out, or returns a
// malformed response; such failures only increment the error counter.
func (r *Resolver) Lookup(ctx context.Context, ip string) *Result {
	r.mu.RLock()
	entry, ok := r.cache[ip]
	r.mu.RUnlock()

	if ok && time.Now().Before(entry.expiresAt) {
		r.cacheHits.Add(1)
		result := entry.result
		return &result
	}

	r.lookups.Add(1)

	url := fmt.Sprintf("%s/%s?fields=status,message,country,countryCode,regionName,city,isp", strings.TrimRight(r.cfg.LookupURL, "/"), ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		r.errors.Add(1)
		return nil
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.errors.Add(1)
		log.Warn().Err(err).Str("ip", ip).Msg("Geo lookup failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.errors.Add(1)
		log.Warn().Int("status", resp.StatusCode).Str("ip", ip).Msg("Geo lookup returned non-OK status")
		return nil
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		r.errors.Add(1)
		log.Warn().Err(err).Str("ip", ip).Msg("Geo lookup returned malformed response")
		return nil
	}

	if payload.Status != "success" {
		r.errors.Add(1)
		log.Warn().Str("ip", ip).Str("message", payload.Message).Msg("Geo lookup unsuccessful")
		return nil
	}

	result := Result{
		Country:     payload.Country,
		CountryCode: payload.CountryCode,
		City:        payload.City,
		Region:      payload.Region,
		ISP:         payload.ISP,
	}

	r.mu.Lock()
	r.cache[ip] = cacheEntry{result: result, expiresAt: time.Now().Add(r.cfg.CacheTTL)}
	r.mu.Unlock()

	return &result
}

// ShouldAllow applies the geographic admission policy to an IP.
//
// It short-circuits to allowed when the policy is disabled, no country list
// is configured, or the IP is private/loopback. Otherwise it resolves the IP
// and applies block-mode or allow-mode semantics; a failed lookup falls back
// to the fail-open/fail-closed setting.
func (r *Resolver) ShouldAllow(ctx context.Context, ip string) Decision {
	if !r.cfg.Enabled || len(r.cfg.Countries) == 0 {
		r.allowed.Add(1)
		return Decision{Allowed: true, Reason: "geo policy disabled"}
	}

	if IsPrivateIP(ip) {
		r.allowed.Add(1)
		return Decision{Allowed: true, Reason: "private address"}
	}

	result := r.Lookup(ctx, ip)
	if result == nil {
		if r.cfg.ShouldFailOpen() {
			r.allowed.Add(1)
			return Decision{Allowed: true, Reason: "lookup failed (fail-open)"}
		}
		r.blocked.Add(1)
		return Decision{Allowed: false, Reason: "lookup failed (fail-closed)"}
	}

	listed := false
	for _, code := range r.cfg.Countries {
		if strings.EqualFold(code, result.CountryCode) {
			listed = true
			break
		}
	}

	var allow bool
	if r.cfg.Mode == "allow" {
		allow = listed
	} else {
		allow = !listed
	}

	if allow {
		r.allowed.Add(1)
		return Decision{Allowed: true, Reason: "country permitted", Result: result}
	}

	r.blocked.Add(1)
	return Decision{Allowed: false, Reason: fmt.Sprintf("country %s not permitted", result.CountryCode), Result: result}
}

// Stats returns a snapshot of the resolver counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		Lookups:   r.lookups.Load(),
		CacheHits: r.cacheHits.Load(),
		Errors:    r.errors.Load(),
		Allowed:   r.allowed.Load(),
		Blocked:   r.blocked.Load(),
	}
}

// CacheSnapshot returns the currently cached, unexpired entries.
func (r *Resolver) CacheSnapshot() []CacheEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	entries := make([]CacheEntry, 0, len(r.cache))
	for ip, entry := range r.cache {
		if now.Before(entry.expiresAt) {
			entries = append(entries, CacheEntry{IP: ip, Result: entry.result, ExpiresAt: entry.expiresAt})
		}
	}
	return entries
}

// sweep purges cache entries past expiry.
func (r *Resolver) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	removed := 0
	for ip, entry := range r.cache {
		if now.After(entry.expiresAt) {
			delete(r.cache, ip)
			removed++
		}
	}

	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Purged expired geo cache entries")
	}
}

// IsPrivateIP reports whether the address is in a private or loopback range,
// for which no external lookup should ever be made.
func IsPrivateIP(ip string) bool {
	if ip == "localhost" {
		return true
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	return parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsLinkLocalUnicast()
}
