package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/justachat/irc-bridge/internal/config"
	"github.com/justachat/irc-bridge/internal/constants"
)

// ConnectDecision is the outcome of a connection-rate check.
type ConnectDecision struct {
	Allowed bool

	// RetryAfter is how long the client should wait before retrying. Set only
	// on denial.
	RetryAfter time.Duration

	// ShouldBan is set when the violation recorded for this denial met the
	// auto-ban threshold.
	ShouldBan bool

	// Violations is the IP's violation count after this check.
	Violations int
}

// ViolationEntry is an exported view of one IP's violation record.
type ViolationEntry struct {
	IP    string    `json:"ip"`
	Count int       `json:"count"`
	Kind  string    `json:"kind"`
	Last  time.Time `json:"last_violation"`
}

// Stats is a snapshot of tracker state sizes and totals.
type Stats struct {
	ActiveWindows   int    `json:"active_windows"`
	ActiveBuckets   int    `json:"active_buckets"`
	TrackedIPs      int    `json:"tracked_ips"`
	TotalViolations uint64 `json:"total_violations"`
}

type connWindow struct {
	count   int
	resetAt time.Time
}

type violationRecord struct {
	count int
	kind  string
	last  time.Time
}

// Tracker holds all rate-limiting state: per-IP connection windows, per-
// connection message buckets, and per-IP violation counters. All methods are
// safe for concurrent use.
type Tracker struct {
	cfg *config.RateLimitSettings

	mu         sync.Mutex
	windows    map[string]*connWindow
	buckets    map[uint64]*Limiter
	violations map[string]*violationRecord

	totalViolations uint64

	// Overridable in tests; production values come from constants.
	windowDuration  time.Duration
	violationDecay  time.Duration
	windowStale     time.Duration
	violationStale  time.Duration
}

// NewTracker creates a tracker for the given rate-limit settings.
func NewTracker(cfg *config.RateLimitSettings) *Tracker {
	return &Tracker{
		cfg:            cfg,
		windows:        make(map[string]*connWindow),
		buckets:        make(map[uint64]*Limiter),
		violations:     make(map[string]*violationRecord),
		windowDuration: constants.ConnWindowDuration,
		violationDecay: constants.ViolationDecayAfter,
		windowStale:    constants.ConnWindowStaleAfter,
		violationStale: constants.ViolationStaleAfter,
	}
}

// Start runs the periodic state sweep until the context is cancelled.
func (t *Tracker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(constants.RateSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.sweep()
			}
		}
	}()
}

// CanConnect applies the fixed-window connection quota for an IP. A denial
// records a violation; the decision reports whether that violation met the
// auto-ban threshold.
func (t *Tracker) CanConnect(ip string) ConnectDecision {
	now := time.Now()

	t.mu.Lock()
	window, ok := t.windows[ip]
	if !ok || now.After(window.resetAt) {
		t.windows[ip] = &connWindow{count: 1, resetAt: now.Add(t.windowDuration)}
		t.mu.Unlock()
		return ConnectDecision{Allowed: true}
	}

	if window.count < t.cfg.ConnPerMinute {
		window.count++
		t.mu.Unlock()
		return ConnectDecision{Allowed: true}
	}

	retryAfter := time.Until(window.resetAt)
	t.mu.Unlock()

	shouldBan, count := t.RecordViolation(ip, "connect")
	return ConnectDecision{
		Allowed:    false,
		RetryAfter: retryAfter,
		ShouldBan:  shouldBan,
		Violations: count,
	}
}

// InitConnection seeds a full token bucket for a newly admitted connection.
func (t *Tracker) InitConnection(id uint64) {
	limiter := NewLimiter(t.cfg.MsgPerSecond, t.cfg.MsgBurst)

	t.mu.Lock()
	t.buckets[id] = limiter
	t.mu.Unlock()
}

// CanSendMessage consumes one message token for the connection. It returns
// true when the bucket had a token available. Escalation of repeated denials
// is the connection handler's responsibility.
func (t *Tracker) CanSendMessage(id uint64) bool {
	t.mu.Lock()
	limiter, ok := t.buckets[id]
	t.mu.Unlock()

	if !ok {
		return false
	}
	return limiter.Allow()
}

// RemoveConnection drops the connection's token bucket on disconnect.
func (t *Tracker) RemoveConnection(id uint64) {
	t.mu.Lock()
	delete(t.buckets, id)
	t.mu.Unlock()
}

// RecordViolation increments the IP's violation counter, resetting it first
// if it has been idle beyond the decay window. It reports whether the
// configured auto-ban threshold has been met or exceeded (a zero threshold
// disables auto-banning).
func (t *Tracker) RecordViolation(ip, kind string) (shouldBan bool, count int) {
	now := time.Now()

	t.mu.Lock()
	record, ok := t.violations[ip]
	if !ok || now.Sub(record.last) > t.violationDecay {
		record = &violationRecord{}
		t.violations[ip] = record
	}

	record.count++
	record.kind = kind
	record.last = now
	count = record.count
	t.totalViolations++
	t.mu.Unlock()

	shouldBan = t.cfg.AutoBanThreshold > 0 && count >= t.cfg.AutoBanThreshold

	log.Warn().
		Str("ip", ip).
		Str("kind", kind).
		Int("violations", count).
		Bool("should_ban", shouldBan).
		Msg("Rate limit violation")

	return shouldBan, count
}

// ClearViolations resets the IP's violation count to zero. Used on manual
// unban.
func (t *Tracker) ClearViolations(ip string) {
	t.mu.Lock()
	delete(t.violations, ip)
	t.mu.Unlock()
}

// Violations returns all tracked violation records, highest count first.
func (t *Tracker) Violations() []ViolationEntry {
	t.mu.Lock()
	entries := make([]ViolationEntry, 0, len(t.violations))
	for ip, record := range t.violations {
		entries = append(entries, ViolationEntry{
			IP:    ip,
			Count: record.count,
			Kind:  record.kind,
			Last:  record.last,
		})
	}
	t.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	return entries
}

// Stats returns a snapshot of tracker state sizes and totals.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Stats{
		ActiveWindows:   len(t.windows),
		ActiveBuckets:   len(t.buckets),
		TrackedIPs:      len(t.violations),
		TotalViolations: t.totalViolations,
	}
}

// sweep purges connection windows stale beyond the window-stale horizon and
// violation records idle beyond the violation-stale horizon.
func (t *Tracker) sweep() {
	now := time.Now()

	t.mu.Lock()
	removedWindows := 0
	for ip, window := range t.windows {
		if now.Sub(window.resetAt) > t.windowStale {
			delete(t.windows, ip)
			removedWindows++
		}
	}

	removedViolations := 0
	for ip, record := range t.violations {
		if now.Sub(record.last) > t.violationStale {
			delete(t.violations, ip)
			removedViolations++
		}
	}
	t.mu.Unlock()

	if removedWindows > 0 || removedViolations > 0 {
		log.Debug().
			Int("windows", removedWindows).
			Int("violations", removedViolations).
			Msg("Purged stale rate limiter state")
	}
}
