package constants

import "time"

// Admission and Relay Timeouts
const (
	// GeoLookupTimeout bounds the external geolocation HTTP call so a degraded
	// provider cannot stall the admission pipeline.
	GeoLookupTimeout = 5 * time.Second

	// UpstreamHandshakeTimeout bounds the WebSocket dial to the chat gateway.
	UpstreamHandshakeTimeout = 10 * time.Second

	// UpstreamWriteTimeout bounds a single WebSocket frame write.
	UpstreamWriteTimeout = 10 * time.Second

	// SocketWriteTimeout bounds a single write to an IRC client socket.
	SocketWriteTimeout = 10 * time.Second
)

// Background Sweep Intervals
const (
	// BanSweepInterval is how often expired ban records are purged.
	BanSweepInterval = 5 * time.Minute

	// RateSweepInterval is how often stale rate-limiter state is purged.
	RateSweepInterval = 1 * time.Minute

	// GeoSweepInterval is how often expired geolocation cache entries are
	// purged.
	GeoSweepInterval = 10 * time.Minute
)

// Rate Limiter Windows
const (
	// ConnWindowDuration is the fixed window for per-IP connection counting.
	ConnWindowDuration = 1 * time.Minute

	// ConnWindowStaleAfter is how long an expired connection window survives
	// before the sweep removes it.
	ConnWindowStaleAfter = 2 * time.Minute

	// ViolationDecayAfter resets a violation counter that has been idle this
	// long.
	ViolationDecayAfter = 1 * time.Hour

	// ViolationStaleAfter is how long an idle violation record survives before
	// the sweep removes it.
	ViolationStaleAfter = 2 * time.Hour
)

// Persistence Timing
const (
	// BanSaveDebounce coalesces ban-table writes that occur in a burst.
	BanSaveDebounce = 1 * time.Second

	// GeoCacheTTL is the default lifetime of a geolocation cache entry.
	GeoCacheTTL = 24 * time.Hour
)

// Server Lifecycle
const (
	// DefaultShutdownGrace is how long shutdown waits for sockets to close
	// before the process force-exits.
	DefaultShutdownGrace = 5 * time.Second

	// AdminReadTimeout and AdminWriteTimeout apply to the admin HTTP server.
	AdminReadTimeout  = 5 * time.Second
	AdminWriteTimeout = 10 * time.Second
	AdminIdleTimeout  = 120 * time.Second
)
