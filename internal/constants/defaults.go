// Package constants provides shared constant values used throughout the bridge.
//
// The defaults.go file defines fallback configuration values applied when a
// setting is absent from both the configuration file and the environment.
package constants

// Default Listener Settings define where the bridge accepts IRC clients.
const (
	// DefaultBridgeHost is the default bind address for the IRC listeners.
	DefaultBridgeHost = "127.0.0.1"

	// DefaultBridgePort is the default plain TCP IRC port.
	DefaultBridgePort = 6667

	// DefaultTLSPort is the default TLS IRC port.
	DefaultTLSPort = 6697

	// DefaultAdminPort is the default port for the admin control plane.
	DefaultAdminPort = 8090
)

// Default Upstream Settings define how the bridge reaches the chat gateway.
const (
	// DefaultUpstreamURL is the WebSocket gateway every bridged connection is
	// relayed to.
	DefaultUpstreamURL = "wss://gateway.justachat.net/v1/irc-gateway"
)

// Default Rate Limit Settings define the admission and flood quotas.
const (
	// DefaultConnPerMinute is the number of connection attempts allowed per IP
	// within one fixed window.
	DefaultConnPerMinute = 10

	// DefaultMsgPerSecond is the token refill rate for per-connection message
	// buckets.
	DefaultMsgPerSecond = 10.0

	// DefaultMsgBurst is the message bucket capacity.
	DefaultMsgBurst = 20

	// DefaultAutoBanThreshold is the violation count that triggers an
	// automatic ban. Zero disables auto-banning.
	DefaultAutoBanThreshold = 3

	// DefaultAutoBanMinutes is how long an automatic ban lasts.
	DefaultAutoBanMinutes = 60
)

// Flood Detection Settings tune the in-connection throttle escalation.
// These are heuristics, not invariants; operators may need to adjust them.
const (
	// FloodWarningThreshold is the cumulative throttled-message count at which
	// a flood violation is recorded against the client's IP.
	FloodWarningThreshold = 50

	// FloodNoticeEvery controls how often a throttled client is sent a warning
	// NOTICE (every Nth throttled line).
	FloodNoticeEvery = 5
)

// Default Geo Policy Settings define geographic admission control behavior.
const (
	// DefaultGeoLookupURL is the base URL of the IP geolocation service.
	// The client IP is appended as a path segment.
	DefaultGeoLookupURL = "http://ip-api.com/json"

	// DefaultGeoMode blocks the configured countries; the alternative mode
	// "allow" admits only the configured countries.
	DefaultGeoMode = "block"
)

// Default Storage Settings define where durable state lives.
const (
	// DefaultDataDir is the directory holding the persisted ban table.
	DefaultDataDir = "./data"

	// BanFileName is the file inside the data directory that holds the
	// serialized ban table.
	BanFileName = "bans.json"
)

// Default Logging Settings.
const (
	// DefaultLogLevel is the default logging verbosity level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default logging output format.
	DefaultLogFormat = "json"
)

// Environment names recognized in configuration.
const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvProduction  = "production"
)

// Admin API Limits.
const (
	// MaxRequestBodySize is the maximum accepted admin request body in bytes.
	MaxRequestBodySize = 1 << 20

	// MaxBroadcastLength is the maximum length of a broadcast message.
	MaxBroadcastLength = 500
)

// LogRedactedValue replaces secrets when configuration is logged.
const LogRedactedValue = "[REDACTED]"
