package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/justachat/irc-bridge/internal/constants"
)

// AppConfig represents the entire bridge configuration.
type AppConfig struct {
	App       AppSettings       `yaml:"app"`
	Listen    ListenSettings    `yaml:"listen"`
	TLS       TLSSettings       `yaml:"tls"`
	Upstream  UpstreamSettings  `yaml:"upstream"`
	Admin     AdminSettings     `yaml:"admin"`
	RateLimit RateLimitSettings `yaml:"rate_limit"`
	Geo       GeoSettings       `yaml:"geo"`
	Storage   StorageSettings   `yaml:"storage"`
	Logging   LoggingSettings   `yaml:"logging"`
}

// AppSettings contains general application settings.
type AppSettings struct {
	Environment string `yaml:"environment" env:"APP_ENV"`
	Name        string `yaml:"name" env:"APP_NAME"`
	Version     string `yaml:"version" env:"APP_VERSION"`
}

// ListenSettings contains the IRC listener bind settings.
type ListenSettings struct {
	Host string `yaml:"host" env:"BRIDGE_HOST"`
	Port int    `yaml:"port" env:"BRIDGE_PORT"`
}

// TLSSettings contains the optional TLS listener settings. The TLS listener
// is started only when both CertFile and KeyFile are set and loadable.
type TLSSettings struct {
	Port     int    `yaml:"port" env:"TLS_PORT"`
	CertFile string `yaml:"cert_file" env:"TLS_CERT"`
	KeyFile  string `yaml:"key_file" env:"TLS_KEY"`
}

// UpstreamSettings contains the WebSocket gateway settings.
type UpstreamSettings struct {
	URL string `yaml:"url" env:"WS_URL"`
}

// AdminSettings contains the admin control plane settings.
type AdminSettings struct {
	Host  string `yaml:"host" env:"ADMIN_HOST"`
	Port  int    `yaml:"port" env:"ADMIN_PORT"`
	Token string `yaml:"token" env:"ADMIN_TOKEN"`
}

// RateLimitSettings contains the admission and flood quotas.
type RateLimitSettings struct {
	ConnPerMinute    int     `yaml:"conn_per_minute" env:"RATE_CONN_PER_MIN"`
	MsgPerSecond     float64 `yaml:"msg_per_second" env:"RATE_MSG_PER_SEC"`
	MsgBurst         int     `yaml:"msg_burst" env:"RATE_MSG_BURST"`
	AutoBanThreshold int     `yaml:"auto_ban_threshold" env:"RATE_AUTO_BAN"`
	AutoBanMinutes   int     `yaml:"auto_ban_minutes" env:"RATE_AUTO_BAN_MINUTES"`
}

// AutoBanDuration returns the configured automatic ban duration.
func (r *RateLimitSettings) AutoBanDuration() time.Duration {
	return time.Duration(r.AutoBanMinutes) * time.Minute
}

// GeoSettings contains the geographic admission policy. FailOpen is a
// pointer so an absent value is distinguishable from an explicit false.
type GeoSettings struct {
	Enabled   bool          `yaml:"enabled" env:"GEO_ENABLED"`
	Mode      string        `yaml:"mode" env:"GEO_MODE"`
	Countries []string      `yaml:"countries" env:"GEO_COUNTRIES"`
	FailOpen  *bool         `yaml:"fail_open" env:"GEO_FAIL_OPEN"`
	CacheTTL  time.Duration `yaml:"cache_ttl" env:"GEO_CACHE_TTL"`
	LookupURL string        `yaml:"lookup_url" env:"GEO_LOOKUP_URL"`
}

// ShouldFailOpen reports whether a failed lookup admits the connection.
// Unset means fail-open so a degraded provider cannot lock every client out.
func (g *GeoSettings) ShouldFailOpen() bool {
	return g.FailOpen == nil || *g.FailOpen
}

// StorageSettings contains durable state settings.
type StorageSettings struct {
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
}

// BanFilePath returns the path of the persisted ban table.
func (s *StorageSettings) BanFilePath() string {
	return filepath.Join(s.DataDir, constants.BanFileName)
}

// LoggingSettings contains logging configuration.
type LoggingSettings struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// BridgeAddress returns the plain listener address.
func (l *ListenSettings) BridgeAddress() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// AdminAddress returns the admin HTTP listener address.
func (a *AdminSettings) AdminAddress() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Configured reports whether TLS material has been supplied.
func (t *TLSSettings) Configured() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// IsDevelopment checks if the application is running in development mode.
func (as *AppSettings) IsDevelopment() bool {
	return strings.ToLower(as.Environment) == constants.EnvDevelopment
}

// IsProduction checks if the application is running in production mode.
func (as *AppSettings) IsProduction() bool {
	return strings.ToLower(as.Environment) == constants.EnvProduction
}

// Load loads the configuration from an optional YAML file and environment
// variables. Environment variables take precedence over the file; defaults
// fill anything left unset.
func Load(configPath string) (*AppConfig, error) {
	config := &AppConfig{}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}

			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	if err := LoadEnv(config); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	setDefaults(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logConfig(config)

	return config, nil
}

// setDefaults sets default values for any missing configuration.
func setDefaults(config *AppConfig) {
	if config.App.Environment == "" {
		config.App.Environment = constants.EnvDevelopment
	}
	if config.App.Name == "" {
		config.App.Name = "irc-bridge"
	}
	if config.App.Version == "" {
		config.App.Version = "1.0.0"
	}

	if config.Listen.Host == "" {
		config.Listen.Host = constants.DefaultBridgeHost
	}
	if config.Listen.Port == 0 {
		config.Listen.Port = constants.DefaultBridgePort
	}
	if config.TLS.Port == 0 {
		config.TLS.Port = constants.DefaultTLSPort
	}

	if config.Upstream.URL == "" {
		config.Upstream.URL = constants.DefaultUpstreamURL
	}

	if config.Admin.Host == "" {
		config.Admin.Host = config.Listen.Host
	}
	if config.Admin.Port == 0 {
		config.Admin.Port = constants.DefaultAdminPort
	}

	if config.RateLimit.ConnPerMinute == 0 {
		config.RateLimit.ConnPerMinute = constants.DefaultConnPerMinute
	}
	if config.RateLimit.MsgPerSecond == 0 {
		config.RateLimit.MsgPerSecond = constants.DefaultMsgPerSecond
	}
	if config.RateLimit.MsgBurst == 0 {
		config.RateLimit.MsgBurst = constants.DefaultMsgBurst
	}
	if config.RateLimit.AutoBanThreshold == 0 {
		config.RateLimit.AutoBanThreshold = constants.DefaultAutoBanThreshold
	}
	if config.RateLimit.AutoBanMinutes == 0 {
		config.RateLimit.AutoBanMinutes = constants.DefaultAutoBanMinutes
	}

	if config.Geo.Mode == "" {
		config.Geo.Mode = constants.DefaultGeoMode
	}
	if config.Geo.CacheTTL == 0 {
		config.Geo.CacheTTL = constants.GeoCacheTTL
	}
	if config.Geo.LookupURL == "" {
		config.Geo.LookupURL = constants.DefaultGeoLookupURL
	}
	if config.Geo.FailOpen == nil {
		failOpen := true
		config.Geo.FailOpen = &failOpen
	}

	if config.Storage.DataDir == "" {
		config.Storage.DataDir = constants.DefaultDataDir
	}

	if config.Logging.Level == "" {
		config.Logging.Level = constants.DefaultLogLevel
	}
	if config.Logging.Format == "" {
		config.Logging.Format = constants.DefaultLogFormat
	}
}

// validateConfig validates that the configuration has all required values.
func validateConfig(config *AppConfig) error {
	env := strings.ToLower(config.App.Environment)
	if env != constants.EnvDevelopment && env != constants.EnvTesting && env != constants.EnvProduction {
		log.Warn().Str("environment", config.App.Environment).Msg("Invalid environment, defaulting to development")
		config.App.Environment = constants.EnvDevelopment
	}

	if config.App.IsProduction() && (config.Admin.Token == "" || config.Admin.Token == "changeme") {
		return fmt.Errorf("admin token must be set in production")
	}

	mode := strings.ToLower(config.Geo.Mode)
	if mode != "block" && mode != "allow" {
		return fmt.Errorf("invalid geo mode: %s (must be \"block\" or \"allow\")", config.Geo.Mode)
	}
	config.Geo.Mode = mode

	if config.RateLimit.ConnPerMinute < 0 || config.RateLimit.MsgBurst < 0 || config.RateLimit.MsgPerSecond < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}

	if (config.TLS.CertFile == "") != (config.TLS.KeyFile == "") {
		return fmt.Errorf("TLS certificate and key must be configured together")
	}

	logLevel := strings.ToLower(config.Logging.Level)
	validLevels := []string{"debug", "info", "warn", "error", "fatal", "panic"}
	validLevel := false
	for _, level := range validLevels {
		if logLevel == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// logConfig logs the current configuration, masking sensitive values.
func logConfig(config *AppConfig) {
	token := config.Admin.Token
	if token != "" {
		token = constants.LogRedactedValue
	}

	log.Info().
		Str("environment", config.App.Environment).
		Str("version", config.App.Version).
		Str("bridge", config.Listen.BridgeAddress()).
		Int("tls_port", config.TLS.Port).
		Bool("tls_configured", config.TLS.Configured()).
		Str("admin", config.Admin.AdminAddress()).
		Str("admin_token", token).
		Str("upstream", config.Upstream.URL).
		Bool("geo_enabled", config.Geo.Enabled).
		Str("log_level", config.Logging.Level).
		Msg("Configuration loaded")
}
