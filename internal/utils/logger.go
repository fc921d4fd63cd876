// Package utils provides utility functions and helpers for the bridge:
// logger initialization, standardized admin API responses, error types, and
// request validation.
package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/justachat/irc-bridge/internal/config"
)

// InitLogger initializes the application logger with the given configuration.
func InitLogger(cfg *config.AppConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Pretty console output is a development convenience; structured JSON
	// everywhere else.
	var output io.Writer = os.Stdout
	if strings.ToLower(cfg.Logging.Format) == "console" && cfg.App.IsDevelopment() {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("app", cfg.App.Name).
		Str("version", cfg.App.Version).
		Str("env", cfg.App.Environment).
		Logger()

	log.Info().Msg("Logger initialized")
}
