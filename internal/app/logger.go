package app

import (
	"strings"

	"github.com/charlesng35/burnnote/pkg/logger"
)

// ConfigureLogging initialises the global logger from the server settings.
// The level defaults to info, or debug when the server runs in debug mode.
func ConfigureLogging(cfg ServerConfig) error {
	level := strings.TrimSpace(cfg.LogLevel)
	if level == "" {
		level = "info"
		if cfg.Debug {
			level = "debug"
		}
	}
	return logger.InitWithOptions(logger.Options{
		Level: level,
		File:  strings.TrimSpace(cfg.LogFile),
	})
}
