package config

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Apply sets the level and formatter of logger
func (l LoggingConfig) Apply(logger *log.Logger) error {
	level, err := log.ParseLevel(l.Level)
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	logger.SetLevel(level)

	switch l.Format {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
