// Package logging configures the process-wide logrus logger.
package logging

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// Setup applies the configured level and a timestamped text format.
func Setup(level string) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	parsed, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}
