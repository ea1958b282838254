package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Init configures the standard logrus logger. logLevel should be one of
// DEBUG, INFO, WARN, ERROR; anything else falls back to INFO.
func Init(logLevel string) {
	logrus.SetOutput(os.Stdout)
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = logrus.InfoLevel
		logrus.Warnf("invalid log level %q, defaulting to INFO", logLevel)
	}
	logrus.SetLevel(level)
}
