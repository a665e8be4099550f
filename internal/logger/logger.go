// Package logger holds the process-wide logrus logger.
package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var once sync.Once
var logger *logrus.Logger

// GetLogger returns a singleton logger writing to stderr, so stdout stays free for results.
func GetLogger() *logrus.Logger {
	// Use a singleton so we can update log level once config is loaded
	once.Do(func() {
		logger = logrus.New()

		logger.Out = os.Stderr
		logger.SetLevel(logrus.InfoLevel)

		logger.SetFormatter(&logrus.TextFormatter{
			DisableColors: false,
			FullTimestamp: true,
			PadLevelText:  true,
		})
	})

	return logger
}

// SetLevel parses level and applies it. Unknown levels fall back to info and return the parse error.
func SetLevel(level string) error {
	l := GetLogger()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		l.SetLevel(logrus.InfoLevel)
		return err
	}
	l.SetLevel(parsed)
	return nil
}
