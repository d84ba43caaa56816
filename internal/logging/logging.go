// Package logging configures the process-wide logrus logger.
package logging

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm/logger"
)

// Setup configures the standard logrus logger. format is "json" or "text".
// Unknown levels fall back to info.
func Setup(level, format string) {
	logrus.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	// Route stray stdlib log output (net/http, libraries) through logrus.
	log.SetFlags(0)
	log.SetOutput(logrus.StandardLogger().Writer())
}

// GormLogger returns a gorm logger writing through logrus.
// SQL statements are only logged when logrus runs at debug level.
func GormLogger() logger.Interface {
	level := logger.Warn
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		level = logger.Info
	}
	return logger.New(
		log.New(logrus.StandardLogger().WriterLevel(logrus.DebugLevel), "", 0),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
