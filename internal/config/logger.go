package config

import (
    "os"

    "github.com/sirupsen/logrus"
)

// NewLogger builds the process logger.  Production defaults to JSON,
// everything else to text, and LOG_FORMAT overrides either.  An unknown
// level falls back to info.
func NewLogger(c Config) *logrus.Logger {
    l := logrus.New()
    l.SetOutput(os.Stdout)

    format := c.LogFormat
    if format == "" {
        format = "text"
        if c.Production() {
            format = "json"
        }
    }
    if format == "json" {
        l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
    } else {
        l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
    }

    level, err := logrus.ParseLevel(c.LogLevel)
    if err != nil {
        level = logrus.InfoLevel
    }
    l.SetLevel(level)
    return l
}
