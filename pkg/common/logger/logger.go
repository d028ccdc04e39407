package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var Log = newLogger(os.Stdout, "info")

func Init() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	Log = newLogger(os.Stdout, level)
}

// SetOutput redirects the global logger, used by tests that assert on log lines.
func SetOutput(w io.Writer) {
	Log.SetOutput(w)
}

func newLogger(w io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	l.SetLevel(logLevel)
	return l
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Log.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}
