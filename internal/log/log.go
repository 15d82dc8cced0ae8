// Package log provides request scoped logrus entries.
package log

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type contextKey struct{}

// Configure sets the format and level of the standard logrus logger.
// Supported formats are "text" (default) and "json".
func Configure(format, level string) error {
	switch strings.ToLower(format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	logrus.SetOutput(os.Stdout)

	if level == "" {
		logrus.SetLevel(logrus.InfoLevel)
		return nil
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}

	logrus.SetLevel(lvl)

	return nil
}

// WithLogger returns a new context that carries l.
func WithLogger(ctx context.Context, l *logrus.Entry) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// L returns the logger associated with ctx or a new entry of the standard
// logger.
func L(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*logrus.Entry); ok && l != nil {
			return l
		}
	}

	return logrus.NewEntry(logrus.StandardLogger())
}
