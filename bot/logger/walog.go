package logger

import (
	"context"
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// WALogger adapts slog.Logger to whatsmeow's waLog.Logger.
type WALogger struct {
	logger   *slog.Logger
	minLevel slog.Level
}

// NewWALogger creates a whatsmeow logger; records below minLevel are dropped.
func NewWALogger(base *slog.Logger, minLevel slog.Level) *WALogger {
	return &WALogger{logger: base, minLevel: minLevel}
}

func (l *WALogger) Debugf(msg string, args ...interface{}) { l.log(slog.LevelDebug, msg, args) }
func (l *WALogger) Infof(msg string, args ...interface{})  { l.log(slog.LevelInfo, msg, args) }
func (l *WALogger) Warnf(msg string, args ...interface{})  { l.log(slog.LevelWarn, msg, args) }
func (l *WALogger) Errorf(msg string, args ...interface{}) { l.log(slog.LevelError, msg, args) }

// Sub returns a logger tagged with a whatsmeow module name.
func (l *WALogger) Sub(module string) waLog.Logger {
	return &WALogger{logger: l.logger.With("module", module), minLevel: l.minLevel}
}

func (l *WALogger) log(level slog.Level, msg string, args []interface{}) {
	if level < l.minLevel {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.logger.Log(context.Background(), level, msg)
}
