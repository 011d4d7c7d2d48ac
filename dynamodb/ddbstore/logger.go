package ddbstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger routes BadgerDB's printf-style logs into slog.
type badgerLogger struct {
	l *slog.Logger
}

func (b *badgerLogger) log(level slog.Level, format string, args ...any) {
	if !b.l.Enabled(context.Background(), level) {
		return
	}
	b.l.Log(context.Background(), level, strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.log(slog.LevelError, format, args...)
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.log(slog.LevelWarn, format, args...)
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.log(slog.LevelInfo, format, args...)
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.log(slog.LevelDebug, format, args...)
}
