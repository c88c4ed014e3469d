package log

import (
	"context"
	"strings"

	"github.com/aptpod/mptcp-go/errors"
)

// Levelは、ログの出力レベルです。
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// ParseLevelは、"debug"や"WARN"のような文字列をLevelへ変換します。空文字はLevelInfoです。
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return 0, errors.Errorf("unknown log level %q", s)
}

type filtered struct {
	l   Logger
	min Level
}

// Filterは、min未満のレベルを捨てるロガーを返却します。
func Filter(l Logger, min Level) Logger {
	if min <= LevelDebug {
		return l
	}
	return &filtered{l: l, min: min}
}

func (f *filtered) Debugf(ctx context.Context, format string, args ...any) {
	if f.min <= LevelDebug {
		f.l.Debugf(ctx, format, args...)
	}
}

func (f *filtered) Infof(ctx context.Context, format string, args ...any) {
	if f.min <= LevelInfo {
		f.l.Infof(ctx, format, args...)
	}
}

func (f *filtered) Warnf(ctx context.Context, format string, args ...any) {
	if f.min <= LevelWarn {
		f.l.Warnf(ctx, format, args...)
	}
}

func (f *filtered) Errorf(ctx context.Context, format string, args ...any) {
	f.l.Errorf(ctx, format, args...)
}
