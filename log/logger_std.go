package log

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// stdは、標準パッケージの`log.Logger`へ1行ずつ出力します。
type std struct {
	out *log.Logger
}

const callDepth = 3

func (s *std) Debugf(ctx context.Context, format string, args ...any) {
	s.output(ctx, LevelDebug, format, args)
}

func (s *std) Infof(ctx context.Context, format string, args ...any) {
	s.output(ctx, LevelInfo, format, args)
}

func (s *std) Warnf(ctx context.Context, format string, args ...any) {
	s.output(ctx, LevelWarn, format, args)
}

func (s *std) Errorf(ctx context.Context, format string, args ...any) {
	s.output(ctx, LevelError, format, args)
}

// outputは、コンテキストのセッションIDとサブフローIDを先頭に付けて出力します。
func (s *std) output(ctx context.Context, lv Level, format string, args []any) {
	var b strings.Builder
	b.WriteString(lv.String())
	b.WriteString(": ")
	if id := TrackSessionID(ctx); id != "" {
		fmt.Fprintf(&b, "session:%s\t", id)
	}
	if id := TrackSubflowID(ctx); id != "" {
		fmt.Fprintf(&b, "subflow:%s\t", id)
	}
	fmt.Fprintf(&b, format, args...)
	_ = s.out.Output(callDepth, b.String())
}

// NewStdは、`log` パッケージのデフォルトロガーへ出力するロガーを返却します。
func NewStd() Logger {
	return &std{out: log.Default()}
}

// NewStdWithは、指定した `log.Logger` を使うロガーを返却します。
func NewStdWith(l *log.Logger) Logger {
	return &std{out: l}
}
