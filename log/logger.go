package log

import (
	"context"
	"strconv"
)

// Loggerは、mptcp-go内で使用するロガーインターフェースです。
//
// ctxにWithTrackSessionIDやWithTrackSubflowIDで設定したIDは、実装がログへ付与します。
type Logger interface {
	Infof(ctx context.Context, format string, args ...any)
	Warnf(ctx context.Context, format string, args ...any)
	Errorf(ctx context.Context, format string, args ...any)
	Debugf(ctx context.Context, format string, args ...any)
}

type trackKey int

const (
	sessionKey trackKey = iota
	subflowKey
)

// WithTrackSessionIDは、セッションIDをコンテキストにセットします。
//
// ここで設定されたセッションIDは常にログ出力します。
func WithTrackSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

// TrackSessionIDは、コンテキストにセットされたセッションIDを取得します。
func TrackSessionID(ctx context.Context) string {
	return trackValue(ctx, sessionKey)
}

// WithTrackSubflowIDは、サブフローIDをコンテキストにセットします。
func WithTrackSubflowID(ctx context.Context, id uint32) context.Context {
	return context.WithValue(ctx, subflowKey, strconv.FormatUint(uint64(id), 10))
}

// TrackSubflowIDは、コンテキストにセットされたサブフローIDを取得します。
func TrackSubflowID(ctx context.Context) string {
	return trackValue(ctx, subflowKey)
}

func trackValue(ctx context.Context, k trackKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}
