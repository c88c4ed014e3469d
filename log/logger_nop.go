package log

import "context"

// discardは、すべての出力を捨てます。
type discard struct{}

func (discard) Debugf(context.Context, string, ...any) {}
func (discard) Infof(context.Context, string, ...any)  {}
func (discard) Warnf(context.Context, string, ...any)  {}
func (discard) Errorf(context.Context, string, ...any) {}

// NewNopは、何も出力しないロガーを返却します。
//
// Configでロガーが未設定の場合に使用します。
func NewNop() Logger {
	return discard{}
}

// IsNopは、lがNewNopのロガーかどうかを返却します。
func IsNop(l Logger) bool {
	_, ok := l.(discard)
	return ok
}
