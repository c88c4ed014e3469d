package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrMPTCPはmptcp-goライブラリで定義されている基底エラーです。
	ErrMPTCP = errors.New("mptcp")
	// ErrResourceExhaustedは、サブフロー数が上限に達している場合のエラーです。
	ErrResourceExhausted = fmt.Errorf("subflow limit reached: %w", ErrMPTCP)
	// ErrAddressは、宛先アドレスのファミリーや長さが不正、または未サポートの場合のエラーです。
	ErrAddress = fmt.Errorf("unsupported or invalid address: %w", ErrMPTCP)
	// ErrProtocolViolationは、不正なデータシーケンスマッピングを受信した場合のエラーです。
	ErrProtocolViolation = fmt.Errorf("protocol violation: %w", ErrMPTCP)
	// ErrInconsistentMappingは、消費途中のバイト列に対して食い違うマッピングを受信した場合のエラーです。
	ErrInconsistentMapping = fmt.Errorf("inconsistent mapping: %w", ErrProtocolViolation)
	// ErrNoMappingは、マッピングの付いていないデータを受信した場合のエラーです。
	ErrNoMapping = fmt.Errorf("missing mapping: %w", ErrProtocolViolation)
	// ErrChecksumは、DSSチェックサムが一致しない場合のエラーです。
	ErrChecksum = fmt.Errorf("checksum mismatch: %w", ErrMPTCP)
	// ErrAuthenticationは、認証違反またはFast Closeを受信した場合のエラーです。
	ErrAuthentication = fmt.Errorf("authentication failed: %w", ErrMPTCP)
	// ErrNotConnectedは、接続が確立していない、またはクローズ処理中の場合のエラーです。
	ErrNotConnected = fmt.Errorf("not connected: %w", ErrMPTCP)
	// ErrStateは、セッションの現在の状態では実行できない操作の場合のエラーです。
	ErrState = fmt.Errorf("invalid session state: %w", ErrMPTCP)
	// ErrConnectionResetは、セッションがリセットされた場合のエラーです。
	ErrConnectionReset = fmt.Errorf("connection reset: %w", ErrMPTCP)
	// ErrTimeoutは、全てのサブフローがタイムアウトした場合のエラーです。
	ErrTimeout = fmt.Errorf("timed out: %w", ErrMPTCP)
	// ErrSessionClosedは、クローズ済みのセッションへ読み書きした場合のエラーです。
	ErrSessionClosed = fmt.Errorf("closed session: %w", ErrNotConnected)
	// ErrFastCloseは、ピアからFast Closeを受信してセッションが終了した場合のエラーです。
	ErrFastClose = fmt.Errorf("fast close: %w: %w", ErrAuthentication, ErrConnectionReset)
	// ErrInterfaceDeniedは、インターフェースの利用がポリシーで拒否された場合のエラーです。
	ErrInterfaceDenied = fmt.Errorf("interface denied: %w", ErrNotConnected)
)

// SubflowErrorは、特定のサブフローで発生したエラーです。
type SubflowError struct {
	ID  uint32 // サブフローID
	Err error  // 原因
}

func (e *SubflowError) Error() string {
	return fmt.Sprintf("subflow %d: %v", e.ID, e.Err)
}

func (e *SubflowError) Unwrap() error {
	return e.Err
}

// AsSubflowErrorは、errに含まれるSubflowErrorを取り出します。
func AsSubflowError(err error) (*SubflowError, bool) {
	var res *SubflowError
	ok := As(err, &res)
	return res, ok
}

// Codeはエラーを統計出力用の数値コードに変換したものです。
type Code uint32

const (
	CodeNone Code = iota
	CodeResourceExhausted
	CodeAddress
	CodeProtocolViolation
	CodeChecksum
	CodeAuthentication
	CodeNotConnected
	CodeState
	CodeConnectionReset
	CodeTimeout
	CodeUnknown Code = 0xffff
)

// CodeOfは、errの種類に対応する数値コードを返却します。
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeNone
	case Is(err, ErrResourceExhausted):
		return CodeResourceExhausted
	case Is(err, ErrAddress):
		return CodeAddress
	case Is(err, ErrProtocolViolation):
		return CodeProtocolViolation
	case Is(err, ErrChecksum):
		return CodeChecksum
	case Is(err, ErrAuthentication):
		return CodeAuthentication
	case Is(err, ErrNotConnected):
		return CodeNotConnected
	case Is(err, ErrState):
		return CodeState
	case Is(err, ErrConnectionReset):
		return CodeConnectionReset
	case Is(err, ErrTimeout):
		return CodeTimeout
	}
	return CodeUnknown
}

func New(text string) error {
	return errors.New(text)
}

func Errorf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}
