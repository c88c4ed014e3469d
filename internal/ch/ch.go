// Package chは、コンテキストと組み合わせたチャネル操作をまとめます。
package ch

import "context"

// Sendは、vをcへ送信します。ctxが先に終了した場合はfalseを返却します。
func Send[T any](ctx context.Context, c chan<- T, v T) bool {
	select {
	case c <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// Recvは、cから1つ受信します。ctxの終了またはcのクローズではfalseを返却します。
func Recv[T any](ctx context.Context, c <-chan T) (T, bool) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, false
	case v, ok := <-c:
		return v, ok
	}
}

// TrySendは、ブロックせずにvをcへ送信します。送信できなかった場合はfalseを返却します。
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
		return true
	default:
		return false
	}
}
