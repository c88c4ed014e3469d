package xio

import (
	"io"
	"sync/atomic"
)

// CaptureReaderは、読み込んだバイト数を数えるio.Readerです。
//
// ReadBytesは読み込み中の別のゴルーチンから呼び出せます。
type CaptureReader struct {
	readBytes atomic.Uint64
	io.Reader
}

func NewCaptureReader(rd io.Reader) *CaptureReader {
	return &CaptureReader{
		Reader: rd,
	}
}

func (r *CaptureReader) Read(bs []byte) (int, error) {
	n, err := r.Reader.Read(bs)
	r.readBytes.Add(uint64(n))
	return n, err
}

// ReadBytesは、これまでに読み込んだバイト数を返却します。
func (r *CaptureReader) ReadBytes() uint64 {
	return r.readBytes.Load()
}
