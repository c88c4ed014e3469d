package pathconn

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/aptpod/mptcp-go/errors"
)

// DefaultCompressionLevelは、CompressConfig.Levelが0の場合に使用する圧縮レベルです。
const DefaultCompressionLevel = 6

/*
CompressConfig は、データフレームのペイロード圧縮に関する設定です。

圧縮はハンドシェイクで双方が有効にした場合のみ使用します。DSSのチェックサムは圧縮前のペイロードに対して計算します。
*/
type CompressConfig struct {
	// Enableは圧縮の有効化です。
	Enable bool

	// Level は、 DEFLATE 圧縮の圧縮レベルです。
	// 詳細な設定値については、 compress/zlib パッケージの定数を参照してください。
	Level int
}

func (c CompressConfig) level() int {
	if c.Level == 0 {
		return DefaultCompressionLevel
	}
	return c.Level
}

func (c CompressConfig) validate() error {
	if !c.Enable {
		return nil
	}
	if l := c.level(); l < zlib.HuffmanOnly || l > zlib.BestCompression {
		return errors.Errorf("unknown compress level %d", c.Level)
	}
	return nil
}

func compressPayload(bs []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zwr, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zwr.Write(bs); err != nil {
		return nil, err
	}
	if err := zwr.Close(); err != nil {
		return nil, err
	}
	if buf.Len() > MaxPayload {
		return nil, errors.Errorf("compressed payload too long: %d", buf.Len())
	}
	return buf.Bytes(), nil
}

func decompressPayload(bs []byte) ([]byte, error) {
	zrd, err := zlib.NewReader(bytes.NewReader(bs))
	if err != nil {
		return nil, errors.Errorf("decompress: %v: %w", err, errors.ErrProtocolViolation)
	}
	defer zrd.Close()
	m, err := io.ReadAll(io.LimitReader(zrd, MaxPayload+1))
	if err != nil {
		return nil, errors.Errorf("decompress: %v: %w", err, errors.ErrProtocolViolation)
	}
	if len(m) > MaxPayload {
		return nil, errors.Errorf("decompressed payload too long: %w", errors.ErrProtocolViolation)
	}
	return m, nil
}
