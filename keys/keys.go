// Package keysは、MPTCPの鍵からトークンと初期データシーケンス番号(IDSN)を導出し、
// MP_JOINで使用する認証ダイジェストを計算します。
package keys

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"io"

	"github.com/aptpod/mptcp-go/errors"
)

// Keyは64bitのMPTCP鍵です。
type Key uint64

// Tokenは、鍵から導出されるコネクション識別子です。
type Token uint32

// DigestはHMAC-SHA1の出力です。
type Digest [sha1.Size]byte

// 鍵生成時にトークンの重複を避けるための再試行回数です。
const maxKeyAttempts = 16

var randReader io.Reader = rand.Reader

// NewKeyは、ランダムな鍵を生成します。
func NewKey() (Key, error) {
	var b [8]byte
	if _, err := io.ReadFull(randReader, b[:]); err != nil {
		return 0, errors.Errorf("generate key: %w", err)
	}
	return Key(binary.BigEndian.Uint64(b[:])), nil
}

// NewUniqueKeyは、inUseが偽を返すトークンに対応する鍵を生成します。
//
// inUseがnilの場合は重複確認を行いません。
func NewUniqueKey(inUse func(Token) bool) (Key, error) {
	for i := 0; i < maxKeyAttempts; i++ {
		k, err := NewKey()
		if err != nil {
			return 0, err
		}
		if k == 0 {
			continue
		}
		tok, _ := DeriveTokenAndIDSN(k)
		if inUse == nil || !inUse(tok) {
			return k, nil
		}
	}
	return 0, errors.Errorf("no unique token after %d attempts: %w", maxKeyAttempts, errors.ErrResourceExhausted)
}

// DeriveTokenAndIDSNは、鍵のSHA-1ダイジェストから、先頭32bitをトークン、下位64bitをIDSNとして導出します。
func DeriveTokenAndIDSN(k Key) (Token, uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(k))
	sum := sha1.Sum(b[:])
	return Token(binary.BigEndian.Uint32(sum[0:4])), binary.BigEndian.Uint64(sum[12:20])
}

// HMACは、鍵 keyA||keyB、メッセージ randA||randB のHMAC-SHA1を計算します。
func HMAC(keyA, keyB Key, randA, randB uint32) Digest {
	var key [16]byte
	binary.BigEndian.PutUint64(key[0:8], uint64(keyA))
	binary.BigEndian.PutUint64(key[8:16], uint64(keyB))
	var msg [8]byte
	binary.BigEndian.PutUint32(msg[0:4], randA)
	binary.BigEndian.PutUint32(msg[4:8], randB)

	mac := hmac.New(sha1.New, key[:])
	mac.Write(msg[:])
	var d Digest
	copy(d[:], mac.Sum(nil))
	return d
}

// Truncatedは、MP_JOIN SYN/ACKで送る先頭64bitを返却します。
func (d Digest) Truncated() uint64 {
	return binary.BigEndian.Uint64(d[0:8])
}

// VerifyHMACは、受信したダイジェストが期待値と一致するかを定数時間で比較します。
func VerifyHMAC(got []byte, keyA, keyB Key, randA, randB uint32) error {
	want := HMAC(keyA, keyB, randA, randB)
	n := len(got)
	if n == 0 || n > len(want) {
		return errors.Errorf("digest length %d: %w", n, errors.ErrAuthentication)
	}
	if !hmac.Equal(got, want[:n]) {
		return errors.ErrAuthentication
	}
	return nil
}
