package pathconn

import (
	"encoding/binary"
	"io"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/keys"
)

// Versionは、フレーム形式のバージョンです。
const Version = 1

// FrameTypeは、フレームの種別です。
type FrameType uint8

const (
	FrameHandshake FrameType = iota + 1
	FrameData
	FrameReset
)

func (t FrameType) String() string {
	switch t {
	case FrameHandshake:
		return "handshake"
	case FrameData:
		return "data"
	case FrameReset:
		return "reset"
	}
	return "unknown"
}

// HandshakeFlagは、ハンドシェイクで交換するフラグです。
type HandshakeFlag uint8

const (
	// HandshakeMPCapableは、MPTCPで動作することを表します。立っていない応答は通常のTCPとして扱います。
	HandshakeMPCapable HandshakeFlag = 1 << iota
	HandshakeJoin
	HandshakeChecksum
	HandshakeBackup
	// HandshakeAckは、MP_JOINの3番目のメッセージを表します。
	HandshakeAck
	HandshakeCompress
)

func (f HandshakeFlag) Has(v HandshakeFlag) bool {
	return f&v == v
}

// Handshakeは、MP_CAPABLEとMP_JOINの内容です。
//
// MP_CAPABLEではKeyを、MP_JOINではTokenとNonceとMACを使います。
// Windowは、送信側がコネクションレベルで最初に受信できるバイト数です。
type Handshake struct {
	Version uint8
	Flags   HandshakeFlag
	AddrID  uint8
	Key     keys.Key
	Token   keys.Token
	Nonce   uint32
	MAC     uint64
	Window  uint32
}

const (
	handshakeLen   = 32
	dataHeaderLen  = 7
	resetLen       = 1
	resetFastClose = 0x01
	// MaxPayloadは、1フレームで運べるペイロードの最大長です。
	MaxPayload = 1<<16 - 1
)

// Frameは、TCPストリーム上の1フレームです。
type Frame struct {
	Type      FrameType
	Handshake Handshake
	// Optionは、エンコード済みのDSSオプションです。空の場合はオプションなしです。
	Option  []byte
	Payload []byte
	// Windowは、DSSオプションのData ACKから受信できるバイト数です。
	Window uint32
	// FastCloseは、FrameResetがセッション全体の終了を表すかどうかです。
	FastClose bool
}

// AppendFrameは、fをエンコードしてbに追加します。
func AppendFrame(b []byte, f Frame) ([]byte, error) {
	b = append(b, byte(f.Type))
	switch f.Type {
	case FrameHandshake:
		h := f.Handshake
		var body [handshakeLen]byte
		body[0] = h.Version
		body[1] = byte(h.Flags)
		body[2] = h.AddrID
		binary.BigEndian.PutUint64(body[4:12], uint64(h.Key))
		binary.BigEndian.PutUint32(body[12:16], uint32(h.Token))
		binary.BigEndian.PutUint32(body[16:20], h.Nonce)
		binary.BigEndian.PutUint64(body[20:28], h.MAC)
		binary.BigEndian.PutUint32(body[28:32], h.Window)
		return append(b, body[:]...), nil
	case FrameData:
		if len(f.Option) > 0xff {
			return nil, errors.Errorf("option too long: %d", len(f.Option))
		}
		if len(f.Payload) > MaxPayload {
			return nil, errors.Errorf("payload too long: %d", len(f.Payload))
		}
		b = append(b, byte(len(f.Option)))
		b = binary.BigEndian.AppendUint16(b, uint16(len(f.Payload)))
		b = binary.BigEndian.AppendUint32(b, f.Window)
		b = append(b, f.Option...)
		return append(b, f.Payload...), nil
	case FrameReset:
		var flags byte
		if f.FastClose {
			flags |= resetFastClose
		}
		return append(b, flags), nil
	}
	return nil, errors.Errorf("unknown frame type %d", f.Type)
}

// ReadFrameは、rから1フレームを読み込みます。
//
// 不正なフレームの場合はErrProtocolViolationを返却します。
func ReadFrame(r io.Reader) (Frame, error) {
	var typ [1]byte
	if _, err := io.ReadFull(r, typ[:]); err != nil {
		return Frame{}, err
	}
	f := Frame{Type: FrameType(typ[0])}
	switch f.Type {
	case FrameHandshake:
		var body [handshakeLen]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return Frame{}, unexpected(err)
		}
		f.Handshake = Handshake{
			Version: body[0],
			Flags:   HandshakeFlag(body[1]),
			AddrID:  body[2],
			Key:     keys.Key(binary.BigEndian.Uint64(body[4:12])),
			Token:   keys.Token(binary.BigEndian.Uint32(body[12:16])),
			Nonce:   binary.BigEndian.Uint32(body[16:20]),
			MAC:     binary.BigEndian.Uint64(body[20:28]),
			Window:  binary.BigEndian.Uint32(body[28:32]),
		}
		if f.Handshake.Version != Version {
			return Frame{}, errors.Errorf("handshake version %d: %w", f.Handshake.Version, errors.ErrProtocolViolation)
		}
	case FrameData:
		var hdr [dataHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return Frame{}, unexpected(err)
		}
		body := make([]byte, int(hdr[0])+int(binary.BigEndian.Uint16(hdr[1:3])))
		if _, err := io.ReadFull(r, body); err != nil {
			return Frame{}, unexpected(err)
		}
		f.Window = binary.BigEndian.Uint32(hdr[3:7])
		f.Option = body[:hdr[0]:hdr[0]]
		f.Payload = body[hdr[0]:]
	case FrameReset:
		var flags [resetLen]byte
		if _, err := io.ReadFull(r, flags[:]); err != nil {
			return Frame{}, unexpected(err)
		}
		f.FastClose = flags[0]&resetFastClose != 0
	default:
		return Frame{}, errors.Errorf("unknown frame type %d: %w", typ[0], errors.ErrProtocolViolation)
	}
	return f, nil
}

// unexpectedは、フレームの途中で読み込みが終わった場合にEOFを区別します。
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
