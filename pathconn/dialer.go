package pathconn

import (
	"context"
	"time"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/internal/retry"
	"github.com/aptpod/mptcp-go/log"
	"github.com/aptpod/mptcp-go/mptcp"
	"github.com/aptpod/mptcp-go/nic"
)

/*
Config のデフォルト値は以下のように定義されています。
*/
const (
	DefaultDialTimeout      = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultMetricsInterval  = 100 * time.Millisecond
	DefaultMaxQueuedBytes   = 4 << 20
	DefaultMaxDialAttempt   = 3
)

// Configは、Dialerの設定です。
type Config struct {
	Logger log.Logger
	// Interfacesは、インターフェースIDから送信元アドレスを決めるために使用します。nilの場合は経路に任せます。
	Interfaces *nic.Manager
	// dialRetryは、TCP接続のリトライ方法です。WithDialRetryで設定します。
	dialRetry retry.Retry
	// DialTimeoutは、TCP接続1回あたりのタイムアウトです。
	DialTimeout time.Duration
	// HandshakeTimeoutは、ハンドシェイク全体のタイムアウトです。
	HandshakeTimeout time.Duration
	// MetricsIntervalは、TCP_INFOを取得する間隔です。
	MetricsInterval time.Duration
	// MaxQueuedBytesは、送信待ちにできるフレームの合計バイト数です。超えた場合Sendはエラーを返却します。
	MaxQueuedBytes int
	Compress       CompressConfig
}

// DefaultConfigは、デフォルトの設定です。
var DefaultConfig = Config{
	Logger:           log.NewNop(),
	dialRetry:        retry.Retry{MaxAttempt: DefaultMaxDialAttempt},
	DialTimeout:      DefaultDialTimeout,
	HandshakeTimeout: DefaultHandshakeTimeout,
	MetricsInterval:  DefaultMetricsInterval,
	MaxQueuedBytes:   DefaultMaxQueuedBytes,
}

// Optionは、Dialerのオプションです。
type Option func(*Config)

// WithLoggerは、ロガーを設定します。
func WithLogger(l log.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithInterfacesは、インターフェースの情報源を設定します。
func WithInterfaces(m *nic.Manager) Option {
	return func(c *Config) {
		c.Interfaces = m
	}
}

// WithDialRetryは、TCP接続の最大リトライ回数と基準リトライ間隔を設定します。
//
// maxAttemptが0の場合はキャンセルされるまでリトライします。
func WithDialRetry(maxAttempt int, base, max time.Duration) Option {
	return func(c *Config) {
		c.dialRetry = retry.Retry{MaxAttempt: maxAttempt, BaseInterval: base, MaxBaseInterval: max}
	}
}

func WithTimeouts(dial, handshake time.Duration) Option {
	return func(c *Config) {
		c.DialTimeout = dial
		c.HandshakeTimeout = handshake
	}
}

func WithMetricsInterval(d time.Duration) Option {
	return func(c *Config) {
		c.MetricsInterval = d
	}
}

func WithMaxQueuedBytes(n int) Option {
	return func(c *Config) {
		c.MaxQueuedBytes = n
	}
}

// WithCompressは、ペイロード圧縮を設定します。
func WithCompress(cc CompressConfig) Option {
	return func(c *Config) {
		c.Compress = cc
	}
}

func (c Config) validate() error {
	switch {
	case c.DialTimeout <= 0, c.HandshakeTimeout <= 0:
		return errors.Errorf("timeout must be positive")
	case c.MetricsInterval <= 0:
		return errors.Errorf("metrics interval must be positive")
	case c.MaxQueuedBytes <= MaxPayload:
		return errors.Errorf("max queued bytes %d too small", c.MaxQueuedBytes)
	}
	return c.Compress.validate()
}

// Dialerは、TCP上でサブフローを接続するmptcp.Dialerです。
type Dialer struct {
	cfg Config
}

var _ mptcp.Dialer = (*Dialer)(nil)

// NewDialerは、Dialerを生成します。
func NewDialer(opts ...Option) (*Dialer, error) {
	cfg := DefaultConfig
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Errorf("invalid config: %w", err)
	}
	return &Dialer{cfg: cfg}, nil
}

// Dialは、TCP接続とハンドシェイクをバックグラウンドで開始します。
//
// 接続とハンドシェイクが完了するとEventConnectedとEventMPStatusを、失敗した場合はEventDisconnectedを通知します。
func (d *Dialer) Dial(_ context.Context, req mptcp.DialRequest, n mptcp.Notifier) (mptcp.Connection, error) {
	if !req.Destination.IsValid() || req.Destination.Port() == 0 {
		return nil, errors.Errorf("destination %v: %w", req.Destination, errors.ErrAddress)
	}
	if !req.Initial && req.RemoteKey == 0 {
		return nil, errors.Errorf("join without remote key: %w", errors.ErrState)
	}
	dc, err := d.dialContext(req)
	if err != nil {
		return nil, err
	}
	c := newConn(d.cfg, req, n)
	c.start(dc)
	return c, nil
}

func (d *Dialer) dialContext(req mptcp.DialRequest) (*nic.DialContext, error) {
	cfg := nic.DialContextConfig{Family: nic.FamilyOf(req.Destination.Addr())}
	switch {
	case req.Source.IsValid():
		cfg.Source = req.Source.Addr()
	case req.Interface != nic.NoInterface && d.cfg.Interfaces != nil:
		iface, ok := d.cfg.Interfaces.Lookup(req.Interface)
		if !ok {
			return nil, errors.Errorf("interface %d: %w", req.Interface, errors.ErrAddress)
		}
		cfg.Interface = iface.Name
	}
	dc, err := nic.NewDialContext(cfg)
	if err != nil {
		return nil, errors.Errorf("source address: %v: %w", err, errors.ErrAddress)
	}
	return dc, nil
}
