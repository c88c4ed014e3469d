package mptcp

import (
	"os"
	"time"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/log"
	"github.com/aptpod/mptcp-go/policy"
	"github.com/aptpod/mptcp-go/scheduler"
	"gopkg.in/yaml.v3"
)

const (
	defaultMaxSubflows       = 8
	defaultSendBufferSize    = 256 * 1024
	defaultReceiveBufferSize = 256 * 1024
	defaultMaxSegmentSize    = 1400
	defaultGCInterval        = time.Second
	defaultGCTicks           = 30
	defaultFastGCTicks       = 10
)

// DefaultConfigは、デフォルトの設定です。
var DefaultConfig = Config{
	MaxSubflows:              defaultMaxSubflows,
	FailThreshold:            policy.DefaultThresholds.FailThreshold,
	CellularRetransmitFactor: policy.DefaultThresholds.RetransmitFactor,
	AlternatePort:            0,
	Checksum:                 false,
	SendBufferSize:           defaultSendBufferSize,
	ReceiveBufferSize:        defaultReceiveBufferSize,
	MaxSegmentSize:           defaultMaxSegmentSize,
	GCInterval:               defaultGCInterval,
	GCTicks:                  defaultGCTicks,
	FastGCTicks:              defaultFastGCTicks,
	Scheduler:                scheduler.KindAuto,
	Logger:                   log.NewNop(),
	Advisor:                  nopAdvisor{},
	EventHandler:             nopSessionEventHandler{},
}

// Configは、セッションの設定です。
//
// YAMLで読み込めるのは数値と真偽値の項目のみです。
// Dialerなどの実行時の依存はオプションで設定します。
type Config struct {
	// セッションあたりのサブフロー数の上限
	MaxSubflows int `yaml:"max_subflows"`

	// Handover系で従量課金の経路を使うと判断する再送回数は FailThreshold × CellularRetransmitFactor です。
	FailThreshold            int `yaml:"fail_threshold"`
	CellularRetransmitFactor int `yaml:"cellular_retransmit_factor"`

	// MPTCPのネゴシエーションに失敗した場合に1度だけ試す宛先ポート
	//
	// 0の場合は試しません。
	AlternatePort uint16 `yaml:"alternate_port"`

	// DSSチェックサムを使うかどうか
	Checksum bool `yaml:"checksum"`

	SendBufferSize    int `yaml:"send_buffer_size"`
	ReceiveBufferSize int `yaml:"receive_buffer_size"`

	// 1つのマッピングに載せる最大のバイト数
	MaxSegmentSize int `yaml:"max_segment_size"`

	// GCの実行間隔と、クローズ中のセッションを強制切断するまでの回数
	GCInterval  time.Duration `yaml:"gc_interval"`
	GCTicks     int           `yaml:"gc_ticks"`
	FastGCTicks int           `yaml:"fast_gc_ticks"`

	// 送信するサブフローの選択方法
	//
	// 空の場合はサービスタイプから決定します。
	Scheduler scheduler.Kind `yaml:"scheduler"`

	// 開発者モードの場合、Interactiveでも再送回数によらず従量課金の経路を使います。
	DeveloperMode bool `yaml:"developer_mode"`

	// ファーストパーティのアプリケーションは従量課金の経路の利用許可が不要です。
	FirstParty bool `yaml:"first_party"`

	Logger       log.Logger          `yaml:"-"`
	Dialer       Dialer              `yaml:"-"`
	Interfaces   InterfaceFacility   `yaml:"-"`
	Advisor      Advisor             `yaml:"-"`
	EventHandler SessionEventHandler `yaml:"-"`
}

// LoadConfigは、YAMLファイルから設定を読み込みます。ファイルにない項目はDefaultConfigの値になります。
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Errorf("read config: %w", err)
	}
	return ParseConfig(b)
}

// ParseConfigは、YAMLから設定を読み込みます。
func ParseConfig(b []byte) (Config, error) {
	c := DefaultConfig
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, errors.Errorf("parse config: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch {
	case c.MaxSubflows <= 0:
		return errors.Errorf("max_subflows must be positive: %d", c.MaxSubflows)
	case c.FailThreshold <= 0 || c.CellularRetransmitFactor <= 0:
		return errors.Errorf("fail_threshold and cellular_retransmit_factor must be positive")
	case c.SendBufferSize <= 0 || c.ReceiveBufferSize <= 0:
		return errors.Errorf("buffer sizes must be positive")
	case c.MaxSegmentSize <= 0:
		return errors.Errorf("max_segment_size must be positive: %d", c.MaxSegmentSize)
	case c.GCInterval <= 0 || c.GCTicks <= 0 || c.FastGCTicks <= 0:
		return errors.Errorf("gc settings must be positive")
	}
	return nil
}

func (c *Config) thresholds() policy.Thresholds {
	return policy.Thresholds{
		FailThreshold:    c.FailThreshold,
		RetransmitFactor: c.CellularRetransmitFactor,
	}
}

// Optionは、セッションのオプションです。
type Option func(*Config)

// WithConfigは、設定全体を置き換えます。他のオプションより前に指定してください。
func WithConfig(c Config) Option {
	return func(o *Config) {
		*o = c
	}
}

// WithMaxSubflowsは、サブフロー数の上限を設定します。
func WithMaxSubflows(n int) Option {
	return func(o *Config) {
		o.MaxSubflows = n
	}
}

// WithThresholdsは、Handover系の再送回数の閾値を設定します。
func WithThresholds(failThreshold, cellularRetransmitFactor int) Option {
	return func(o *Config) {
		o.FailThreshold = failThreshold
		o.CellularRetransmitFactor = cellularRetransmitFactor
	}
}

// WithAlternatePortは、MPTCPのネゴシエーションに失敗した場合に試すポートを設定します。
func WithAlternatePort(port uint16) Option {
	return func(o *Config) {
		o.AlternatePort = port
	}
}

// WithChecksumは、DSSチェックサムの有無を設定します。
func WithChecksum(enabled bool) Option {
	return func(o *Config) {
		o.Checksum = enabled
	}
}

// WithBufferSizeは、送信バッファと受信バッファの大きさを設定します。
func WithBufferSize(send, receive int) Option {
	return func(o *Config) {
		o.SendBufferSize = send
		o.ReceiveBufferSize = receive
	}
}

// WithMaxSegmentSizeは、1つのマッピングに載せる最大のバイト数を設定します。
func WithMaxSegmentSize(n int) Option {
	return func(o *Config) {
		o.MaxSegmentSize = n
	}
}

// WithGCは、GCの実行間隔と強制切断までの回数を設定します。
func WithGC(interval time.Duration, ticks int) Option {
	return func(o *Config) {
		o.GCInterval = interval
		o.GCTicks = ticks
	}
}

// WithSchedulerは、送信するサブフローの選択方法を設定します。
func WithScheduler(k scheduler.Kind) Option {
	return func(o *Config) {
		o.Scheduler = k
	}
}

// WithDeveloperModeは、開発者モードを設定します。
func WithDeveloperMode(enabled bool) Option {
	return func(o *Config) {
		o.DeveloperMode = enabled
	}
}

// WithFirstPartyは、ファーストパーティのアプリケーションであることを設定します。
func WithFirstParty(enabled bool) Option {
	return func(o *Config) {
		o.FirstParty = enabled
	}
}

// WithLoggerは、ロガーを設定します。
func WithLogger(l log.Logger) Option {
	return func(o *Config) {
		o.Logger = l
	}
}

// WithDialerは、サブフローを接続するDialerを設定します。
func WithDialer(d Dialer) Option {
	return func(o *Config) {
		o.Dialer = d
	}
}

// WithInterfacesは、インターフェース機能を設定します。
func WithInterfaces(f InterfaceFacility) Option {
	return func(o *Config) {
		o.Interfaces = f
	}
}

// WithAdvisorは、経路品質のアドバイザを設定します。
func WithAdvisor(a Advisor) Option {
	return func(o *Config) {
		o.Advisor = a
	}
}

// WithEventHandlerは、セッションイベントのハンドラを設定します。
func WithEventHandler(h SessionEventHandler) Option {
	return func(o *Config) {
		o.EventHandler = h
	}
}
