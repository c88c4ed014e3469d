package metrics

import "time"

const (
	// メトリクスがまだ利用できない場合のデフォルト値
	DefaultRTT    = 100 * time.Millisecond
	DefaultRTTVar = 50 * time.Millisecond
	DefaultCWND   = 14600 // 10 * MSS (1460 バイト)
)

// Provider は、サブフローのメトリクスを取得するためのインターフェースです。
// 読み取り専用で、ライフサイクル管理メソッドは含まれません。
//
// 実装は並行アクセスに対して安全である必要があります。
type Provider interface {
	// RTT は、平滑化ラウンドトリップタイム (SRTT) を返します。
	// まだ測定されていない場合は、DefaultRTT を返します。
	RTT() time.Duration

	// RTTVar は、RTT変動 (RTTVAR) を返します。
	// まだ測定されていない場合は、DefaultRTTVar を返します。
	RTTVar() time.Duration

	// CongestionWindow は、輻輳ウィンドウサイズをバイト単位で返します。
	CongestionWindow() uint64

	// BytesInFlight は、送信済みだがまだ確認応答されていないバイト数を返します。
	BytesInFlight() uint64

	// RetransmitShift は、再送タイムアウトの連続発生によるバックオフ回数を返します。
	// 再送が発生していない場合は 0 です。
	RetransmitShift() int
}

// LifeCycler は、バックグラウンド処理のライフサイクルを管理するインターフェースです。
type LifeCycler interface {
	// Start は、バックグラウンドでのメトリクス収集を開始します。
	// Start() の複数回呼び出しはエラーを返します。
	Start() error

	// Stop は、バックグラウンド処理を終了し、リソースを解放します。
	// Stop() を呼び出した後もキャッシュされた値を返します。
	// Stop() の複数回呼び出しは安全です。
	Stop()
}

// ManagedProvider は、ライフサイクル管理を含むProviderです。
type ManagedProvider interface {
	Provider
	LifeCycler
}
