// Package scheduler は、データを次に送信するサブフローを選択する機能を提供します。
//
// # Selector インターフェース
//
//	type Selector interface {
//	    Select(paths []*PathInfo, queueSize uint64) (uint32, bool)
//	}
//
// 提供されている実装:
//   - ActiveSelector: アクティブなサブフローを使い続け、バックアップは優先サブフローがない場合のみ使用（Handover系）
//   - RoundRobinSelector: ラウンドロビン方式で順番に選択
//   - ByteBalancedSelector: 送信バイト数に基づいて選択（トラフィック均等化）
//   - MinRTTSelector: ベースRTTが最小のサブフローを選択（レイテンシ最適化）
//   - ECFSelector: ECF (Earliest Completion First) アルゴリズムで選択（スループット最適化）
//
// # ECF (Earliest Completion First) アルゴリズム
//
// 2つの不等式:
//
//   - 第1不等式: 最速サブフローを待つ価値があるか評価
//     β * srtt_f * (x_f + cwnd_f) < β * cwnd_f * (srtt_s + δ) + waiting * cwnd_f * (srtt_s + δ)
//
//   - 第2不等式: 待機が本当に有益か判定
//     srtt_s * x_s >= cwnd_s * (2 * srtt_f + δ)
//
// ここで:
//   - srtt_f: 最速サブフローの Smoothed RTT
//   - srtt_s: 送信可能な最速サブフローの Smoothed RTT
//   - cwnd_f, cwnd_s: 各サブフローの輻輳ウィンドウ
//   - x_f, x_s: キューサイズと輻輳ウィンドウの最大値
//   - δ: RTT変動の最大値 (max(rttvar_f, rttvar_s))
//   - β: 調整係数 (デフォルト: 4)
//
// # サービスタイプとの対応
//
// ForServiceType は、Handover、PureHandover、TargetBased に ActiveSelector、
// Interactive に MinRTTSelector、Aggregate に ByteBalancedSelector を割り当てます。
package scheduler
