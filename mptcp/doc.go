/*
Package mptcp は、MPTCPセッションとサブフローの状態管理を行います。

セッションは1つのロックで全ての状態を保護します。Connectionからのアップコールはキューに積まれ、
ロックを保持しているゴルーチンがロックを解放する前に処理します。
経路品質アドバイザリの問い合わせとアプリケーションへのイベント通知は、ロックを解放した状態で行います。

サブフローのイベントはEventのビット集合で通知され、定義順にハンドラを実行します。
ハンドラの結果によって、サブフローの削除、保留中のサブフローの接続、フォールバック時の他サブフローの切断を行います。
*/
package mptcp
