/*
Package mptcpはMultipath TCPのセッションとサブフローを管理するライブラリです。

アプリケーションから見た1本のバイトストリームを、複数の経路(サブフロー)に分けて送受信します。
ここではセッションを作成してデータを送受信するまでの一連の流れについて説明します。

# Create Registry

セッションはmptcp.Registryで作成します。Registryはトークンの重複を防ぎ、終了したセッションを定期的に破棄します。
サブフローの接続にはmptcp.Dialerを使用します。pathconn.DialerはTCPの上でサブフローを接続します。

	package main

	import (
		"context"
		"log"
		"net/netip"

		mlog "github.com/aptpod/mptcp-go/log"
		"github.com/aptpod/mptcp-go/mptcp"
		"github.com/aptpod/mptcp-go/nic"
		"github.com/aptpod/mptcp-go/pathconn"
		"github.com/aptpod/mptcp-go/policy"
	)

	func main() {
		ifs, err := nic.Discover(nic.DefaultMeteredPrefixes)
		if err != nil {
			log.Fatal(err)
		}
		// インターフェースの変化はManagerを通してセッションへ通知します。
		m := nic.OpenManager(ifs)
		defer m.Close()

		dialer, err := pathconn.NewDialer(pathconn.WithInterfaces(m))
		if err != nil {
			log.Fatal(err)
		}
		r, err := mptcp.NewRegistry(
			mptcp.WithDialer(dialer),
			mptcp.WithLogger(mlog.NewStd()),
		)
		if err != nil {
			log.Fatal(err)
		}
		defer r.Close()
		r.WatchInterfaces(m)

		// サービスタイプはサブフローを追加、削除する方針です。
		s, err := r.NewSession(policy.ServiceTypeHandover)
		if err != nil {
			log.Fatal(err)
		}
		defer s.Close()

		if _, err := s.EstablishFirstPath(context.Background(), netip.MustParseAddrPort("192.0.2.1:443")); err != nil {
			log.Fatal(err)
		}
	}

# Send And Receive

最初のサブフローでMPTCPのネゴシエーションが完了するとセッションはESTABLISHEDになります。
Sendは送信バッファへデータを追加し、スケジューラが選んだサブフローへ送ります。Readはブロックしません。

	if _, err := s.Send([]byte("hello")); err != nil {
		log.Fatal(err)
	}
	buf := make([]byte, 1024)
	n, err := s.Read(buf)

ピアがMPTCPに対応していない場合、セッションは単一経路のTCPへフォールバックします。フォールバックはmptcp.SessionEventFallbackで通知します。

# Configuration

セッションの数値の設定はYAMLファイルから読み込めます。

	max_subflows: 4
	checksum: true
	scheduler: min-rtt
	gc_interval: 1s

	cfg, err := mptcp.LoadConfig("mptcp.yaml")
	r, err := mptcp.NewRegistry(mptcp.WithConfig(cfg), mptcp.WithDialer(dialer))
*/
package mptcp
