/*
Package pathconn は、TCP上でサブフローを運ぶ mptcp.Dialer と mptcp.Connection の実装です。

TCPオプションはアプリケーションから操作できないため、MP_CAPABLE、MP_JOIN、DSSオプションはストリーム上のフレームとして送受信します。

	type(1) | body

	handshake: version(1) flags(1) addr-id(1) reserved(1) key(8) token(4) nonce(4) mac(8) window(4)
	data:      option-length(1) payload-length(2) window(4) option payload
	reset:     flags(1)

dataのoptionはTCPオプション形式のDSSオプションです。フォールバックした経路ではoptionを付けません。
windowはTCPヘッダのウィンドウに相当し、同じフレームのData ACKから受信できるバイト数です。
handshakeのwindowは、最初のData ACKを受け取るまでの受信ウィンドウです。
*/
package pathconn
