package mptcp

// Stateは、セッションの状態です。値の大小関係で状態の前後を比較します。
type State uint8

const (
	StateClosed State = iota
	StateEstablished
	StateCloseWait
	StateFinWait1
	StateClosing
	StateLastAck
	StateFinWait2
	StateTimeWait
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateFinWait1:
		return "FIN_WAIT_1"
	case StateClosing:
		return "CLOSING"
	case StateLastAck:
		return "LAST_ACK"
	case StateFinWait2:
		return "FIN_WAIT_2"
	case StateTimeWait:
		return "TIME_WAIT"
	case StateTerminated:
		return "TERMINATED"
	}
	return "UNKNOWN"
}

// sessionFlagは、セッション全体のフラグです。
type sessionFlag uint16

const (
	flagTriggeredCell sessionFlag = 1 << iota
	flagJoinReady
	flagFallback
	flagWifiUsed
	flagCellUsed
	flagFirstParty
	flagAccessGranted
	flagAccessAsked
	flagDSN64
	flagOrphaned
)
