// Package metrics provides per-subflow path metrics.
//
// # Provider
//
// Provider exposes the smoothed RTT, RTT variation, congestion window, bytes in flight
// and the current retransmission backoff of a single subflow. The scheduler uses the
// RTT related values to pick a subflow, and the path manager uses RetransmitShift to
// decide whether a handover to a metered interface is required.
//
// # Implementations
//
// TCPInfoProvider (Linux, Darwin):
//   - Samples TCP_INFO (Linux) or TCP_CONNECTION_INFO (Darwin) on a ticker
//   - Stores the latest sample in an embedded StaticProvider
//
// StaticProvider:
//   - Holds values set by the caller
//   - Used for connections that are not backed by a kernel TCP socket
//
// NewNopProvider returns fixed default values.
package metrics
