package c11httpd

// ConnEvent is the capability object user code implements to receive
// connection lifecycle events from the Acceptor, matching
// c11httpd/conn_event.h's conn_event_t. It is the single extension point:
// user code never touches sockets or the readiness handle directly.
//
// Ordering guarantees (spec.md §5): exactly one OnConnected, zero or more
// OnReceived/OnAIOCompleted interleavings, zero or more GetMoreData calls
// during drain, exactly one OnDisconnected — and OnConnected/
// OnDisconnected are always called in matched pairs.
type ConnEvent interface {
	// OnConnected is called once a new connection is established. If the
	// returned flags include EventDisconnect, the connection is closed once
	// sendBuf has drained (immediately if it is empty), and OnDisconnected
	// is then called as for any other disconnect.
	OnConnected(ctx CtxSetter, cfg *Config, session ConnSession, sendBuf *Buf) uint32

	// OnDisconnected is called exactly once for every successful
	// OnConnected.
	OnDisconnected(ctx CtxSetter, cfg *Config, session ConnSession)

	// OnReceived is called when new bytes have arrived in recvBuf.
	OnReceived(ctx CtxSetter, cfg *Config, session ConnSession, recvBuf, sendBuf *Buf) uint32

	// GetMoreData is called to refill sendBuf after a handler signalled
	// EventMoreData and the previous send buffer has fully drained.
	GetMoreData(ctx CtxSetter, cfg *Config, session ConnSession, sendBuf *Buf) uint32

	// OnAIOCompleted is called when one or more AIO records owned by this
	// connection have completed; the handler retrieves them via
	// Conn.PopCompleted, after asserting session to *Conn.
	OnAIOCompleted(ctx CtxSetter, cfg *Config, session ConnSession) uint32
}

// BaseConnEvent supplies no-op implementations of every ConnEvent method
// so handlers can embed it and only override what they need, the same
// convenience pattern conn_event_t's virtual-with-default-body methods
// give C++ subclasses.
type BaseConnEvent struct{}

func (BaseConnEvent) OnConnected(CtxSetter, *Config, ConnSession, *Buf) uint32 { return 0 }
func (BaseConnEvent) OnDisconnected(CtxSetter, *Config, ConnSession)           {}
func (BaseConnEvent) OnReceived(CtxSetter, *Config, ConnSession, *Buf, *Buf) uint32 {
	return 0
}
func (BaseConnEvent) GetMoreData(CtxSetter, *Config, ConnSession, *Buf) uint32 { return 0 }
func (BaseConnEvent) OnAIOCompleted(CtxSetter, *Config, ConnSession) uint32    { return 0 }

var _ ConnEvent = BaseConnEvent{}
