package c11httpd

// ConnEventAdapter builds a ConnEvent out of plain functions, matching
// c11httpd/conn_event_adapter.h's use of std::function in place of a
// hand-written subclass. Any field left nil behaves like
// BaseConnEvent's corresponding no-op.
type ConnEventAdapter struct {
	OnConnectedFunc    func(CtxSetter, *Config, ConnSession, *Buf) uint32
	OnDisconnectedFunc func(CtxSetter, *Config, ConnSession)
	OnReceivedFunc     func(CtxSetter, *Config, ConnSession, *Buf, *Buf) uint32
	GetMoreDataFunc    func(CtxSetter, *Config, ConnSession, *Buf) uint32
	OnAIOCompletedFunc func(CtxSetter, *Config, ConnSession) uint32
}

func (a *ConnEventAdapter) OnConnected(ctx CtxSetter, cfg *Config, s ConnSession, send *Buf) uint32 {
	if a.OnConnectedFunc == nil {
		return 0
	}
	return a.OnConnectedFunc(ctx, cfg, s, send)
}

func (a *ConnEventAdapter) OnDisconnected(ctx CtxSetter, cfg *Config, s ConnSession) {
	if a.OnDisconnectedFunc != nil {
		a.OnDisconnectedFunc(ctx, cfg, s)
	}
}

func (a *ConnEventAdapter) OnReceived(ctx CtxSetter, cfg *Config, s ConnSession, recv, send *Buf) uint32 {
	if a.OnReceivedFunc == nil {
		return 0
	}
	return a.OnReceivedFunc(ctx, cfg, s, recv, send)
}

func (a *ConnEventAdapter) GetMoreData(ctx CtxSetter, cfg *Config, s ConnSession, send *Buf) uint32 {
	if a.GetMoreDataFunc == nil {
		return 0
	}
	return a.GetMoreDataFunc(ctx, cfg, s, send)
}

func (a *ConnEventAdapter) OnAIOCompleted(ctx CtxSetter, cfg *Config, s ConnSession) uint32 {
	if a.OnAIOCompletedFunc == nil {
		return 0
	}
	return a.OnAIOCompletedFunc(ctx, cfg, s)
}

var _ ConnEvent = (*ConnEventAdapter)(nil)
