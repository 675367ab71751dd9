package c11httpd

// CtxSetter lets a handler or controller stash and retrieve an arbitrary
// per-connection value across calls — a supplemented feature from
// original_source/c11httpd's ctx_setter_t/ctx_t, given a first-class type
// here instead of spec.md §3's bare "opaque value owned by the
// connection". It is a thin adapter over Conn.Context/SetContext so
// handlers never need direct access to the Conn itself.
type CtxSetter struct {
	conn *Conn
}

func newCtxSetter(conn *Conn) CtxSetter {
	return CtxSetter{conn: conn}
}

// Get returns the stored value, or nil if none has been set.
func (s CtxSetter) Get() interface{} {
	return s.conn.Context()
}

// Set stores ctx on the owning connection.
func (s CtxSetter) Set(ctx interface{}) {
	s.conn.SetContext(ctx)
}
