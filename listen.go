package c11httpd

// Listener is a bound, listening socket plus address metadata, immutable
// after construction. Matches c11httpd/listen.h's listen_t.
type Listener struct {
	connBase
}

func newListener(fd int, ip string, port uint16, ipv6 bool) *Listener {
	return &Listener{connBase: newConnBase(fd, ip, port, true, ipv6)}
}

// Close closes the underlying listening socket fd.
func (l *Listener) Close() error {
	if l.fd < 0 {
		return nil
	}
	fd := l.fd
	l.fd = -1
	return closeFd(fd)
}
