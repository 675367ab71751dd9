package c11httpd

// connBase is the common state shared by listening sockets and client
// connections: the socket fd and peer address metadata.
//
// Grounded on c11httpd/conn_base.h.
type connBase struct {
	fd        int
	ip        string
	port      uint16
	listening bool
	ipv6      bool
}

func newConnBase(fd int, ip string, port uint16, listening, ipv6 bool) connBase {
	return connBase{fd: fd, ip: ip, port: port, listening: listening, ipv6: ipv6}
}

func (c *connBase) Fd() int {
	return c.fd
}

func (c *connBase) setFd(fd int) {
	c.fd = fd
}

func (c *connBase) IP() string {
	return c.ip
}

func (c *connBase) setIP(ip string) {
	c.ip = ip
}

func (c *connBase) Port() uint16 {
	return c.port
}

func (c *connBase) setPort(port uint16) {
	c.port = port
}

func (c *connBase) Listening() bool {
	return c.listening
}

func (c *connBase) IPv6() bool {
	return c.ipv6
}

func (c *connBase) setIPv6(v bool) {
	c.ipv6 = v
}

// ConnSession is the read-only view of a connection's identity exposed to
// handlers and controllers, matching c11httpd/conn_session.h.
type ConnSession interface {
	IP() string
	Port() uint16
	IPv6() bool
}
