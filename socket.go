package c11httpd

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/sys/unix"
)

// bindIPv4 creates a non-blocking, close-on-exec IPv4 TCP listening
// socket bound to ip:port, matching acceptor_t::bind_ipv4 /
// socket.h/.cpp's non-blocking + SO_REUSEADDR + listen(backlog) policy.
func bindIPv4(ip string, port uint16, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("c11httpd: socket(AF_INET): %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("c11httpd: setsockopt(SO_REUSEADDR): %w", err)
	}

	addr := unix.SockaddrInet4{Port: int(port)}
	if ip != "" {
		parsed, perr := parseIPv4(ip)
		if perr != nil {
			unix.Close(fd)
			return -1, perr
		}
		addr.Addr = parsed
	}

	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("c11httpd: bind(%s:%d): %w", ip, port, err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("c11httpd: listen: %w", err)
	}

	return fd, nil
}

// bindIPv6 creates a non-blocking, close-on-exec, v6-only IPv6 TCP
// listening socket bound to ip:port, matching acceptor_t::bind_ipv6.
// v6-only avoids port conflicts with a parallel v4 binding on the same
// port (spec.md §4.3).
func bindIPv6(ip string, port uint16, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("c11httpd: socket(AF_INET6): %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("c11httpd: setsockopt(SO_REUSEADDR): %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("c11httpd: setsockopt(IPV6_V6ONLY): %w", err)
	}

	addr := unix.SockaddrInet6{Port: int(port)}
	if ip != "" && ip != "::" {
		parsed, perr := parseIPv6(ip)
		if perr != nil {
			unix.Close(fd)
			return -1, perr
		}
		addr.Addr = parsed
	}

	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("c11httpd: bind([%s]:%d): %w", ip, port, err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("c11httpd: listen: %w", err)
	}

	return fd, nil
}

// bindAny implements acceptor_t::bind(ip, port)'s address-family policy:
// empty IP binds both v4 0.0.0.0 and v6 :: on the same port (tolerating
// v6 failure after v4 succeeds); an IP containing ':' is v6-only;
// anything else is v4-only.
func bindAny(ip string, port uint16, backlog int) ([]int, error) {
	if ip == "" {
		v4fd, err := bindIPv4("", port, backlog)
		if err != nil {
			return nil, err
		}
		v6fd, err := bindIPv6("", port, backlog)
		if err != nil {
			// Keep the v4 binding; v6 failure alone is tolerated.
			return []int{v4fd}, nil
		}
		return []int{v4fd, v6fd}, nil
	}

	if strings.Contains(ip, ":") {
		fd, err := bindIPv6(ip, port, backlog)
		if err != nil {
			return nil, err
		}
		return []int{fd}, nil
	}

	fd, err := bindIPv4(ip, port, backlog)
	if err != nil {
		return nil, err
	}
	return []int{fd}, nil
}

// closeFd closes fd, tolerating a prior close (EBADF), matching
// conn_base_t::close()'s double-close safety.
func closeFd(fd int) error {
	err := unix.Close(fd)
	if err == unix.EBADF {
		return nil
	}
	return err
}

func parseIPv4(ip string) (out [4]byte, err error) {
	parsed := net.ParseIP(ip)
	v4 := parsed.To4()
	if v4 == nil {
		return out, fmt.Errorf("c11httpd: invalid IPv4 address %q", ip)
	}
	copy(out[:], v4)
	return out, nil
}

func parseIPv6(ip string) (out [16]byte, err error) {
	parsed := net.ParseIP(ip)
	v6 := parsed.To16()
	if v6 == nil {
		return out, fmt.Errorf("c11httpd: invalid IPv6 address %q", ip)
	}
	copy(out[:], v6)
	return out, nil
}
