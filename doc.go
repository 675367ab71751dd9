// Package c11httpd is an embeddable HTTP/1.1 server library.
//
// It exposes two surfaces: a generic TCP acceptor that multiplexes many
// client connections on a single epoll readiness loop and optionally
// forks a pool of worker processes sharing the listening sockets, and an
// HTTP/1.1 request/response engine layered on top of it that parses
// requests incrementally, dispatches matched routes to user-supplied
// controllers, and streams a response whose status code and
// Content-Length are patched in place after the body has been produced.
package c11httpd
