package c11httpd

import "errors"

// Sentinel errors. Kept as package-level vars and compared with
// errors.Is, matching the teacher's (gaio's) own minimal stdlib error
// style rather than introducing an error-wrapping library.
var (
	// ErrWatcherClosed is returned by AIO operations submitted after the
	// owning engine has been closed.
	ErrWatcherClosed = errors.New("c11httpd: aio engine closed")

	// ErrUnsupported is the error carried by an AIO record that was
	// cancelled before a worker started it.
	ErrUnsupported = errors.New("c11httpd: unsupported operation")

	// ErrEmptyBuffer is returned by AIO submissions with a zero-length
	// buffer where one is required.
	ErrEmptyBuffer = errors.New("c11httpd: empty buffer")

	// ErrWouldBlock signals that a non-blocking I/O call made no
	// progress. It is never surfaced to user code; it is converted to a
	// "drained" condition internally.
	ErrWouldBlock = errors.New("c11httpd: would block")

	// ErrParseFailed is returned by HTTPRequest.ContinueToParse when the
	// byte stream does not conform to the HTTP/1.1 request grammar this
	// library accepts. The connection must be closed without a response.
	ErrParseFailed = errors.New("c11httpd: malformed HTTP request")

	// ErrBodyTooLarge is returned when a request's Content-Length exceeds
	// the 10 MB limit.
	ErrBodyTooLarge = errors.New("c11httpd: request body too large")

	// ErrNegativeContentLength is returned when Content-Length is present
	// but negative.
	ErrNegativeContentLength = errors.New("c11httpd: negative content-length")

	// ErrProtectedHeader is returned by HTTPResponse.Header when the
	// caller tries to set a header the writer manages itself.
	ErrProtectedHeader = errors.New("c11httpd: header is managed by the response writer")

	// ErrHeadersFrozen is returned when a header is set after the body
	// has already started.
	ErrHeadersFrozen = errors.New("c11httpd: headers already sent")

	// ErrContentTooLarge is returned by Detach when the produced body
	// would overflow the 8-byte Content-Length field (99,999,999 bytes).
	ErrContentTooLarge = errors.New("c11httpd: response body exceeds 99,999,999 bytes")

	// ErrNoRoute names the no-matching-route condition. No function in
	// this package returns it: findRoute reports no match with a nil
	// route, and HTTPProcessor answers such a request with 404 or 405.
	ErrNoRoute = errors.New("c11httpd: no matching route")

	// ErrFreeListFull names the condition of a connection that cannot be
	// recycled because the free list is at its configured capacity. No
	// function in this package returns it: the Acceptor drops such a
	// connection for the garbage collector instead.
	ErrFreeListFull = errors.New("c11httpd: free list at capacity")
)
