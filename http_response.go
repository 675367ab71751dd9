package c11httpd

import (
	"fmt"
	"time"
)

// maxContentLengthDigits bounds the in-place Content-Length patch field
// to the 8 ASCII digits spec.md §4 reserves for it; a larger body would
// overflow the reserved field, so it is rejected up front rather than
// silently corrupting the wire format (spec.md's resolved Open Question
// on Content-Length overflow, mirrored from the request-side cap in
// http_request.go).
const maxContentLengthDigits = 8

// HTTPResponse is an HTTP/1.1 response writer bound to a Conn's SendBuf,
// grounded directly on c11httpd/http_response.h/.cpp: the same three
// fixed patch positions (status code, Content-Length's 8-char field,
// content start), and the same in-place Code() patch-up trick that
// rewrites a short, fixed-width "<code> OK"/"<code> ER" span instead of
// re-serializing the whole status line when a handler changes its mind
// about the status code after already having written headers.
type HTTPResponse struct {
	sendBuf *Buf
	cfg     *Config

	code int

	codePos       int // offset of the 3-digit code within the status line
	headerPos     int // offset where header lines may start
	contentLenPos int // offset of the 8-char Content-Length field
	contentPos    int // offset where body content begins
	attachPos     int // sendBuf.Size() at Attach() time, for ABANDON truncation

	keepAlive      bool
	contentTypeSet bool
}

func newHTTPResponse() *HTTPResponse {
	r := &HTTPResponse{}
	r.clear()
	return r
}

func (r *HTTPResponse) clear() {
	r.sendBuf = nil
	r.cfg = nil
	r.code = StatusOK
	r.codePos = 0
	r.headerPos = 0
	r.contentLenPos = 0
	r.contentPos = 0
	r.attachPos = 0
	r.keepAlive = true
	r.contentTypeSet = false
}

// Attach binds the writer to a connection's send buffer for one
// response, matching http_response_t::attach().
func (r *HTTPResponse) Attach(sendBuf *Buf, cfg *Config, keepAlive bool) {
	r.clear()
	r.sendBuf = sendBuf
	r.cfg = cfg
	r.keepAlive = keepAlive
	r.attachPos = sendBuf.Size()
}

// Detach finalizes the response and clears the writer so it can be reused
// for the next response on a keep-alive connection, matching
// http_response_t::detach(). When abandon is true (spec.md §4.8/§4.9's
// ABANDON result), whatever this writer produced since Attach is discarded
// by truncating sendBuf back to its pre-Attach size instead of being
// finalized — the connection is about to be closed without transmitting
// it. Otherwise it writes the status line and headers if a handler never
// wrote any body, and patches in the final Content-Length.
func (r *HTTPResponse) Detach(abandon bool) error {
	if abandon {
		r.sendBuf.SetSize(r.attachPos)
		r.clear()
		return nil
	}
	if err := r.completeContent(); err != nil {
		// The response can't be finalized correctly (e.g. the body
		// overflowed the reserved Content-Length digits); nothing
		// partially written is safe to transmit, so discard it exactly
		// as an ABANDON would and let the caller close the connection.
		r.sendBuf.SetSize(r.attachPos)
		r.clear()
		return err
	}
	r.clear()
	return nil
}

// Code sets (or, once headers are already written, in-place patches) the
// response status code.
func (r *HTTPResponse) Code(code int) *HTTPResponse {
	r.writeCode(code)
	return r
}

// reasonAbbrev returns the fixed 2-character abbreviation the in-place
// patch relies on: the status line always reads "<code> OK\r\n" or
// "<code> ER\r\n", never the full reason phrase, so later changing the
// code is an O(1) rewrite of a constant-width span rather than a
// buffer resize. StatusText still provides the real reason phrase for
// callers that want to log or inspect it.
func reasonAbbrev(code int) string {
	if code >= 400 && code <= 599 {
		return "ER"
	}
	return "OK"
}

func (r *HTTPResponse) writeCode(code int) {
	if r.headerPos == 0 {
		r.sendBuf.AppendString("HTTP/1.1 ")
		r.codePos = r.sendBuf.Size()
		r.sendBuf.AppendString(fmt.Sprintf("%03d %s\r\n", code, reasonAbbrev(code)))
		r.headerPos = r.sendBuf.Size()
		r.code = code
		return
	}

	if r.code == code {
		return
	}

	patch := []byte(fmt.Sprintf("%03d %s", code, reasonAbbrev(code)))
	copy(r.sendBuf.Front()[r.codePos:r.codePos+len(patch)], patch)
	r.code = code
}

// Connection, Content-Length, Date, and Server are reserved: completeHeader
// always emits them itself, so a handler-set copy would duplicate the
// field on the wire.
func isProtectedHeader(name string) bool {
	return cmpiEqual(name, HeaderConnection) ||
		cmpiEqual(name, HeaderContentLength) ||
		cmpiEqual(name, HeaderDate) ||
		cmpiEqual(name, HeaderServer)
}

// Header writes a response header field. Connection, Content-Length,
// Date, and Server are reserved — HTTPResponse computes and writes those
// itself — and headers can no longer be added once body content has
// been written, matching http_response_t::operator<<(http_header_t)'s
// two asserts.
func (r *HTTPResponse) Header(name, value string) error {
	if isProtectedHeader(name) {
		return ErrProtectedHeader
	}
	if r.contentPos != 0 {
		return ErrHeadersFrozen
	}

	if r.headerPos == 0 {
		r.writeCode(r.code)
	}

	if cmpiEqual(name, HeaderContentType) {
		r.contentTypeSet = true
	}

	r.sendBuf.AppendString(name)
	r.sendBuf.AppendString(": ")
	r.sendBuf.AppendString(value)
	r.sendBuf.AppendString("\r\n")
	return nil
}

// httpDateFormat is RFC 7231 §7.1.1.1's IMF-fixdate, e.g.
// "Sun, 06 Nov 1994 08:49:37 GMT".
const httpDateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// defaultContentType is written when a handler never set its own
// Content-Type and no produces negotiation picked one, matching
// c11httpd's http_response_t default of "text/html".
const defaultContentType = "text/html"

// completeHeader writes the automatic trailer block (Server, optional
// Date, Connection, default Content-Type, and the reserved
// Content-Length placeholder) exactly once, matching
// http_response_t::complete_header_i(). now is injected so tests can pin
// a deterministic Date header.
func (r *HTTPResponse) completeHeader(now time.Time) {
	r.sendBuf.AppendString("Server: c11httpd\r\n")

	if !r.contentTypeSet {
		r.sendBuf.AppendString("Content-Type: ")
		r.sendBuf.AppendString(defaultContentType)
		r.sendBuf.AppendString("\r\n")
	}

	if r.cfg == nil || r.cfg.Enabled(ConfigResponseDate) {
		r.sendBuf.AppendString("Date: ")
		r.sendBuf.AppendString(now.UTC().Format(httpDateFormat))
		r.sendBuf.AppendString("\r\n")
	}

	if r.cfg == nil || r.cfg.Enabled(ConfigKeepAlive) {
		if r.keepAlive {
			r.sendBuf.AppendString("Connection: keep-alive\r\n")
		} else {
			r.sendBuf.AppendString("Connection: close\r\n")
		}
	}

	r.sendBuf.AppendString("Content-Length:")
	r.contentLenPos = r.sendBuf.Size()
	r.sendBuf.AppendString("       0\r\n")
	r.sendBuf.AppendString("\r\n")
	r.contentPos = r.sendBuf.Size()
}

// Write appends body bytes, lazily finalizing the status line and header
// block on the first call, matching http_response_t::write(). Write
// never returns a short write; the error return exists purely to satisfy
// io.Writer.
func (r *HTTPResponse) Write(p []byte) (int, error) {
	if r.headerPos == 0 {
		r.writeCode(r.code)
	}
	if r.contentPos == 0 {
		r.completeHeader(requestTimeNow())
	}

	r.sendBuf.AppendBytes(p)
	return len(p), nil
}

// WriteString is a convenience wrapper around Write for string content.
func (r *HTTPResponse) WriteString(s string) (int, error) {
	return r.Write([]byte(s))
}

// completeContent finalizes the status line/header block if a handler
// never wrote anything (an empty 200 OK), then patches the real content
// length into its reserved 8-byte field, matching
// http_response_t::complete_content_i().
func (r *HTTPResponse) completeContent() error {
	if r.sendBuf == nil {
		return nil
	}
	if r.headerPos == 0 {
		r.writeCode(r.code)
	}
	if r.contentPos == 0 {
		r.completeHeader(requestTimeNow())
	}

	contentLen := r.sendBuf.Size() - r.contentPos
	if contentLen <= 0 {
		return nil
	}

	digits := fmt.Sprintf("%d", contentLen)
	if len(digits) > maxContentLengthDigits {
		return ErrContentTooLarge
	}

	dst := r.sendBuf.Front()[r.contentLenPos+maxContentLengthDigits-len(digits) : r.contentLenPos+maxContentLengthDigits]
	copy(dst, digits)
	return nil
}

// requestTimeNow isolates the one wall-clock read completeHeader/
// completeContent need, so tests can substitute a fixed clock by
// swapping this package variable instead of every call site taking a
// time.Time parameter.
var requestTimeNow = time.Now
