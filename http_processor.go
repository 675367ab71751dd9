package c11httpd

import "strings"

// httpConnState is the per-connection parser/writer pair stashed in
// Conn's user context via CtxSetter, matching c11httpd/http_conn.h's
// http_conn_t (a request+response pair attached to each conn_t) — kept
// here instead of growing Conn itself, since only HTTPProcessor-based
// servers need it; plain TCP handlers built directly on ConnEvent (like
// an Echo server) never pay for it.
type httpConnState struct {
	req  *HTTPRequest
	resp *HTTPResponse
}

func newHTTPConnState() *httpConnState {
	return &httpConnState{req: newHTTPRequest(), resp: newHTTPResponse()}
}

// HTTPProcessor is the ConnEvent implementation that turns raw
// connection byte streams into routed REST API calls, matching
// c11httpd/http_processor.h/.cpp's http_processor_t: it owns the set of
// registered RestControllers, drives HTTPRequest's resumable parser over
// each connection's RecvBuf, resolves the matching controller/route
// (including virtual-host and consumes/produces negotiation), invokes
// the handler, and erases consumed bytes so a second pipelined request on
// the same connection parses cleanly.
type HTTPProcessor struct {
	BaseConnEvent

	controllers []*RestController
}

// NewHTTPProcessor returns an HTTPProcessor with no controllers
// registered yet; call Register to add one or more.
func NewHTTPProcessor() *HTTPProcessor {
	return &HTTPProcessor{}
}

// Register adds a RestController's routes to this processor.
func (p *HTTPProcessor) Register(c *RestController) {
	p.controllers = append(p.controllers, c)
}

// OnConnected allocates the per-connection request/response pair.
func (p *HTTPProcessor) OnConnected(ctx CtxSetter, cfg *Config, session ConnSession, sendBuf *Buf) uint32 {
	ctx.Set(newHTTPConnState())
	return 0
}

// OnReceived drives the resumable parser over recvBuf, routing and
// responding to every complete request it can extract — including
// multiple pipelined requests that arrived in a single Recv() wake-up —
// matching http_processor_t::on_received().
func (p *HTTPProcessor) OnReceived(ctx CtxSetter, cfg *Config, session ConnSession, recvBuf, sendBuf *Buf) uint32 {
	st, ok := ctx.Get().(*httpConnState)
	if !ok || st == nil {
		st = newHTTPConnState()
		ctx.Set(st)
	}

	for {
		if st.req.buf == nil {
			st.req.reset(recvBuf)
		}

		done, err := st.req.ContinueToParse(recvBuf)
		if err != nil {
			// A malformed request gets no response: just disconnect.
			return EventDisconnect
		}
		if !done {
			return 0
		}

		result := p.dispatch(ctx, session, st.req, st.resp, sendBuf, cfg)

		consumed := st.req.BytesConsumed()
		recvBuf.EraseFront(consumed)
		keepAlive := st.req.KeepAlive()
		st.req.reset(recvBuf)

		if result == RestAbandon {
			return EventDisconnect
		}
		if !keepAlive {
			return EventDisconnect
		}
		if recvBuf.Size() == 0 {
			return 0
		}
		// More bytes already buffered: another pipelined request may be
		// sitting right behind this one, so loop and try to parse it
		// immediately rather than waiting for another epoll wake-up.
	}
}

func statusForParseError(err error) int {
	switch err {
	case ErrBodyTooLarge, ErrContentTooLarge:
		return StatusPayloadTooLarge
	case ErrNegativeContentLength:
		return StatusBadRequest
	default:
		return StatusBadRequest
	}
}

// dispatch resolves path+method+host to a route, enforces consumes/
// produces negotiation, invokes the handler, and always finalizes resp
// via Detach — even on a routing failure, so a 404/405/415/406 is a
// normal, pipelinable response rather than a connection abandon.
func (p *HTTPProcessor) dispatch(ctx CtxSetter, session ConnSession, req *HTTPRequest, resp *HTTPResponse, sendBuf *Buf, cfg *Config) RestResult {
	host, _ := req.Host()

	var matched *matchResult
	var owner *RestController
	methodTried := false

	for _, c := range p.controllers {
		if !c.matchesHost(host) {
			continue
		}
		if m := c.findRoute(req.Path.str(req.buf)); m != nil {
			methodTried = true
			if methodAllowed(m.route.methodMask, req.Method) {
				matched = m
				owner = c
				break
			}
		}
	}

	resp.Attach(sendBuf, cfg, req.KeepAlive())

	if matched == nil {
		if methodTried {
			p.writeError(resp, sendBuf, cfg, StatusMethodNotAllowed, req.KeepAlive())
		} else {
			p.writeError(resp, sendBuf, cfg, StatusNotFound, req.KeepAlive())
		}
		return RestDone
	}

	if matched.route.consumes != "" {
		ct, _ := req.Headers.Get(HeaderContentType)
		if !contentTypeMatches(ct, matched.route.consumes) {
			p.writeError(resp, sendBuf, cfg, StatusUnsupportedMedia, req.KeepAlive())
			return RestDone
		}
	}

	if matched.route.produces != "" {
		accept, ok := req.Headers.Get(HeaderAccept)
		if ok && accept != "" && !acceptMatches(accept, matched.route.produces) {
			p.writeError(resp, sendBuf, cfg, StatusNotAcceptable, req.KeepAlive())
			return RestDone
		}
		resp.Header(HeaderContentType, matched.route.produces)
	}

	_ = owner
	result := matched.route.handler(ctx, session, req, matched.params, resp)

	if err := resp.Detach(result == RestAbandon); err != nil {
		return RestAbandon
	}

	return result
}

func (p *HTTPProcessor) writeError(resp *HTTPResponse, sendBuf *Buf, cfg *Config, code int, keepAlive bool) {
	resp.Attach(sendBuf, cfg, keepAlive)
	resp.Code(code)
	resp.WriteString(StatusText(code))
	resp.Detach(false)
}

// contentTypeMatches reports whether a request's Content-Type header
// matches an expected media type, ignoring parameters (e.g. "; charset=
// utf-8") the way RFC 7231 §3.1.1.5 requires consumers to.
func contentTypeMatches(got, want string) bool {
	if got == "" {
		return false
	}
	return strings.EqualFold(mediaType(got), mediaType(want))
}

// acceptMatches reports whether an Accept header's comma-separated list
// of media ranges permits want, honoring "*/*" and "type/*" wildcards
// but ignoring q-value weighting (spec.md's produces negotiation only
// needs an allow/deny decision, not best-match selection).
func acceptMatches(accept, want string) bool {
	wantType, wantSub := splitMediaType(mediaType(want))
	for _, part := range strings.Split(accept, ",") {
		part = mediaType(part)
		if part == "*/*" {
			return true
		}
		t, s := splitMediaType(part)
		if t == wantType && (s == wantSub || s == "*") {
			return true
		}
	}
	return false
}

func mediaType(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

func splitMediaType(v string) (string, string) {
	i := strings.IndexByte(v, '/')
	if i < 0 {
		return v, ""
	}
	return v[:i], v[i+1:]
}
