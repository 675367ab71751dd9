package c11httpd

import "strings"

// RestResult is a route handler's outcome, matching
// c11httpd/rest_result.h's rest_result_t: either the response has been
// fully prepared (RestDone), or a critical error requires the connection
// close immediately without sending anything further (RestAbandon).
type RestResult int

const (
	RestDone RestResult = iota
	RestAbandon
)

// RouteHandler is the signature every registered route implements,
// replacing rest_ctrl_t's std::function<rest_result_t(...)>/callable_t
// template machinery (needed in C++ to erase both free-function and
// member-function routines behind one type) with a plain Go func value,
// which already does that.
type RouteHandler func(ctx CtxSetter, session ConnSession, req *HTTPRequest, params []string, resp *HTTPResponse) RestResult

// routeSegmentKind classifies one '/'-delimited pattern segment for
// matching precedence, resolving spec.md's route-grammar Open Question:
// a literal segment only matches its exact text; '?' matches exactly one
// non-empty path segment and captures it; a trailing '*' matches the
// rest of the path (possibly containing further '/'s) and captures it
// whole. Precedence when more than one registered route matches the
// same path is literal > placeholder > wildcard, ties broken by
// registration order (earliest wins).
type routeSegmentKind int

const (
	segLiteral routeSegmentKind = iota
	segPlaceholder
	segWildcard
)

type routeSegment struct {
	kind    routeSegmentKind
	literal string
}

// route is one registered API endpoint, matching rest_ctrl_t::api_t
// (uri, method mask, routine, consumes, produces) flattened into a
// single struct rather than a std::tuple.
type route struct {
	rawURI     string
	segments   []routeSegment
	methodMask uint32
	handler    RouteHandler
	consumes   string
	produces   string
}

func compileRoute(uri string) []routeSegment {
	parts := strings.Split(strings.Trim(uri, "/"), "/")
	segs := make([]routeSegment, 0, len(parts))
	for i, p := range parts {
		switch {
		case p == "?":
			segs = append(segs, routeSegment{kind: segPlaceholder})
		case p == "*" && i == len(parts)-1:
			segs = append(segs, routeSegment{kind: segWildcard})
		default:
			segs = append(segs, routeSegment{kind: segLiteral, literal: p})
		}
	}
	return segs
}

// RestController groups a set of routes under an optional virtual host
// and URI root prefix, matching rest_ctrl_t/rest_controller_t.
type RestController struct {
	VirtualHost string
	URIRoot     string

	routes []*route
}

// NewRestController returns an empty controller. virtualHost may be ""
// to match any Host header; uriRoot is prepended to every route's URI.
func NewRestController(virtualHost, uriRoot string) *RestController {
	return &RestController{VirtualHost: virtualHost, URIRoot: uriRoot}
}

// Add registers a route, matching rest_ctrl_t::add(). uri may contain
// "?" placeholder segments and a single trailing "*" wildcard segment.
// consumes/produces are optional Content-Type negotiation constraints
// (spec.md's supplemented consumes/produces feature); pass "" to skip
// negotiation for that side.
func (c *RestController) Add(uri string, methods uint32, handler RouteHandler, consumes, produces string) {
	full := c.URIRoot + uri
	c.routes = append(c.routes, &route{
		rawURI:     full,
		segments:   compileRoute(full),
		methodMask: methods,
		handler:    handler,
		consumes:   consumes,
		produces:   produces,
	})
}

// matchResult is what findRoute returns for a matched path, independent
// of whether the HTTP method itself was allowed (callers check that
// separately so they can distinguish 404 from 405).
type matchResult struct {
	route  *route
	params []string
}

// findRoute returns the best-matching route (by the literal > placeholder
// > wildcard, then registration-order precedence) for path across every
// route in c, regardless of method, plus the captured placeholder/
// wildcard values in left-to-right order.
func (c *RestController) findRoute(path string) *matchResult {
	pathSegs := strings.Split(strings.Trim(path, "/"), "/")

	var best *matchResult
	bestScore := -1

	for _, rt := range c.routes {
		params, score, ok := matchSegments(rt.segments, pathSegs)
		if !ok {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = &matchResult{route: rt, params: params}
		}
	}

	return best
}

// matchSegments reports whether pathSegs satisfies pattern segs, and if
// so returns the captured params and a specificity score (higher is more
// specific: each literal segment scores 2, placeholder scores 1,
// wildcard scores 0).
func matchSegments(segs []routeSegment, pathSegs []string) ([]string, int, bool) {
	var params []string
	score := 0

	for i, seg := range segs {
		if seg.kind == segWildcard {
			params = append(params, strings.Join(pathSegs[i:], "/"))
			return params, score, true
		}

		if i >= len(pathSegs) {
			return nil, 0, false
		}

		switch seg.kind {
		case segLiteral:
			if pathSegs[i] != seg.literal {
				return nil, 0, false
			}
			score += 2
		case segPlaceholder:
			if pathSegs[i] == "" {
				return nil, 0, false
			}
			params = append(params, pathSegs[i])
			score++
		}
	}

	if len(pathSegs) != len(segs) {
		return nil, 0, false
	}

	return params, score, true
}

// matchesHost reports whether c accepts requests for host, matching
// rest_ctrl_t's virtual-host field (empty means "any host"), a
// supplemented feature pulled from original_source since spec.md's
// distillation dropped virtual hosting.
func (c *RestController) matchesHost(host string) bool {
	return c.VirtualHost == "" || strings.EqualFold(c.VirtualHost, host)
}
