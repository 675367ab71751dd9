package c11httpd

import "sort"

// Well-known HTTP header field names, matching
// c11httpd/http_header_fields.h/.cpp's request_fields()/response_fields()
// tables. Exported as named constants rather than reproducing the
// original's two std::vector<fast_str_t> lookup tables (an
// instance()-singleton search is unneeded here — header lookups go
// through HTTPHeaders below, an ordinary case-insensitive index), since
// spec.md's "protected headers" and "consumes/produces negotiation"
// supplemented features only ever need a handful of them by name.
const (
	HeaderAccept          = "Accept"
	HeaderAcceptCharset   = "Accept-Charset"
	HeaderAcceptEncoding  = "Accept-Encoding"
	HeaderAcceptLanguage  = "Accept-Language"
	HeaderAcceptRanges    = "Accept-Ranges"
	HeaderAuthorization   = "Authorization"
	HeaderCacheControl    = "Cache-Control"
	HeaderConnection      = "Connection"
	HeaderContentEncoding = "Content-Encoding"
	HeaderContentLength   = "Content-Length"
	HeaderContentType     = "Content-Type"
	HeaderDate            = "Date"
	HeaderETag            = "ETag"
	HeaderExpect          = "Expect"
	HeaderHost            = "Host"
	HeaderIfModifiedSince = "If-Modified-Since"
	HeaderIfNoneMatch     = "If-None-Match"
	HeaderLastModified    = "Last-Modified"
	HeaderLocation        = "Location"
	HeaderRange           = "Range"
	HeaderReferer         = "Referer"
	HeaderServer          = "Server"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderUserAgent       = "User-Agent"
	HeaderVary            = "Vary"
)

// httpHeaderField is one parsed/written header, stored as offsets into
// the owning Buf rather than copied strings, matching spec.md §2's
// "headers retained as fast_str_t pairs" design.
type httpHeaderField struct {
	name  fastSlice
	value fastSlice
}

// HTTPHeaders is a case-insensitively-sorted collection of header
// fields, giving O(log n) lookup in place of a linear scan — matching
// spec.md §2's "headers sorted by name for lookup" requirement and
// c11httpd's own choice (fast_str_less_nocase_t-ordered std::map) of a
// sorted index over a hash map.
type HTTPHeaders struct {
	buf    *Buf
	fields []httpHeaderField
}

func newHTTPHeaders(buf *Buf) *HTTPHeaders {
	return &HTTPHeaders{buf: buf}
}

func (h *HTTPHeaders) reset(buf *Buf) {
	h.buf = buf
	h.fields = h.fields[:0]
}

// add appends a field and keeps fields sorted by name so Get can binary
// search. Call sites parse headers strictly in wire order; add() finds the
// slot by binary search and shifts the tail up by one, avoiding a full
// re-sort per header. A field goes after any existing fields with the same
// name, so duplicates keep their wire order.
func (h *HTTPHeaders) add(name, value fastSlice) {
	f := httpHeaderField{name: name, value: value}
	i := sort.Search(len(h.fields), func(i int) bool {
		return cmpiBytes(h.fields[i].name.bytes(h.buf), name.bytes(h.buf)) > 0
	})
	h.fields = append(h.fields, httpHeaderField{})
	copy(h.fields[i+1:], h.fields[i:])
	h.fields[i] = f
}

// Get returns the first header value matching name (case-insensitively),
// and whether it was found.
func (h *HTTPHeaders) Get(name string) (string, bool) {
	nb := []byte(name)
	i := sort.Search(len(h.fields), func(i int) bool {
		return cmpiBytes(h.fields[i].name.bytes(h.buf), nb) >= 0
	})
	if i < len(h.fields) && cmpiBytes(h.fields[i].name.bytes(h.buf), nb) == 0 {
		return h.fields[i].value.str(h.buf), true
	}
	return "", false
}

// Len returns the number of header fields.
func (h *HTTPHeaders) Len() int {
	return len(h.fields)
}

// Each calls fn for every header field in sorted-name order.
func (h *HTTPHeaders) Each(fn func(name, value string)) {
	for _, f := range h.fields {
		fn(f.name.str(h.buf), f.value.str(h.buf))
	}
}
