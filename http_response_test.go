package c11httpd

import (
	"strings"
	"testing"
	"time"
)

func withFixedClock(t *testing.T, fn func()) {
	t.Helper()
	prev := requestTimeNow
	requestTimeNow = func() time.Time {
		return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	}
	defer func() { requestTimeNow = prev }()
	fn()
}

func TestHTTPResponseBasicWrite(t *testing.T) {
	withFixedClock(t, func() {
		sendBuf := NewBuf()
		cfg := NewConfig()
		r := newHTTPResponse()
		r.Attach(sendBuf, cfg, true)

		r.Code(StatusOK)
		r.Header(HeaderContentType, "text/plain")
		r.WriteString("hello")

		if err := r.Detach(false); err != nil {
			t.Fatalf("Detach() error: %v", err)
		}

		out := string(sendBuf.Front())
		if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
			t.Fatalf("status line wrong: %q", out)
		}
		if !strings.Contains(out, "Content-Type: text/plain\r\n") {
			t.Fatalf("missing Content-Type header: %q", out)
		}
		if !strings.Contains(out, "Content-Length:       5\r\n") {
			t.Fatalf("Content-Length not patched correctly: %q", out)
		}
		if !strings.Contains(out, "Connection: keep-alive\r\n") {
			t.Fatalf("missing keep-alive header: %q", out)
		}
		if !strings.HasSuffix(out, "hello") {
			t.Fatalf("body not appended: %q", out)
		}
	})
}

func TestHTTPResponseCodePatchInPlace(t *testing.T) {
	sendBuf := NewBuf()
	cfg := NewConfig()
	r := newHTTPResponse()
	r.Attach(sendBuf, cfg, true)

	r.Code(StatusOK)
	before := sendBuf.Size()
	r.Code(StatusNotFound) // changes mind before writing any body
	after := sendBuf.Size()

	if before != after {
		t.Fatalf("in-place code patch changed buffer size: %d -> %d", before, after)
	}
	if !strings.HasPrefix(string(sendBuf.Front()), "HTTP/1.1 404 ER\r\n") {
		t.Fatalf("status line after patch = %q", string(sendBuf.Front()))
	}
}

func TestHTTPResponseReasonAbbrev(t *testing.T) {
	if reasonAbbrev(200) != "OK" {
		t.Fatalf("reasonAbbrev(200) = %q, want OK", reasonAbbrev(200))
	}
	if reasonAbbrev(404) != "ER" {
		t.Fatalf("reasonAbbrev(404) = %q, want ER", reasonAbbrev(404))
	}
	if reasonAbbrev(500) != "ER" {
		t.Fatalf("reasonAbbrev(500) = %q, want ER", reasonAbbrev(500))
	}
}

func TestHTTPResponseProtectedHeaderRejected(t *testing.T) {
	sendBuf := NewBuf()
	r := newHTTPResponse()
	r.Attach(sendBuf, NewConfig(), true)

	for _, name := range []string{HeaderConnection, HeaderContentLength, HeaderDate, HeaderServer} {
		if err := r.Header(name, "x"); err != ErrProtectedHeader {
			t.Fatalf("Header(%q) err = %v, want ErrProtectedHeader", name, err)
		}
	}
}

func TestHTTPResponseHeadersFrozenAfterBody(t *testing.T) {
	sendBuf := NewBuf()
	r := newHTTPResponse()
	r.Attach(sendBuf, NewConfig(), true)

	r.WriteString("body")
	if err := r.Header("X-Late", "oops"); err != ErrHeadersFrozen {
		t.Fatalf("err = %v, want ErrHeadersFrozen", err)
	}
}

func TestHTTPResponseEmptyBodyDetach(t *testing.T) {
	sendBuf := NewBuf()
	r := newHTTPResponse()
	r.Attach(sendBuf, NewConfig(), true)

	if err := r.Detach(false); err != nil {
		t.Fatalf("Detach() on an unwritten response: %v", err)
	}

	out := string(sendBuf.Front())
	if !strings.Contains(out, "Content-Length:       0\r\n") {
		t.Fatalf("expected zero Content-Length, got %q", out)
	}
}

func TestHTTPResponseCloseConnection(t *testing.T) {
	sendBuf := NewBuf()
	r := newHTTPResponse()
	r.Attach(sendBuf, NewConfig(), false)
	r.Detach(false)

	if !strings.Contains(string(sendBuf.Front()), "Connection: close\r\n") {
		t.Fatalf("expected Connection: close, got %q", string(sendBuf.Front()))
	}
}

func TestHTTPResponseContentTooLargeRejected(t *testing.T) {
	sendBuf := NewBuf()
	r := newHTTPResponse()
	r.Attach(sendBuf, NewConfig(), true)

	big := make([]byte, 100_000_000) // exceeds the 8-digit field (99,999,999 max)
	r.Write(big)

	if err := r.Detach(false); err != ErrContentTooLarge {
		t.Fatalf("err = %v, want ErrContentTooLarge", err)
	}
}

func TestHTTPResponseDefaultContentType(t *testing.T) {
	sendBuf := NewBuf()
	r := newHTTPResponse()
	r.Attach(sendBuf, NewConfig(), true)

	r.WriteString("hi")
	r.Detach(false)

	if !strings.Contains(string(sendBuf.Front()), "Content-Type: text/html\r\n") {
		t.Fatalf("expected default Content-Type, got %q", string(sendBuf.Front()))
	}
}

func TestHTTPResponseExplicitContentTypeNotOverridden(t *testing.T) {
	sendBuf := NewBuf()
	r := newHTTPResponse()
	r.Attach(sendBuf, NewConfig(), true)

	r.Header(HeaderContentType, "application/json")
	r.WriteString("{}")
	r.Detach(false)

	out := string(sendBuf.Front())
	if !strings.Contains(out, "Content-Type: application/json\r\n") {
		t.Fatalf("missing explicit Content-Type, got %q", out)
	}
	if strings.Contains(out, "text/html") {
		t.Fatalf("default Content-Type leaked alongside explicit one: %q", out)
	}
}

func TestHTTPResponseAbandonTruncatesSendBuf(t *testing.T) {
	sendBuf := NewBuf()
	sendBuf.AppendString("PRIOR RESPONSE")
	priorSize := sendBuf.Size()

	r := newHTTPResponse()
	r.Attach(sendBuf, NewConfig(), true)
	r.WriteString("this should never be sent")

	if err := r.Detach(true); err != nil {
		t.Fatalf("Detach(true) error: %v", err)
	}

	if sendBuf.Size() != priorSize {
		t.Fatalf("sendBuf.Size() = %d, want %d (truncated back to pre-attach)", sendBuf.Size(), priorSize)
	}
	if string(sendBuf.Front()) != "PRIOR RESPONSE" {
		t.Fatalf("sendBuf contents = %q, want unchanged prior data", string(sendBuf.Front()))
	}
}

func TestHTTPResponseResponseDateDisabled(t *testing.T) {
	sendBuf := NewBuf()
	cfg := NewConfig(WithResponseDate(false))
	r := newHTTPResponse()
	r.Attach(sendBuf, cfg, true)
	r.Detach(false)

	if strings.Contains(string(sendBuf.Front()), "Date:") {
		t.Fatalf("Date header present despite ConfigResponseDate disabled: %q", string(sendBuf.Front()))
	}
}
