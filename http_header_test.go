package c11httpd

import "testing"

func addHeader(h *HTTPHeaders, buf *Buf, name, value string) {
	nOff := buf.Size()
	buf.AppendString(name)
	nLen := buf.Size() - nOff

	vOff := buf.Size()
	buf.AppendString(value)
	vLen := buf.Size() - vOff

	h.add(newFastSlice(nOff, nLen), newFastSlice(vOff, vLen))
}

func TestHTTPHeadersGetCaseInsensitive(t *testing.T) {
	buf := NewBuf()
	h := newHTTPHeaders(buf)

	addHeader(h, buf, "Host", "example.com")
	addHeader(h, buf, "Content-Type", "application/json")

	if v, ok := h.Get("content-type"); !ok || v != "application/json" {
		t.Fatalf("Get(content-type) = %q, %v", v, ok)
	}
	if v, ok := h.Get("HOST"); !ok || v != "example.com" {
		t.Fatalf("Get(HOST) = %q, %v", v, ok)
	}
	if _, ok := h.Get("Missing"); ok {
		t.Fatal("expected Missing header to be absent")
	}
}

func TestHTTPHeadersSortedInsertAndEach(t *testing.T) {
	buf := NewBuf()
	h := newHTTPHeaders(buf)

	addHeader(h, buf, "Zebra", "1")
	addHeader(h, buf, "Apple", "2")
	addHeader(h, buf, "Mango", "3")

	var names []string
	h.Each(func(name, value string) { names = append(names, name) })

	want := []string{"Apple", "Mango", "Zebra"}
	if len(names) != len(want) {
		t.Fatalf("Each() visited %d fields, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Each() order = %v, want %v", names, want)
		}
	}
}

func TestHTTPHeadersLenAndReset(t *testing.T) {
	buf := NewBuf()
	h := newHTTPHeaders(buf)
	addHeader(h, buf, "A", "1")
	addHeader(h, buf, "B", "2")

	if h.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", h.Len())
	}

	buf2 := NewBuf()
	h.reset(buf2)
	if h.Len() != 0 {
		t.Fatalf("Len() after reset = %d, want 0", h.Len())
	}
}
