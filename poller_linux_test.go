//go:build linux

package c11httpd

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestPollerReportsReadableOnPipeWrite(t *testing.T) {
	p, err := newPoller()
	if err != nil {
		t.Fatalf("newPoller: %v", err)
	}
	defer p.Close()

	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)

	if err := p.Add(r, false); err != nil {
		t.Fatalf("Add(r): %v", err)
	}

	if _, err := unix.Write(w, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	events, err := p.Wait(8, 1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(events) != 1 || events[0].Fd != r || !events[0].Readable {
		t.Fatalf("events = %+v, want one readable event on fd %d", events, r)
	}
}

func TestPollerModifyAddsWritableInterest(t *testing.T) {
	p, err := newPoller()
	if err != nil {
		t.Fatalf("newPoller: %v", err)
	}
	defer p.Close()

	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)

	if err := p.Add(w, false); err != nil {
		t.Fatalf("Add(w): %v", err)
	}
	if err := p.Modify(w, true); err != nil {
		t.Fatalf("Modify(w, true): %v", err)
	}

	events, err := p.Wait(8, 1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	found := false
	for _, e := range events {
		if e.Fd == w && e.Writable {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a writable event on fd %d after Modify, got %+v", w, events)
	}
}

func TestPollerRemoveStopsReporting(t *testing.T) {
	p, err := newPoller()
	if err != nil {
		t.Fatalf("newPoller: %v", err)
	}
	defer p.Close()

	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)

	if err := p.Add(r, false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := p.Remove(r); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := unix.Write(w, []byte("y")); err != nil {
		t.Fatalf("write: %v", err)
	}

	events, err := p.Wait(8, 200)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	for _, e := range events {
		if e.Fd == r {
			t.Fatalf("fd %d still reported after Remove", r)
		}
	}
}
