//go:build linux

package c11httpd

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestSignalBridgeDrainsSelfSentSIGTERM(t *testing.T) {
	b, err := newSignalBridge(nil)
	if err != nil {
		t.Fatalf("newSignalBridge: %v", err)
	}
	defer b.Close()

	if err := unix.Kill(unix.Getpid(), unix.SIGTERM); err != nil {
		t.Fatalf("Kill(SIGTERM): %v", err)
	}

	// SIGTERM is blocked by newSignalBridge, so self-sending it queues a
	// pending signal rather than terminating the process; it must show up
	// as a readable signalfd record instead.
	rec, ok := b.Drain()
	if !ok || rec == nil {
		t.Fatal("expected a drained signal record for the pending SIGTERM")
	}
	if rec.Signo != uint32(unix.SIGTERM) {
		t.Fatalf("Signo = %d, want SIGTERM(%d)", rec.Signo, unix.SIGTERM)
	}

	// A second drain with nothing queued must report EAGAIN, not a phantom
	// record (spec.md's "drain to EAGAIN" invariant).
	if _, ok := b.Drain(); ok {
		t.Fatal("expected no further record after draining the single pending signal")
	}
}

func TestSignalBridgeFdIsValid(t *testing.T) {
	b, err := newSignalBridge(nil)
	if err != nil {
		t.Fatalf("newSignalBridge: %v", err)
	}
	defer b.Close()

	if b.Fd() < 0 {
		t.Fatalf("Fd() = %d, want a valid descriptor", b.Fd())
	}
}
