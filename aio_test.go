package c11httpd

import (
	"os"
	"testing"
	"time"
)

func TestAIOEngineReadCompletes(t *testing.T) {
	f, err := os.CreateTemp("", "c11httpd-aio-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	want := "hello aio world"
	if _, err := f.WriteString(want); err != nil {
		t.Fatalf("WriteString: %v", err)
	}

	e := newAIOEngine(2)
	defer e.Close()

	buf := make([]byte, len(want))
	rec, err := e.Submit(nil, int(f.Fd()), AIORead, 0, buf)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.ID <= 0 {
		t.Fatalf("ID = %d, want positive", rec.ID)
	}

	select {
	case done := <-e.Completed():
		if done.Err != nil {
			t.Fatalf("completed with error: %v", done.Err)
		}
		if string(done.Buffer[:done.BytesDone]) != want {
			t.Fatalf("read %q, want %q", done.Buffer[:done.BytesDone], want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for AIO completion")
	}
}

func TestAIOEngineWriteCompletes(t *testing.T) {
	f, err := os.CreateTemp("", "c11httpd-aio-write-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	e := newAIOEngine(2)
	defer e.Close()

	payload := []byte("written via aio")
	_, err = e.Submit(nil, int(f.Fd()), AIOWrite, 0, payload)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case done := <-e.Completed():
		if done.Err != nil {
			t.Fatalf("completed with error: %v", done.Err)
		}
		if done.BytesDone != len(payload) {
			t.Fatalf("BytesDone = %d, want %d", done.BytesDone, len(payload))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for AIO write completion")
	}

	got, rerr := os.ReadFile(f.Name())
	if rerr != nil {
		t.Fatalf("ReadFile: %v", rerr)
	}
	if string(got) != string(payload) {
		t.Fatalf("file contents = %q, want %q", got, payload)
	}
}

func TestAIOEngineEmptyBufferRejected(t *testing.T) {
	e := newAIOEngine(1)
	defer e.Close()

	if _, err := e.Submit(nil, 0, AIORead, 0, nil); err != ErrEmptyBuffer {
		t.Fatalf("err = %v, want ErrEmptyBuffer", err)
	}
}

func TestAIOEngineSubmitAfterCloseRejected(t *testing.T) {
	e := newAIOEngine(1)
	e.Close()

	if _, err := e.Submit(nil, 0, AIORead, 0, []byte("x")); err != ErrWatcherClosed {
		t.Fatalf("err = %v, want ErrWatcherClosed", err)
	}
}

func TestAIOEngineConnRoundTripsThroughOnAIODelivered(t *testing.T) {
	f, err := os.CreateTemp("", "c11httpd-aio-conn-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()
	f.WriteString("conn-scoped read")

	e := newAIOEngine(1)
	defer e.Close()

	c := newConn()
	c.reset(-1, "127.0.0.1", 0, false)

	buf := make([]byte, len("conn-scoped read"))
	if _, err := c.AIORead(e, int(f.Fd()), 0, buf); err != nil {
		t.Fatalf("AIORead: %v", err)
	}
	if !c.HasRunningAIO() {
		t.Fatal("expected HasRunningAIO() true right after submit")
	}

	rec := <-e.Completed()
	c.onAIODelivered(rec)

	if c.HasRunningAIO() {
		t.Fatal("expected HasRunningAIO() false after delivery")
	}

	var out []*AIORecord
	c.PopCompleted(&out)
	if len(out) != 1 || string(out[0].Buffer) != "conn-scoped read" {
		t.Fatalf("PopCompleted = %+v", out)
	}

	// A second PopCompleted call must not redeliver the same record.
	out = nil
	c.PopCompleted(&out)
	if len(out) != 0 {
		t.Fatalf("PopCompleted redelivered: %+v", out)
	}
}
