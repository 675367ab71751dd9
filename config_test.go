package c11httpd

import "testing"

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()

	if !c.Enabled(ConfigKeepAlive) {
		t.Fatal("expected keep-alive enabled by default")
	}
	if !c.Enabled(ConfigResponseDate) {
		t.Fatal("expected response-date enabled by default")
	}
	if c.WorkerProcesses() != 0 {
		t.Fatalf("WorkerProcesses() = %d, want 0", c.WorkerProcesses())
	}
	if c.Backlog() != 10 {
		t.Fatalf("Backlog() = %d, want 10", c.Backlog())
	}
	if c.MaxEpollEvents() != 256 {
		t.Fatalf("MaxEpollEvents() = %d, want 256", c.MaxEpollEvents())
	}
	if c.MaxFreeConnection() != 128 {
		t.Fatalf("MaxFreeConnection() = %d, want 128", c.MaxFreeConnection())
	}
	if c.AIOWorkers() != 4 {
		t.Fatalf("AIOWorkers() = %d, want 4", c.AIOWorkers())
	}
}

func TestConfigOptionsOverrideDefaults(t *testing.T) {
	c := NewConfig(
		WithKeepAlive(false),
		WithResponseDate(false),
		WithWorkerProcesses(4),
		WithBacklog(128),
		WithMaxEpollEvents(1024),
		WithMaxFreeConnection(0),
		WithAIOWorkers(8),
	)

	if c.Enabled(ConfigKeepAlive) {
		t.Fatal("expected keep-alive disabled")
	}
	if c.Enabled(ConfigResponseDate) {
		t.Fatal("expected response-date disabled")
	}
	if c.WorkerProcesses() != 4 {
		t.Fatalf("WorkerProcesses() = %d, want 4", c.WorkerProcesses())
	}
	if c.Backlog() != 128 {
		t.Fatalf("Backlog() = %d, want 128", c.Backlog())
	}
	if c.MaxEpollEvents() != 1024 {
		t.Fatalf("MaxEpollEvents() = %d, want 1024", c.MaxEpollEvents())
	}
	if c.MaxFreeConnection() != 0 {
		t.Fatalf("MaxFreeConnection() = %d, want 0", c.MaxFreeConnection())
	}
	if c.AIOWorkers() != 8 {
		t.Fatalf("AIOWorkers() = %d, want 8", c.AIOWorkers())
	}
}

func TestConfigInvalidOptionsIgnored(t *testing.T) {
	c := NewConfig(WithBacklog(-1), WithMaxEpollEvents(0), WithAIOWorkers(-5))

	if c.Backlog() != 10 {
		t.Fatalf("negative backlog should be ignored, got %d", c.Backlog())
	}
	if c.MaxEpollEvents() != 256 {
		t.Fatalf("zero max-epoll-events should be ignored, got %d", c.MaxEpollEvents())
	}
	if c.AIOWorkers() != 4 {
		t.Fatalf("negative aio-workers should be ignored, got %d", c.AIOWorkers())
	}
}

func TestConfigEnableDisable(t *testing.T) {
	c := NewConfig(WithKeepAlive(false))
	c.Enable(ConfigKeepAlive)
	if !c.Enabled(ConfigKeepAlive) {
		t.Fatal("Enable() did not set the flag")
	}
	c.Disable(ConfigKeepAlive)
	if c.Enabled(ConfigKeepAlive) {
		t.Fatal("Disable() did not clear the flag")
	}
}
