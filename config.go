package c11httpd

// Config flag bits, matching c11httpd/config.h's anonymous enum.
const (
	// ConfigKeepAlive enables emitting "Connection: keep-alive" when the
	// request asked for it.
	ConfigKeepAlive uint32 = 1
	// ConfigResponseDate enables emitting "Date: ..." on every response.
	ConfigResponseDate uint32 = 1 << 1
)

// Config holds the recognized TCP/HTTP server options from spec.md §6.
// It mirrors config_t's getter/setter shape one-to-one: a handful of
// in-process fields, not a file/env-backed configuration tree, so it is
// built as a plain struct with a functional-options constructor rather
// than reaching for a configuration library (see DESIGN.md).
type Config struct {
	flags uint32

	workerProcesses   int
	backlog           int
	maxEpollEvents    int
	maxFreeConnection int
	aioWorkers        int
}

// Option configures a Config value passed to NewConfig.
type Option func(*Config)

// NewConfig returns a Config with spec.md §6's defaults: keep_alive and
// response_date on, worker_processes 0, backlog 10, max_epoll_events 256,
// max_free_connection 128.
func NewConfig(opts ...Option) *Config {
	c := &Config{
		flags:             ConfigKeepAlive | ConfigResponseDate,
		workerProcesses:   0,
		backlog:           10,
		maxEpollEvents:    256,
		maxFreeConnection: 128,
		aioWorkers:        4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithKeepAlive toggles ConfigKeepAlive.
func WithKeepAlive(enabled bool) Option {
	return func(c *Config) {
		if enabled {
			c.flags |= ConfigKeepAlive
		} else {
			c.flags &^= ConfigKeepAlive
		}
	}
}

// WithResponseDate toggles ConfigResponseDate.
func WithResponseDate(enabled bool) Option {
	return func(c *Config) {
		if enabled {
			c.flags |= ConfigResponseDate
		} else {
			c.flags &^= ConfigResponseDate
		}
	}
}

// WithWorkerProcesses sets the number of worker processes; 0 means the
// main process accepts and serves directly.
func WithWorkerProcesses(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.workerProcesses = n
		}
	}
}

// WithBacklog sets the listen(2) backlog.
func WithBacklog(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.backlog = n
		}
	}
}

// WithMaxEpollEvents sets the readiness-wait array size.
func WithMaxEpollEvents(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.maxEpollEvents = n
		}
	}
}

// WithMaxFreeConnection sets the recycled-connection pool's upper bound.
func WithMaxFreeConnection(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.maxFreeConnection = n
		}
	}
}

// WithAIOWorkers sets the size of the AIO engine's blocking-I/O goroutine
// pool (an addition beyond spec.md's named options, needed because this
// rewrite realizes AIO with goroutines rather than true POSIX AIO — see
// DESIGN.md's aio.go ledger entry).
func WithAIOWorkers(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.aioWorkers = n
		}
	}
}

func (c *Config) Enabled(flag uint32) bool { return c.flags&flag != 0 }
func (c *Config) Enable(flag uint32)       { c.flags |= flag }
func (c *Config) Disable(flag uint32)      { c.flags &^= flag }

func (c *Config) WorkerProcesses() int   { return c.workerProcesses }
func (c *Config) Backlog() int           { return c.backlog }
func (c *Config) MaxEpollEvents() int    { return c.maxEpollEvents }
func (c *Config) MaxFreeConnection() int { return c.maxFreeConnection }
func (c *Config) AIOWorkers() int        { return c.aioWorkers }
