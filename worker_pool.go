package c11httpd

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// workerReexecEnv is set in a spawned worker's environment so it knows to
// re-enter RunTCP as a worker instead of the main supervisor, rather than
// continuing to run the parent's in-flight Go runtime state after a bare
// fork() — see DESIGN.md's "fork()-in-Go safety" Open Question.
const workerReexecEnv = "C11HTTPD_WORKER"

// WorkerPool forks, tracks and reaps a set of worker child processes and
// reports liveness to the main process, matching
// c11httpd/worker_pool.h/.cpp's worker_pool_t.
//
// Go's runtime cannot safely continue executing after a bare fork() in a
// multi-threaded process (only async-signal-safe code may run between
// fork and exec), so Create re-execs a copy of the running binary
// (/proc/self/exe) instead of forking the live process image. Production
// deployments that want true listener-fd handoff across a rolling
// restart without re-exec should reach for
// github.com/cloudflare/tableflip instead — see acceptor.go's doc
// comment and examples_test.go.
type WorkerPool struct {
	mu         sync.Mutex
	workers    map[int]*os.Process
	selfPID    int
	mainProc   bool
	workerArgs []string
	log        *logrus.Entry
}

// NewWorkerPool captures the current process id once, matching
// worker_pool_t's self_pid() contract: signal handlers in the child
// cannot reliably report the callee pid, so it is captured up front.
func NewWorkerPool(log *logrus.Entry, extraArgs ...string) *WorkerPool {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &WorkerPool{
		workers:    make(map[int]*os.Process),
		selfPID:    unix.Getpid(),
		mainProc:   os.Getenv(workerReexecEnv) == "",
		workerArgs: extraArgs,
		log:        log,
	}
}

// MainProcess reports whether the current process is the supervising
// main process (true) or a re-exec'd worker (false).
func (p *WorkerPool) MainProcess() bool {
	return p.mainProc
}

// SelfPID returns the pid captured at construction.
func (p *WorkerPool) SelfPID() int {
	return p.selfPID
}

// Create forks (via re-exec) n worker processes, matching
// worker_pool_t::create(). Fork/exec failure is surfaced to the caller;
// the caller may choose to continue in single-process mode (spec.md §7).
func (p *WorkerPool) Create(n int) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("c11httpd: worker pool: resolve executable: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < n; i++ {
		cmd := exec.Command(exe, p.workerArgs...)
		cmd.Env = append(os.Environ(), workerReexecEnv+"=1")
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Stdin = os.Stdin

		if serr := cmd.Start(); serr != nil {
			return fmt.Errorf("c11httpd: worker pool: spawn worker: %w", serr)
		}

		p.workers[cmd.Process.Pid] = cmd.Process
		p.log.WithField("pid", cmd.Process.Pid).Info("worker process started")
	}

	return nil
}

// Kill sends SIGTERM to a tracked child and forgets it. A no-op if the
// current process is not the main process or pid is not tracked.
func (p *WorkerPool) Kill(pid int) error {
	if !p.mainProc {
		return nil
	}

	p.mu.Lock()
	proc, ok := p.workers[pid]
	delete(p.workers, pid)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return proc.Signal(unix.SIGTERM)
}

// KillAll terminates every tracked worker process.
func (p *WorkerPool) KillAll() {
	if !p.mainProc {
		return
	}

	p.mu.Lock()
	pids := make([]int, 0, len(p.workers))
	for pid := range p.workers {
		pids = append(pids, pid)
	}
	p.mu.Unlock()

	for _, pid := range pids {
		if err := p.Kill(pid); err != nil {
			p.log.WithError(err).WithField("pid", pid).Warn("failed to signal worker during shutdown")
		}
	}
}

// OnTerminated is called by the Acceptor's SIGCHLD handling after reaping
// a pid; it returns whether that pid was one of ours, matching
// worker_pool_t::on_terminated().
func (p *WorkerPool) OnTerminated(pid int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.workers[pid]; !ok {
		return false
	}
	delete(p.workers, pid)
	p.log.WithField("pid", pid).Warn("worker process terminated")
	return true
}

// Count returns the number of currently tracked worker pids.
func (p *WorkerPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}
