package c11httpd_test

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudflare/tableflip"
	"github.com/sirupsen/logrus"

	c11httpd "github.com/toalexjin/c11httpd"
)

// ExampleAcceptor_forkedWorkers shows the library's default worker-process
// model: the main process binds the listening sockets itself and forks n
// re-exec'd children that share them, with the supervisor reaping and
// respawning on unexpected exit. This is the path RunTCP takes whenever
// cfg.WorkerProcesses() > 0 and a WorkerPool has been attached.
func ExampleAcceptor_forkedWorkers() {
	cfg := c11httpd.NewConfig(c11httpd.WithWorkerProcesses(4))
	acc := c11httpd.NewAcceptor(cfg, nil)
	acc.AttachWorkerPool(c11httpd.NewWorkerPool(nil))

	if err := acc.Bind("0.0.0.0", 8080); err != nil {
		fmt.Println("bind failed:", err)
		return
	}

	// RunTCP forks the 4 workers and blocks supervising them (main
	// process) or runs the accept/epoll loop directly (re-exec'd worker).
	// Not invoked here since this is illustrative only.
	_ = acc
}

// ExampleAcceptor_tableflipHandoff shows the alternative to raw fork():
// github.com/cloudflare/tableflip owns the listening socket across process
// generations, so a rolling restart hands the already-open fd to the new
// binary instead of this process forking a copy of itself. AttachListener
// bridges tableflip's *net.TCPListener into this Acceptor's listener set,
// in place of Bind() opening its own socket.
//
// Unlike the WorkerPool path, upgrades here are triggered externally (a
// SIGHUP, a deploy tool replacing the binary and sending it), not by a
// worker_processes count — so cfg.WorkerProcesses() stays 0 and RunTCP
// runs a single accept/epoll loop per process generation.
func ExampleAcceptor_tableflipHandoff() {
	log := logrus.NewEntry(logrus.StandardLogger())

	upg, err := tableflip.New(tableflip.Options{})
	if err != nil {
		log.WithError(err).Fatal("tableflip.New")
	}
	defer upg.Stop()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGHUP)
		for range sig {
			if err := upg.Upgrade(); err != nil {
				log.WithError(err).Warn("tableflip upgrade failed")
			}
		}
	}()

	ln, err := upg.Listen("tcp", ":8080")
	if err != nil {
		log.WithError(err).Fatal("tableflip listen")
	}
	defer ln.Close()

	acc := c11httpd.NewAcceptor(c11httpd.NewConfig(), log)
	if err := acc.AttachListener(ln); err != nil {
		log.WithError(err).Fatal("attach tableflip listener")
	}

	if err := upg.Ready(); err != nil {
		log.WithError(err).Fatal("tableflip ready")
	}

	// acc.RunTCP(handler) would block here serving this generation's
	// connections until <-upg.Exit() requests a graceful handoff to the
	// next generation; not invoked since this is illustrative only.
	_ = acc
}
