// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Command bongo-server runs a single bongo reactor with a configurable
// demo protocol, wiring config, reactor, and worker in the shape of
// kcptun's server/main.go (urfave/cli App, one Action closure).
package main

import (
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/michaelpopov/bongo/config"
	"github.com/michaelpopov/bongo/internal/blog"
	"github.com/michaelpopov/bongo/proto/delimmirror"
	"github.com/michaelpopov/bongo/proto/echo"
	"github.com/michaelpopov/bongo/proto/fixedmirror"
	"github.com/michaelpopov/bongo/proto/httpish"
	"github.com/michaelpopov/bongo/proto/reqresp"
	"github.com/michaelpopov/bongo/queue"
	"github.com/michaelpopov/bongo/reactor"
	"github.com/michaelpopov/bongo/session"
	"github.com/michaelpopov/bongo/worker"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func factoryFor(name string) session.Factory {
	switch name {
	case "fixedmirror":
		return fixedmirror.Factory{}
	case "delimmirror":
		return delimmirror.Factory{}
	case "reqresp":
		return reqresp.Factory{}
	case "httpish":
		return httpish.Factory{}
	default:
		return echo.Factory{}
	}
}

func main() {
	if VERSION == "SELFBUILD" {
		blog.Trace("bongo-server starting (self-built)")
	}

	app := cli.NewApp()
	app.Name = "bongo-server"
	app.Usage = "single-process reactor server"
	app.Version = VERSION
	app.Flags = config.Flags()
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		blog.Fatal("bongo-server: %v", err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromContext(c)
	if err != nil {
		return err
	}

	blog.Trace("bongo-server: host=%s port=%d protocol=%s threads=%d",
		cfg.Host, cfg.Port, cfg.Protocol, cfg.ThreadsCount)

	workQueue := queue.NewWorkQueue[session.Core]()

	rx, err := reactor.New(workQueue)
	if err != nil {
		return err
	}

	pool := worker.New(cfg.ThreadsCount, workQueue, rx)
	pool.Start()

	factory := factoryFor(cfg.Protocol)
	if err := rx.StartListen("main", cfg.Host, cfg.Port, factory); err != nil {
		return err
	}

	go logStatsPeriodically(rx, pool, 30*time.Second)

	return rx.Run(200 * time.Millisecond)
}

// logStatsPeriodically emits one trace line per tick summarizing reactor
// and worker pool counters, generalized from kcptun's std.SnmpLogger
// (std/snmp.go) shape -- a periodic internal log line, not a metrics
// exporter.
func logStatsPeriodically(rx *reactor.Reactor, pool *worker.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		rs := rx.Stats()
		ws := pool.Stats()
		blog.Trace("stats: connections=%d listeners=%d accepted=%d processed=%d",
			rs.ConnectionsCount, rs.ListenersCount, rs.AcceptedCount, ws.ProcessedCount)
	}
}
