/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command reactord stands up one reactor HTTP server: an Acceptor on
// its own loop, a Pool of worker loops each accepted connection is
// handed to round-robin, and a trie router serving a couple of demo
// routes, all driven from a config file/environment via rconfig.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/nabbar/reactor/eventloop"
	"github.com/nabbar/reactor/httpproto"
	"github.com/nabbar/reactor/httprouter"
	"github.com/nabbar/reactor/httpserver"
	"github.com/nabbar/reactor/metrics"
	"github.com/nabbar/reactor/rconfig"
	"github.com/nabbar/reactor/rlog"
	"github.com/nabbar/reactor/tcp"
)

// loopPool adapts *eventloop.Pool to tcp.LoopProvider: Pool's
// GetNextLoop returns the concrete *eventloop.EventLoop type, which
// this wrapper re-exposes as the tcp.Loop interface TcpServer expects.
type loopPool struct {
	pool *eventloop.Pool
}

func (l loopPool) GetNextLoop() tcp.Loop {
	return l.pool.GetNextLoop()
}

func main() {
	configPath := flag.String("config", "", "path to a YAML/JSON/TOML configuration file")
	flag.Parse()

	log := rlog.New(os.Stdout)

	cfg, err := rconfig.Load(*configPath)
	if err != nil {
		log.Fatal("loading configuration: %v", err)
	}
	log.SetLevel(levelFromName(cfg.LogLevel))
	rlog.SetSPF13Level(log, levelFromName(cfg.LogLevel))

	if err := run(cfg, log); err != nil {
		log.Fatal("reactord exiting: %v", err)
	}
}

func run(cfg rconfig.Config, log rlog.Logger) error {
	acceptLoop, err := eventloop.New()
	if err != nil {
		return fmt.Errorf("creating accept loop: %w", err)
	}
	go acceptLoop.Loop()
	defer acceptLoop.Quit()

	pool := eventloop.NewPool(acceptLoop)
	workers := cfg.LoopCount
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	if err := pool.Start(workers); err != nil {
		return fmt.Errorf("starting loop pool: %w", err)
	}
	defer pool.Stop()

	reg := metrics.New("reactord")
	if cfg.MetricsListen != "" {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsListen, reg.Handler()); err != nil {
				log.Error("metrics server stopped: %v", err)
			}
		}()
	}

	srv, err := tcp.NewTcpServer(acceptLoop, loopPool{pool}, cfg.Name, cfg.Listen, cfg.ReusePort)
	if err != nil {
		return fmt.Errorf("creating tcp server: %w", err)
	}

	router := httprouter.New()
	registerDemoRoutes(router, reg, log)

	h := httpserver.New(srv, router)
	h.Listen()

	addr, _ := srv.Addr()
	log.Info("reactord listening on %v", addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	return h.Shutdown()
}

func registerDemoRoutes(r *httprouter.Router, reg *metrics.Registry, log rlog.Logger) {
	_ = r.AddRoute("/", httpproto.MethodGet, func(req *httpproto.Request, resp *httpproto.Response) bool {
		resp.WriteString("reactor is up")
		reg.RequestDuration.WithLabelValues("GET", "200").Observe(0)
		return true
	})

	_ = r.AddRoute("/echo/:word", httpproto.MethodGet, func(req *httpproto.Request, resp *httpproto.Response) bool {
		resp.WriteString(req.PathParams["word"])
		return true
	})

	_ = r.AddRoute("/health", httpproto.MethodGet, func(req *httpproto.Request, resp *httpproto.Response) bool {
		resp.WriteString("ok")
		return true
	})
}

func levelFromName(name string) rlog.Level {
	switch name {
	case "Debug":
		return rlog.DebugLevel
	case "Warning":
		return rlog.WarnLevel
	case "Error":
		return rlog.ErrorLevel
	case "":
		return rlog.InfoLevel
	default:
		return rlog.InfoLevel
	}
}
