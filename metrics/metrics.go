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

// Package metrics exposes the reactor's runtime counters and gauges
// as Prometheus collectors, each Registry bound to its own
// prometheus.Registry, scraped over plain HTTP by cmd/reactord.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every collector a reactor server instance reports,
// bound to its own prometheus.Registry so multiple instances in one
// process (tests, multi-tenant hosting) never collide.
type Registry struct {
	reg *prometheus.Registry

	ConnectionsOpen      prometheus.Gauge
	ConnectionsAccepted  prometheus.Counter
	ConnectionsClosed    prometheus.Counter
	BytesReceived        prometheus.Counter
	BytesSent            prometheus.Counter
	RequestDuration      *prometheus.HistogramVec
	LoopPendingTasks     *prometheus.GaugeVec
	LoopIterationLatency *prometheus.HistogramVec
}

// New creates and registers every collector under namespace ns
// (typically "reactor" or "reactord").
func New(ns string) *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		ConnectionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "connections_open",
			Help:      "Number of currently established TCP connections.",
		}),
		ConnectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "connections_accepted_total",
			Help:      "Total number of TCP connections accepted.",
		}),
		ConnectionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "connections_closed_total",
			Help:      "Total number of TCP connections closed, for any reason.",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "bytes_received_total",
			Help:      "Total bytes read from client sockets.",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "bytes_sent_total",
			Help:      "Total bytes written to client sockets.",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "Time from GotRequest to the response being queued for write.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		LoopPendingTasks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "loop_pending_tasks",
			Help:      "Number of cross-goroutine tasks queued on an event loop awaiting the next wakeup.",
		}, []string{"loop"}),
		LoopIterationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "loop_iteration_seconds",
			Help:      "Time spent inside one poller wait-and-dispatch iteration.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"loop"}),
	}
}

// Handler returns the http.Handler serving this registry's collectors
// in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
