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

package metrics_test

import (
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/metrics"
)

var _ = Describe("Registry", func() {
	It("exposes incremented collectors through its HTTP handler", func() {
		reg := metrics.New("reactor_test")
		reg.ConnectionsAccepted.Inc()
		reg.ConnectionsOpen.Set(3)
		reg.RequestDuration.WithLabelValues("GET", "200").Observe(0.01)

		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()
		reg.Handler().ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		body := rec.Body.String()
		Expect(body).To(ContainSubstring("reactor_test_connections_accepted_total 1"))
		Expect(body).To(ContainSubstring("reactor_test_connections_open 3"))
	})

	It("labels loop gauges independently per loop name", func() {
		reg := metrics.New("reactor_test2")
		reg.LoopPendingTasks.WithLabelValues("loop-0").Set(5)
		reg.LoopPendingTasks.WithLabelValues("loop-1").Set(2)

		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()
		reg.Handler().ServeHTTP(rec, req)

		body := rec.Body.String()
		Expect(body).To(ContainSubstring(`loop="loop-0"} 5`))
		Expect(body).To(ContainSubstring(`loop="loop-1"} 2`))
	})
})
