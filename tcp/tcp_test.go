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

package tcp_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	libloop "github.com/nabbar/reactor/eventloop"
	libbuf "github.com/nabbar/reactor/buffer"
	libtimer "github.com/nabbar/reactor/reactortimer"
	libtcp "github.com/nabbar/reactor/tcp"
)

func newRunningLoop() *libloop.EventLoop {
	loop, err := libloop.New()
	Expect(err).NotTo(HaveOccurred())
	go loop.Loop()
	return loop
}

var _ = Describe("TcpServer and TcpConnection", func() {
	It("accepts a connection, echoes data back, and shuts the server down cleanly", func() {
		serverLoop := newRunningLoop()
		defer serverLoop.Quit()

		srv, err := libtcp.NewTcpServer(serverLoop, sameLoop{serverLoop}, "echo", "127.0.0.1:0", false)
		Expect(err).NotTo(HaveOccurred())

		connected := make(chan *libtcp.TcpConnection, 1)
		srv.ConnectionCallback = func(c *libtcp.TcpConnection) {
			if c.State() == libtcp.Connected {
				connected <- c
			}
		}
		srv.MessageCallback = func(c *libtcp.TcpConnection, data *libbuf.Buffer, _ time.Time) {
			c.Send(data.Peek())
			data.RetrieveAll()
		}

		srv.Listen()

		addr, err := srv.Addr()
		Expect(err).NotTo(HaveOccurred())

		clientLoop := newRunningLoop()
		defer clientLoop.Quit()

		timer := libtimer.New(clientLoop)
		client, err := libtcp.NewTcpClient(clientLoop, timer, addr.String())
		Expect(err).NotTo(HaveOccurred())

		received := make(chan string, 1)
		client.MessageCallback = func(c *libtcp.TcpConnection, data *libbuf.Buffer, _ time.Time) {
			received <- data.RetrieveAllString()
		}

		client.Connect()

		Eventually(connected, time.Second).Should(Receive())

		Eventually(func() *libtcp.TcpConnection {
			return client.Connection()
		}, time.Second).ShouldNot(BeNil())

		client.Connection().Send([]byte("hello"))

		Eventually(received, time.Second).Should(Receive(Equal("hello")))

		Expect(srv.Shutdown()).To(Succeed())
	})
})

// sameLoop satisfies tcp.LoopProvider by always returning the same loop,
// for a single-loop server under test.
type sameLoop struct {
	loop *libloop.EventLoop
}

func (s sameLoop) GetNextLoop() libtcp.Loop { return s.loop }
