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

package httpserver_test

import (
	"bufio"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	libloop "github.com/nabbar/reactor/eventloop"
	libhttp "github.com/nabbar/reactor/httpproto"
	libroute "github.com/nabbar/reactor/httprouter"
	libsrv "github.com/nabbar/reactor/httpserver"
	libtcp "github.com/nabbar/reactor/tcp"
)

type sameLoop struct{ loop *libloop.EventLoop }

func (s sameLoop) GetNextLoop() libtcp.Loop { return s.loop }

func newServer(router *libroute.Router) (*libsrv.HttpServer, *libloop.EventLoop, net.Addr) {
	loop, err := libloop.New()
	Expect(err).NotTo(HaveOccurred())
	go loop.Loop()

	tcpSrv, err := libtcp.NewTcpServer(loop, sameLoop{loop}, "http", "127.0.0.1:0", false)
	Expect(err).NotTo(HaveOccurred())

	h := libsrv.New(tcpSrv, router)
	h.Listen()

	addr, err := tcpSrv.Addr()
	Expect(err).NotTo(HaveOccurred())

	return h, loop, addr
}

var _ = Describe("HttpServer", func() {
	It("serves a matched route and keeps the connection open by default", func() {
		router := libroute.New()
		Expect(router.AddRoute("/hello", libhttp.MethodGet, func(req *libhttp.Request, resp *libhttp.Response) bool {
			resp.WriteString("world")
			return true
		})).To(Succeed())

		h, loop, addr := newServer(router)
		defer loop.Quit()
		defer h.Shutdown()

		conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		_, err = conn.Write([]byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"))
		Expect(err).NotTo(HaveOccurred())

		conn.SetReadDeadline(time.Now().Add(time.Second))
		reader := bufio.NewReader(conn)

		status, err := reader.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(ContainSubstring("200"))

		for {
			line, err := reader.ReadString('\n')
			Expect(err).NotTo(HaveOccurred())
			if line == "\r\n" {
				break
			}
		}

		buf := make([]byte, 5)
		n, err := reader.Read(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf[:n])).To(Equal("world"))
	})

	It("replies 404 with Connection: close for an unmatched path", func() {
		router := libroute.New()
		h, loop, addr := newServer(router)
		defer loop.Quit()
		defer h.Shutdown()

		conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		_, err = conn.Write([]byte("GET /missing HTTP/1.1\r\n\r\n"))
		Expect(err).NotTo(HaveOccurred())

		conn.SetReadDeadline(time.Now().Add(time.Second))
		reader := bufio.NewReader(conn)

		status, err := reader.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(ContainSubstring("404"))

		sawClose := false
		for {
			line, err := reader.ReadString('\n')
			Expect(err).NotTo(HaveOccurred())
			if line == "\r\n" {
				break
			}
			if line == "Connection: close\r\n" {
				sawClose = true
			}
		}
		Expect(sawClose).To(BeTrue())
	})

	It("captures a named path parameter for the handler", func() {
		router := libroute.New()
		var captured string
		Expect(router.AddRoute("/users/:id", libhttp.MethodGet, func(req *libhttp.Request, resp *libhttp.Response) bool {
			captured = req.PathParams["id"]
			resp.WriteString("ok")
			return true
		})).To(Succeed())

		h, loop, addr := newServer(router)
		defer loop.Quit()
		defer h.Shutdown()

		conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		_, err = conn.Write([]byte("GET /users/42 HTTP/1.1\r\n\r\n"))
		Expect(err).NotTo(HaveOccurred())

		conn.SetReadDeadline(time.Now().Add(time.Second))
		reader := bufio.NewReader(conn)
		status, err := reader.ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(ContainSubstring("200"))

		Eventually(func() string { return captured }, time.Second).Should(Equal("42"))
	})
})
