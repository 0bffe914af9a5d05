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

package tcp

import (
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	libchan "github.com/nabbar/reactor/netchannel"
	libtimer "github.com/nabbar/reactor/reactortimer"

	rerr "github.com/nabbar/reactor/errors"
)

// ConnectorState is the Connector's own state machine, independent of
// the eventual TcpConnection's.
type ConnectorState int32

const (
	StateDisconnected ConnectorState = iota
	StateConnecting
	StateConnected
)

const (
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// Loop is the subset of eventloop.EventLoop the tcp package needs:
// Channel registration, loop-affinity checks, and cross-goroutine task
// dispatch for Connector, TcpConnection, TcpServer and TcpClient.
type Loop interface {
	libchan.Owner
	RunInLoop(func())
	QueueInLoop(func())
	IsInLoopThread() bool
}

// Connector repeatedly attempts a non-blocking outbound TCP connect,
// classifying each failure into "retry with backoff" or "fail
// permanently", and rejects a successful connect that turns out to be
// a self-connect.
type Connector struct {
	loop Loop
	addr *net.TCPAddr

	state   int32
	stopped int32
	retry   time.Duration
	timer   *libtimer.Facility

	channel *libchan.Channel
	fd      int

	NewConnectionCallback NewConnectionCallback
	ErrorCallback         func(error)
}

// NewConnector creates a Connector targeting addr. Call Start to
// begin connecting.
func NewConnector(loop Loop, timer *libtimer.Facility, addr string) (*Connector, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, rerr.New(uint16(rerr.MinPkgConnector+1), "resolve connect address", err)
	}
	return &Connector{loop: loop, addr: tcpAddr, timer: timer, retry: initialRetryDelay}, nil
}

// Start begins the connect attempt. Safe to call from any goroutine.
func (c *Connector) Start() {
	atomic.StoreInt32(&c.stopped, 0)
	c.loop.RunInLoop(c.connect)
}

// Stop cancels any pending retry and prevents further attempts.
// Safe to call from any goroutine. A stop racing a pending retry
// timer is safe: the timer callback checks stopped before reconnecting.
func (c *Connector) Stop() {
	atomic.StoreInt32(&c.stopped, 1)
}

func (c *Connector) connect() {
	if atomic.LoadInt32(&c.stopped) == 1 {
		return
	}

	domain := unix.AF_INET
	if c.addr.IP != nil && c.addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		c.fail(err)
		return
	}

	sa, err := sockaddrFromTCPAddr(c.addr)
	if err != nil {
		_ = unix.Close(fd)
		c.fail(err)
		return
	}

	err = unix.Connect(fd, sa)
	switch err {
	case nil, unix.EINPROGRESS, unix.EINTR:
		atomic.StoreInt32(&c.state, int32(StateConnecting))
		c.fd = fd
		c.channel = libchan.New(c.loop, fd)
		c.channel.SetWriteCallback(c.handleWrite)
		c.channel.SetErrorCallback(c.handleError)
		c.channel.EnableWriting()
	case unix.EISCONN:
		atomic.StoreInt32(&c.state, int32(StateConnecting))
		c.fd = fd
		c.channel = libchan.New(c.loop, fd)
		c.channel.SetWriteCallback(c.handleWrite)
		c.channel.EnableWriting()
	case unix.EAGAIN, unix.EADDRINUSE, unix.ECONNREFUSED, unix.ENETUNREACH,
		unix.EHOSTUNREACH, unix.EHOSTDOWN, unix.ETIMEDOUT:
		_ = unix.Close(fd)
		c.retryLater()
	default:
		_ = unix.Close(fd)
		c.fail(err)
	}
}

func (c *Connector) retryLater() {
	if atomic.LoadInt32(&c.stopped) == 1 {
		return
	}
	delay := c.retry
	c.retry *= 2
	if c.retry > maxRetryDelay {
		c.retry = maxRetryDelay
	}
	c.timer.RunAfter(delay, func() {
		if atomic.LoadInt32(&c.stopped) == 0 {
			c.connect()
		}
	})
}

func (c *Connector) handleWrite(time.Time) {
	if atomic.LoadInt32(&c.state) != int32(StateConnecting) {
		return
	}

	c.channel.DisableAll()
	c.channel.Remove()

	errno, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil || errno != 0 {
		_ = unix.Close(c.fd)
		c.retryLater()
		return
	}

	if c.isSelfConnect() {
		_ = unix.Close(c.fd)
		c.retryLater()
		return
	}

	atomic.StoreInt32(&c.state, int32(StateConnected))
	c.retry = initialRetryDelay

	if c.NewConnectionCallback != nil {
		peer := c.addr
		c.NewConnectionCallback(c.fd, peer)
	}
}

func (c *Connector) handleError(time.Time) {}

func (c *Connector) isSelfConnect() bool {
	local, err1 := unix.Getsockname(c.fd)
	peer, err2 := unix.Getpeername(c.fd)
	if err1 != nil || err2 != nil {
		return false
	}
	return sockaddrEqual(local, peer)
}

func (c *Connector) fail(err error) {
	atomic.StoreInt32(&c.state, int32(StateDisconnected))
	if c.ErrorCallback != nil {
		c.ErrorCallback(err)
	}
}

func sockaddrEqual(a, b unix.Sockaddr) bool {
	switch av := a.(type) {
	case *unix.SockaddrInet4:
		bv, ok := b.(*unix.SockaddrInet4)
		return ok && av.Port == bv.Port && av.Addr == bv.Addr
	case *unix.SockaddrInet6:
		bv, ok := b.(*unix.SockaddrInet6)
		return ok && av.Port == bv.Port && av.Addr == bv.Addr
	default:
		return false
	}
}
