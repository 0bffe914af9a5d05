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
	"context"
	"net"
	"time"

	"golang.org/x/sys/unix"

	libbuf "github.com/nabbar/reactor/buffer"
	rctx "github.com/nabbar/reactor/context"
	libchan "github.com/nabbar/reactor/netchannel"
)

// ConnState is a TcpConnection's lifecycle state. Transitions only move
// forward: Connecting -> Connected -> Disconnecting -> Disconnected.
type ConnState int32

const (
	Connecting ConnState = iota
	Connected
	Disconnecting
	Disconnected
)

// ConnectionCallback is invoked when the connection becomes Connected
// (from Start) and again when it becomes Disconnected, just before
// CloseCallback; State tells the two calls apart. Incoming data goes
// to MessageCallback instead.
type ConnectionCallback func(c *TcpConnection)

// MessageCallback is invoked once per readable event with whatever was
// accumulated in the input buffer since the last call.
type MessageCallback func(c *TcpConnection, data *libbuf.Buffer, receiveTime time.Time)

// HighWaterMarkCallback fires the first time the output buffer's
// backlog reaches the configured threshold, and is re-armed once the
// output buffer has fully drained.
type HighWaterMarkCallback func(c *TcpConnection, backlog int)

type fdReader int

func (f fdReader) Read(p []byte) (int, error) {
	return unix.Read(int(f), p)
}

// TcpConnection wraps one established, non-blocking socket: it owns
// the input/output buffers, drives writes off writability events, and
// exposes the four-state half-close sequence a graceful shutdown needs.
type TcpConnection struct {
	loop Loop
	name string
	fd   int

	channel *libchan.Channel
	local   net.Addr
	peer    net.Addr

	state ConnState

	input  *libbuf.Buffer
	output *libbuf.Buffer

	highWaterMark int
	highWaterHit  bool

	ConnectionCallback    ConnectionCallback
	MessageCallback       MessageCallback
	WriteCompleteCallback ConnectionCallback
	HighWaterMarkCallback HighWaterMarkCallback
	CloseCallback         func(c *TcpConnection)

	ctx rctx.Config[string]
}

// NewTcpConnection wraps an already-connected, non-blocking fd under
// name, creating its channel on loop without registering it or
// enabling any interest bit (call Start once every callback is wired).
func NewTcpConnection(loop Loop, name string, fd int, local, peer net.Addr) *TcpConnection {
	c := &TcpConnection{
		loop:          loop,
		name:          name,
		fd:            fd,
		local:         local,
		peer:          peer,
		state:         Connecting,
		input:         libbuf.New(),
		output:        libbuf.New(),
		highWaterMark: 64 * 1024 * 1024,
		ctx:           rctx.New[string](context.Background()),
	}
	c.channel = libchan.New(loop, fd)
	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)
	return c
}

// Name returns the connection's log-correlation name.
func (c *TcpConnection) Name() string { return c.name }

// LocalAddr returns the connection's local endpoint.
func (c *TcpConnection) LocalAddr() net.Addr { return c.local }

// PeerAddr returns the connection's remote endpoint.
func (c *TcpConnection) PeerAddr() net.Addr { return c.peer }

// State returns the connection's current lifecycle state.
func (c *TcpConnection) State() ConnState { return c.state }

// Context returns the opaque per-connection slot a protocol layer
// (e.g. the HTTP parser) attaches its own state to, keyed by a string
// identifying that layer.
func (c *TcpConnection) Context() rctx.Config[string] { return c.ctx }

// Start transitions the connection to Connected, enables read
// readiness and fires ConnectionCallback. Must run on the owning loop.
func (c *TcpConnection) Start() {
	c.loop.AssertInLoopThread()
	c.state = Connected
	c.channel.Tie(c)
	c.channel.EnableReading()
	if c.ConnectionCallback != nil {
		c.ConnectionCallback(c)
	}
}

// StopRead disables read interest without removing the channel from
// its loop, so a handler that is falling behind can apply read-side
// backpressure without tearing the connection down. Safe to call from
// any goroutine.
func (c *TcpConnection) StopRead() {
	c.loop.RunInLoop(func() {
		if c.state == Connected {
			c.channel.DisableReading()
		}
	})
}

// StartRead re-enables read interest after a prior StopRead. Safe to
// call from any goroutine.
func (c *TcpConnection) StartRead() {
	c.loop.RunInLoop(func() {
		if c.state == Connected {
			c.channel.EnableReading()
		}
	})
}

// Send queues data for writing. If the output buffer is currently
// empty and the socket accepts the whole write immediately, no write
// interest is registered at all. Otherwise the remainder is buffered
// and write-readiness drains it. Safe to call from any goroutine.
func (c *TcpConnection) Send(data []byte) {
	if c.loop.IsInLoopThread() {
		c.sendInLoop(data)
		return
	}
	buf := append([]byte(nil), data...)
	c.loop.RunInLoop(func() { c.sendInLoop(buf) })
}

func (c *TcpConnection) sendInLoop(data []byte) {
	if c.state == Disconnected {
		return
	}

	var written int
	if !c.channel.IsWriting() && c.output.ReadableBytes() == 0 {
		n, err := unix.Write(c.fd, data)
		if n > 0 {
			written = n
		}
		if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			return
		}
		if written == len(data) {
			if c.WriteCompleteCallback != nil {
				c.WriteCompleteCallback(c)
			}
			return
		}
	}

	remaining := data[written:]
	c.output.Append(remaining)
	if !c.highWaterHit && c.output.ReadableBytes() >= c.highWaterMark {
		c.highWaterHit = true
		if c.HighWaterMarkCallback != nil {
			c.HighWaterMarkCallback(c, c.output.ReadableBytes())
		}
	}
	if !c.channel.IsWriting() {
		c.channel.EnableWriting()
	}
}

// Shutdown half-closes the write side once the output buffer drains,
// without forcibly severing the read side. Safe to call from any
// goroutine.
func (c *TcpConnection) Shutdown() {
	if c.state != Connected {
		return
	}
	c.loop.RunInLoop(func() {
		if !c.channel.IsWriting() {
			_ = unix.Shutdown(c.fd, unix.SHUT_WR)
		}
		c.state = Disconnecting
	})
}

// ForceClose tears the connection down immediately regardless of
// pending output. Safe to call from any goroutine.
func (c *TcpConnection) ForceClose() {
	if c.state == Connected || c.state == Disconnecting {
		c.state = Disconnecting
		c.loop.QueueInLoop(func() { c.handleClose() })
	}
}

func (c *TcpConnection) handleRead(receiveTime time.Time) {
	n, _ := c.input.ReadFd(fdReader(c.fd))
	if n > 0 {
		if c.MessageCallback != nil {
			c.MessageCallback(c, c.input, receiveTime)
		}
		return
	}
	c.handleClose()
}

func (c *TcpConnection) handleWrite() {
	if !c.channel.IsWriting() {
		return
	}

	data := c.output.Peek()
	n, err := unix.Write(c.fd, data)
	if n > 0 {
		c.output.Retrieve(n)
	}
	if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
		c.handleError()
		return
	}

	if c.output.ReadableBytes() == 0 {
		c.channel.DisableWriting()
		c.highWaterHit = false
		if c.WriteCompleteCallback != nil {
			c.WriteCompleteCallback(c)
		}
		if c.state == Disconnecting {
			_ = unix.Shutdown(c.fd, unix.SHUT_WR)
		}
	}
}

func (c *TcpConnection) handleClose() {
	if c.state == Disconnected {
		return
	}
	c.state = Disconnected
	c.channel.DisableAll()
	c.channel.Remove()
	_ = unix.Close(c.fd)
	if c.ConnectionCallback != nil {
		c.ConnectionCallback(c)
	}
	if c.CloseCallback != nil {
		c.CloseCallback(c)
	}
}

func (c *TcpConnection) handleError() {
	// errno retrieval is best-effort; the subsequent readable/hangup
	// event is what actually drives handleClose.
	_, _ = unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
}
