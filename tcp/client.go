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
	"sync"
	"sync/atomic"

	libtimer "github.com/nabbar/reactor/reactortimer"
)

// TcpClient owns a single Connector and the at-most-one TcpConnection
// it eventually produces, optionally reconnecting forever when the
// connection is lost.
type TcpClient struct {
	loop      Loop
	connector *Connector
	retry     int32

	mu   sync.Mutex
	conn *TcpConnection

	ConnectionCallback ConnectionCallback
	MessageCallback    MessageCallback
}

// NewTcpClient creates a TcpClient that will dial addr once Connect is
// called. timer drives the Connector's retry backoff.
func NewTcpClient(loop Loop, timer *libtimer.Facility, addr string) (*TcpClient, error) {
	c := &TcpClient{loop: loop}

	connector, err := NewConnector(loop, timer, addr)
	if err != nil {
		return nil, err
	}
	connector.NewConnectionCallback = c.newConnection
	c.connector = connector
	return c, nil
}

// EnableRetry controls whether a lost connection is automatically
// redialed. Disabled by default.
func (c *TcpClient) EnableRetry(enable bool) {
	if enable {
		atomic.StoreInt32(&c.retry, 1)
	} else {
		atomic.StoreInt32(&c.retry, 0)
	}
}

// Connect starts the connector. Safe to call from any goroutine.
func (c *TcpClient) Connect() {
	c.connector.Start()
}

// Disconnect stops retrying and force-closes any live connection.
func (c *TcpClient) Disconnect() {
	c.connector.Stop()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.ForceClose()
	}
}

// Connection returns the current connection, or nil if none is
// established.
func (c *TcpClient) Connection() *TcpConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *TcpClient) newConnection(fd int, peer net.Addr) {
	var local net.Addr
	if sa, err := getSockname(fd); err == nil {
		local = addrFromSockaddr(sa)
	}

	conn := NewTcpConnection(c.loop, peer.String(), fd, local, peer)
	conn.ConnectionCallback = c.ConnectionCallback
	conn.MessageCallback = c.MessageCallback
	conn.CloseCallback = c.connectionClosed

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.loop.RunInLoop(conn.Start)
}

func (c *TcpClient) connectionClosed(conn *TcpConnection) {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	if atomic.LoadInt32(&c.retry) == 1 && atomic.LoadInt32(&c.connector.stopped) == 0 {
		c.connector.Start()
	}
}
