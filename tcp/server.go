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
	"fmt"
	"net"
	"sync"

	uuid "github.com/hashicorp/go-uuid"

	errpool "github.com/nabbar/reactor/errors/pool"
)

// LoopProvider hands out the loop a newly accepted connection should
// be bound to, letting TcpServer spread load across an eventloop.Pool
// without importing it directly.
type LoopProvider interface {
	GetNextLoop() Loop
}

// TcpServer owns an Acceptor bound to its own Loop and fans every
// accepted connection out to a LoopProvider, naming each connection
// "<name>-<peer>#<sequence>-<tag>" for log correlation, where tag is
// the first 8 characters of a random UUID ("0" if none could be
// generated).
type TcpServer struct {
	name string
	loop Loop
	next LoopProvider

	acceptor *Acceptor

	mu    sync.Mutex
	conns map[string]*TcpConnection
	seq   uint64

	ConnectionCallback ConnectionCallback
	MessageCallback    MessageCallback
}

// NewTcpServer creates a TcpServer named name, listening on addr, with
// loop owning the Acceptor itself and next handing out the loop each
// accepted connection is bound to (use loop itself for a single-loop
// server).
func NewTcpServer(loop Loop, next LoopProvider, name, addr string, reusePort bool) (*TcpServer, error) {
	s := &TcpServer{
		name:  name,
		loop:  loop,
		next:  next,
		conns: make(map[string]*TcpConnection),
	}

	a, err := NewAcceptor(loop, addr, reusePort)
	if err != nil {
		return nil, err
	}
	a.NewConnectionCallback = s.newConnection
	s.acceptor = a
	return s, nil
}

// Listen starts accepting connections. Must be called once, after
// ConnectionCallback/MessageCallback are wired.
func (s *TcpServer) Listen() {
	s.loop.RunInLoop(s.acceptor.Listen)
}

// Addr returns the listening socket's bound local address.
func (s *TcpServer) Addr() (net.Addr, error) {
	return s.acceptor.Addr()
}

func (s *TcpServer) newConnection(fd int, peer net.Addr) {
	connLoop := s.next.GetNextLoop()

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	tag, err := uuid.GenerateUUID()
	if err != nil {
		tag = "0"
	} else {
		tag = tag[:8]
	}
	name := fmt.Sprintf("%s-%s#%d-%s", s.name, peer.String(), seq, tag)

	var local net.Addr
	if sa, err := getSockname(fd); err == nil {
		local = addrFromSockaddr(sa)
	}

	conn := NewTcpConnection(connLoop, name, fd, local, peer)
	conn.ConnectionCallback = s.ConnectionCallback
	conn.MessageCallback = s.MessageCallback
	conn.CloseCallback = s.removeConnection

	s.mu.Lock()
	s.conns[name] = conn
	s.mu.Unlock()

	connLoop.RunInLoop(conn.Start)
}

func (s *TcpServer) removeConnection(c *TcpConnection) {
	s.mu.Lock()
	delete(s.conns, c.Name())
	s.mu.Unlock()
}

// Shutdown closes the listening socket and force-closes every
// currently open connection, collecting any close errors into a
// single pool.Error.
func (s *TcpServer) Shutdown() error {
	pool := errpool.New()

	done := make(chan struct{})
	s.loop.RunInLoop(func() {
		if err := s.acceptor.Close(); err != nil {
			pool.Add(err)
		}
		close(done)
	})
	<-done

	s.mu.Lock()
	conns := make([]*TcpConnection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.ForceClose()
	}

	return pool.Error()
}

// ConnectionCount returns the number of currently tracked connections.
func (s *TcpServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
