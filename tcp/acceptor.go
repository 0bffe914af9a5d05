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

// Package tcp implements the reactor's connection-oriented layer:
// Acceptor, Connector, TcpConnection, TcpServer and TcpClient, all
// built on non-blocking sockets driven by netchannel.Channel and
// eventloop.EventLoop.
package tcp

import (
	"net"
	"time"

	"golang.org/x/sys/unix"

	libchan "github.com/nabbar/reactor/netchannel"

	rerr "github.com/nabbar/reactor/errors"
)

// NewConnectionCallback is invoked with the accepted connection's fd
// and its peer address.
type NewConnectionCallback func(fd int, peer net.Addr)

// Acceptor owns a non-blocking listening socket and reacts to
// readability by accepting exactly one connection per event. It
// defends against file-descriptor exhaustion with a pre-opened
// scratch descriptor: on EMFILE it closes the scratch fd, accepts and
// immediately drops the incoming connection (rejecting it instead of
// leaving it in the accept queue), then reopens the scratch fd.
type Acceptor struct {
	listenFd int
	channel  *libchan.Channel
	scratch  int

	listening bool

	NewConnectionCallback NewConnectionCallback
}

// NewAcceptor creates a listening socket bound to addr (host:port),
// configured with SO_REUSEADDR and, when reusePort is set,
// SO_REUSEPORT, and creates its channel on loop without registering
// it or enabling reading (call Listen).
func NewAcceptor(loop libchan.Owner, addr string, reusePort bool) (*Acceptor, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, rerr.New(uint16(rerr.MinPkgAcceptor+1), "resolve listen address", err)
	}

	domain := unix.AF_INET
	if tcpAddr.IP != nil && tcpAddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, rerr.New(uint16(rerr.MinPkgAcceptor+2), "create listening socket", err)
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, rerr.New(uint16(rerr.MinPkgAcceptor+3), "set SO_REUSEADDR", err)
	}
	if reusePort {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	}

	sa, err := sockaddrFromTCPAddr(tcpAddr)
	if err != nil {
		_ = unix.Close(fd)
		return nil, rerr.New(uint16(rerr.MinPkgAcceptor+4), "build bind address", err)
	}
	if err = unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, rerr.New(uint16(rerr.MinPkgAcceptor+5), "bind listening socket", err)
	}
	if err = unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return nil, rerr.New(uint16(rerr.MinPkgAcceptor+6), "listen on bound socket", err)
	}

	scratch, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = unix.Close(fd)
		return nil, rerr.New(uint16(rerr.MinPkgAcceptor+7), "open scratch descriptor", err)
	}

	a := &Acceptor{listenFd: fd, scratch: scratch}
	a.channel = libchan.New(loop, fd)
	a.channel.SetReadCallback(a.handleRead)

	return a, nil
}

// Listen enables accept readiness.
func (a *Acceptor) Listen() {
	a.listening = true
	a.channel.EnableReading()
}

// Addr returns the listening socket's bound local address, useful
// when NewAcceptor was given a ":0" port and the kernel picked one.
func (a *Acceptor) Addr() (net.Addr, error) {
	sa, err := getSockname(a.listenFd)
	if err != nil {
		return nil, err
	}
	return addrFromSockaddr(sa), nil
}

func (a *Acceptor) handleRead(time.Time) {
	fd, sa, err := unix.Accept4(a.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EMFILE {
			a.acceptAndDropUnderFdExhaustion()
		}
		return
	}

	if a.NewConnectionCallback != nil {
		a.NewConnectionCallback(fd, addrFromSockaddr(sa))
	}
}

// acceptAndDropUnderFdExhaustion implements the scratch-fd dance: the
// listener has no spare descriptor to accept with, so it frees the
// one it reserved, drains exactly one connection off the accept
// queue and discards it, then reopens the scratch descriptor so the
// next EMFILE can be handled the same way.
func (a *Acceptor) acceptAndDropUnderFdExhaustion() {
	_ = unix.Close(a.scratch)
	fd, _, err := unix.Accept4(a.listenFd, unix.SOCK_CLOEXEC)
	if err == nil {
		_ = unix.Close(fd)
	}
	a.scratch, _ = unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
}

// Close releases the listening socket, its channel and the scratch
// descriptor.
func (a *Acceptor) Close() error {
	a.channel.DisableAll()
	a.channel.Remove()
	_ = unix.Close(a.scratch)
	return unix.Close(a.listenFd)
}

func sockaddrFromTCPAddr(addr *net.TCPAddr) (unix.Sockaddr, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		var sa unix.SockaddrInet4
		sa.Port = addr.Port
		copy(sa.Addr[:], ip4)
		return &sa, nil
	}
	var sa unix.SockaddrInet6
	sa.Port = addr.Port
	if addr.IP != nil {
		copy(sa.Addr[:], addr.IP.To16())
	}
	return &sa, nil
}

func getSockname(fd int) (unix.Sockaddr, error) {
	return unix.Getsockname(fd)
}

func addrFromSockaddr(sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(v.Addr[:]), Port: v.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(v.Addr[:]), Port: v.Port}
	default:
		return nil
	}
}
