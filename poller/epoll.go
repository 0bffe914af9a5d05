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

package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

const (
	// channel registration states, mirroring "never registered",
	// "registered and active" and "registered but interest is empty".
	stateNew = iota
	stateAdded
	stateDeleted
)

type epollPoller struct {
	epfd     int
	events   []unix.EpollEvent
	channels map[int]ChannelState
}

func newEpollPoller() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		epfd:     fd,
		events:   make([]unix.EpollEvent, 16),
		channels: make(map[int]ChannelState),
	}, nil
}

func toEpollEvents(events int) uint32 {
	var e uint32
	if events&EventReadable != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventPriority != 0 {
		e |= unix.EPOLLPRI
	}
	if events&EventWritable != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func fromEpollEvents(e uint32) int {
	var r int
	if e&unix.EPOLLIN != 0 {
		r |= EventReadable
	}
	if e&unix.EPOLLPRI != 0 {
		r |= EventPriority
	}
	if e&unix.EPOLLOUT != 0 {
		r |= EventWritable
	}
	if e&unix.EPOLLERR != 0 {
		r |= EventError
	}
	if e&unix.EPOLLHUP != 0 {
		r |= EventHangup
	}
	return r
}

func (p *epollPoller) Poll(timeout time.Duration, active *[]ChannelState) (time.Time, error) {
	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	n, err := unix.EpollWait(p.epfd, p.events, ms)
	now := time.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil
		}
		return now, err
	}

	*active = (*active)[:0]
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		if c, ok := p.channels[fd]; ok {
			c.SetRevents(fromEpollEvents(p.events[i].Events))
			*active = append(*active, c)
		}
	}

	if n == len(p.events) {
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}
	return now, nil
}

func (p *epollPoller) UpdateChannel(c ChannelState) error {
	fd := c.Fd()
	ev := unix.EpollEvent{Events: toEpollEvents(c.Events()), Fd: int32(fd)}

	switch c.Index() {
	case stateNew, stateDeleted:
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return err
		}
		c.SetIndex(stateAdded)
		p.channels[fd] = c
	default:
		if c.Events() == EventNone {
			if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &ev); err != nil {
				return err
			}
			c.SetIndex(stateDeleted)
			return nil
		}
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
			return err
		}
	}
	return nil
}

func (p *epollPoller) RemoveChannel(c ChannelState) error {
	fd := c.Fd()
	delete(p.channels, fd)
	if c.Index() == stateAdded {
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
			return err
		}
	}
	c.SetIndex(stateNew)
	return nil
}

func (p *epollPoller) HasChannel(c ChannelState) bool {
	_, ok := p.channels[c.Fd()]
	return ok
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
