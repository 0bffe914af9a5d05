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

// pollPoller is the simple, O(n)-per-call backend selected by
// USE_POLL=1. It re-builds its pollfd slice from the registered
// channel set on every call, trading scalability for the simplicity
// the original reactor's alternate backend offered.
type pollPoller struct {
	channels map[int]ChannelState
}

func newPollPoller() (Poller, error) {
	return &pollPoller{channels: make(map[int]ChannelState)}, nil
}

func toPollEvents(events int) int16 {
	var e int16
	if events&EventReadable != 0 {
		e |= unix.POLLIN
	}
	if events&EventPriority != 0 {
		e |= unix.POLLPRI
	}
	if events&EventWritable != 0 {
		e |= unix.POLLOUT
	}
	return e
}

func fromPollEvents(e int16) int {
	var r int
	if e&unix.POLLIN != 0 {
		r |= EventReadable
	}
	if e&unix.POLLPRI != 0 {
		r |= EventPriority
	}
	if e&unix.POLLOUT != 0 {
		r |= EventWritable
	}
	if e&unix.POLLERR != 0 {
		r |= EventError
	}
	if e&unix.POLLHUP != 0 {
		r |= EventHangup
	}
	return r
}

func (p *pollPoller) Poll(timeout time.Duration, active *[]ChannelState) (time.Time, error) {
	fds := make([]unix.PollFd, 0, len(p.channels))
	order := make([]int, 0, len(p.channels))
	for fd, c := range p.channels {
		if c.Events() == EventNone {
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(c.Events())})
		order = append(order, fd)
	}

	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}

	n, err := unix.Poll(fds, ms)
	now := time.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil
		}
		return now, err
	}

	*active = (*active)[:0]
	if n == 0 {
		return now, nil
	}
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		if c, ok := p.channels[order[i]]; ok {
			c.SetRevents(fromPollEvents(pfd.Revents))
			*active = append(*active, c)
		}
	}
	return now, nil
}

func (p *pollPoller) UpdateChannel(c ChannelState) error {
	p.channels[c.Fd()] = c
	if c.Index() == stateNew {
		c.SetIndex(stateAdded)
	}
	if c.Events() == EventNone {
		c.SetIndex(stateDeleted)
	}
	return nil
}

func (p *pollPoller) RemoveChannel(c ChannelState) error {
	delete(p.channels, c.Fd())
	c.SetIndex(stateNew)
	return nil
}

func (p *pollPoller) HasChannel(c ChannelState) bool {
	_, ok := p.channels[c.Fd()]
	return ok
}

func (p *pollPoller) Close() error {
	return nil
}
