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

// Package netchannel implements Channel, the selectable-IO abstraction
// that dispatches a single file descriptor's readiness events to the
// callbacks its owner (Acceptor, Connector, TcpConnection, or an
// EventLoop's own wakeup fd) has registered. A Channel belongs to
// exactly one EventLoop for its entire lifetime.
package netchannel

import (
	"runtime"
	"sync"
	"time"

	libpoll "github.com/nabbar/reactor/poller"
)

const (
	eventNone  = libpoll.EventNone
	eventRead  = libpoll.EventReadable | libpoll.EventPriority
	eventWrite = libpoll.EventWritable
)

// Owner is the subset of EventLoop a Channel needs: re-registering
// itself when its interest mask changes, and removing itself before
// it is destroyed.
type Owner interface {
	UpdateChannel(c *Channel)
	RemoveChannel(c *Channel)
	AssertInLoopThread()
}

// ReadCallback receives the poll-return timestamp alongside the read
// notification, matching the reactor's readiness-based read path.
type ReadCallback func(receiveTime time.Time)

// EventCallback is used for write, close and error notifications,
// which carry no extra data.
type EventCallback func()

// Channel binds one fd to a loop and fans its readiness events out to
// up to four callbacks, in the fixed dispatch order the reactor
// requires: close, error, read, write.
type Channel struct {
	loop Owner
	fd   int

	events  int
	revents int
	index   int

	eventHandling bool
	addedToLoop   bool

	readCallback  ReadCallback
	writeCallback EventCallback
	closeCallback EventCallback
	errorCallback EventCallback

	mu     sync.Mutex
	hasTie bool
	tie    any
}

func (c *Channel) tied() bool { return c.hasTie }

// New creates a Channel for fd on loop. The channel is not registered
// with the loop until its interest mask is changed via EnableReading
// or EnableWriting.
func New(loop Owner, fd int) *Channel {
	return &Channel{loop: loop, fd: fd, index: -1}
}

// Fd returns the underlying file descriptor.
func (c *Channel) Fd() int { return c.fd }

// Events returns the currently registered interest mask.
func (c *Channel) Events() int { return c.events }

// SetRevents records the events that fired for this fd on the most
// recent poll call; it is called by the Poller, never by user code.
func (c *Channel) SetRevents(revents int) { c.revents = revents }

// Index returns the Poller-private registration state.
func (c *Channel) Index() int { return c.index }

// SetIndex sets the Poller-private registration state.
func (c *Channel) SetIndex(index int) { c.index = index }

// IsNoneEvent reports whether the channel currently has an empty
// interest mask.
func (c *Channel) IsNoneEvent() bool { return c.events == eventNone }

// IsWriting reports whether the write interest bit is set.
func (c *Channel) IsWriting() bool { return c.events&eventWrite != 0 }

// IsReading reports whether the read interest bit is set.
func (c *Channel) IsReading() bool { return c.events&eventRead != 0 }

// SetReadCallback sets the callback invoked when the fd becomes
// readable, the peer half-closes, or out-of-band data arrives.
func (c *Channel) SetReadCallback(cb ReadCallback) { c.readCallback = cb }

// SetWriteCallback sets the callback invoked when the fd becomes
// writable.
func (c *Channel) SetWriteCallback(cb EventCallback) { c.writeCallback = cb }

// SetCloseCallback sets the callback invoked on a hang-up with no
// pending readable data.
func (c *Channel) SetCloseCallback(cb EventCallback) { c.closeCallback = cb }

// SetErrorCallback sets the callback invoked when the poller reports
// an error condition on the fd.
func (c *Channel) SetErrorCallback(cb EventCallback) { c.errorCallback = cb }

// Tie records owner on the channel. The channel holds a strong
// reference to owner, so owner stays reachable for as long as the
// channel does, and HandleEvent keeps it alive for the whole dispatch
// via runtime.KeepAlive. If Tie was called with a nil owner,
// HandleEvent returns without invoking any callback.
func (c *Channel) Tie(owner any) {
	c.mu.Lock()
	c.tie = owner
	c.hasTie = true
	c.mu.Unlock()
}

// EnableReading adds the read interest bit and re-registers with the
// loop's poller.
func (c *Channel) EnableReading() {
	c.events |= eventRead
	c.update()
}

// DisableReading clears the read interest bit, applying read-side
// backpressure without removing the channel from the loop.
func (c *Channel) DisableReading() {
	c.events &^= eventRead
	c.update()
}

// EnableWriting adds the write interest bit.
func (c *Channel) EnableWriting() {
	c.events |= eventWrite
	c.update()
}

// DisableWriting clears the write interest bit.
func (c *Channel) DisableWriting() {
	c.events &^= eventWrite
	c.update()
}

// DisableAll clears the entire interest mask.
func (c *Channel) DisableAll() {
	c.events = eventNone
	c.update()
}

func (c *Channel) update() {
	c.addedToLoop = true
	c.loop.UpdateChannel(c)
}

// Remove detaches the channel from its loop. The interest mask must
// be empty (DisableAll) before calling Remove.
func (c *Channel) Remove() {
	c.addedToLoop = false
	c.loop.RemoveChannel(c)
}

// HandleEvent dispatches the most recently recorded revents to the
// registered callbacks, in order: close, error, read, write. If the
// channel is tied and its owner reference is nil, dispatch is skipped
// entirely.
func (c *Channel) HandleEvent(receiveTime time.Time) {
	c.mu.Lock()
	tied := c.tie
	wasTied := c.tied()
	c.mu.Unlock()

	if wasTied && tied == nil {
		return
	}

	c.eventHandling = true
	c.handleEventWithGuard(receiveTime)
	c.eventHandling = false

	runtime.KeepAlive(tied)
}

func (c *Channel) handleEventWithGuard(receiveTime time.Time) {
	if c.revents&libpoll.EventHangup != 0 && c.revents&libpoll.EventReadable == 0 {
		if c.closeCallback != nil {
			c.closeCallback()
		}
		return
	}

	if c.revents&libpoll.EventError != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}

	if c.revents&(libpoll.EventReadable|libpoll.EventPriority) != 0 {
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
	}

	if c.revents&libpoll.EventWritable != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
