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

// Package poller implements the readiness-polling abstraction an
// EventLoop drives on every iteration. Two backends satisfy the same
// Poller interface: an epoll-based one (the default on Linux) and a
// poll(2)-based one selected by setting USE_POLL=1, matching the two
// interchangeable demultiplexer backends the reactor core requires.
package poller

import (
	"os"
	"time"
)

// Event bits, modeled after POLLIN/POLLOUT/POLLERR/POLLHUP so both
// backends can expose the same interest and revents vocabulary.
const (
	EventNone     = 0
	EventReadable = 1 << iota
	EventWritable
	EventError
	EventHangup
	EventPriority
)

// ChannelState is the contract a registered channel must satisfy for
// a Poller to track it: a stable file descriptor, the events it is
// currently interested in, a slot to receive the events that fired,
// and an opaque index the backend uses to tell "never registered"
// apart from "registered, possibly with an empty interest mask".
type ChannelState interface {
	Fd() int
	Events() int
	SetRevents(revents int)
	Index() int
	SetIndex(index int)
}

// Poller is the readiness demultiplexer contract: poll for ready
// channels, and keep channel registration current as interest masks
// change.
type Poller interface {
	// Poll blocks up to timeout waiting for ready channels. It returns
	// the channels with their SetRevents already populated and the
	// time the poll call returned.
	Poll(timeout time.Duration, active *[]ChannelState) (time.Time, error)
	// UpdateChannel registers a channel or applies a changed interest
	// mask for an already-registered one.
	UpdateChannel(c ChannelState) error
	// RemoveChannel unregisters a channel. The channel's interest mask
	// must be empty before removal.
	RemoveChannel(c ChannelState) error
	// HasChannel reports whether c is currently registered.
	HasChannel(c ChannelState) bool
	// Close releases the backend's own descriptor (epoll fd or
	// poll(2)'s bookkeeping has none, but the interface stays uniform).
	Close() error
}

// New returns the default backend, selecting the poll(2) backend when
// the USE_POLL environment variable is set to a non-empty value other
// than "0", and the epoll backend otherwise.
func New() (Poller, error) {
	if v := os.Getenv("USE_POLL"); v != "" && v != "0" {
		return newPollPoller()
	}
	return newEpollPoller()
}
