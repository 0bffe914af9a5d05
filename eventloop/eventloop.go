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

// Package eventloop implements the one-goroutine-per-loop reactor core:
// EventLoop polls a Demultiplexer, dispatches ready channels in the
// order the poller reports them, then drains cross-thread task queue under the
// swap-then-execute pattern so tasks posted from within a running task
// are deferred to the next iteration instead of running unbounded.
package eventloop

import (
	"encoding/binary"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	libchan "github.com/nabbar/reactor/netchannel"
	libpoll "github.com/nabbar/reactor/poller"
)

// Task is a unit of work posted to a loop, either run inline (when the
// caller is already on the loop's goroutine) or queued for the next
// iteration.
type Task func()

// EventLoop runs on exactly one goroutine for its entire life. All
// Channel registration and task execution performed by that goroutine
// is race-free by construction; cross-goroutine callers must go
// through RunInLoop/QueueInLoop.
type EventLoop struct {
	poller libpoll.Poller

	tid int64 // goroutine-affinity token, set by Loop()

	quitFlag int32

	mu      sync.Mutex
	pending []Task

	wakeupFd   int
	wakeupChan *libchan.Channel

	activeChannels   []libpoll.ChannelState
	callingPending    bool
	eventHandling     bool
	iterationTimeout  time.Duration
}

// New creates an EventLoop with a fresh Poller and a wakeup channel,
// but does not start polling; call Loop on the goroutine that will own
// it.
func New() (*EventLoop, error) {
	p, err := libpoll.New()
	if err != nil {
		return nil, err
	}

	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	l := &EventLoop{
		poller:           p,
		wakeupFd:         fd,
		iterationTimeout: 10 * time.Second,
	}
	l.wakeupChan = libchan.New(l, fd)
	l.wakeupChan.SetReadCallback(l.handleWakeup)
	l.wakeupChan.EnableReading()
	return l, nil
}

// Loop must be called on the goroutine that will own this loop for its
// entire life. It returns once Quit has been posted and the poll call
// that observes it wakes up, after running the tasks still pending.
func (l *EventLoop) Loop() {
	// Pin this goroutine to its OS thread for the lifetime of the loop,
	// so IsInLoopThread can compare OS thread ids instead of needing a
	// Go-level goroutine identity, which the runtime does not expose.
	runtime.LockOSThread()
	atomic.StoreInt64(&l.tid, int64(unix.Gettid()))

	for atomic.LoadInt32(&l.quitFlag) == 0 {
		l.activeChannels = l.activeChannels[:0]
		_, err := l.poller.Poll(l.iterationTimeout, &l.activeChannels)
		if err != nil {
			continue
		}

		l.eventHandling = true
		for _, c := range l.activeChannels {
			if ch, ok := c.(*libchan.Channel); ok {
				ch.HandleEvent(time.Now())
			}
		}
		l.eventHandling = false

		l.doPendingTasks()
	}

	// tasks queued before Quit was observed still run once
	l.doPendingTasks()
}

// Quit is thread-safe and may be called from any goroutine. It causes
// Loop to return once the current or next poll call wakes up.
func (l *EventLoop) Quit() {
	atomic.StoreInt32(&l.quitFlag, 1)
	if !l.IsInLoopThread() {
		l.Wakeup()
	}
}

// RunInLoop executes task immediately if called from the loop's own
// goroutine, otherwise it is queued via QueueInLoop.
func (l *EventLoop) RunInLoop(task Task) {
	if l.IsInLoopThread() {
		task()
	} else {
		l.QueueInLoop(task)
	}
}

// QueueInLoop appends task to the pending list and wakes the loop if
// the caller is not the loop's own goroutine, or if the loop is
// currently draining its pending list (so a task queued by another
// pending task still gets picked up promptly).
func (l *EventLoop) QueueInLoop(task Task) {
	l.mu.Lock()
	l.pending = append(l.pending, task)
	shouldWake := !l.IsInLoopThread() || l.callingPending
	l.mu.Unlock()

	if shouldWake {
		l.Wakeup()
	}
}

func (l *EventLoop) doPendingTasks() {
	l.mu.Lock()
	l.callingPending = true
	tasks := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, t := range tasks {
		t()
	}

	l.mu.Lock()
	l.callingPending = false
	l.mu.Unlock()
}

// Wakeup writes to the loop's eventfd so a blocked Poll call returns
// immediately.
func (l *EventLoop) Wakeup() {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 1)
	_, _ = unix.Write(l.wakeupFd, buf)
}

func (l *EventLoop) handleWakeup(time.Time) {
	buf := make([]byte, 8)
	_, _ = unix.Read(l.wakeupFd, buf)
}

// UpdateChannel registers c with this loop's poller. Must be called
// from the loop's own goroutine.
func (l *EventLoop) UpdateChannel(c *libchan.Channel) {
	_ = l.poller.UpdateChannel(c)
}

// RemoveChannel unregisters c from this loop's poller. Must be called
// from the loop's own goroutine.
func (l *EventLoop) RemoveChannel(c *libchan.Channel) {
	_ = l.poller.RemoveChannel(c)
}

// AssertInLoopThread panics if called from a goroutine other than the
// loop's own; used to catch accidental cross-goroutine channel
// mutation during development.
func (l *EventLoop) AssertInLoopThread() {
	if !l.IsInLoopThread() {
		panic("eventloop: channel operation off the owning loop's goroutine")
	}
}

// IsInLoopThread reports whether the caller is running on this loop's
// own goroutine.
func (l *EventLoop) IsInLoopThread() bool {
	return atomic.LoadInt64(&l.tid) == int64(unix.Gettid())
}

// Close releases the loop's poller and wakeup descriptor. Call after
// Loop has returned.
func (l *EventLoop) Close() error {
	_ = l.wakeupChan
	_ = unix.Close(l.wakeupFd)
	return l.poller.Close()
}
