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

// Package reactortimer implements the timer facility an EventLoop
// mounts on a single timerfd: one descriptor whose readiness reflects
// the nearest pending expiration, backing runAt/runAfter/runEvery with
// O(log n) scheduling via a min-heap ordered by expiration time.
package reactortimer

import (
	"container/heap"
	"sync"
	"time"
)

// TimerId identifies a scheduled timer for Cancel. The zero value
// never matches a real timer.
type TimerId uint64

// Callback is invoked when a timer fires.
type Callback func()

type entry struct {
	id       TimerId
	expires  time.Time
	interval time.Duration // zero for one-shot timers
	repeat   bool
	cb       Callback
	index    int // heap.Interface bookkeeping
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].expires.Before(h[j].expires) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Loop is the subset of eventloop.EventLoop the Facility needs: timer
// callbacks must run on the owning loop's goroutine.
type Loop interface {
	RunInLoop(task func())
	AssertInLoopThread()
}

// Facility schedules callbacks against a monotonic clock. A single
// Facility is normally mounted on one EventLoop, driven externally by
// whatever backs the owning loop's timerfd channel (see
// reactortimer.NewFdDriven for the Linux timerfd wiring); SetClock
// exists purely so tests can step time deterministically.
type Facility struct {
	loop Loop

	mu        sync.Mutex
	heap      entryHeap
	byId      map[TimerId]*entry
	cancelled map[TimerId]bool
	nextId    uint64

	nowFn func() time.Time
}

// New creates a Facility whose callbacks are dispatched through loop.
func New(loop Loop) *Facility {
	return &Facility{
		loop:      loop,
		byId:      make(map[TimerId]*entry),
		cancelled: make(map[TimerId]bool),
		nowFn:     time.Now,
	}
}

// RunAt schedules cb to run once at when.
func (f *Facility) RunAt(when time.Time, cb Callback) TimerId {
	return f.schedule(when, 0, false, cb)
}

// RunAfter schedules cb to run once after delay.
func (f *Facility) RunAfter(delay time.Duration, cb Callback) TimerId {
	return f.schedule(f.now().Add(delay), 0, false, cb)
}

// RunEvery schedules cb to run repeatedly every interval, starting one
// interval from now.
func (f *Facility) RunEvery(interval time.Duration, cb Callback) TimerId {
	return f.schedule(f.now().Add(interval), interval, true, cb)
}

func (f *Facility) now() time.Time {
	return f.nowFn()
}

// SetClock overrides the clock used by RunAfter/RunEvery to compute
// expirations, for deterministic tests. Production code never calls
// this; a Facility from New uses time.Now.
func (f *Facility) SetClock(fn func() time.Time) {
	f.mu.Lock()
	f.nowFn = fn
	f.mu.Unlock()
}

func (f *Facility) schedule(when time.Time, interval time.Duration, repeat bool, cb Callback) TimerId {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextId++
	id := TimerId(f.nextId)
	e := &entry{id: id, expires: when, interval: interval, repeat: repeat, cb: cb}
	heap.Push(&f.heap, e)
	f.byId[id] = e
	return id
}

// Cancel removes a pending timer. If called while that timer's
// callback is currently executing, the repeating re-insertion that
// would otherwise follow is suppressed instead.
func (f *Facility) Cancel(id TimerId) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled[id] = true
	if e, ok := f.byId[id]; ok && e.index >= 0 && e.index < len(f.heap) && f.heap[e.index] == e {
		heap.Remove(&f.heap, e.index)
		delete(f.byId, id)
	}
}

// NextExpiration returns the nearest pending expiration, or the zero
// Time if no timer is scheduled.
func (f *Facility) NextExpiration() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.heap) == 0 {
		return time.Time{}
	}
	return f.heap[0].expires
}

// Expire pops every entry whose expiration has passed, executes their
// callbacks (via the owning loop, so it is safe for a callback to
// schedule or cancel further timers), and re-arms repeating entries
// whose cancellation was not requested during their own callback.
func (f *Facility) Expire(now time.Time) {
	var fired []*entry

	f.mu.Lock()
	for len(f.heap) > 0 && !f.heap[0].expires.After(now) {
		e := heap.Pop(&f.heap).(*entry)
		delete(f.byId, e.id)
		fired = append(fired, e)
	}
	f.mu.Unlock()

	for _, e := range fired {
		id := e.id
		cb := e.cb
		f.loop.RunInLoop(func() {
			cb()

			f.mu.Lock()
			wasCancelled := f.cancelled[id]
			delete(f.cancelled, id)
			f.mu.Unlock()

			if e.repeat && !wasCancelled {
				e.expires = e.expires.Add(e.interval)
				f.mu.Lock()
				heap.Push(&f.heap, e)
				f.byId[id] = e
				f.mu.Unlock()
			}
		})
	}
}
