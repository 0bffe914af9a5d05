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

package reactortimer

import (
	"time"

	"golang.org/x/sys/unix"

	libchan "github.com/nabbar/reactor/netchannel"
)

// FdOwner is the subset of EventLoop a timerfd-backed Facility needs
// to register its channel.
type FdOwner interface {
	Loop
	libchan.Owner
}

// FdDriven mounts a Facility's expirations on a Linux timerfd, so the
// owning loop's own poller is what wakes it up instead of a dedicated
// ticker goroutine.
type FdDriven struct {
	*Facility

	fd  int
	ch  *libchan.Channel
}

// NewFdDriven creates a timerfd, wires its readiness to loop, and
// returns the Facility built on top of it. Call Close when the owning
// loop is torn down.
func NewFdDriven(loop FdOwner) (*FdDriven, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, err
	}

	f := &FdDriven{
		Facility: New(loop),
		fd:       fd,
	}
	f.ch = libchan.New(loop, fd)
	f.ch.SetReadCallback(f.handleRead)
	f.ch.EnableReading()

	return f, nil
}

func (f *FdDriven) handleRead(receiveTime time.Time) {
	buf := make([]byte, 8)
	_, _ = unix.Read(f.fd, buf) // drain the expiration counter

	f.Expire(receiveTime)
	f.rearm()
}

// rearm re-programs the timerfd to the nearest pending expiration, or
// disarms it if no timer is scheduled.
func (f *FdDriven) rearm() {
	next := f.NextExpiration()
	var spec unix.ItimerSpec

	if !next.IsZero() {
		d := time.Until(next)
		if d < time.Millisecond {
			d = time.Millisecond
		}
		spec.Value.Sec = int64(d / time.Second)
		spec.Value.Nsec = int64(d % time.Second)
	}

	_ = unix.TimerfdSettime(f.fd, 0, &spec, nil)
}

// RunAt overrides Facility.RunAt to re-arm the timerfd afterward.
func (f *FdDriven) RunAt(when time.Time, cb Callback) TimerId {
	id := f.Facility.RunAt(when, cb)
	f.rearm()
	return id
}

// RunAfter overrides Facility.RunAfter to re-arm the timerfd afterward.
func (f *FdDriven) RunAfter(delay time.Duration, cb Callback) TimerId {
	id := f.Facility.RunAfter(delay, cb)
	f.rearm()
	return id
}

// RunEvery overrides Facility.RunEvery to re-arm the timerfd afterward.
func (f *FdDriven) RunEvery(interval time.Duration, cb Callback) TimerId {
	id := f.Facility.RunEvery(interval, cb)
	f.rearm()
	return id
}

// Close releases the timerfd.
func (f *FdDriven) Close() error {
	return unix.Close(f.fd)
}
