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

package netchannel_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	libchan "github.com/nabbar/reactor/netchannel"
	libpoll "github.com/nabbar/reactor/poller"
)

type fakeOwner struct {
	updated int
	removed int
}

func (f *fakeOwner) UpdateChannel(c *libchan.Channel) { f.updated++ }
func (f *fakeOwner) RemoveChannel(c *libchan.Channel) { f.removed++ }
func (f *fakeOwner) AssertInLoopThread()              {}

var _ = Describe("Channel", func() {
	It("re-registers with the loop when the interest mask changes", func() {
		owner := &fakeOwner{}
		c := libchan.New(owner, 5)

		c.EnableReading()
		Expect(c.IsReading()).To(BeTrue())
		Expect(owner.updated).To(Equal(1))

		c.DisableAll()
		Expect(c.IsNoneEvent()).To(BeTrue())
		Expect(owner.updated).To(Equal(2))

		c.Remove()
		Expect(owner.removed).To(Equal(1))
	})

	It("dispatches close before error before read before write", func() {
		owner := &fakeOwner{}
		c := libchan.New(owner, 5)

		var order []string
		c.SetCloseCallback(func() { order = append(order, "close") })
		c.SetErrorCallback(func() { order = append(order, "error") })
		c.SetReadCallback(func(time.Time) { order = append(order, "read") })
		c.SetWriteCallback(func() { order = append(order, "write") })

		c.SetRevents(libpoll.EventError | libpoll.EventReadable | libpoll.EventWritable)
		c.HandleEvent(time.Now())

		Expect(order).To(Equal([]string{"error", "read", "write"}))
	})

	It("treats hangup without readable as a close with no other callback firing", func() {
		owner := &fakeOwner{}
		c := libchan.New(owner, 5)

		var order []string
		c.SetCloseCallback(func() { order = append(order, "close") })
		c.SetReadCallback(func(time.Time) { order = append(order, "read") })

		c.SetRevents(libpoll.EventHangup)
		c.HandleEvent(time.Now())

		Expect(order).To(Equal([]string{"close"}))
	})

	It("skips dispatch entirely once its tied owner has dropped its reference", func() {
		owner := &fakeOwner{}
		c := libchan.New(owner, 5)

		fired := false
		c.SetReadCallback(func(time.Time) { fired = true })
		c.Tie(nil)

		c.SetRevents(libpoll.EventReadable)
		c.HandleEvent(time.Now())

		Expect(fired).To(BeFalse())
	})
})
