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

package httpproto_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	libbuf "github.com/nabbar/reactor/buffer"
	libhttp "github.com/nabbar/reactor/httpproto"
)

var _ = Describe("Parser", func() {
	It("parses a single GET with no body", func() {
		p := libhttp.New()
		b := libbuf.New()
		b.AppendString("GET /a/b?x=1 HTTP/1.1\r\nHost: example\r\n\r\n")

		res, err := p.Parse(b, time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(res).To(Equal(libhttp.GotRequest))

		req := p.Request()
		Expect(req.Method).To(Equal(libhttp.MethodGet))
		Expect(req.Path).To(Equal("/a/b"))
		Expect(req.RawQuery).To(Equal("x=1"))
		Expect(req.Headers.Get("host")).To(Equal("example"))
	})

	It("emits HeadersComplete then GotRequest for a body delivered in two chunks", func() {
		p := libhttp.New()
		b := libbuf.New()
		b.AppendString("POST /upload HTTP/1.1\r\nContent-Length: 10\r\n\r\n")

		res, err := p.Parse(b, time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(res).To(Equal(libhttp.HeadersComplete))

		b.AppendString("01234")
		res, err = p.Parse(b, time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(res).To(Equal(libhttp.NeedMore))

		b.AppendString("56789")
		res, err = p.Parse(b, time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(res).To(Equal(libhttp.GotRequest))
		Expect(string(p.Request().Body)).To(Equal("0123456789"))
	})

	It("streams the body through BodyChunk instead of buffering it", func() {
		p := libhttp.New()
		var streamed []byte
		p.BodyChunk = func(chunk []byte) { streamed = append(streamed, chunk...) }

		b := libbuf.New()
		b.AppendString("POST /upload HTTP/1.1\r\nContent-Length: 6\r\n\r\nabc")
		res, err := p.Parse(b, time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(res).To(Equal(libhttp.HeadersComplete))
		Expect(p.Request().Body).To(BeEmpty())

		res, err = p.Parse(b, time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(res).To(Equal(libhttp.NeedMore))
		Expect(string(streamed)).To(Equal("abc"))

		b.AppendString("def")
		res, err = p.Parse(b, time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(res).To(Equal(libhttp.GotRequest))
		Expect(string(streamed)).To(Equal("abcdef"))
		Expect(p.Request().Body).To(BeEmpty())
	})

	It("handles pipelined requests after Reset", func() {
		p := libhttp.New()
		b := libbuf.New()
		b.AppendString("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n")

		res, err := p.Parse(b, time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(res).To(Equal(libhttp.GotRequest))
		Expect(p.Request().Path).To(Equal("/a"))

		p.Reset()
		res, err = p.Parse(b, time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(res).To(Equal(libhttp.GotRequest))
		Expect(p.Request().Path).To(Equal("/b"))
	})

	It("emits HeadersComplete for a chunked request and rejects it once body parsing begins", func() {
		p := libhttp.New()
		b := libbuf.New()
		b.AppendString("POST /x HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n")

		res, err := p.Parse(b, time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(res).To(Equal(libhttp.HeadersComplete))

		res, err = p.Parse(b, time.Now())
		Expect(err).To(HaveOccurred())
		Expect(res).To(Equal(libhttp.Error))
	})

	It("rejects a malformed request line", func() {
		p := libhttp.New()
		b := libbuf.New()
		b.AppendString("BOGUS\r\n\r\n")

		res, err := p.Parse(b, time.Now())
		Expect(err).To(HaveOccurred())
		Expect(res).To(Equal(libhttp.Error))
	})

	It("defaults HTTP/1.1 to keep-alive and HTTP/1.0 to close", func() {
		p11 := libhttp.New()
		b11 := libbuf.New()
		b11.AppendString("GET / HTTP/1.1\r\n\r\n")
		_, err := p11.Parse(b11, time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(p11.Request().KeepAlive()).To(BeTrue())

		p10 := libhttp.New()
		b10 := libbuf.New()
		b10.AppendString("GET / HTTP/1.0\r\n\r\n")
		_, err = p10.Parse(b10, time.Now())
		Expect(err).ToNot(HaveOccurred())
		Expect(p10.Request().KeepAlive()).To(BeFalse())
	})
})
