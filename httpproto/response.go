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

package httpproto

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Response is filled in by a handler and serialized by httpserver into
// an RFC-7230-conforming status line, header block and body.
type Response struct {
	StatusCode int
	Header     *Header
	Body       []byte
}

// NewResponse returns an empty 200 OK response with no headers.
func NewResponse() *Response {
	return &Response{StatusCode: http.StatusOK, Header: newHeader()}
}

// SetHeader sets field to value, replacing any prior value(s).
func (r *Response) SetHeader(field, value string) {
	key := strings.ToLower(field)
	if _, ok := r.Header.vals[key]; !ok {
		r.Header.order = append(r.Header.order, field)
	}
	r.Header.vals[key] = []string{value}
}

// WriteString sets the body to s and Content-Length accordingly.
func (r *Response) WriteString(s string) {
	r.Body = []byte(s)
}

// Write sets the body to b and Content-Length accordingly.
func (r *Response) Write(b []byte) {
	r.Body = b
}

// Bytes serializes the response line, headers (Content-Length computed
// from the body unless the header already holds one, Connection set by
// the caller beforehand),
// the terminating blank line, then the body.
func (r *Response) Bytes() []byte {
	status := http.StatusText(r.StatusCode)
	if status == "" {
		status = "Unknown"
	}

	out := make([]byte, 0, 256+len(r.Body))
	out = append(out, fmt.Sprintf("HTTP/1.1 %d %s\r\n", r.StatusCode, status)...)

	hasContentLength := false
	for _, k := range r.Header.Keys() {
		if strings.EqualFold(k, "Content-Length") {
			hasContentLength = true
		}
		for _, v := range r.Header.Values(k) {
			out = append(out, k...)
			out = append(out, ": "...)
			out = append(out, v...)
			out = append(out, "\r\n"...)
		}
	}
	if !hasContentLength {
		out = append(out, "Content-Length: "...)
		out = append(out, strconv.Itoa(len(r.Body))...)
		out = append(out, "\r\n"...)
	}
	out = append(out, "\r\n"...)
	out = append(out, r.Body...)
	return out
}

// NotFound returns the default 404 response spec.md §4.14 mandates
// when no route matches, with Connection: close forced by the caller.
func NotFound() *Response {
	r := NewResponse()
	r.StatusCode = http.StatusNotFound
	r.WriteString("Not Found")
	return r
}

// BadRequest returns the response sent when the parser reports Error.
func BadRequest() *Response {
	r := NewResponse()
	r.StatusCode = http.StatusBadRequest
	r.WriteString("Bad Request")
	return r
}
