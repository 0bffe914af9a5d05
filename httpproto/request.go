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

// Package httpproto implements the incremental HTTP/1.x request parser
// and response assembly the reactor's httpserver binds onto a
// TcpConnection: headers and body are delivered as two separate
// events so a handler can stream a large upload without the parser
// ever buffering the whole body itself.
package httpproto

import (
	"strings"
	"time"
)

// Method is the request's HTTP method, restricted to the literal set
// the parser recognizes.
type Method int

const (
	MethodInvalid Method = iota
	MethodGet
	MethodPost
	MethodHead
	MethodPut
	MethodDelete
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodHead:
		return "HEAD"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	default:
		return "INVALID"
	}
}

func parseMethod(s string) Method {
	switch s {
	case "GET":
		return MethodGet
	case "POST":
		return MethodPost
	case "HEAD":
		return MethodHead
	case "PUT":
		return MethodPut
	case "DELETE":
		return MethodDelete
	default:
		return MethodInvalid
	}
}

// Version is the request line's HTTP version.
type Version int

const (
	VersionUnknown Version = iota
	Version10
	Version11
)

func (v Version) String() string {
	switch v {
	case Version10:
		return "HTTP/1.0"
	case Version11:
		return "HTTP/1.1"
	default:
		return "UNKNOWN"
	}
}

func parseVersion(s string) Version {
	switch s {
	case "HTTP/1.0":
		return Version10
	case "HTTP/1.1":
		return Version11
	default:
		return VersionUnknown
	}
}

// Header is a case-insensitive field mapping that preserves the case
// of the first occurrence of each field on iteration, per spec.md's
// recommendation for the source's ambiguous header-case handling.
type Header struct {
	order []string
	vals  map[string][]string
}

func newHeader() *Header {
	return &Header{vals: make(map[string][]string)}
}

// Add appends value to field, recording field's first-seen case for
// Keys.
func (h *Header) Add(field, value string) {
	key := strings.ToLower(field)
	if _, ok := h.vals[key]; !ok {
		h.order = append(h.order, field)
	}
	h.vals[key] = append(h.vals[key], value)
}

// Get returns the first value for field, case-insensitively, or "" if
// absent.
func (h *Header) Get(field string) string {
	v := h.vals[strings.ToLower(field)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Values returns every value for field, case-insensitively.
func (h *Header) Values(field string) []string {
	return h.vals[strings.ToLower(field)]
}

// Keys returns the fields in first-seen order, with their original
// case.
func (h *Header) Keys() []string {
	return h.order
}

// PathParams is the mapping of named-parameter and wildcard captures
// the router binds onto a matched Request.
type PathParams map[string]string

// Request is the parsed HTTP/1.x request the server hands to a
// handler at GotRequest, once the whole body has been received; the
// server does not hand it over at HeadersComplete.
type Request struct {
	Method      Method
	Version     Version
	Path        string
	RawQuery    string
	Headers     *Header
	PathParams  PathParams
	Body        []byte
	ReceiveTime time.Time

	ContentLength int
	Chunked       bool
}

// KeepAlive reports whether the connection should stay open after this
// request, per spec.md §6: HTTP/1.1 defaults to keep-alive unless the
// request says "Connection: close"; HTTP/1.0 defaults to close unless
// it says "Connection: keep-alive".
func (r *Request) KeepAlive() bool {
	conn := strings.ToLower(strings.TrimSpace(r.Headers.Get("Connection")))
	switch r.Version {
	case Version11:
		return conn != "close"
	case Version10:
		return conn == "keep-alive"
	default:
		return false
	}
}
