/*
MIT License

Copyright (c) 2019 Nicolas JUHEL

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package context

import (
	"context"
)

// MapManage is the slot storage a Config exposes alongside the
// context.Context it wraps. TcpConnection uses exactly this surface to
// attach protocol state to a connection (see tcp.TcpConnection.Context
// and httpserver's per-connection parser state).
type MapManage[T comparable] interface {
	// Clean removes every key-value pair from the map. Safe for
	// concurrent use alongside Load/Store/Delete.
	Clean()
	// Load returns the value stored for key, and whether it was found.
	Load(key T) (val interface{}, ok bool)
	// Store sets the value for key. A nil value is ignored: nothing
	// is stored and any existing value for key is kept.
	Store(key T, cfg interface{})
	// Delete removes the value stored for key, if any.
	Delete(key T)
}

// Context exposes the context.Context a Config wraps.
type Context interface {
	// GetContext returns the underlying context.Context, or
	// context.Background if none was supplied to New.
	GetContext() context.Context
}

// Config is a context.Context carrying a comparable-keyed slot store
// alongside it, used to attach opaque per-connection state (protocol
// parser state, handler bookkeeping) without threading extra
// parameters through every callback.
type Config[T comparable] interface {
	context.Context
	MapManage[T]
	Context
}

// New returns a Config wrapping ctx, or context.Background if ctx is
// nil.
func New[T comparable](ctx context.Context) Config[T] {
	if ctx == nil {
		ctx = context.Background()
	}

	return &ccx[T]{x: ctx}
}

// NewConfig is a shortcut for New.
//
// Deprecated: see New
func NewConfig[T comparable](ctx context.Context) Config[T] {
	return New[T](ctx)
}
