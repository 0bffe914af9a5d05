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

// Package httprouter implements the trie (prefix-tree) path router
// spec.md §4.13 mandates over the source's regex-per-route scanner: a
// node per path segment, with a literal-segment map, a single
// named-parameter slot, and a single wildcard slot, searched in
// exact > parameter > wildcard preference order.
package httprouter

import (
	"strings"

	libhttp "github.com/nabbar/reactor/httpproto"
	rerr "github.com/nabbar/reactor/errors"
)

// WildcardParam is the reserved parameter name a "**" segment binds
// the joined remainder of the path to.
const WildcardParam = "*"

// Handler is invoked once a route match is found; req.PathParams has
// already been populated with the match's captures.
type Handler func(req *libhttp.Request, resp *libhttp.Response) bool

type node struct {
	children      map[string]*node
	paramChild    *node
	paramName     string
	wildcardChild *node
	handlers      map[libhttp.Method]Handler
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// Router is a method+path dispatcher built as a trie over
// slash-separated path segments.
type Router struct {
	root *node
}

// New returns an empty Router.
func New() *Router {
	return &Router{root: newNode()}
}

// AddRoute registers handler for method on pattern. A segment
// beginning with ":" becomes a named-parameter capture; the bare
// segment "**" becomes a wildcard matching all remaining segments and
// must be the pattern's last segment.
func (r *Router) AddRoute(pattern string, method libhttp.Method, handler Handler) error {
	segments := splitPath(pattern)
	n := r.root

	for i, seg := range segments {
		switch {
		case seg == "**":
			if i != len(segments)-1 {
				return rerr.New(uint16(rerr.MinPkgRouter+1), "wildcard segment must be the last segment in "+pattern)
			}
			if n.wildcardChild == nil {
				n.wildcardChild = newNode()
			}
			n = n.wildcardChild

		case strings.HasPrefix(seg, ":"):
			name := seg[1:]
			if name == "" {
				return rerr.New(uint16(rerr.MinPkgRouter+2), "empty parameter name in "+pattern)
			}
			if n.paramChild == nil {
				n.paramChild = newNode()
			}
			n.paramName = name
			n = n.paramChild

		default:
			child, ok := n.children[seg]
			if !ok {
				child = newNode()
				n.children[seg] = child
			}
			n = child
		}
	}

	if n.handlers == nil {
		n.handlers = make(map[libhttp.Method]Handler)
	}
	n.handlers[method] = handler
	return nil
}

// Find looks up the handler registered for method at path (any
// "?query" suffix is ignored), in exact > parameter > wildcard
// preference order at every segment. It returns the matched handler
// and the parameters captured along the way, or ok=false if no route
// or no handler for that method matches.
func (r *Router) Find(path string, method libhttp.Method) (handler Handler, params libhttp.PathParams, ok bool) {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	segments := splitPath(path)
	params = libhttp.PathParams{}

	h := find(r.root, segments, method, params)
	if h == nil {
		return nil, nil, false
	}
	return h, params, true
}

func find(n *node, segments []string, method libhttp.Method, params libhttp.PathParams) Handler {
	if len(segments) == 0 {
		if n.handlers == nil {
			return nil
		}
		return n.handlers[method]
	}

	seg, rest := segments[0], segments[1:]

	if child, ok := n.children[seg]; ok {
		if h := find(child, rest, method, params); h != nil {
			return h
		}
	}

	if n.paramChild != nil {
		params[n.paramName] = seg
		if h := find(n.paramChild, rest, method, params); h != nil {
			return h
		}
		delete(params, n.paramName)
	}

	if n.wildcardChild != nil && n.wildcardChild.handlers != nil {
		if h := n.wildcardChild.handlers[method]; h != nil {
			params[WildcardParam] = strings.Join(segments, "/")
			return h
		}
	}

	return nil
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
