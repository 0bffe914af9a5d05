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

// Package httpserver binds httpproto's parser and httprouter's trie
// onto a tcp.TcpServer, translating parse events into handler
// invocations per spec.md §4.14: headers-complete looks the matching
// route up and keeps it, a complete request goes to that route, an
// unmatched path gets the default 404. A handler runs once per
// request, after the whole body has been received; it is not invoked
// at headers-complete.
package httpserver

import (
	"time"

	libbuf "github.com/nabbar/reactor/buffer"
	libhttp "github.com/nabbar/reactor/httpproto"
	libroute "github.com/nabbar/reactor/httprouter"
	libtcp "github.com/nabbar/reactor/tcp"
)

const contextKey = "httpserver.parseState"

// parseState is the per-connection protocol state attached to
// TcpConnection.Context(), the first and primary user of that opaque
// slot per spec.md §4.12.
type parseState struct {
	parser   *libhttp.Parser
	adopted  bool
	handler  libroute.Handler
	response *libhttp.Response
}

// HttpServer composes a tcp.TcpServer with an httprouter.Router,
// feeding every incoming buffer through one httpproto.Parser per
// connection.
type HttpServer struct {
	tcp    *libtcp.TcpServer
	router *libroute.Router

	// NotFoundHandler overrides the default "404 Not Found, Connection:
	// close" response when set.
	NotFoundHandler libroute.Handler
}

// New wraps srv, wiring its message callback to drive router through
// the HTTP parser. srv must not have Listen called on it yet.
func New(srv *libtcp.TcpServer, router *libroute.Router) *HttpServer {
	h := &HttpServer{tcp: srv, router: router}
	srv.MessageCallback = h.onMessage
	srv.ConnectionCallback = h.onConnection
	return h
}

// Router returns the router routes are registered against.
func (h *HttpServer) Router() *libroute.Router {
	return h.router
}

// Listen starts accepting connections.
func (h *HttpServer) Listen() {
	h.tcp.Listen()
}

// Shutdown closes the listening socket and every live connection.
func (h *HttpServer) Shutdown() error {
	return h.tcp.Shutdown()
}

func (h *HttpServer) onConnection(conn *libtcp.TcpConnection) {
	if conn.State() != libtcp.Connected {
		return
	}
	st := &parseState{parser: libhttp.New()}
	conn.Context().Store(contextKey, st)
}

func (h *HttpServer) getState(conn *libtcp.TcpConnection) *parseState {
	v, ok := conn.Context().Load(contextKey)
	if !ok {
		return nil
	}
	return v.(*parseState)
}

func (h *HttpServer) onMessage(conn *libtcp.TcpConnection, buf *libbuf.Buffer, receiveTime time.Time) {
	st := h.getState(conn)
	if st == nil {
		return
	}

	for {
		result, err := st.parser.Parse(buf, receiveTime)
		switch result {
		case libhttp.NeedMore:
			return

		case libhttp.Error:
			h.reply(conn, libhttp.BadRequest(), true)
			_ = err
			conn.ForceClose()
			return

		case libhttp.HeadersComplete:
			h.dispatchHeadersComplete(conn, st)

		case libhttp.GotRequest:
			h.dispatchGotRequest(conn, st)
			st.parser.Reset()
			st.adopted = false
			st.handler = nil
			st.response = nil
		}
	}
}

// dispatchHeadersComplete looks the route up once the headers are
// known and keeps the handler, with the captured path parameters, for
// dispatchGotRequest. It does not invoke the handler: the body keeps
// accumulating in the parser and the handler runs once, at GotRequest.
func (h *HttpServer) dispatchHeadersComplete(conn *libtcp.TcpConnection, st *parseState) {
	req := st.parser.Request()
	handler, params, ok := h.router.Find(req.Path, req.Method)
	if !ok {
		st.handler = nil
		return
	}
	req.PathParams = params
	st.handler = handler
}

func (h *HttpServer) dispatchGotRequest(conn *libtcp.TcpConnection, st *parseState) {
	req := st.parser.Request()

	handler := st.handler
	if handler == nil {
		handler, req.PathParams, _ = h.router.Find(req.Path, req.Method)
	}

	if handler == nil {
		resp := h.notFound(req)
		h.reply(conn, resp, true)
		return
	}

	resp := libhttp.NewResponse()
	synchronous := handler(req, resp)
	if !synchronous {
		// The handler has adopted the connection; it will eventually
		// call conn.Send itself and, if it wants to, conn.Shutdown.
		return
	}

	h.reply(conn, resp, !req.KeepAlive())
}

func (h *HttpServer) notFound(req *libhttp.Request) *libhttp.Response {
	resp := libhttp.NewResponse()
	if h.NotFoundHandler != nil {
		h.NotFoundHandler(req, resp)
		return resp
	}
	return libhttp.NotFound()
}

func (h *HttpServer) reply(conn *libtcp.TcpConnection, resp *libhttp.Response, close bool) {
	if close {
		resp.SetHeader("Connection", "close")
	} else {
		resp.SetHeader("Connection", "keep-alive")
	}
	conn.Send(resp.Bytes())
	if close {
		conn.Shutdown()
	}
}
