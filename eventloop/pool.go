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

package eventloop

import (
	"fmt"
	"sync"
)

// Pool owns N IO loops, each run on its own goroutine, and hands them
// out round-robin to a TcpServer's Acceptor. With N == 0, every
// connection is kept on the base loop passed to NewPool.
type Pool struct {
	base *EventLoop

	mu      sync.Mutex
	started bool
	loops   []*EventLoop
	next    int

	wg sync.WaitGroup
}

// NewPool creates a Pool backed by base, the loop the owning
// TcpServer's Acceptor runs on.
func NewPool(base *EventLoop) *Pool {
	return &Pool{base: base}
}

// Start spawns size additional loops, each on its own goroutine,
// waiting for each to report it is ready before returning. size == 0
// leaves the pool empty; GetNextLoop then always returns the base
// loop.
func (p *Pool) Start(size int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("eventloop: pool already started")
	}
	p.started = true

	for i := 0; i < size; i++ {
		ready := make(chan *EventLoop, 1)
		errCh := make(chan error, 1)

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()

			l, err := New()
			if err != nil {
				errCh <- err
				ready <- nil
				return
			}
			ready <- l
			l.Loop()
		}()

		l := <-ready
		if l == nil {
			return <-errCh
		}
		p.loops = append(p.loops, l)
	}

	return nil
}

// GetNextLoop returns the next IO loop in round-robin order, or the
// base loop if the pool has no loops of its own.
func (p *Pool) GetNextLoop() *EventLoop {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.loops) == 0 {
		return p.base
	}
	l := p.loops[p.next]
	p.next = (p.next + 1) % len(p.loops)
	return l
}

// Loops returns a snapshot of the pool's own loops, excluding the base
// loop.
func (p *Pool) Loops() []*EventLoop {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*EventLoop, len(p.loops))
	copy(out, p.loops)
	return out
}

// Stop posts quit to every loop in the pool and waits for their
// goroutines to return.
func (p *Pool) Stop() {
	p.mu.Lock()
	loops := p.loops
	p.mu.Unlock()

	for _, l := range loops {
		l.Quit()
	}
	p.wg.Wait()
}
