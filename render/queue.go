// Package render drives a display from an in-memory image.
//
// A Renderer converts the invalidated part of a source image into RGB565
// bands and hands them to a Flusher, reusing two band buffers so one can be
// filled while the other is on the wire. A Queue makes any Flusher
// asynchronous by moving the transfers to a worker goroutine.
package render

import (
	"errors"
	"sync"

	"github.com/flavioheleno/st7735"
)

// ErrClosed is returned by Queue.Flush once the queue is closed.
var ErrClosed = errors.New("render: queue closed")

// Flusher presents a buffer of wire-format RGB565 pixels inside an area and
// calls done exactly once when the buffer can be reused.
//
// *st7735.Dev and *Queue implement it.
type Flusher interface {
	Flush(a st7735.Area, pix []byte, done func(error)) error
}

type job struct {
	a    st7735.Area
	pix  []byte
	done func(error)
}

// Queue runs flushes one at a time, in submission order, on its own
// goroutine.
type Queue struct {
	f    Flusher
	jobs chan job
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewQueue starts a worker flushing to f. Up to depth flushes can be
// pending before Flush blocks; depth below 1 means 1.
func NewQueue(f Flusher, depth int) *Queue {
	if depth < 1 {
		depth = 1
	}
	q := &Queue{f: f, jobs: make(chan job, depth)}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.wg.Done()
	for j := range q.jobs {
		// The error is delivered to done.
		_ = q.f.Flush(j.a, j.pix, j.done)
	}
}

// Flush queues the transfer and returns. done is called from the worker
// goroutine; it must not wait on the queue.
//
// pix must not be modified until done is called.
func (q *Queue) Flush(a st7735.Area, pix []byte, done func(error)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		if done != nil {
			done(ErrClosed)
		}
		return ErrClosed
	}
	q.jobs <- job{a: a, pix: pix, done: done}
	return nil
}

// Close waits for the pending flushes to complete and stops the worker.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

var _ Flusher = &Queue{}
var _ Flusher = &st7735.Dev{}
