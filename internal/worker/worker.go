package worker

import (
	"context"
	"errors"
	"sync"

	"chartengine/internal/indicator"
)

// ErrClosed is returned by Send once the worker has been closed.
var ErrClosed = errors.New("worker closed")

// Conn is a message-passing connection to an indicator engine.
type Conn interface {
	// Send delivers msg to the engine. It blocks until the engine accepts
	// the message, ctx is done, or the connection is closed.
	Send(ctx context.Context, msg Message) error
	// Responses yields engine responses, starting with the init
	// announcement. The channel is closed when the connection ends.
	Responses() <-chan Response
	Close() error
}

// Worker is an in-process engine running on its own goroutine. Messages are
// handled one at a time in arrival order.
type Worker struct {
	engine *indicator.Engine
	in     chan Message
	out    chan Response

	done      chan struct{}
	closeOnce sync.Once
}

var _ Conn = (*Worker)(nil)

// New creates a worker around engine. Call Run (usually in a goroutine)
// before sending.
func New(engine *indicator.Engine) *Worker {
	return &Worker{
		engine: engine,
		in:     make(chan Message, 64),
		out:    make(chan Response, 64),
		done:   make(chan struct{}),
	}
}

// Start runs the worker in a new goroutine and returns it.
func Start(ctx context.Context, engine *indicator.Engine) *Worker {
	w := New(engine)
	go w.Run(ctx)
	return w
}

// Run announces readiness and then serves messages. Blocks until ctx is done
// or Close is called; the response channel is closed on return.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.out)

	if !w.emit(ctx, initResponse(w.engine.Supported())) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case msg := <-w.in:
			if !w.emit(ctx, Handle(w.engine, msg)) {
				return
			}
		}
	}
}

func (w *Worker) emit(ctx context.Context, resp Response) bool {
	select {
	case w.out <- resp:
		return true
	case <-ctx.Done():
		return false
	case <-w.done:
		return false
	}
}

// Send queues msg for the worker goroutine.
func (w *Worker) Send(ctx context.Context, msg Message) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.in <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrClosed
	}
}

// Responses returns the worker's response stream.
func (w *Worker) Responses() <-chan Response { return w.out }

// Close terminates the worker. Queued messages are dropped.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return nil
}
