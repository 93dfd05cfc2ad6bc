package chart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chartengine/internal/indicator"
	"chartengine/internal/logger"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
	"chartengine/internal/worker"
)

// DefaultTaskTimeout bounds every worker round-trip.
const DefaultTaskTimeout = 5 * time.Second

// errSend marks a message the worker never accepted; the dispatcher falls
// back to computing it in-process.
var errSend = errors.New("send to worker")

// Dispatcher sends indicator work to a worker and matches responses back to
// the waiting caller by task id. Without a worker, or once the worker is
// gone, it computes synchronously with the same engine.
type Dispatcher struct {
	engine  *indicator.Engine
	conn    worker.Conn
	timeout time.Duration
	newID   func() string
	metrics *metrics.Metrics
	log     *slog.Logger

	mu        sync.Mutex
	pending   map[string]chan worker.Response
	supported []model.Kind
	alive     bool
	closed    bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorker routes computations through conn. The dispatcher owns conn and
// closes it in Close.
func WithWorker(conn worker.Conn) DispatcherOption {
	return func(d *Dispatcher) { d.conn = conn }
}

// WithTaskTimeout overrides DefaultTaskTimeout.
func WithTaskTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithTaskIDs replaces the uuid task id generator.
func WithTaskIDs(next func() string) DispatcherOption {
	return func(d *Dispatcher) { d.newID = next }
}

// WithDispatchMetrics records compute latency, timeouts and pending tasks.
func WithDispatchMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithDispatchLogger sets the logger; slog.Default is used otherwise.
func WithDispatchLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// NewDispatcher creates a dispatcher over engine.
func NewDispatcher(engine *indicator.Engine, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		engine:  engine,
		timeout: DefaultTaskTimeout,
		newID:   func() string { return uuid.NewString() },
		log:     slog.Default(),
		pending: make(map[string]chan worker.Response),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.conn != nil {
		d.alive = true
		go d.readLoop()
	}
	return d
}

func (d *Dispatcher) readLoop() {
	for resp := range d.conn.Responses() {
		if resp.IsInit() {
			d.mu.Lock()
			d.supported = resp.SupportedIndicators
			d.mu.Unlock()
			d.log.Debug("worker ready", "supported", resp.SupportedIndicators)
			continue
		}

		d.mu.Lock()
		ch, ok := d.pending[resp.TaskID]
		if ok {
			delete(d.pending, resp.TaskID)
			ch <- resp
		}
		n := len(d.pending)
		d.mu.Unlock()
		d.metrics.SetPending(n)

		if !ok {
			// Answered after its timeout or for a cancelled caller.
			d.log.Debug("discarding response for unknown task", "task_id", resp.TaskID)
		}
	}

	d.mu.Lock()
	d.alive = false
	failed := d.failPendingLocked()
	d.mu.Unlock()
	d.metrics.SetPending(0)
	if failed > 0 {
		d.log.Warn("worker connection ended with tasks pending", "failed", failed)
	}
}

// failPendingLocked closes every pending channel; waiters see ErrWorkerClosed.
func (d *Dispatcher) failPendingLocked() int {
	n := len(d.pending)
	for id, ch := range d.pending {
		close(ch)
		delete(d.pending, id)
	}
	return n
}

// Calculate computes one indicator, on the worker when one is available.
func (d *Dispatcher) Calculate(ctx context.Context, kind model.Kind, data model.OHLCV, params model.Params) (model.Result, error) {
	start := time.Now()
	if !d.usable() {
		return d.calculateSync(kind, data, params, start)
	}

	msg, err := worker.NewMessage(d.newID(), kind, data, params)
	if err != nil {
		return model.Result{}, err
	}
	resp, err := d.roundTrip(ctx, msg)
	if errors.Is(err, errSend) {
		d.log.Warn("worker unavailable, computing synchronously", append(logger.LogWithLoad(ctx), "kind", kind, "error", err)...)
		return d.calculateSync(kind, data, params, start)
	}
	if err == nil {
		err = remoteError(resp)
	}
	if err != nil {
		d.metrics.ObserveCompute("worker", string(kind), time.Since(start), err)
		return model.Result{}, err
	}

	res, err := model.DecodeResult(kind, resp.Result)
	d.metrics.ObserveCompute("worker", string(kind), time.Since(start), err)
	return res, err
}

func (d *Dispatcher) calculateSync(kind model.Kind, data model.OHLCV, params model.Params, start time.Time) (model.Result, error) {
	res, err := d.engine.Compute(model.Request{Kind: kind, Params: params}, data)
	d.metrics.ObserveCompute("sync", string(kind), time.Since(start), err)
	return res, err
}

// Batch computes several indicators over one dataset in a single round-trip.
// Per-indicator failures are reported in the result's Errors; the returned
// error covers only the round-trip itself.
func (d *Dispatcher) Batch(ctx context.Context, reqs []model.Request, data model.OHLCV) (model.BatchResult, error) {
	start := time.Now()
	if !d.usable() {
		return d.batchSync(reqs, data, start), nil
	}

	msg, err := worker.NewBatchMessage(d.newID(), reqs, data)
	if err != nil {
		return model.BatchResult{}, err
	}
	resp, err := d.roundTrip(ctx, msg)
	if errors.Is(err, errSend) {
		d.log.Warn("worker unavailable, computing batch synchronously", append(logger.LogWithLoad(ctx), "error", err)...)
		return d.batchSync(reqs, data, start), nil
	}
	if err == nil {
		err = remoteError(resp)
	}
	if err != nil {
		d.metrics.ObserveCompute("worker", string(model.KindBatch), time.Since(start), err)
		return model.BatchResult{}, err
	}

	out, err := model.DecodeBatchResult(reqs, resp.Result)
	d.metrics.ObserveCompute("worker", string(model.KindBatch), time.Since(start), err)
	return out, err
}

func (d *Dispatcher) batchSync(reqs []model.Request, data model.OHLCV, start time.Time) model.BatchResult {
	out := d.engine.Batch(reqs, data)
	d.metrics.ObserveCompute("sync", string(model.KindBatch), time.Since(start), nil)
	return out
}

func (d *Dispatcher) usable() bool {
	if d.conn == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.alive && !d.closed
}

// roundTrip registers msg as pending, sends it and waits for its response,
// the task timeout, ctx, or the worker going away. The task is removed from
// the pending set on every path.
func (d *Dispatcher) roundTrip(ctx context.Context, msg worker.Message) (worker.Response, error) {
	ch := make(chan worker.Response, 1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return worker.Response{}, ErrWorkerClosed
	}
	if !d.alive {
		d.mu.Unlock()
		return worker.Response{}, fmt.Errorf("%w: worker connection ended", errSend)
	}
	d.pending[msg.TaskID] = ch
	n := len(d.pending)
	d.mu.Unlock()
	d.metrics.SetPending(n)

	if err := d.conn.Send(ctx, msg); err != nil {
		d.remove(msg.TaskID)
		if ctx.Err() != nil {
			return worker.Response{}, ctx.Err()
		}
		return worker.Response{}, fmt.Errorf("%w: %v", errSend, err)
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return worker.Response{}, fmt.Errorf("%w: task %s", ErrWorkerClosed, msg.TaskID)
		}
		return resp, nil
	case <-timer.C:
		d.remove(msg.TaskID)
		d.metrics.ObserveTimeout()
		d.log.Warn("worker task timed out", append(logger.LogWithLoad(ctx),
			"task_id", msg.TaskID, "type", msg.Type, "timeout", d.timeout)...)
		return worker.Response{}, fmt.Errorf("%w: task %s (%s) after %s", ErrComputationTimeout, msg.TaskID, msg.Type, d.timeout)
	case <-ctx.Done():
		d.remove(msg.TaskID)
		return worker.Response{}, ctx.Err()
	}
}

func (d *Dispatcher) remove(taskID string) {
	d.mu.Lock()
	delete(d.pending, taskID)
	n := len(d.pending)
	d.mu.Unlock()
	d.metrics.SetPending(n)
}

// remoteError turns a failed response into an error. Invalid input reported
// by the worker wraps indicator.ErrInvalidInput like the synchronous path.
func remoteError(resp worker.Response) error {
	if resp.Success {
		return nil
	}
	prefix := indicator.ErrInvalidInput.Error()
	if rest, ok := strings.CutPrefix(resp.Error, prefix); ok {
		return fmt.Errorf("%w%s", indicator.ErrInvalidInput, rest)
	}
	return errors.New(resp.Error)
}

// Pending returns the number of tasks awaiting a response.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Supported returns the kinds announced by the worker, or the engine's own
// kinds when there is no worker or it has not announced yet.
func (d *Dispatcher) Supported() []model.Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.supported) > 0 {
		return d.supported
	}
	return d.engine.Supported()
}

// HasWorker reports whether computations are currently routed to a worker.
func (d *Dispatcher) HasWorker() bool { return d.usable() }

// Close fails every pending task with ErrWorkerClosed and terminates the
// worker. It returns the number of tasks that were failed. Later calls
// compute synchronously.
func (d *Dispatcher) Close() (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, nil
	}
	d.closed = true
	failed := d.failPendingLocked()
	d.mu.Unlock()
	d.metrics.SetPending(0)

	if d.conn == nil {
		return failed, nil
	}
	err := d.conn.Close()
	return failed, err
}
