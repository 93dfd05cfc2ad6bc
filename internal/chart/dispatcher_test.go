package chart

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartengine/internal/indicator"
	"chartengine/internal/model"
	"chartengine/internal/worker"
)

func closeSeries(n int) model.OHLCV {
	d := candlePayload(n, "")
	data, _ := d.ExtractOHLCV()
	return data
}

func jsonOf(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestDispatcher_DefaultTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Second, DefaultTaskTimeout)
	assert.Equal(t, DefaultTaskTimeout, NewDispatcher(indicator.NewEngine()).timeout)
}

func TestDispatcher_SyncFallbackMatchesWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := indicator.NewEngine()
	data := closeSeries(60)
	params := model.Params{Period: 14}

	withWorker := NewDispatcher(engine, WithWorker(worker.Start(ctx, engine)))
	defer withWorker.Close()
	require.True(t, withWorker.HasWorker())
	remote, err := withWorker.Calculate(ctx, model.KindRSI, data, params)
	require.NoError(t, err)

	noWorker := NewDispatcher(engine)
	require.False(t, noWorker.HasWorker())
	local, err := noWorker.Calculate(ctx, model.KindRSI, data, params)
	require.NoError(t, err)

	assert.Equal(t, jsonOf(t, local), jsonOf(t, remote))
	assert.Zero(t, withWorker.Pending())
}

func TestDispatcher_MultiLineResultOverWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := indicator.NewEngine()
	d := NewDispatcher(engine, WithWorker(worker.Start(ctx, engine)))
	defer d.Close()

	res, err := d.Calculate(ctx, model.KindStochastic, closeSeries(40), model.Params{KPeriod: 5, DPeriod: 3})
	require.NoError(t, err)
	require.NotNil(t, res.Stochastic)
	assert.Len(t, res.Stochastic.D, 40)
}

func TestDispatcher_TimeoutRejectsAndRemovesTask(t *testing.T) {
	conn := newSilentConn()
	d := NewDispatcher(indicator.NewEngine(), WithWorker(conn), WithTaskTimeout(50*time.Millisecond), WithTaskIDs(sequentialIDs()))
	defer d.Close()

	start := time.Now()
	_, err := d.Calculate(context.Background(), model.KindSMA, closeSeries(10), model.Params{Period: 3})
	assert.ErrorIs(t, err, ErrComputationTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Zero(t, d.Pending(), "timed-out task must leave the pending set")

	msg := <-conn.sent
	assert.Equal(t, "task-1", msg.TaskID)
}

func TestDispatcher_LateResponseIsDiscarded(t *testing.T) {
	conn := newSilentConn()
	d := NewDispatcher(indicator.NewEngine(), WithWorker(conn), WithTaskTimeout(20*time.Millisecond), WithTaskIDs(sequentialIDs()))
	defer d.Close()

	_, err := d.Calculate(context.Background(), model.KindSMA, closeSeries(10), model.Params{Period: 3})
	require.ErrorIs(t, err, ErrComputationTimeout)

	// The reader goroutine must swallow an answer nobody waits for.
	conn.responses <- worker.Response{TaskID: "task-1", Success: true, Result: json.RawMessage(`[1]`)}
	assert.Zero(t, d.Pending())
}

func TestDispatcher_ContextCancelRemovesTask(t *testing.T) {
	conn := newSilentConn()
	d := NewDispatcher(indicator.NewEngine(), WithWorker(conn))
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := d.Calculate(ctx, model.KindEMA, closeSeries(10), model.Params{Period: 3})
		errc <- err
	}()
	require.Eventually(t, func() bool { return d.Pending() == 1 }, time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Zero(t, d.Pending())
}

func TestDispatcher_SendFailureFallsBack(t *testing.T) {
	conn := newSilentConn()
	conn.sendErr = errors.New("pipe broken")
	d := NewDispatcher(indicator.NewEngine(), WithWorker(conn))
	defer d.Close()

	res, err := d.Calculate(context.Background(), model.KindSMA, model.OHLCV{Close: model.Series{1, 2, 3, 4, 5}}, model.Params{Period: 3})
	require.NoError(t, err)
	assert.Equal(t, model.Series{2, 3, 4}, res.Series.Compact())
	assert.Zero(t, d.Pending())
}

func TestDispatcher_WorkerGoneFailsPendingThenFallsBack(t *testing.T) {
	conn := newSilentConn()
	d := NewDispatcher(indicator.NewEngine(), WithWorker(conn))

	errc := make(chan error, 1)
	go func() {
		_, err := d.Calculate(context.Background(), model.KindSMA, closeSeries(10), model.Params{Period: 3})
		errc <- err
	}()
	require.Eventually(t, func() bool { return d.Pending() == 1 }, time.Second, time.Millisecond)

	conn.Close()
	assert.ErrorIs(t, <-errc, ErrWorkerClosed)
	require.Eventually(t, func() bool { return !d.HasWorker() }, time.Second, time.Millisecond)

	_, err := d.Calculate(context.Background(), model.KindSMA, closeSeries(10), model.Params{Period: 3})
	assert.NoError(t, err, "sync fallback after the worker is gone")
}

func TestDispatcher_CloseFailsPendingTasks(t *testing.T) {
	conn := newSilentConn()
	d := NewDispatcher(indicator.NewEngine(), WithWorker(conn))

	errc := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := d.Calculate(context.Background(), model.KindEMA, closeSeries(10), model.Params{Period: 3})
			errc <- err
		}()
	}
	require.Eventually(t, func() bool { return d.Pending() == 2 }, time.Second, time.Millisecond)

	failed, err := d.Close()
	require.NoError(t, err)
	assert.Equal(t, 2, failed)
	assert.True(t, conn.closed.Load())
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, <-errc, ErrWorkerClosed)
	}

	failed, err = d.Close()
	assert.NoError(t, err)
	assert.Zero(t, failed)
}

func TestDispatcher_RemoteInvalidInput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := indicator.NewEngine()
	d := NewDispatcher(engine, WithWorker(worker.Start(ctx, engine)))
	defer d.Close()

	_, err := d.Calculate(ctx, model.KindRSI, model.OHLCV{Close: model.Series{1, 2}}, model.Params{Period: 14})
	assert.ErrorIs(t, err, indicator.ErrInvalidInput)
}

func TestDispatcher_BatchOverWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := indicator.NewEngine()
	d := NewDispatcher(engine, WithWorker(worker.Start(ctx, engine)))
	defer d.Close()

	reqs := []model.Request{
		{Kind: model.KindEMA, Name: "ema_5", Params: model.Params{Period: 5}},
		{Kind: model.KindMACD},
		{Kind: model.KindSMA, Name: "too_long", Params: model.Params{Period: 999}},
	}
	out, err := d.Batch(ctx, reqs, closeSeries(50))
	require.NoError(t, err)
	assert.Contains(t, out.Results, "ema_5")
	require.Contains(t, out.Results, "macd")
	assert.NotNil(t, out.Results["macd"].MACD)
	assert.Contains(t, out.Errors, "too_long")
}

func TestDispatcher_SupportedFromInit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := indicator.NewEngine()
	d := NewDispatcher(engine, WithWorker(worker.Start(ctx, engine)))
	defer d.Close()

	assert.ElementsMatch(t, model.Kinds, d.Supported())
}
