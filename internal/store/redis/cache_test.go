package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartengine/internal/breaker"
	"chartengine/internal/model"
)

func unreachable() *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func summary(title string) model.Payload {
	return model.Payload{
		Data:   []model.Trace{{Type: "scatter", Name: "close", Y: model.Series{1, model.Null, 3}}},
		Layout: map[string]any{"title": title},
	}
}

func TestSummaryCache_UnreachableTripsBreaker(t *testing.T) {
	b := breaker.New(1, time.Hour)
	c := NewWithClient(unreachable(), 0, b)
	defer c.Close()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "AAPL")
	require.Error(t, err)
	assert.False(t, ok)
	assert.NotErrorIs(t, err, breaker.ErrCircuitOpen)
	assert.Equal(t, breaker.StateOpen, b.State())

	_, _, err = c.Get(ctx, "AAPL")
	assert.ErrorIs(t, err, breaker.ErrCircuitOpen)
}

func TestSummaryCache_PutHeldWhileOpen(t *testing.T) {
	b := breaker.New(1, time.Hour)
	c := NewWithClient(unreachable(), 0, b)
	defer c.Close()
	ctx := context.Background()

	_, _, _ = c.Get(ctx, "AAPL") // trip
	require.Equal(t, breaker.StateOpen, b.State())

	require.NoError(t, c.Put(ctx, "AAPL", summary("one")))
	require.NoError(t, c.Put(ctx, "AAPL", summary("two")))
	require.NoError(t, c.Put(ctx, "MSFT", summary("three")))
	assert.Equal(t, 2, c.Pending(), "latest write per symbol")
}

func TestSummaryCache_FlushKeepsFailedWrites(t *testing.T) {
	c := NewWithClient(unreachable(), 0, nil)
	defer c.Close()

	c.pending.add("AAPL", []byte(`{}`))
	var flushed = -1
	c.pending.OnFlush = func(n int) { flushed = n }
	c.pending.flush(context.Background())

	assert.Equal(t, 0, flushed)
	assert.Equal(t, 1, c.Pending())
}

func TestPendingPuts_DropsOldestWhenFull(t *testing.T) {
	p := newPendingPuts(nil, 2)
	p.add("a", []byte("1"))
	p.add("b", []byte("2"))
	p.add("a", []byte("3"))
	p.add("c", []byte("4"))

	assert.Equal(t, 2, p.len())
	assert.Equal(t, []string{"b", "c"}, p.order)
	assert.NotContains(t, p.data, "a")
}

func TestPendingPuts_RestoreKeepsNewer(t *testing.T) {
	p := newPendingPuts(nil, 0)
	p.add("a", []byte("new"))
	p.restore("a", []byte("old"))
	assert.Equal(t, []byte("new"), p.data["a"])
}

// Runs against a real server when REDIS_ADDR is set.
func TestSummaryCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	c, err := New(Config{Addr: addr, TTL: time.Minute}, breaker.New(3, time.Second))
	require.NoError(t, err)
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	symbol := "TEST-" + time.Now().Format("150405.000")
	_, ok, err := c.Get(ctx, symbol)
	require.NoError(t, err)
	assert.False(t, ok)

	announced := make(chan string, 1)
	require.NoError(t, c.Subscribe(ctx, func(s string) {
		if s == symbol {
			announced <- s
		}
	}))

	require.NoError(t, c.Put(ctx, symbol, summary("cached")))
	got, ok, err := c.Get(ctx, symbol)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cached", got.Title())
	assert.True(t, model.IsNull(got.Data[0].Y[1]))

	select {
	case s := <-announced:
		assert.Equal(t, symbol, s)
	case <-ctx.Done():
		t.Fatal("no publish for summary write")
	}
	c.Client().Del(ctx, summaryKey(symbol))
}
