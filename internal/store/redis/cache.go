// Package redis stores complete-analysis summaries in Redis so a reload can
// show the last summary before anything is fetched.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"chartengine/internal/breaker"
	"chartengine/internal/model"
)

const (
	defaultSummaryTTL = 30 * time.Minute
	summaryKeyPrefix  = "chart:summary:"
	summaryChannel    = "pub:summary:"
)

// Config configures the summary cache.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration
}

// SummaryCache keeps one summary payload per symbol with a TTL and announces
// every write on pub:summary:<symbol>. Calls go through a circuit breaker;
// writes rejected by an open circuit are held and flushed once it closes.
type SummaryCache struct {
	client  *goredis.Client
	ttl     time.Duration
	breaker *breaker.Breaker
	pending *pendingPuts
}

// New connects to Redis and pings the server.
func New(cfg Config, b *breaker.Breaker) (*SummaryCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg.TTL, b), nil
}

// NewWithClient wraps an existing client. b may be nil.
func NewWithClient(client *goredis.Client, ttl time.Duration, b *breaker.Breaker) *SummaryCache {
	if ttl <= 0 {
		ttl = defaultSummaryTTL
	}
	c := &SummaryCache{client: client, ttl: ttl, breaker: b}
	c.pending = newPendingPuts(c, 0)
	if b != nil {
		prev := b.OnStateChange
		b.OnStateChange = func(from, to breaker.State) {
			if prev != nil {
				prev(from, to)
			}
			if to == breaker.StateClosed {
				go c.pending.flush(context.Background())
			}
		}
	}
	return c
}

// Client returns the underlying Redis client for health checks.
func (c *SummaryCache) Client() *goredis.Client { return c.client }

func summaryKey(symbol string) string { return summaryKeyPrefix + symbol }

// Get returns the cached summary for symbol. A miss is (zero, false, nil).
func (c *SummaryCache) Get(ctx context.Context, symbol string) (model.Payload, bool, error) {
	var raw []byte
	miss := false
	err := c.do(ctx, func(ctx context.Context) error {
		b, err := c.client.Get(ctx, summaryKey(symbol)).Bytes()
		if errors.Is(err, goredis.Nil) {
			miss = true
			return nil
		}
		raw = b
		return err
	})
	if err != nil {
		return model.Payload{}, false, fmt.Errorf("redis GET %s: %w", summaryKey(symbol), err)
	}
	if miss {
		return model.Payload{}, false, nil
	}

	var p model.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Payload{}, false, fmt.Errorf("decode summary %s: %w", symbol, err)
	}
	return p, true, nil
}

// Put stores p under symbol and publishes it, in one pipeline. While the
// circuit is open the write is held and nil is returned.
func (c *SummaryCache) Put(ctx context.Context, symbol string, p model.Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode summary %s: %w", symbol, err)
	}
	err = c.write(ctx, symbol, data)
	if errors.Is(err, breaker.ErrCircuitOpen) {
		c.pending.add(symbol, data)
		return nil
	}
	return err
}

func (c *SummaryCache) write(ctx context.Context, symbol string, data []byte) error {
	return c.do(ctx, func(ctx context.Context) error {
		pipe := c.client.Pipeline()
		pipe.Set(ctx, summaryKey(symbol), data, c.ttl)
		pipe.Publish(ctx, summaryChannel+symbol, symbol)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis summary pipeline: %w", err)
		}
		return nil
	})
}

// Subscribe calls fn with the symbol of every summary written by any
// process until ctx ends.
func (c *SummaryCache) Subscribe(ctx context.Context, fn func(symbol string)) error {
	sub := c.client.PSubscribe(ctx, summaryChannel+"*")
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("redis PSUBSCRIBE: %w", err)
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn(msg.Payload)
			}
		}
	}()
	return nil
}

// Pending returns the number of writes held while the circuit is open.
func (c *SummaryCache) Pending() int { return c.pending.len() }

// Close closes the client.
func (c *SummaryCache) Close() error { return c.client.Close() }

func (c *SummaryCache) do(ctx context.Context, fn func(context.Context) error) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Do(ctx, fn)
}
