package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chartengine/internal/breaker"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
)

// Chart API endpoints, one per progressive phase.
const (
	EndpointBasic    = "/api/basic-chart"
	EndpointEnhanced = "/api/enhanced-chart"
	EndpointComplete = "/api/complete-analysis"
)

// Source fetches chart payloads.
type Source interface {
	Fetch(ctx context.Context, endpoint, symbol, period string) (model.Payload, error)
}

// Fetcher is a Source backed by the chart HTTP API.
type Fetcher struct {
	baseURL string
	client  *http.Client
	breaker *breaker.Breaker
	metrics *metrics.Metrics
}

var _ Source = (*Fetcher)(nil)

// NewFetcher creates a fetcher for the API at baseURL. client and b may be
// nil; a nil breaker lets every call through.
func NewFetcher(baseURL string, client *http.Client, b *breaker.Breaker, m *metrics.Metrics) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		breaker: b,
		metrics: m,
	}
}

type fetchBody struct {
	Symbol string `json:"symbol"`
	Period string `json:"period,omitempty"`
}

// Fetch posts {symbol, period} to endpoint and decodes the plotting payload.
// Network failures, non-2xx statuses, undecodable bodies and an open breaker
// all wrap ErrTransport. Cancellation is returned as the context's error.
func (f *Fetcher) Fetch(ctx context.Context, endpoint, symbol, period string) (model.Payload, error) {
	var payload model.Payload
	start := time.Now()

	call := func(ctx context.Context) error {
		p, err := f.do(ctx, endpoint, symbol, period)
		payload = p
		return err
	}

	var err error
	if f.breaker != nil {
		err = f.breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	f.metrics.ObserveFetch(endpoint, time.Since(start))

	switch {
	case err == nil:
		return payload, nil
	case ctx.Err() != nil:
		return model.Payload{}, ctx.Err()
	case errors.Is(err, breaker.ErrCircuitOpen):
		return model.Payload{}, fmt.Errorf("%w: %s: %w", ErrTransport, endpoint, err)
	default:
		return model.Payload{}, err
	}
}

func (f *Fetcher) do(ctx context.Context, endpoint, symbol, period string) (model.Payload, error) {
	body, err := json.Marshal(fetchBody{Symbol: symbol, Period: period})
	if err != nil {
		return model.Payload{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return model.Payload{}, fmt.Errorf("%w: %s: %v", ErrTransport, endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return model.Payload{}, ctx.Err()
		}
		return model.Payload{}, fmt.Errorf("%w: %s: %v", ErrTransport, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Payload{}, fmt.Errorf("%w: %s: status %d: %s", ErrTransport, endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var p model.Payload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		if ctx.Err() != nil {
			return model.Payload{}, ctx.Err()
		}
		return model.Payload{}, fmt.Errorf("%w: %s: decode payload: %v", ErrTransport, endpoint, err)
	}
	return p, nil
}
