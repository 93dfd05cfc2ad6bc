package redis

import (
	"context"
	"log"
	"sync"
)

const defaultMaxPending = 1000

// pendingPuts holds summary writes rejected by an open circuit. Only the
// latest write per symbol is kept; when full, the oldest symbol is dropped.
type pendingPuts struct {
	cache *SummaryCache

	mu    sync.Mutex
	data  map[string][]byte
	order []string
	max   int

	// OnFlush is called after held writes are replayed.
	OnFlush func(count int)
}

func newPendingPuts(c *SummaryCache, max int) *pendingPuts {
	if max <= 0 {
		max = defaultMaxPending
	}
	return &pendingPuts{cache: c, data: make(map[string][]byte), max: max}
}

func (p *pendingPuts) add(symbol string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.data[symbol]; !ok {
		if len(p.order) >= p.max {
			oldest := p.order[0]
			p.order = p.order[1:]
			delete(p.data, oldest)
			log.Printf("[redis] summary buffer full, dropped %s", oldest)
		}
		p.order = append(p.order, symbol)
	}
	p.data[symbol] = data
}

// restore re-holds a write unless a newer one arrived meanwhile.
func (p *pendingPuts) restore(symbol string, data []byte) {
	p.mu.Lock()
	_, newer := p.data[symbol]
	p.mu.Unlock()
	if !newer {
		p.add(symbol, data)
	}
}

func (p *pendingPuts) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.data)
}

// flush replays held writes. Writes that fail again are held for the next
// flush.
func (p *pendingPuts) flush(ctx context.Context) {
	p.mu.Lock()
	data, order := p.data, p.order
	p.data, p.order = make(map[string][]byte), nil
	p.mu.Unlock()

	if len(order) == 0 {
		return
	}

	flushed := 0
	for _, symbol := range order {
		if err := p.cache.write(ctx, symbol, data[symbol]); err != nil {
			p.restore(symbol, data[symbol])
			continue
		}
		flushed++
	}
	log.Printf("[redis] flushed %d/%d held summaries", flushed, len(order))
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
}
