package service

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache holds the latest streamed trade price per symbol. The websocket
// worker feeds it; the dispatcher reads it as a fast path before falling back
// to a REST quote. Entries older than maxAge are treated as absent.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]pricePoint
	maxAge time.Duration
	now    func() time.Time
}

type pricePoint struct {
	price decimal.Decimal
	at    time.Time
}

// NewPriceCache creates a cache whose entries expire after maxAge.
func NewPriceCache(maxAge time.Duration) *PriceCache {
	return &PriceCache{
		prices: make(map[string]pricePoint),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Put stores the latest price for a symbol.
func (c *PriceCache) Put(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = pricePoint{price: price, at: c.now()}
}

// Get returns the cached price for a symbol, or false when the symbol is
// unknown or the entry has gone stale.
func (c *PriceCache) Get(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.prices[symbol]
	if !ok {
		return decimal.Zero, false
	}
	if c.maxAge > 0 && c.now().Sub(p.at) > c.maxAge {
		return decimal.Zero, false
	}
	return p.price, true
}

// Len returns the number of tracked symbols, stale or not.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}
