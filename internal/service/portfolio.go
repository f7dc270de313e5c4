package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"etodesk/internal/domain"
	"etodesk/internal/ledger"
)

// Portfolio manages the state of all market quotes and pushes price changes
// into the ledger and the order engine. It implements the engine's
// QuoteSource.
type Portfolio struct {
	mu         sync.RWMutex
	tickers    map[string]*domain.Ticker
	ledger     *ledger.Ledger
	onPrice    func(symbol string)
	tickerChan chan []*domain.Ticker
}

// NewPortfolio creates a portfolio service bound to the ledger. onPrice is
// invoked after each symbol's quote is updated; the order engine hangs its
// trigger checks there.
func NewPortfolio(l *ledger.Ledger, onPrice func(symbol string)) *Portfolio {
	if onPrice == nil {
		onPrice = func(string) {}
	}
	return &Portfolio{
		tickers:    make(map[string]*domain.Ticker),
		ledger:     l,
		onPrice:    onPrice,
		tickerChan: make(chan []*domain.Ticker, 1000), // Buffered for feed bursts
	}
}

// Quote returns the live quote for a symbol.
func (p *Portfolio) Quote(symbol string) (domain.Quote, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	t, ok := p.tickers[symbol]
	if !ok {
		return domain.Quote{}, false
	}
	return domain.Quote{Symbol: t.Symbol, Price: t.Price, Liquidity: t.Liquidity}, true
}

// AllTickers returns all known tickers sorted by symbol.
func (p *Portfolio) AllTickers() []domain.Ticker {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]domain.Ticker, 0, len(p.tickers))
	for _, t := range p.tickers {
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// Update applies one ticker: quote table first, then the ledger price, then
// the engine notification. Callers outside the feed (tests, manual pricing)
// use this directly.
func (p *Portfolio) Update(t domain.Ticker) {
	p.mu.Lock()
	copied := t
	p.tickers[t.Symbol] = &copied
	p.mu.Unlock()

	p.ledger.SetPrice(t.Symbol, t.Price)
	p.onPrice(t.Symbol)
}

// TickerChan returns the channel the feed worker publishes into.
func (p *Portfolio) TickerChan() chan<- []*domain.Ticker {
	return p.tickerChan
}

// StartProcessor consumes ticker batches from the channel until the context
// is cancelled.
func (p *Portfolio) StartProcessor(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Info("portfolio processor stopping")
				return
			case batch := <-p.tickerChan:
				for _, t := range batch {
					if t == nil || t.Symbol == "" {
						continue
					}
					p.Update(*t)
				}
			}
		}
	}()
}
