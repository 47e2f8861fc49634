package datastore

import (
	"context"
	"fmt"
	"sync"

	"github.com/chensirou3/Multi-factor-combination/internal/bar"
)

// InMemorySource is an in-memory Source for tests and tooling.
type InMemorySource struct {
	mu     sync.RWMutex
	series map[string]*bar.Series
}

// NewInMemorySource creates a new InMemorySource.
func NewInMemorySource() *InMemorySource {
	return &InMemorySource{series: make(map[string]*bar.Series)}
}

// Seed stores a series under its symbol.
func (r *InMemorySource) Seed(s *bar.Series) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.series[s.Symbol()] = s
}

// LoadSeries implements Source.
func (r *InMemorySource) LoadSeries(_ context.Context, symbol string) (*bar.Series, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.series[symbol]
	if !ok {
		return nil, fmt.Errorf("no series for symbol %s", symbol)
	}
	return s, nil
}
