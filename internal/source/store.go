package source

import (
	"context"
	"fmt"

	"spxlab/internal/series"
	"spxlab/internal/store"
)

// StoreSource loads closes from any PriceStore.
type StoreSource struct {
	store  store.PriceStore
	name   string
	symbol string
}

// NewStoreSource wraps st under the given display name.
func NewStoreSource(st store.PriceStore, name, symbol string) *StoreSource {
	return &StoreSource{store: st, name: name, symbol: symbol}
}

// Name returns the display label.
func (s *StoreSource) Name() string { return s.name }

// Load reads every stored row.
func (s *StoreSource) Load(ctx context.Context) (series.PriceSeries, error) {
	rows, err := s.store.ReadAll(ctx)
	if err != nil {
		return series.PriceSeries{}, fmt.Errorf("reading store: %w", err)
	}
	if len(rows) == 0 {
		return series.PriceSeries{}, fmt.Errorf("%w: store is empty", ErrUnavailable)
	}
	return series.FromRows(s.symbol, rows)
}
