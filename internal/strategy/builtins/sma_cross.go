// Package builtins provides the strategy implementations that ship with
// spxlab.
package builtins

import (
	"context"
	"fmt"

	"spxlab/internal/indicator"
	"spxlab/internal/series"
	"spxlab/internal/strategy"
)

// SMACrossName is the registry key of SMACross.
const SMACrossName = strategy.DefaultStrategy

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross is a moving-average crossover strategy. It enters when the short
// SMA crosses above the long SMA and exits when it crosses below.
type SMACross struct {
	shortPeriod int
	longPeriod  int
}

// NewSMACross creates an SMACross with the given periods. A short period at
// or above the long one is allowed and simply yields few or no crossovers.
func NewSMACross(short, long int) (*SMACross, error) {
	if short < 1 || long < 1 {
		return nil, fmt.Errorf("%w: windows must be positive, got short=%d long=%d",
			strategy.ErrInvalidConfig, short, long)
	}
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
	}, nil
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return SMACrossName
}

// Evaluate computes both SMAs over the full history and the crossover
// signals between them.
func (s *SMACross) Evaluate(ctx context.Context, prices series.PriceSeries) (*strategy.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fast, err := indicator.SMA(prices, s.shortPeriod)
	if err != nil {
		return nil, fmt.Errorf("short sma: %w", err)
	}
	slow, err := indicator.SMA(prices, s.longPeriod)
	if err != nil {
		return nil, fmt.Errorf("long sma: %w", err)
	}
	return &strategy.Evaluation{
		Fast:    fast,
		Slow:    slow,
		Signals: series.Crossovers(fast, slow),
	}, nil
}

// Register adds every builtin strategy to r.
func Register(r *strategy.Registry) {
	r.Register(SMACrossName, func(p strategy.Params) (strategy.Strategy, error) {
		return NewSMACross(p.ShortWindow, p.LongWindow)
	})
}
