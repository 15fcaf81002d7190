// Package source resolves the full closing-price history from a
// priority-ordered chain of providers, optionally behind a TTL cache.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spxlab/internal/series"
)

// ErrUnavailable is returned when no provider could supply prices.
var ErrUnavailable = errors.New("price data unavailable")

// PriceSource loads a complete closing-price history.
type PriceSource interface {
	// Name is the human-readable label reported alongside results.
	Name() string

	// Load returns the full history. A provider with nothing to offer returns
	// an error wrapping ErrUnavailable.
	Load(ctx context.Context) (series.PriceSeries, error)
}

// Resolved is a loaded history together with the provider that supplied it.
type Resolved struct {
	Series   series.PriceSeries `json:"series"`
	Source   string             `json:"source"`
	LoadedAt time.Time          `json:"loadedAt"`
}

// Resolver produces a Resolved history.
type Resolver interface {
	Resolve(ctx context.Context) (Resolved, error)
}

// Chain tries sources in order and returns the first non-empty history.
type Chain struct {
	sources []PriceSource
	log     *slog.Logger
	now     func() time.Time
}

// NewChain creates a Chain over sources in priority order.
func NewChain(log *slog.Logger, sources ...PriceSource) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{
		sources: sources,
		log:     log.With("component", "source-chain"),
		now:     time.Now,
	}
}

// Names lists the providers in priority order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return names
}

// Resolve returns the first provider's non-empty history. When every
// provider fails the error wraps ErrUnavailable and each provider's error.
func (c *Chain) Resolve(ctx context.Context) (Resolved, error) {
	var errs []error
	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return Resolved{}, err
		}
		ps, err := src.Load(ctx)
		if err == nil && ps.Empty() {
			err = fmt.Errorf("%w: no rows", ErrUnavailable)
		}
		if err != nil {
			c.log.Warn("price source failed", "source", src.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		c.log.Debug("price source resolved", "source", src.Name(), "rows", ps.Len())
		return Resolved{Series: ps, Source: src.Name(), LoadedAt: c.now()}, nil
	}
	if len(errs) == 0 {
		return Resolved{}, fmt.Errorf("%w: no sources configured", ErrUnavailable)
	}
	return Resolved{}, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}
