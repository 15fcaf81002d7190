// Package gather defines how market data enters the system: long-running
// Gatherers and the BarSource a pipeline pulls daily bars from.
package gather

import (
	"context"
	"errors"
	"time"

	"spxlab/internal/domain"
)

// ErrEmpty is returned when a source has no bars for the requested range.
var ErrEmpty = errors.New("no bars returned")

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// BarSource fetches daily OHLCV bars for a symbol.
type BarSource interface {
	Name() string
	// FetchDaily returns bars within r. An empty result is ErrEmpty.
	FetchDaily(ctx context.Context, symbol string, r DateRange) ([]domain.Bar, error)
}
