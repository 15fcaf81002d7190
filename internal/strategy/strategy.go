// Package strategy defines the Strategy interface for signal-producing
// strategies, a Registry of strategy factories, and the Backtester that runs
// a strategy over a selected window of history.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"spxlab/internal/series"
)

// ErrInvalidConfig is returned for unusable strategy or run parameters.
var ErrInvalidConfig = errors.New("invalid backtest configuration")

// DefaultStrategy is used when a run does not name one.
const DefaultStrategy = "sma-cross"

// Params are the tunables a factory builds a strategy from.
type Params struct {
	ShortWindow int `json:"shortWindow"`
	LongWindow  int `json:"longWindow"`
}

// Evaluation is what a strategy derives from a full price history: the two
// indicator lines it compares and the signals they produce, all aligned with
// the input prices.
type Evaluation struct {
	Fast    series.IndicatorSeries
	Slow    series.IndicatorSeries
	Signals series.SignalSeries
}

// Strategy is the interface all signal strategies implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Evaluate computes indicators and signals over the complete history.
	// It must not slice prices; range selection happens afterwards.
	Evaluate(ctx context.Context, prices series.PriceSeries) (*Evaluation, error)
}

// Factory builds a Strategy from Params.
type Factory func(Params) (Strategy, error)

// Registry holds named strategy factories for lookup and enumeration. It is
// safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates whether
// it was found.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// New builds the named strategy with p.
func (r *Registry) New(name string, p Params) (Strategy, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, name)
	}
	return f(p)
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
