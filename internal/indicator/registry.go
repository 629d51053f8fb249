package indicator

import (
	"sync"

	"github.com/saidsurucu/borsago/pkg/errors"
)

// Registry manages all available indicators.
type Registry interface {
	Register(indicator Indicator) error
	Get(name string) (Indicator, error)
	List() []string
	Remove(name string) error
}

// RegistryV1 manages all available indicators.
type RegistryV1 struct {
	indicators map[string]Indicator
	mu         sync.RWMutex
}

// NewRegistry creates an empty indicator registry.
func NewRegistry() Registry {
	return &RegistryV1{
		indicators: make(map[string]Indicator),
		mu:         sync.RWMutex{},
	}
}

// NewDefaultRegistry creates a registry populated with the built-in indicator
// set under their conventional names (sma_20, sma_50, ema_12, ema_26, rsi_14,
// macd).
func NewDefaultRegistry() Registry {
	registry := NewRegistry()

	for _, ind := range []Indicator{
		NewSMA(20),
		NewSMA(50),
		NewEMA(12),
		NewEMA(26),
		NewRSI(14),
		NewMACD(12, 26, 9),
	} {
		// Names are unique here, registration cannot fail.
		_ = registry.Register(ind)
	}

	return registry
}

// Register adds an indicator to the registry.
func (r *RegistryV1) Register(indicator Indicator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := indicator.Name()
	if _, exists := r.indicators[name]; exists {
		return errors.Newf(errors.ErrCodeIndicatorAlreadyExists, "indicator with name %s already registered", name)
	}

	r.indicators[name] = indicator

	return nil
}

// Get retrieves an indicator by name.
func (r *RegistryV1) Get(name string) (Indicator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	indicator, exists := r.indicators[name]
	if !exists {
		return nil, errors.Newf(errors.ErrCodeIndicatorNotFound, "indicator with name %s not found", name)
	}

	return indicator, nil
}

// List returns a list of all registered indicator names.
func (r *RegistryV1) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.indicators))
	for name := range r.indicators {
		names = append(names, name)
	}

	return names
}

// Remove removes an indicator from the registry.
func (r *RegistryV1) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.indicators[name]; !exists {
		return errors.Newf(errors.ErrCodeIndicatorNotFound, "indicator with name %s not found", name)
	}

	delete(r.indicators, name)

	return nil
}
