package strategy

import (
	"sort"
	"sync"

	"github.com/yanun0323/errors"

	"backtester/pkg/exception"
)

// Factory builds a strategy from parameters.
type Factory func(params Params) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register binds name to factory, replacing any previous binding.
func Register(name string, factory Factory) {
	if name == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[name] = factory
	registryMu.Unlock()
}

// New builds the strategy registered as name.
func New(name string, params Params) (Strategy, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(exception.ErrStrategyUnknown, "name %q, available: %v", name, Names())
	}
	s, err := factory(params)
	if err != nil {
		return nil, errors.Wrapf(err, "build strategy %q", name)
	}
	return s, nil
}

// Names lists the registered strategy names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
