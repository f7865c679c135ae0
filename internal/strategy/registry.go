package strategy

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

var (
	ErrStrategyExists   = errors.New("strategy already registered")
	ErrStrategyNotFound = errors.New("strategy not found")
)

// Factory builds a fresh strategy instance with empty memory.
type Factory func(rng *rand.Rand) Strategy

// Registry maps variant names to factories, remembering registration order.
type Registry struct {
	mu        sync.RWMutex
	factories map[Name]Factory
	order     []Name
}

var builtinOrder = []Name{
	Random,
	AlwaysDefect,
	AlwaysCooperate,
	Grudger,
	TitForTat,
	Exploiter,
	BurnTheBridge,
}

var defaultRegistry = NewDefaultRegistry()

func NewRegistry() *Registry {
	return &Registry{factories: make(map[Name]Factory)}
}

// Default returns the registry holding every built-in variant.
func Default() *Registry {
	return defaultRegistry
}

// NewDefaultRegistry returns a registry of its own holding every built-in
// variant, so callers can register more without touching Default.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	builtins := map[Name]Factory{
		Random:          func(rng *rand.Rand) Strategy { return NewRandom(rng) },
		AlwaysDefect:    func(*rand.Rand) Strategy { return NewAlwaysDefect() },
		AlwaysCooperate: func(*rand.Rand) Strategy { return NewAlwaysCooperate() },
		Grudger:         func(*rand.Rand) Strategy { return NewGrudger() },
		TitForTat:       func(*rand.Rand) Strategy { return NewTitForTat() },
		Exploiter:       func(*rand.Rand) Strategy { return NewExploiter() },
		BurnTheBridge:   func(rng *rand.Rand) Strategy { return NewBurnTheBridge(rng) },
	}
	for _, name := range builtinOrder {
		if err := r.Register(name, builtins[name]); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Register(name Name, factory Factory) error {
	if name == "" {
		return errors.New("strategy name is required")
	}
	if factory == nil {
		return errors.New("strategy factory is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrStrategyExists, name)
	}
	r.factories[name] = factory
	r.order = append(r.order, name)
	return nil
}

// New builds a fresh instance of the named variant.
func (r *Registry) New(name Name, rng *rand.Rand) (Strategy, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStrategyNotFound, name)
	}
	return factory(rng), nil
}

func (r *Registry) Has(name Name) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[name]
	return ok
}

// Names lists variants in registration order.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Name(nil), r.order...)
}

// Resolve maps a wire name to a registered variant. An exact match wins;
// otherwise the name is matched in upper case with '-' read as '_'.
func (r *Registry) Resolve(raw string) (Name, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.factories[Name(raw)]; ok {
		return Name(raw), nil
	}
	if name := normalizeName(raw); name != "" {
		if _, ok := r.factories[name]; ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrStrategyNotFound, raw)
}

// ResolveAll resolves every name, preserving order.
func (r *Registry) ResolveAll(raw []string) ([]Name, error) {
	names := make([]Name, 0, len(raw))
	for _, item := range raw {
		name, err := r.Resolve(item)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}
