// Package platform owns the store and runs simulations against it.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tgsachse/prisoners/internal/evo"
	"github.com/tgsachse/prisoners/internal/model"
	"github.com/tgsachse/prisoners/internal/stats"
	"github.com/tgsachse/prisoners/internal/storage"
	"github.com/tgsachse/prisoners/internal/strategy"
)

type Config struct {
	Store    storage.Store
	Registry *strategy.Registry
	Logger   *slog.Logger
}

type SimulationConfig struct {
	RunID      string
	Simulation evo.Config
	// Now stamps the stored run; defaults to the wall clock.
	Now func() time.Time
}

type SimulationResult struct {
	Run    model.RunRecord
	Result evo.RunResult
}

type Polis struct {
	store    storage.Store
	registry *strategy.Registry
	logger   *slog.Logger

	mu      sync.RWMutex
	started bool
	runs    map[string]time.Time
}

func NewPolis(cfg Config) *Polis {
	registry := cfg.Registry
	if registry == nil {
		registry = strategy.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Polis{
		store:    cfg.Store,
		registry: registry,
		logger:   logger,
		runs:     make(map[string]time.Time),
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) Store() storage.Store {
	return p.store
}

func (p *Polis) Registry() *strategy.Registry {
	return p.registry
}

// RunSimulation plays a full simulation and persists the run record together
// with its frequencies, diagnostics and lineage.
func (p *Polis) RunSimulation(ctx context.Context, cfg SimulationConfig) (SimulationResult, error) {
	if cfg.RunID == "" {
		return SimulationResult{}, fmt.Errorf("run id is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	simCfg := cfg.Simulation
	if simCfg.Registry == nil {
		simCfg.Registry = p.registry
	}
	if simCfg.Logger == nil {
		simCfg.Logger = p.logger
	}
	simCfg.Logger = simCfg.Logger.With("run_id", cfg.RunID)

	sim, err := evo.NewSimulation(simCfg)
	if err != nil {
		return SimulationResult{}, err
	}
	startedAt := now().UTC()
	if err := p.registerRun(cfg.RunID, startedAt); err != nil {
		return SimulationResult{}, err
	}
	defer p.unregisterRun(cfg.RunID)

	result, err := sim.Run(ctx)
	if err != nil {
		return SimulationResult{}, err
	}

	strategies := sim.Strategies()
	names := make([]string, 0, len(strategies))
	for _, name := range strategies {
		names = append(names, string(name))
	}
	run := model.RunRecord{
		VersionedRecord: model.CurrentVersion(),
		ID:              cfg.RunID,
		CreatedAtUTC:    model.FormatTimestamp(startedAt),
		Players:         simCfg.Players,
		Generations:     simCfg.Generations,
		Interactions:    simCfg.Interactions,
		PopulationShift: simCfg.PopulationShift,
		Strategies:      names,
		Seed:            simCfg.Seed,
		Payoff:          sim.Payoff(),
		FinalCounts:     stats.FinalCounts(result.Frequencies),
	}

	if err := p.store.SaveRun(ctx, run); err != nil {
		return SimulationResult{}, fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if err := p.store.SaveFrequencies(ctx, run.ID, result.Frequencies); err != nil {
		return SimulationResult{}, fmt.Errorf("save frequencies %s: %w", run.ID, err)
	}
	if err := p.store.SaveDiagnostics(ctx, run.ID, result.Diagnostics); err != nil {
		return SimulationResult{}, fmt.Errorf("save diagnostics %s: %w", run.ID, err)
	}
	if err := p.store.SaveLineage(ctx, run.ID, result.Lineage); err != nil {
		return SimulationResult{}, fmt.Errorf("save lineage %s: %w", run.ID, err)
	}
	return SimulationResult{Run: run, Result: result}, nil
}

// ActiveRuns lists the ids of simulations currently running.
func (p *Polis) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Polis) registerRun(runID string, startedAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	p.runs[runID] = startedAt
	return nil
}

func (p *Polis) unregisterRun(runID string) {
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}
