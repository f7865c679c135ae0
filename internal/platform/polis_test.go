package platform

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tgsachse/prisoners/internal/evo"
	"github.com/tgsachse/prisoners/internal/game"
	"github.com/tgsachse/prisoners/internal/model"
	"github.com/tgsachse/prisoners/internal/storage"
	"github.com/tgsachse/prisoners/internal/strategy"
)

func startedPolis(t *testing.T) *Polis {
	t.Helper()
	p := NewPolis(Config{Store: storage.NewMemoryStore()})
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return p
}

func smallSimulation() evo.Config {
	return evo.Config{
		Players:         12,
		Generations:     4,
		Interactions:    30,
		PopulationShift: 2,
		Strategies:      []strategy.Name{strategy.AlwaysDefect, strategy.TitForTat, strategy.Grudger},
		Seed:            21,
	}
}

func TestPolisInitRequiresStore(t *testing.T) {
	p := NewPolis(Config{})
	if err := p.Init(context.Background()); err == nil {
		t.Fatal("expected store required error")
	}
	if p.Started() {
		t.Fatal("polis should not be started without a store")
	}
}

func TestPolisRunSimulationPersistsEverything(t *testing.T) {
	ctx := context.Background()
	p := startedPolis(t)
	fixed := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

	out, err := p.RunSimulation(ctx, SimulationConfig{
		RunID:      "run-1",
		Simulation: smallSimulation(),
		Now:        func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("run simulation: %v", err)
	}
	if out.Run.CreatedAtUTC != model.FormatTimestamp(fixed) {
		t.Fatalf("unexpected created at: %s", out.Run.CreatedAtUTC)
	}
	if out.Run.Payoff != game.DefaultPayoff {
		t.Fatalf("expected default payoff recorded, got %+v", out.Run.Payoff)
	}
	total := 0
	for _, count := range out.Run.FinalCounts {
		total += count
	}
	if total != 12 {
		t.Fatalf("final counts must sum to population, got %d", total)
	}

	store := p.Store()
	run, ok, err := store.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	if strings.Join(run.Strategies, ",") != "ALWAYS_DEFECT,TIT_FOR_TAT,GRUDGER" {
		t.Fatalf("unexpected strategies: %v", run.Strategies)
	}
	series, ok, err := store.GetFrequencies(ctx, "run-1")
	if err != nil || !ok || len(series) != 3 || len(series[0].Counts) != 4 {
		t.Fatalf("unexpected frequencies: ok=%t err=%v series=%+v", ok, err, series)
	}
	diagnostics, ok, err := store.GetDiagnostics(ctx, "run-1")
	if err != nil || !ok || len(diagnostics) != 4 {
		t.Fatalf("unexpected diagnostics: ok=%t err=%v len=%d", ok, err, len(diagnostics))
	}
	lineage, ok, err := store.GetLineage(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get lineage: ok=%t err=%v", ok, err)
	}
	if len(lineage) != 12+4*2 || lineage[0].Operation != model.OperationSeed {
		t.Fatalf("unexpected lineage: len=%d first=%+v", len(lineage), lineage[0])
	}
	if active := p.ActiveRuns(); len(active) != 0 {
		t.Fatalf("expected no active runs after completion, got %v", active)
	}
}

func TestPolisRunSimulationRequiresInit(t *testing.T) {
	p := NewPolis(Config{Store: storage.NewMemoryStore()})
	_, err := p.RunSimulation(context.Background(), SimulationConfig{RunID: "run-1", Simulation: smallSimulation()})
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestPolisRunSimulationRejectsBadInput(t *testing.T) {
	p := startedPolis(t)
	if _, err := p.RunSimulation(context.Background(), SimulationConfig{Simulation: smallSimulation()}); err == nil {
		t.Fatal("expected run id error")
	}
	cfg := smallSimulation()
	cfg.PopulationShift = cfg.Players
	_, err := p.RunSimulation(context.Background(), SimulationConfig{RunID: "run-1", Simulation: cfg})
	if !errors.Is(err, evo.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

func TestPolisRejectsDuplicateActiveRun(t *testing.T) {
	p := startedPolis(t)
	if err := p.registerRun("run-1", time.Now()); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := p.RunSimulation(context.Background(), SimulationConfig{RunID: "run-1", Simulation: smallSimulation()})
	if err == nil || !strings.Contains(err.Error(), "already active") {
		t.Fatalf("expected already active error, got %v", err)
	}
	p.unregisterRun("run-1")
	if len(p.ActiveRuns()) != 0 {
		t.Fatal("expected run to be unregistered")
	}
}

func TestPolisRunSimulationCanceled(t *testing.T) {
	p := startedPolis(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.RunSimulation(ctx, SimulationConfig{RunID: "run-1", Simulation: smallSimulation()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if _, ok, _ := p.Store().GetRun(context.Background(), "run-1"); ok {
		t.Fatal("canceled run must not be persisted")
	}
}
