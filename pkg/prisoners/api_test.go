package prisoners

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tgsachse/prisoners/internal/evo"
	"github.com/tgsachse/prisoners/internal/game"
	"github.com/tgsachse/prisoners/internal/stats"
	"github.com/tgsachse/prisoners/internal/strategy"
)

func newTestClient(t *testing.T, storeKind string) *Client {
	t.Helper()
	base := t.TempDir()
	client, err := New(Options{
		StoreKind:    storeKind,
		DBPath:       filepath.Join(base, "prisoners.db"),
		ArtifactsDir: filepath.Join(base, "runs"),
		ExportsDir:   filepath.Join(base, "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func smallRequest() RunRequest {
	return RunRequest{
		Players:      10,
		Generations:  3,
		Interactions: 20,
		Strategies:   []string{"always-defect", "tit_for_tat"},
		Seed:         5,
	}
}

func TestClientRunRunsAndExport(t *testing.T) {
	client := newTestClient(t, "memory")
	ctx := context.Background()

	var progress []int
	req := smallRequest()
	req.Progress = func(generation, total int) {
		if total != 3 {
			t.Errorf("unexpected total %d", total)
		}
		progress = append(progress, generation)
	}
	summary, err := client.Run(ctx, req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}
	if !reflect.DeepEqual(progress, []int{1, 2, 3}) {
		t.Fatalf("unexpected progress calls: %v", progress)
	}
	if len(summary.Frequencies) != 2 || summary.Frequencies[0].Strategy != "ALWAYS_DEFECT" {
		t.Fatalf("unexpected frequencies: %+v", summary.Frequencies)
	}
	if summary.FinalCounts["ALWAYS_DEFECT"]+summary.FinalCounts["TIT_FOR_TAT"] != 10 {
		t.Fatalf("final counts must sum to players: %+v", summary.FinalCounts)
	}
	if summary.Dominant == "" {
		t.Fatal("expected dominant strategy")
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID || runs[0].Dominant != summary.Dominant {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	diagnostics, err := client.Diagnostics(ctx, HistoryRequest{Latest: true})
	if err != nil {
		t.Fatalf("diagnostics: %v", err)
	}
	if len(diagnostics) != 3 {
		t.Fatalf("expected 3 diagnostics, got %d", len(diagnostics))
	}
	lineage, err := client.Lineage(ctx, HistoryRequest{RunID: summary.RunID, Limit: 4})
	if err != nil {
		t.Fatalf("lineage: %v", err)
	}
	if len(lineage) != 4 {
		t.Fatalf("expected limited lineage, got %d", len(lineage))
	}
	freq, err := client.Frequencies(ctx, HistoryRequest{Latest: true, Limit: 2})
	if err != nil {
		t.Fatalf("frequencies: %v", err)
	}
	if len(freq[0].Counts) != 2 {
		t.Fatalf("expected limited counts, got %+v", freq)
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID {
		t.Fatalf("unexpected exported run: %s", exported.RunID)
	}
	if _, err := os.Stat(filepath.Join(exported.Directory, "frequencies.csv")); err != nil {
		t.Fatalf("expected exported csv: %v", err)
	}
}

func TestClientRunIsReproducibleBySeed(t *testing.T) {
	client := newTestClient(t, "memory")
	ctx := context.Background()

	first, err := client.Run(ctx, smallRequest())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := client.Run(ctx, smallRequest())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.RunID == second.RunID {
		t.Fatal("expected distinct run ids")
	}
	if !reflect.DeepEqual(first.Frequencies, second.Frequencies) {
		t.Fatalf("expected identical frequencies for identical seeds")
	}
}

func TestClientRunAppliesDefaults(t *testing.T) {
	cfg, err := simulationConfig(RunRequest{}, strategy.Default())
	if err != nil {
		t.Fatalf("simulation config: %v", err)
	}
	if cfg.Players != 50 || cfg.Generations != 50 || cfg.Interactions != 5000 || cfg.PopulationShift != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	cfg, err = simulationConfig(RunRequest{Players: 4}, strategy.Default())
	if err != nil {
		t.Fatalf("simulation config: %v", err)
	}
	if cfg.PopulationShift != 1 || cfg.Interactions != 400 {
		t.Fatalf("unexpected small defaults: %+v", cfg)
	}
}

func TestClientRunRejectsBadRequests(t *testing.T) {
	client := newTestClient(t, "memory")
	ctx := context.Background()

	req := smallRequest()
	req.Strategies = []string{"sometimes"}
	if _, err := client.Run(ctx, req); !errors.Is(err, evo.ErrInvalidConfig) {
		t.Fatalf("expected invalid config for unknown strategy, got %v", err)
	}
	req = smallRequest()
	req.Players = -1
	if _, err := client.Run(ctx, req); !errors.Is(err, evo.ErrInvalidConfig) {
		t.Fatalf("expected invalid config for negative players, got %v", err)
	}
	req = smallRequest()
	req.PopulationShift = 10
	if _, err := client.Run(ctx, req); !errors.Is(err, evo.ErrInvalidConfig) {
		t.Fatalf("expected invalid config for oversized shift, got %v", err)
	}
}

func TestClientHistoryRequiresRun(t *testing.T) {
	client := newTestClient(t, "memory")
	ctx := context.Background()

	if _, err := client.Diagnostics(ctx, HistoryRequest{Latest: true}); !errors.Is(err, ErrNoRuns) {
		t.Fatalf("expected no runs error, got %v", err)
	}
	if _, err := client.Lineage(ctx, HistoryRequest{}); err == nil {
		t.Fatal("expected run id required error")
	}
	if _, err := client.Frequencies(ctx, HistoryRequest{RunID: "x", Latest: true}); err == nil {
		t.Fatal("expected conflicting selector error")
	}
	if _, err := client.Export(ctx, ExportRequest{}); err == nil {
		t.Fatal("expected export selector error")
	}
	if _, err := client.Frequencies(ctx, HistoryRequest{RunID: "missing"}); err == nil {
		t.Fatal("expected missing frequencies error")
	}
}

func TestClientSweepSQLite(t *testing.T) {
	client := newTestClient(t, "sqlite")
	ctx := context.Background()

	result, err := client.Sweep(ctx, SweepRequest{Base: smallRequest(), Replicates: 4, Workers: 2})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.SweepID == "" || len(result.Runs) != 4 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}
	for i, run := range result.Runs {
		if run.Seed != 5+int64(i) {
			t.Fatalf("replicate %d has seed %d", i, run.Seed)
		}
		if run.SweepID != result.SweepID {
			t.Fatalf("replicate %d not tagged with sweep id", i)
		}
	}
	if result.Summary.Replicates != 4 || len(result.Summary.Strategies) != 2 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 4 {
		t.Fatalf("expected 4 indexed runs, got %d", len(runs))
	}
	sweeps, err := client.Sweeps(ctx)
	if err != nil {
		t.Fatalf("sweeps: %v", err)
	}
	if len(sweeps) != 1 || len(sweeps[0].RunIDs) != 4 {
		t.Fatalf("unexpected sweeps: %+v", sweeps)
	}
	lineage, err := client.Lineage(ctx, HistoryRequest{RunID: result.Runs[2].RunID})
	if err != nil {
		t.Fatalf("lineage from sqlite: %v", err)
	}
	if len(lineage) == 0 {
		t.Fatal("expected stored lineage")
	}
}

func TestClientSweepValidation(t *testing.T) {
	client := newTestClient(t, "memory")
	if _, err := client.Sweep(context.Background(), SweepRequest{Base: smallRequest()}); err == nil {
		t.Fatal("expected replicates error")
	}
	base := smallRequest()
	base.RunID = "fixed"
	if _, err := client.Sweep(context.Background(), SweepRequest{Base: base, Replicates: 2}); err == nil {
		t.Fatal("expected run id error")
	}
}

func TestClientStrategies(t *testing.T) {
	client := newTestClient(t, "memory")
	want := []string{"RANDOM", "ALWAYS_DEFECT", "ALWAYS_COOPERATE", "GRUDGER", "TIT_FOR_TAT", "EXPLOITER", "BURN_THE_BRIDGE"}
	if got := client.Strategies(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected strategies: %v", got)
	}
}

func TestNewRejectsUnknownStore(t *testing.T) {
	if _, err := New(Options{StoreKind: "redis"}); err == nil {
		t.Fatal("expected unsupported store error")
	}
}

func TestClientLatestPicksNewestInstant(t *testing.T) {
	client := newTestClient(t, "memory")
	ctx := context.Background()

	// RFC 3339 trims trailing zeros, so text order would put "older" first.
	for _, entry := range []stats.RunIndexEntry{
		{RunID: "newer", CreatedAtUTC: "2026-03-01T12:00:05.12Z"},
		{RunID: "older", CreatedAtUTC: "2026-03-01T12:00:05.1Z"},
	} {
		if err := stats.AppendRunIndex(client.artifactsDir, entry); err != nil {
			t.Fatalf("append %s: %v", entry.RunID, err)
		}
	}

	runID, err := client.resolveRunID(ctx, HistoryRequest{Latest: true}, "lineage")
	if err != nil {
		t.Fatalf("resolve latest: %v", err)
	}
	if runID != "newer" {
		t.Fatalf("latest run resolved to %s", runID)
	}
	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "newer" {
		t.Fatalf("unexpected runs order: %+v", runs)
	}
}

func TestClientRunsFallsBackToStore(t *testing.T) {
	client := newTestClient(t, "sqlite")
	ctx := context.Background()

	summary, err := client.Run(ctx, smallRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := os.Remove(filepath.Join(client.artifactsDir, "run_index.json")); err != nil {
		t.Fatalf("remove run index: %v", err)
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID {
		t.Fatalf("expected stored run, got %+v", runs)
	}
	if runs[0].Dominant != summary.Dominant || !reflect.DeepEqual(runs[0].FinalCounts, summary.FinalCounts) {
		t.Fatalf("unexpected rebuilt entry: %+v want dominant=%s counts=%v", runs[0], summary.Dominant, summary.FinalCounts)
	}

	lineage, err := client.Lineage(ctx, HistoryRequest{Latest: true})
	if err != nil {
		t.Fatalf("lineage latest: %v", err)
	}
	if len(lineage) == 0 {
		t.Fatal("expected lineage for the stored run")
	}
}

type steadyCooperator struct{}

func (steadyCooperator) Name() strategy.Name      { return "STEADY" }
func (steadyCooperator) Decide(int) game.Action   { return game.Cooperate }
func (steadyCooperator) Observe(int, game.Action) {}
func (steadyCooperator) Reset()                   {}

func TestClientRegisterStrategyIsRunnable(t *testing.T) {
	client := newTestClient(t, "memory")
	ctx := context.Background()

	err := client.RegisterStrategy("STEADY", func(*rand.Rand) Strategy { return steadyCooperator{} })
	if err != nil {
		t.Fatalf("register strategy: %v", err)
	}
	req := smallRequest()
	req.Strategies = []string{"steady", "always-defect"}
	summary, err := client.Run(ctx, req)
	if err != nil {
		t.Fatalf("run with registered strategy: %v", err)
	}
	if len(summary.Frequencies) != 2 || summary.Frequencies[0].Strategy != "STEADY" {
		t.Fatalf("unexpected frequencies: %+v", summary.Frequencies)
	}

	other := newTestClient(t, "memory")
	if _, err := other.Run(ctx, req); !errors.Is(err, evo.ErrInvalidConfig) {
		t.Fatalf("expected other client to reject STEADY, got %v", err)
	}
}
