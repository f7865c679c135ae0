// Package prisoners runs evolutionary iterated prisoner's dilemma
// simulations and keeps their results.
package prisoners

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tgsachse/prisoners/internal/evo"
	"github.com/tgsachse/prisoners/internal/game"
	"github.com/tgsachse/prisoners/internal/model"
	"github.com/tgsachse/prisoners/internal/platform"
	"github.com/tgsachse/prisoners/internal/stats"
	"github.com/tgsachse/prisoners/internal/storage"
	"github.com/tgsachse/prisoners/internal/strategy"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "prisoners.db"

	DefaultPlayers             = 50
	DefaultGenerations         = 50
	DefaultInteractionsPerHead = 100
	DefaultShiftDivisor        = 10
)

var ErrNoRuns = errors.New("no runs available")

// DefaultPayoff is used when a request leaves Payoff zero.
var DefaultPayoff = game.DefaultPayoff

type (
	Payoff                = game.PayoffTable
	FrequencySeries       = model.FrequencySeries
	GenerationDiagnostics = model.GenerationDiagnostics
	LineageRecord         = model.LineageRecord
	RunItem               = stats.RunIndexEntry
	SweepSummary          = stats.SweepSummary
	SweepItem             = stats.SweepRecord
	Strategy              = strategy.Strategy
	StrategyFactory       = strategy.Factory
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
}

type Client struct {
	polis *platform.Polis
	store storage.Store

	artifactsDir string
	exportsDir   string
	logger       *slog.Logger

	indexMu sync.Mutex
}

type RunRequest struct {
	// RunID defaults to a random UUID.
	RunID           string
	Players         int
	Generations     int
	Interactions    int
	PopulationShift int
	Strategies      []string
	Seed            int64
	Payoff          Payoff
	// Progress is called after every generation with the number played so far.
	Progress func(generation, total int)
}

type RunSummary struct {
	RunID        string
	SweepID      string
	ArtifactsDir string
	CreatedAtUTC string
	Players      int
	Generations  int
	Interactions int
	Seed         int64
	Frequencies  []FrequencySeries
	FinalCounts  map[string]int
	Dominant     string
	Elapsed      time.Duration
}

type SweepRequest struct {
	Base       RunRequest
	Replicates int
	Workers    int
}

type SweepResult struct {
	SweepID string
	Runs    []RunSummary
	Summary SweepSummary
}

type RunsRequest struct {
	Limit int
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = "memory"
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		polis: platform.NewPolis(platform.Config{
			Store:    store,
			Registry: strategy.NewDefaultRegistry(),
			Logger:   logger,
		}),
		store:        store,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
		logger:       logger,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Strategies lists the strategy names a run can use, in registration order.
func (c *Client) Strategies() []string {
	names := c.polis.Registry().Names()
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, string(name))
	}
	return out
}

// RegisterStrategy adds a variant this client's runs can request by name.
func (c *Client) RegisterStrategy(name string, factory StrategyFactory) error {
	return c.polis.Registry().Register(strategy.Name(name), factory)
}

// Run plays one simulation, stores its history and writes its artifacts.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	return c.run(ctx, req, "")
}

func (c *Client) run(ctx context.Context, req RunRequest, sweepID string) (RunSummary, error) {
	cfg, err := simulationConfig(req, c.polis.Registry())
	if err != nil {
		return RunSummary{}, err
	}
	if err := c.polis.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	started := time.Now()
	out, err := c.polis.RunSimulation(ctx, platform.SimulationConfig{RunID: runID, Simulation: cfg})
	if err != nil {
		return RunSummary{}, err
	}
	elapsed := time.Since(started)
	run := out.Run
	dominant := stats.Dominant(out.Result.Frequencies)

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:           run.ID,
			SweepID:         sweepID,
			Players:         run.Players,
			Generations:     run.Generations,
			Interactions:    run.Interactions,
			PopulationShift: run.PopulationShift,
			Strategies:      run.Strategies,
			Seed:            run.Seed,
			Payoff:          run.Payoff,
		},
		Frequencies: out.Result.Frequencies,
		Diagnostics: out.Result.Diagnostics,
		Lineage:     out.Result.Lineage,
		FinalCounts: run.FinalCounts,
	})
	if err != nil {
		return RunSummary{}, err
	}

	c.indexMu.Lock()
	err = stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:        run.ID,
		SweepID:      sweepID,
		Players:      run.Players,
		Generations:  run.Generations,
		Seed:         run.Seed,
		Strategies:   run.Strategies,
		Dominant:     dominant,
		FinalCounts:  run.FinalCounts,
		CreatedAtUTC: run.CreatedAtUTC,
	})
	c.indexMu.Unlock()
	if err != nil {
		return RunSummary{}, err
	}

	c.logger.Info("run stored", "run_id", run.ID, "dominant", dominant, "elapsed", elapsed)
	return RunSummary{
		RunID:        run.ID,
		SweepID:      sweepID,
		ArtifactsDir: filepath.Clean(runDir),
		CreatedAtUTC: run.CreatedAtUTC,
		Players:      run.Players,
		Generations:  run.Generations,
		Interactions: run.Interactions,
		Seed:         run.Seed,
		Frequencies:  out.Result.Frequencies,
		FinalCounts:  run.FinalCounts,
		Dominant:     dominant,
		Elapsed:      elapsed,
	}, nil
}

// Sweep runs Replicates copies of Base with consecutive seeds starting at
// Base.Seed, at most Workers at a time, and summarizes their final counts.
func (c *Client) Sweep(ctx context.Context, req SweepRequest) (SweepResult, error) {
	if req.Replicates <= 0 {
		return SweepResult{}, errors.New("replicates must be > 0")
	}
	if req.Workers <= 0 {
		req.Workers = 1
	}
	if req.Base.RunID != "" {
		return SweepResult{}, errors.New("sweep replicates get their own run ids")
	}
	// Fail fast on a bad base request before any worker starts.
	if _, err := simulationConfig(req.Base, c.polis.Registry()); err != nil {
		return SweepResult{}, err
	}

	sweepID := uuid.New().String()
	startedAt := time.Now().UTC()
	runs := make([]RunSummary, req.Replicates)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(req.Workers)
	for i := 0; i < req.Replicates; i++ {
		replicate := req.Base
		replicate.Seed = req.Base.Seed + int64(i)
		replicate.RunID = fmt.Sprintf("%s-%03d", sweepID, i)
		replicate.Progress = nil
		g.Go(func() error {
			summary, err := c.run(gctx, replicate, sweepID)
			if err != nil {
				return fmt.Errorf("replicate seed %d: %w", replicate.Seed, err)
			}
			runs[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SweepResult{}, err
	}

	strategies := runs[0].Frequencies
	names := make([]string, 0, len(strategies))
	for _, series := range strategies {
		names = append(names, series.Strategy)
	}
	finals := make([]map[string]int, 0, len(runs))
	runIDs := make([]string, 0, len(runs))
	for _, run := range runs {
		finals = append(finals, run.FinalCounts)
		runIDs = append(runIDs, run.RunID)
	}
	summary := stats.SummarizeReplicates(names, finals)

	if err := stats.WriteSweep(c.artifactsDir, stats.SweepRecord{
		ID:             sweepID,
		BaseSeed:       req.Base.Seed,
		Workers:        req.Workers,
		StartedAtUTC:   model.FormatTimestamp(startedAt),
		CompletedAtUTC: model.FormatTimestamp(time.Now()),
		RunIDs:         runIDs,
		Summary:        summary,
	}); err != nil {
		return SweepResult{}, err
	}
	c.logger.Info("sweep stored", "sweep_id", sweepID, "replicates", req.Replicates, "workers", req.Workers)
	return SweepResult{SweepID: sweepID, Runs: runs, Summary: summary}, nil
}

func (c *Client) Sweeps(_ context.Context) ([]SweepItem, error) {
	return stats.ListSweeps(c.artifactsDir)
}

// Runs lists runs newest first from the run index, or from the store when
// the index is missing or empty.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	entries, err := c.listRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	return entries, nil
}

func (c *Client) listRuns(ctx context.Context) ([]RunItem, error) {
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return entries, nil
	}
	if err := c.polis.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	entries = make([]RunItem, 0, len(runs))
	for _, run := range runs {
		entries = append(entries, stats.IndexEntryFromRun(run))
	}
	return entries, nil
}

func (c *Client) Frequencies(ctx context.Context, req HistoryRequest) ([]FrequencySeries, error) {
	runID, err := c.resolveRunID(ctx, req, "frequencies")
	if err != nil {
		return nil, err
	}
	if err := c.polis.Init(ctx); err != nil {
		return nil, err
	}
	series, ok, err := c.store.GetFrequencies(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Runs stored by a memory-backed process only survive as artifacts.
		series, ok, err = stats.ReadFrequencySeries(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("frequencies not found for run id: %s", runID)
		}
	}
	if req.Limit > 0 {
		for i := range series {
			if len(series[i].Counts) > req.Limit {
				series[i].Counts = series[i].Counts[:req.Limit]
			}
		}
	}
	return series, nil
}

func (c *Client) Diagnostics(ctx context.Context, req HistoryRequest) ([]GenerationDiagnostics, error) {
	runID, err := c.resolveRunID(ctx, req, "diagnostics")
	if err != nil {
		return nil, err
	}
	if err := c.polis.Init(ctx); err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	return diagnostics, nil
}

func (c *Client) Lineage(ctx context.Context, req HistoryRequest) ([]LineageRecord, error) {
	runID, err := c.resolveRunID(ctx, req, "lineage")
	if err != nil {
		return nil, err
	}
	if err := c.polis.Init(ctx); err != nil {
		return nil, err
	}
	lineage, ok, err := c.store.GetLineage(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lineage not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(lineage) > req.Limit {
		lineage = lineage[:req.Limit]
	}
	return lineage, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	runID, err := c.resolveRunID(ctx, HistoryRequest{RunID: req.RunID, Latest: req.Latest}, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(ctx context.Context, req HistoryRequest, what string) (string, error) {
	if req.RunID != "" && req.Latest {
		return "", errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return "", errors.New("limit must be >= 0")
	}
	if !req.Latest {
		if req.RunID == "" {
			return "", fmt.Errorf("%s requires run id or latest", what)
		}
		return req.RunID, nil
	}
	entries, err := c.listRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", ErrNoRuns
	}
	return entries[0].RunID, nil
}

// simulationConfig applies the classic defaults: 50 players for 50
// generations, 100 games per player and a tenth of the population replaced
// each generation.
func simulationConfig(req RunRequest, registry *strategy.Registry) (evo.Config, error) {
	if req.Players < 0 || req.Generations < 0 || req.Interactions < 0 || req.PopulationShift < 0 {
		return evo.Config{}, fmt.Errorf("%w: counts must be >= 0", evo.ErrInvalidConfig)
	}
	if req.Players == 0 {
		req.Players = DefaultPlayers
	}
	if req.Generations == 0 {
		req.Generations = DefaultGenerations
	}
	if req.Interactions == 0 {
		req.Interactions = req.Players * DefaultInteractionsPerHead
	}
	if req.PopulationShift == 0 {
		req.PopulationShift = req.Players / DefaultShiftDivisor
		if req.PopulationShift < 1 {
			req.PopulationShift = 1
		}
	}
	names, err := registry.ResolveAll(req.Strategies)
	if err != nil {
		return evo.Config{}, fmt.Errorf("%w: %w", evo.ErrInvalidConfig, err)
	}

	cfg := evo.Config{
		Players:         req.Players,
		Generations:     req.Generations,
		Interactions:    req.Interactions,
		PopulationShift: req.PopulationShift,
		Strategies:      names,
		Seed:            req.Seed,
		Payoff:          req.Payoff,
		Registry:        registry,
	}
	if req.Progress != nil {
		progress, total := req.Progress, req.Generations
		cfg.OnGeneration = func(d model.GenerationDiagnostics) { progress(d.Generation, total) }
	}
	return cfg, nil
}
