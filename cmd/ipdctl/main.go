package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/tgsachse/prisoners/internal/report"
	"github.com/tgsachse/prisoners/internal/storage"
	"github.com/tgsachse/prisoners/pkg/prisoners"
)

const (
	artifactsDir = "runs"
	exportsDir   = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "sweep":
		return runSweep(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "sweeps":
		return runSweeps(ctx, args[1:])
	case "frequencies":
		return runFrequencies(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "lineage":
		return runLineage(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "strategies":
		return runStrategies(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// clientFlags are the storage and logging flags shared by every command.
type clientFlags struct {
	storeKind    *string
	dbPath       *string
	artifactsDir *string
	logLevel     *string
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		storeKind:    fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:       fs.String("db-path", "prisoners.db", "sqlite database path"),
		artifactsDir: fs.String("artifacts-dir", artifactsDir, "directory holding run artifacts and the run index"),
		logLevel:     fs.String("log-level", "warn", "log level: debug|info|warn|error"),
	}
}

func (f clientFlags) open() (*prisoners.Client, error) {
	logger, err := newLogger(*f.logLevel)
	if err != nil {
		return nil, err
	}
	return prisoners.New(prisoners.Options{
		StoreKind:    *f.storeKind,
		DBPath:       *f.dbPath,
		ArtifactsDir: *f.artifactsDir,
		ExportsDir:   exportsDir,
		Logger:       logger,
	})
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// outputFlags control how frequency tables are printed.
type outputFlags struct {
	bars   *bool
	color  *string
	marker *string
}

func addOutputFlags(fs *flag.FlagSet) outputFlags {
	return outputFlags{
		bars:   fs.Bool("bars", false, "print one bar per generation instead of a count list"),
		color:  fs.String("color", "auto", "color output: auto|always|never"),
		marker: fs.String("marker", "X", "bar character used with --bars"),
	}
}

func (f outputFlags) options() (report.Options, error) {
	colored, err := colorEnabled(*f.color)
	if err != nil {
		return report.Options{}, err
	}
	return report.Options{Bars: *f.bars, Color: colored, Marker: *f.marker}, nil
}

func colorEnabled(mode string) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		if os.Getenv("NO_COLOR") != "" {
			return false, nil
		}
		fd := os.Stdout.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd), nil
	default:
		return false, fmt.Errorf("unsupported color mode: %s", mode)
	}
}

// addRunFlags registers the simulation flags shared by run and sweep and
// returns their values keyed by flag name.
func addRunFlags(fs *flag.FlagSet) map[string]any {
	return map[string]any{
		"run-id":           fs.String("run-id", "", "explicit run id (optional)"),
		"players":          fs.Int("players", prisoners.DefaultPlayers, "population size"),
		"generations":      fs.Int("generations", prisoners.DefaultGenerations, "generation count"),
		"interactions":     fs.Int("interactions", 0, "games each player starts per generation (0 uses players*100)"),
		"population-shift": fs.Int("population-shift", 0, "players replaced per generation (0 uses players/10)"),
		"strategies":       fs.String("strategies", "", "comma separated strategy names (empty uses all)"),
		"seed":             fs.Int64("seed", 1, "rng seed"),
		"temptation":       fs.Int("temptation", prisoners.DefaultPayoff.Temptation, "payoff for defecting against a cooperator"),
		"reward":           fs.Int("reward", prisoners.DefaultPayoff.Reward, "payoff for mutual cooperation"),
		"punishment":       fs.Int("punishment", prisoners.DefaultPayoff.Punishment, "payoff for mutual defection"),
		"sucker":           fs.Int("sucker", prisoners.DefaultPayoff.Sucker, "payoff for cooperating against a defector"),
	}
}

// resolveSweepConfig loads --config when given and applies the flags that
// were set explicitly. Without a config every flag value applies.
func resolveSweepConfig(fs *flag.FlagSet, configPath string, flagPtrs map[string]any) (sweepConfig, error) {
	set := make(map[string]bool)
	var cfg sweepConfig
	if configPath != "" {
		loaded, err := loadSweepConfig(configPath)
		if err != nil {
			return sweepConfig{}, err
		}
		cfg = loaded
		fs.Visit(func(f *flag.Flag) {
			set[f.Name] = true
		})
	} else {
		fs.VisitAll(func(f *flag.Flag) {
			set[f.Name] = true
		})
	}

	values := make(map[string]any, len(flagPtrs))
	for name, ptr := range flagPtrs {
		switch p := ptr.(type) {
		case *string:
			values[name] = *p
		case *int:
			values[name] = *p
		case *int64:
			values[name] = *p
		}
	}
	if err := overrideFromFlags(&cfg, set, values); err != nil {
		return sweepConfig{}, err
	}
	return cfg, nil
}

type runItem struct {
	RunID        string                      `json:"run_id"`
	SweepID      string                      `json:"sweep_id,omitempty"`
	ArtifactsDir string                      `json:"artifacts_dir"`
	CreatedAtUTC string                      `json:"created_at_utc"`
	Players      int                         `json:"players"`
	Generations  int                         `json:"generations"`
	Interactions int                         `json:"interactions"`
	Seed         int64                       `json:"seed"`
	Dominant     string                      `json:"dominant"`
	FinalCounts  map[string]int              `json:"final_counts"`
	Frequencies  []prisoners.FrequencySeries `json:"frequencies,omitempty"`
	ElapsedMS    int64                       `json:"elapsed_ms"`
}

func toRunItem(summary prisoners.RunSummary, withFrequencies bool) runItem {
	item := runItem{
		RunID:        summary.RunID,
		SweepID:      summary.SweepID,
		ArtifactsDir: summary.ArtifactsDir,
		CreatedAtUTC: summary.CreatedAtUTC,
		Players:      summary.Players,
		Generations:  summary.Generations,
		Interactions: summary.Interactions,
		Seed:         summary.Seed,
		Dominant:     summary.Dominant,
		FinalCounts:  summary.FinalCounts,
		ElapsedMS:    summary.Elapsed.Milliseconds(),
	}
	if withFrequencies {
		item.Frequencies = summary.Frequencies
	}
	return item
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	flagPtrs := addRunFlags(fs)
	progress := fs.Bool("progress", false, "print a dot per finished generation to stderr")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	out := addOutputFlags(fs)
	common := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := resolveSweepConfig(fs, *configPath, flagPtrs)
	if err != nil {
		return err
	}
	opts, err := out.options()
	if err != nil {
		return err
	}
	req := cfg.Base
	if *progress {
		req.Progress = func(generation, total int) {
			if generation == 1 {
				fmt.Fprint(os.Stderr, "Running")
			}
			fmt.Fprint(os.Stderr, ".")
			if generation == total {
				fmt.Fprintln(os.Stderr, "Done!")
			}
		}
	}

	client, err := common.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(toRunItem(summary, true))
	}

	if err := report.Render(os.Stdout, summary.Frequencies, opts); err != nil {
		return err
	}
	if err := report.Summary(os.Stdout, report.RunHeader{
		RunID:        summary.RunID,
		Players:      summary.Players,
		Generations:  summary.Generations,
		Interactions: summary.Interactions,
		Seed:         summary.Seed,
		Dominant:     summary.Dominant,
		Elapsed:      summary.Elapsed,
	}); err != nil {
		return err
	}
	fmt.Printf("artifacts=%s\n", summary.ArtifactsDir)
	return nil
}

func runSweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional sweep config JSON path")
	flagPtrs := addRunFlags(fs)
	replicates := fs.Int("replicates", 10, "number of replicate runs (seeds seed..seed+n-1)")
	flagPtrs["replicates"] = replicates
	flagPtrs["workers"] = fs.Int("workers", 4, "replicates run concurrently")
	jsonOut := fs.Bool("json", false, "emit sweep result as JSON")
	out := addOutputFlags(fs)
	common := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := resolveSweepConfig(fs, *configPath, flagPtrs)
	if err != nil {
		return err
	}
	if cfg.Base.RunID != "" {
		return errors.New("sweep does not accept --run-id")
	}
	if cfg.Replicates == 0 {
		cfg.Replicates = *replicates
	}
	opts, err := out.options()
	if err != nil {
		return err
	}

	client, err := common.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	result, err := client.Sweep(ctx, prisoners.SweepRequest{
		Base:       cfg.Base,
		Replicates: cfg.Replicates,
		Workers:    cfg.Workers,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		type sweepItem struct {
			SweepID string                 `json:"sweep_id"`
			Runs    []runItem              `json:"runs"`
			Summary prisoners.SweepSummary `json:"summary"`
		}
		item := sweepItem{SweepID: result.SweepID, Summary: result.Summary}
		for _, summary := range result.Runs {
			item.Runs = append(item.Runs, toRunItem(summary, false))
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(item)
	}

	if err := report.RenderSweep(os.Stdout, result.Summary, opts); err != nil {
		return err
	}
	fmt.Printf("sweep_id=%s replicates=%d\n", result.SweepID, len(result.Runs))
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	common := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := common.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	entries, err := client.Runs(ctx, prisoners.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSONList(os.Stdout, entries)
	}
	if len(entries) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	return report.Runs(os.Stdout, entries, time.Now())
}

func runSweeps(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweeps", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit sweeps as JSON")
	common := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := common.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	sweeps, err := client.Sweeps(ctx)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSONList(os.Stdout, sweeps)
	}
	if len(sweeps) == 0 {
		fmt.Println("no sweeps found")
		return nil
	}
	for _, sweep := range sweeps {
		fmt.Printf("sweep_id=%s base_seed=%d replicates=%d workers=%d completed_at=%s\n",
			sweep.ID,
			sweep.BaseSeed,
			sweep.Summary.Replicates,
			sweep.Workers,
			sweep.CompletedAtUTC,
		)
	}
	return nil
}

// historyFlags select one stored run for the read-only commands.
type historyFlags struct {
	runID  *string
	latest *bool
	limit  *int
}

func addHistoryFlags(fs *flag.FlagSet, limitDefault int) historyFlags {
	return historyFlags{
		runID:  fs.String("run-id", "", "run id"),
		latest: fs.Bool("latest", false, "use the most recent run from the run index"),
		limit:  fs.Int("limit", limitDefault, "max rows to print (<=0 for all)"),
	}
}

func (f historyFlags) request(command string) (prisoners.HistoryRequest, error) {
	if *f.runID != "" && *f.latest {
		return prisoners.HistoryRequest{}, errors.New("use either --run-id or --latest, not both")
	}
	if *f.runID == "" && !*f.latest {
		return prisoners.HistoryRequest{}, fmt.Errorf("%s requires --run-id or --latest", command)
	}
	limit := *f.limit
	if limit < 0 {
		limit = 0
	}
	return prisoners.HistoryRequest{RunID: *f.runID, Latest: *f.latest, Limit: limit}, nil
}

func runFrequencies(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("frequencies", flag.ContinueOnError)
	history := addHistoryFlags(fs, 0)
	jsonOut := fs.Bool("json", false, "emit frequency series as JSON")
	out := addOutputFlags(fs)
	common := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := history.request("frequencies")
	if err != nil {
		return err
	}
	opts, err := out.options()
	if err != nil {
		return err
	}

	client, err := common.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	series, err := client.Frequencies(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSONList(os.Stdout, series)
	}
	return report.Render(os.Stdout, series, opts)
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	history := addHistoryFlags(fs, 50)
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	common := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := history.request("diagnostics")
	if err != nil {
		return err
	}

	client, err := common.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSONList(os.Stdout, diagnostics)
	}
	if len(diagnostics) == 0 {
		fmt.Println("no diagnostics")
		return nil
	}

	for _, d := range diagnostics {
		extinct := "-"
		if len(d.ExtinctStrategies) > 0 {
			extinct = fmt.Sprint(d.ExtinctStrategies)
		}
		fmt.Printf("gen=%d size=%d best=%d mean=%.2f min=%d removed=%v parents=%v children=%v extinct=%s\n",
			d.Generation,
			d.PopulationSize,
			d.BestScore,
			d.MeanScore,
			d.MinScore,
			d.RemovedIDs,
			d.ParentIDs,
			d.ChildIDs,
			extinct,
		)
	}
	return nil
}

func runLineage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lineage", flag.ContinueOnError)
	history := addHistoryFlags(fs, 50)
	jsonOut := fs.Bool("json", false, "emit lineage rows as JSON")
	common := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := history.request("lineage")
	if err != nil {
		return err
	}

	client, err := common.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	lineage, err := client.Lineage(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSONList(os.Stdout, lineage)
	}
	if len(lineage) == 0 {
		fmt.Println("no lineage records")
		return nil
	}

	for _, rec := range lineage {
		fmt.Printf("gen=%d player_id=%d parent_id=%d strategy=%s op=%s\n",
			rec.Generation,
			rec.PlayerID,
			rec.ParentID,
			rec.Strategy,
			rec.Operation,
		)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	common := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := common.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, prisoners.ExportRequest{
		RunID:  *runID,
		Latest: *latest,
		OutDir: *outDir,
	})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runStrategies(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("strategies", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit strategy names as JSON")
	common := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := common.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	names := client.Strategies()
	if *jsonOut {
		return writeJSONList(os.Stdout, names)
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// writeJSONList encodes items as an indented JSON array, never null.
func writeJSONList[T any](w io.Writer, items []T) error {
	if items == nil {
		items = []T{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: ipdctl <run|sweep|runs|sweeps|frequencies|diagnostics|lineage|export|strategies> [flags]", msg)
}
