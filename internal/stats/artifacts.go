package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/tgsachse/prisoners/internal/game"
	"github.com/tgsachse/prisoners/internal/model"
)

const (
	runIndexFile       = "run_index.json"
	frequenciesCSVFile = "frequencies.csv"
)

var runArtifactFiles = []string{"config.json", "frequencies.json", frequenciesCSVFile, "diagnostics.json", "lineage.json"}

type RunConfig struct {
	RunID           string           `json:"run_id"`
	SweepID         string           `json:"sweep_id,omitempty"`
	Players         int              `json:"players"`
	Generations     int              `json:"generations"`
	Interactions    int              `json:"interactions"`
	PopulationShift int              `json:"population_shift"`
	Strategies      []string         `json:"strategies"`
	Seed            int64            `json:"seed"`
	Payoff          game.PayoffTable `json:"payoff"`
}

type RunArtifacts struct {
	Config      RunConfig                     `json:"config"`
	Frequencies []model.FrequencySeries       `json:"frequencies"`
	Diagnostics []model.GenerationDiagnostics `json:"diagnostics,omitempty"`
	Lineage     []model.LineageRecord         `json:"lineage"`
	FinalCounts map[string]int                `json:"final_counts"`
}

type RunIndexEntry struct {
	RunID        string         `json:"run_id"`
	SweepID      string         `json:"sweep_id,omitempty"`
	Players      int            `json:"players"`
	Generations  int            `json:"generations"`
	Seed         int64          `json:"seed"`
	Strategies   []string       `json:"strategies"`
	Dominant     string         `json:"dominant"`
	FinalCounts  map[string]int `json:"final_counts"`
	CreatedAtUTC string         `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "frequencies.json"), map[string]any{"frequencies": artifacts.Frequencies, "final_counts": artifacts.FinalCounts}); err != nil {
		return "", err
	}
	if err := writeFrequencyCSV(filepath.Join(runDir, frequenciesCSVFile), artifacts.Frequencies); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "diagnostics.json"), artifacts.Diagnostics); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "lineage.json"), artifacts.Lineage); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns indexed runs newest first. Entries sharing a timestamp
// keep the most recently appended one first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if c := model.CompareTimestamps(indexed[i].entry.CreatedAtUTC, indexed[j].entry.CreatedAtUTC); c != 0 {
			return c > 0
		}
		return indexed[i].idx > indexed[j].idx
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range runArtifactFiles {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

// FinalCounts maps each strategy to its count after the last generation.
func FinalCounts(series []model.FrequencySeries) map[string]int {
	counts := make(map[string]int, len(series))
	for _, item := range series {
		if len(item.Counts) == 0 {
			counts[item.Strategy] = 0
			continue
		}
		counts[item.Strategy] = item.Counts[len(item.Counts)-1]
	}
	return counts
}

// IndexEntryFromRun rebuilds a run index entry from a stored run record.
func IndexEntryFromRun(run model.RunRecord) RunIndexEntry {
	dominant := ""
	best := -1
	for _, name := range run.Strategies {
		if count := run.FinalCounts[name]; count > best {
			dominant = name
			best = count
		}
	}
	return RunIndexEntry{
		RunID:        run.ID,
		Players:      run.Players,
		Generations:  run.Generations,
		Seed:         run.Seed,
		Strategies:   append([]string(nil), run.Strategies...),
		Dominant:     dominant,
		FinalCounts:  run.FinalCounts,
		CreatedAtUTC: run.CreatedAtUTC,
	}
}

// Dominant is the strategy with the largest final count. Ties go to the
// strategy listed first.
func Dominant(series []model.FrequencySeries) string {
	best := ""
	bestCount := -1
	for _, item := range series {
		count := 0
		if len(item.Counts) > 0 {
			count = item.Counts[len(item.Counts)-1]
		}
		if count > bestCount {
			best = item.Strategy
			bestCount = count
		}
	}
	return best
}

// writeFrequencyCSV writes one row per generation and one column per strategy.
func writeFrequencyCSV(path string, series []model.FrequencySeries) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := make([]string, 0, len(series)+1)
	header = append(header, "generation")
	generations := 0
	for _, item := range series {
		header = append(header, item.Strategy)
		if len(item.Counts) > generations {
			generations = len(item.Counts)
		}
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for gen := 0; gen < generations; gen++ {
		row := make([]string, 0, len(series)+1)
		row = append(row, strconv.Itoa(gen+1))
		for _, item := range series {
			count := 0
			if gen < len(item.Counts) {
				count = item.Counts[gen]
			}
			row = append(row, strconv.Itoa(count))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadFrequencySeries(baseDir, runID string) ([]model.FrequencySeries, bool, error) {
	path := filepath.Join(baseDir, runID, frequenciesCSVFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.FrequencySeries{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 1 || header[0] != "generation" {
		return nil, false, fmt.Errorf("frequency series header must start with generation")
	}

	series := make([]model.FrequencySeries, 0, len(header)-1)
	for _, name := range header[1:] {
		series = append(series, model.FrequencySeries{Strategy: name, Counts: []int{}})
	}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		for i := range series {
			count, err := strconv.Atoi(record[i+1])
			if err != nil {
				return nil, false, fmt.Errorf("parse %s count: %w", series[i].Strategy, err)
			}
			series[i].Counts = append(series[i].Counts, count)
		}
	}
	return series, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
