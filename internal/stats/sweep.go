package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/tgsachse/prisoners/internal/model"
)

const sweepsDir = "sweeps"

// StrategySummary aggregates one strategy's final count over replicates.
type StrategySummary struct {
	Strategy  string  `json:"strategy"`
	FinalMean float64 `json:"final_mean"`
	FinalStd  float64 `json:"final_std"`
	FinalMin  int     `json:"final_min"`
	FinalMax  int     `json:"final_max"`
	// Survived counts replicates that ended with at least one player.
	Survived int `json:"survived"`
	// Dominated counts replicates in which this strategy had the top count.
	Dominated int `json:"dominated"`
}

type SweepSummary struct {
	Replicates int               `json:"replicates"`
	Strategies []StrategySummary `json:"strategies"`
}

type SweepRecord struct {
	ID             string       `json:"id"`
	BaseSeed       int64        `json:"base_seed"`
	Workers        int          `json:"workers"`
	StartedAtUTC   string       `json:"started_at_utc,omitempty"`
	CompletedAtUTC string       `json:"completed_at_utc,omitempty"`
	RunIDs         []string     `json:"run_ids"`
	Summary        SweepSummary `json:"summary"`
}

// SummarizeReplicates folds the final counts of every replicate into one row
// per strategy, in the order given.
func SummarizeReplicates(strategies []string, finals []map[string]int) SweepSummary {
	summary := SweepSummary{
		Replicates: len(finals),
		Strategies: make([]StrategySummary, 0, len(strategies)),
	}
	dominant := make([]string, len(finals))
	for i, counts := range finals {
		best := -1
		for _, name := range strategies {
			if counts[name] > best {
				best = counts[name]
				dominant[i] = name
			}
		}
	}

	for _, name := range strategies {
		row := StrategySummary{Strategy: name}
		if len(finals) == 0 {
			summary.Strategies = append(summary.Strategies, row)
			continue
		}
		row.FinalMin = math.MaxInt
		sum := 0.0
		for i, counts := range finals {
			count := counts[name]
			sum += float64(count)
			if count < row.FinalMin {
				row.FinalMin = count
			}
			if count > row.FinalMax {
				row.FinalMax = count
			}
			if count > 0 {
				row.Survived++
			}
			if dominant[i] == name {
				row.Dominated++
			}
		}
		row.FinalMean = sum / float64(len(finals))
		variance := 0.0
		for _, counts := range finals {
			delta := float64(counts[name]) - row.FinalMean
			variance += delta * delta
		}
		row.FinalStd = math.Sqrt(variance / float64(len(finals)))
		summary.Strategies = append(summary.Strategies, row)
	}
	return summary
}

func WriteSweep(baseDir string, sweep SweepRecord) error {
	if sweep.ID == "" {
		return fmt.Errorf("sweep id is required")
	}
	path := sweepPath(baseDir, sweep.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeJSON(path, sweep)
}

func ReadSweep(baseDir, id string) (SweepRecord, bool, error) {
	if id == "" {
		return SweepRecord{}, false, fmt.Errorf("sweep id is required")
	}
	data, err := os.ReadFile(sweepPath(baseDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return SweepRecord{}, false, nil
		}
		return SweepRecord{}, false, err
	}
	var sweep SweepRecord
	if err := json.Unmarshal(data, &sweep); err != nil {
		return SweepRecord{}, false, err
	}
	return sweep, true, nil
}

// ListSweeps returns stored sweeps, most recently started first.
func ListSweeps(baseDir string) ([]SweepRecord, error) {
	root := filepath.Join(baseDir, sweepsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []SweepRecord{}, nil
		}
		return nil, err
	}

	sweeps := make([]SweepRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sweep, ok, err := ReadSweep(baseDir, entry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		sweeps = append(sweeps, sweep)
	}
	sort.Slice(sweeps, func(i, j int) bool {
		if c := model.CompareTimestamps(sweeps[i].StartedAtUTC, sweeps[j].StartedAtUTC); c != 0 {
			return c > 0
		}
		return sweeps[i].ID < sweeps[j].ID
	})
	return sweeps, nil
}

func sweepPath(baseDir, id string) string {
	return filepath.Join(baseDir, sweepsDir, id, "sweep.json")
}
