package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/tgsachse/prisoners/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	frequencies map[string][]model.FrequencySeries
	diagnostics map[string][]model.GenerationDiagnostics
	lineage     map[string][]model.LineageRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.frequencies = make(map[string][]model.FrequencySeries)
	s.diagnostics = make(map[string][]model.GenerationDiagnostics)
	s.lineage = make(map[string][]model.LineageRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return cloneRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, cloneRun(run))
	}
	sort.Slice(runs, func(i, j int) bool {
		if c := model.CompareTimestamps(runs[i].CreatedAtUTC, runs[j].CreatedAtUTC); c != 0 {
			return c > 0
		}
		return runs[i].ID > runs[j].ID
	})
	return runs, nil
}

func (s *MemoryStore) SaveFrequencies(_ context.Context, runID string, series []model.FrequencySeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frequencies[runID] = cloneFrequencies(series)
	return nil
}

func (s *MemoryStore) GetFrequencies(_ context.Context, runID string) ([]model.FrequencySeries, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.frequencies[runID]
	if !ok {
		return nil, false, nil
	}
	return cloneFrequencies(series), true, nil
}

func (s *MemoryStore) SaveDiagnostics(_ context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.diagnostics[runID] = cloneDiagnostics(diagnostics)
	return nil
}

func (s *MemoryStore) GetDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	return cloneDiagnostics(diagnostics), true, nil
}

func (s *MemoryStore) SaveLineage(_ context.Context, runID string, lineage []model.LineageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.LineageRecord, len(lineage))
	copy(copied, lineage)
	s.lineage[runID] = copied
	return nil
}

func (s *MemoryStore) GetLineage(_ context.Context, runID string) ([]model.LineageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage, ok := s.lineage[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.LineageRecord, len(lineage))
	copy(copied, lineage)
	return copied, true, nil
}

func cloneRun(run model.RunRecord) model.RunRecord {
	run.Strategies = append([]string(nil), run.Strategies...)
	if run.FinalCounts != nil {
		counts := make(map[string]int, len(run.FinalCounts))
		for name, count := range run.FinalCounts {
			counts[name] = count
		}
		run.FinalCounts = counts
	}
	return run
}

func cloneFrequencies(series []model.FrequencySeries) []model.FrequencySeries {
	copied := make([]model.FrequencySeries, 0, len(series))
	for _, item := range series {
		copied = append(copied, model.FrequencySeries{
			Strategy: item.Strategy,
			Counts:   append([]int(nil), item.Counts...),
		})
	}
	return copied
}

func cloneDiagnostics(diagnostics []model.GenerationDiagnostics) []model.GenerationDiagnostics {
	copied := make([]model.GenerationDiagnostics, 0, len(diagnostics))
	for _, d := range diagnostics {
		d.RemovedIDs = append([]int(nil), d.RemovedIDs...)
		d.ParentIDs = append([]int(nil), d.ParentIDs...)
		d.ChildIDs = append([]int(nil), d.ChildIDs...)
		d.ExtinctStrategies = append([]string(nil), d.ExtinctStrategies...)
		copied = append(copied, d)
	}
	return copied
}
