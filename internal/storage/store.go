package storage

import (
	"context"

	"github.com/tgsachse/prisoners/internal/model"
)

// Store persists finished simulation runs and their per-generation history.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns every stored run, newest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveFrequencies(ctx context.Context, runID string, series []model.FrequencySeries) error
	GetFrequencies(ctx context.Context, runID string) ([]model.FrequencySeries, bool, error)
	SaveDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveLineage(ctx context.Context, runID string, lineage []model.LineageRecord) error
	GetLineage(ctx context.Context, runID string) ([]model.LineageRecord, bool, error)
}
