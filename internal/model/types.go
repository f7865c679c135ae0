package model

import "github.com/tgsachse/prisoners/internal/game"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

// CurrentVersion stamps a record with the versions this build writes.
func CurrentVersion() VersionedRecord {
	return VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// NoParent is the parent id of players created at simulation start.
const NoParent = -1

const (
	OperationSeed      = "seed"
	OperationReplicate = "replicate"
)

type RunRecord struct {
	VersionedRecord
	ID              string           `json:"id"`
	CreatedAtUTC    string           `json:"created_at_utc"`
	Players         int              `json:"players"`
	Generations     int              `json:"generations"`
	Interactions    int              `json:"interactions"`
	PopulationShift int              `json:"population_shift"`
	Strategies      []string         `json:"strategies"`
	Seed            int64            `json:"seed"`
	Payoff          game.PayoffTable `json:"payoff"`
	FinalCounts     map[string]int   `json:"final_counts"`
}

// FrequencySeries is the per-generation population count of one strategy.
type FrequencySeries struct {
	Strategy string `json:"strategy"`
	Counts   []int  `json:"counts"`
}

type GenerationDiagnostics struct {
	Generation        int      `json:"generation"`
	PopulationSize    int      `json:"population_size"`
	BestScore         int      `json:"best_score"`
	MeanScore         float64  `json:"mean_score"`
	MinScore          int      `json:"min_score"`
	RemovedIDs        []int    `json:"removed_ids"`
	ParentIDs         []int    `json:"parent_ids"`
	ChildIDs          []int    `json:"child_ids"`
	ExtinctStrategies []string `json:"extinct_strategies,omitempty"`
}

type LineageRecord struct {
	VersionedRecord
	PlayerID   int    `json:"player_id"`
	ParentID   int    `json:"parent_id"`
	Generation int    `json:"generation"`
	Strategy   string `json:"strategy"`
	Operation  string `json:"operation"`
}
