package storage

import (
	"encoding/json"
	"errors"

	"github.com/tgsachse/prisoners/internal/model"
)

const (
	CurrentSchemaVersion = model.CurrentSchemaVersion
	CurrentCodecVersion  = model.CurrentCodecVersion
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeFrequencies(series []model.FrequencySeries) ([]byte, error) {
	return json.Marshal(series)
}

func DecodeFrequencies(data []byte) ([]model.FrequencySeries, error) {
	var series []model.FrequencySeries
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, err
	}
	return series, nil
}

func EncodeDiagnostics(diagnostics []model.GenerationDiagnostics) ([]byte, error) {
	return json.Marshal(diagnostics)
}

func DecodeDiagnostics(data []byte) ([]model.GenerationDiagnostics, error) {
	var diagnostics []model.GenerationDiagnostics
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return nil, err
	}
	return diagnostics, nil
}

func EncodeLineage(records []model.LineageRecord) ([]byte, error) {
	return json.Marshal(records)
}

func DecodeLineage(data []byte) ([]model.LineageRecord, error) {
	var records []model.LineageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
