package main

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, payload map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run_config.json")
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadSweepConfigReadsAllKeys(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"run_id":           "cfg-run",
		"players":          20,
		"generations":      7,
		"interactions":     300,
		"population_shift": 3,
		"strategies":       []any{"always_defect", "TIT_FOR_TAT"},
		"seed":             77,
		"replicates":       5,
		"workers":          2,
		"payoff": map[string]any{
			"temptation": 6,
			"reward":     4,
			"punishment": 2,
			"sucker":     1,
		},
	})

	cfg, err := loadSweepConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	req := cfg.Base
	if req.RunID != "cfg-run" || req.Players != 20 || req.Generations != 7 || req.Interactions != 300 || req.PopulationShift != 3 {
		t.Fatalf("unexpected base fields: %+v", req)
	}
	if req.Seed != 77 {
		t.Fatalf("expected seed 77, got %d", req.Seed)
	}
	if len(req.Strategies) != 2 || req.Strategies[0] != "always_defect" || req.Strategies[1] != "TIT_FOR_TAT" {
		t.Fatalf("unexpected strategies: %v", req.Strategies)
	}
	if req.Payoff.Temptation != 6 || req.Payoff.Reward != 4 || req.Payoff.Punishment != 2 || req.Payoff.Sucker != 1 {
		t.Fatalf("unexpected payoff: %+v", req.Payoff)
	}
	if cfg.Replicates != 5 || cfg.Workers != 2 {
		t.Fatalf("unexpected sweep fields: %+v", cfg)
	}

	runReq, err := loadRunRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load run request: %v", err)
	}
	if runReq.RunID != "cfg-run" || runReq.Players != 20 {
		t.Fatalf("unexpected run request: %+v", runReq)
	}
}

func TestLoadSweepConfigAcceptsCommaSeparatedStrategies(t *testing.T) {
	path := writeConfig(t, map[string]any{"strategies": "RANDOM, GRUDGER,,"})
	cfg, err := loadSweepConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.Base.Strategies) != 2 || cfg.Base.Strategies[0] != "RANDOM" || cfg.Base.Strategies[1] != "GRUDGER" {
		t.Fatalf("unexpected strategies: %v", cfg.Base.Strategies)
	}
}

func TestLoadSweepConfigRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]any{
		"players string":   {"players": "many"},
		"seed bool":        {"seed": true},
		"run id number":    {"run_id": 4},
		"strategies mixed": {"strategies": []any{"RANDOM", 3}},
		"payoff scalar":    {"payoff": 5},
		"payoff partial":   {"payoff": map[string]any{"temptation": 5}},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadSweepConfig(writeConfig(t, payload)); err == nil {
				t.Fatalf("expected error for %v", payload)
			}
		})
	}
}

func TestLoadSweepConfigMissingFile(t *testing.T) {
	if _, err := loadSweepConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected missing config error")
	}
}

func TestResolveSweepConfigAppliesOnlyExplicitFlagsOverConfig(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"players":     30,
		"generations": 9,
		"seed":        5,
		"strategies":  []any{"ALWAYS_COOPERATE", "ALWAYS_DEFECT"},
	})

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	flagPtrs := addRunFlags(fs)
	if err := fs.Parse([]string{"--generations", "3", "--temptation", "8"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := resolveSweepConfig(fs, path, flagPtrs)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	req := cfg.Base
	if req.Players != 30 || req.Seed != 5 {
		t.Fatalf("expected config values to survive, got %+v", req)
	}
	if req.Generations != 3 {
		t.Fatalf("expected flag override generations=3, got %d", req.Generations)
	}
	if len(req.Strategies) != 2 {
		t.Fatalf("expected config strategies, got %v", req.Strategies)
	}
	// A single payoff flag fills the rest from the default table.
	if req.Payoff.Temptation != 8 || req.Payoff.Reward != 3 || req.Payoff.Punishment != 1 || req.Payoff.Sucker != 0 {
		t.Fatalf("unexpected payoff: %+v", req.Payoff)
	}
}

func TestResolveSweepConfigWithoutConfigUsesFlagDefaults(t *testing.T) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	flagPtrs := addRunFlags(fs)
	if err := fs.Parse([]string{"--strategies", "GRUDGER,EXPLOITER", "--players", "12"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := resolveSweepConfig(fs, "", flagPtrs)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	req := cfg.Base
	if req.Players != 12 || req.Generations != 50 || req.Seed != 1 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Interactions != 0 || req.PopulationShift != 0 {
		t.Fatalf("expected derived counts to stay unset, got %+v", req)
	}
	if len(req.Strategies) != 2 || req.Strategies[0] != "GRUDGER" || req.Strategies[1] != "EXPLOITER" {
		t.Fatalf("unexpected strategies: %v", req.Strategies)
	}
	if req.Payoff.Temptation != 5 || req.Payoff.Reward != 3 || req.Payoff.Punishment != 1 || req.Payoff.Sucker != 0 {
		t.Fatalf("unexpected payoff: %+v", req.Payoff)
	}
}

func TestOverrideFromFlagsRejectsUnknownFlag(t *testing.T) {
	var cfg sweepConfig
	err := overrideFromFlags(&cfg, map[string]bool{"bogus": true}, map[string]any{"bogus": 1})
	if err == nil {
		t.Fatal("expected unsupported flag error")
	}
}
