package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tgsachse/prisoners/pkg/prisoners"
)

// sweepConfig is a run request plus the replicate settings used by "sweep".
type sweepConfig struct {
	Base       prisoners.RunRequest
	Replicates int
	Workers    int
}

func loadConfigMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return raw, nil
}

func loadSweepConfig(path string) (sweepConfig, error) {
	raw, err := loadConfigMap(path)
	if err != nil {
		return sweepConfig{}, err
	}
	return sweepConfigFromMap(raw)
}

func loadRunRequestFromConfig(path string) (prisoners.RunRequest, error) {
	cfg, err := loadSweepConfig(path)
	if err != nil {
		return prisoners.RunRequest{}, err
	}
	return cfg.Base, nil
}

func sweepConfigFromMap(raw map[string]any) (sweepConfig, error) {
	var cfg sweepConfig
	req := &cfg.Base

	if v, ok := raw["run_id"]; ok {
		s, ok := asString(v)
		if !ok {
			return sweepConfig{}, fmt.Errorf("config run_id must be a string")
		}
		req.RunID = s
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"players", &req.Players},
		{"generations", &req.Generations},
		{"interactions", &req.Interactions},
		{"population_shift", &req.PopulationShift},
		{"replicates", &cfg.Replicates},
		{"workers", &cfg.Workers},
	}
	for _, field := range ints {
		v, ok := raw[field.key]
		if !ok {
			continue
		}
		n, ok := asInt(v)
		if !ok {
			return sweepConfig{}, fmt.Errorf("config %s must be a number", field.key)
		}
		*field.dst = n
	}
	if v, ok := raw["seed"]; ok {
		seed, ok := asInt64(v)
		if !ok {
			return sweepConfig{}, fmt.Errorf("config seed must be a number")
		}
		req.Seed = seed
	}
	if v, ok := raw["strategies"]; ok {
		names, err := asStrings(v)
		if err != nil {
			return sweepConfig{}, fmt.Errorf("config strategies: %w", err)
		}
		req.Strategies = names
	}
	if v, ok := raw["payoff"]; ok {
		payoff, err := payoffFromConfig(v)
		if err != nil {
			return sweepConfig{}, err
		}
		req.Payoff = payoff
	}
	return cfg, nil
}

func payoffFromConfig(v any) (prisoners.Payoff, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return prisoners.Payoff{}, fmt.Errorf("config payoff must be an object")
	}
	var payoff prisoners.Payoff
	fields := []struct {
		key string
		dst *int
	}{
		{"temptation", &payoff.Temptation},
		{"reward", &payoff.Reward},
		{"punishment", &payoff.Punishment},
		{"sucker", &payoff.Sucker},
	}
	for _, field := range fields {
		raw, ok := m[field.key]
		if !ok {
			return prisoners.Payoff{}, fmt.Errorf("config payoff.%s is required", field.key)
		}
		n, ok := asInt(raw)
		if !ok {
			return prisoners.Payoff{}, fmt.Errorf("config payoff.%s must be a number", field.key)
		}
		*field.dst = n
	}
	return payoff, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

// asStrings accepts either a JSON list of names or one comma separated string.
func asStrings(v any) ([]string, error) {
	switch x := v.(type) {
	case string:
		return splitList(x), nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := asString(item)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list of strings, got %T", v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func overrideFromFlags(cfg *sweepConfig, set map[string]bool, flagValue map[string]any) error {
	req := &cfg.Base
	if req.Payoff.IsZero() && setsPayoff(set) {
		req.Payoff = prisoners.DefaultPayoff
	}
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			req.RunID = v.(string)
		case "players":
			req.Players = v.(int)
		case "generations":
			req.Generations = v.(int)
		case "interactions":
			req.Interactions = v.(int)
		case "population-shift":
			req.PopulationShift = v.(int)
		case "strategies":
			req.Strategies = splitList(v.(string))
		case "seed":
			req.Seed = v.(int64)
		case "temptation":
			req.Payoff.Temptation = v.(int)
		case "reward":
			req.Payoff.Reward = v.(int)
		case "punishment":
			req.Payoff.Punishment = v.(int)
		case "sucker":
			req.Payoff.Sucker = v.(int)
		case "replicates":
			cfg.Replicates = v.(int)
		case "workers":
			cfg.Workers = v.(int)
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return nil
}

func setsPayoff(set map[string]bool) bool {
	return set["temptation"] || set["reward"] || set["punishment"] || set["sucker"]
}
