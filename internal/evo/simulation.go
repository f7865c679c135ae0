package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/tgsachse/prisoners/internal/game"
	"github.com/tgsachse/prisoners/internal/model"
	"github.com/tgsachse/prisoners/internal/strategy"
)

var ErrInvalidConfig = errors.New("invalid simulation config")

type Config struct {
	Players         int
	Generations     int
	Interactions    int
	PopulationShift int
	// Strategies lists the variants in play; empty means every registered one.
	Strategies []strategy.Name
	Seed       int64
	// Payoff defaults to game.DefaultPayoff when zero.
	Payoff   game.PayoffTable
	Registry *strategy.Registry
	Logger   *slog.Logger
	// OnGeneration runs at each generation boundary, after statistics are recorded.
	OnGeneration func(model.GenerationDiagnostics)
}

type RunResult struct {
	Frequencies     []model.FrequencySeries
	Diagnostics     []model.GenerationDiagnostics
	Lineage         []model.LineageRecord
	FinalPopulation []PlayerSnapshot
}

// Simulation evolves a population of players one generation at a time.
type Simulation struct {
	cfg    Config
	rng    *rand.Rand
	logger *slog.Logger

	players    map[int]*Player
	nextID     int
	generation int

	frequencies map[strategy.Name][]int
	lastCounts  map[strategy.Name]int
	diagnostics []model.GenerationDiagnostics
	lineage     []model.LineageRecord
}

func NewSimulation(cfg Config) (*Simulation, error) {
	cfg, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		logger:      cfg.Logger,
		players:     make(map[int]*Player, cfg.Players),
		frequencies: make(map[strategy.Name][]int, len(cfg.Strategies)),
	}
	for _, name := range cfg.Strategies {
		s.frequencies[name] = []int{}
	}
	if err := s.populate(); err != nil {
		return nil, err
	}
	s.lastCounts = s.countStrategies()
	return s, nil
}

func normalizeConfig(cfg Config) (Config, error) {
	if cfg.Players <= 0 {
		return Config{}, fmt.Errorf("%w: players must be > 0", ErrInvalidConfig)
	}
	if cfg.Generations <= 0 {
		return Config{}, fmt.Errorf("%w: generations must be > 0", ErrInvalidConfig)
	}
	if cfg.Interactions <= 0 {
		return Config{}, fmt.Errorf("%w: interactions must be > 0", ErrInvalidConfig)
	}
	if cfg.PopulationShift <= 0 {
		return Config{}, fmt.Errorf("%w: population shift must be > 0", ErrInvalidConfig)
	}
	if cfg.PopulationShift >= cfg.Players {
		return Config{}, fmt.Errorf("%w: population shift must be < players: shift=%d players=%d",
			ErrInvalidConfig, cfg.PopulationShift, cfg.Players)
	}
	if cfg.Registry == nil {
		cfg.Registry = strategy.Default()
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = cfg.Registry.Names()
	}
	if len(cfg.Strategies) == 0 {
		return Config{}, fmt.Errorf("%w: at least one strategy is required", ErrInvalidConfig)
	}
	seen := make(map[strategy.Name]struct{}, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		if !cfg.Registry.Has(name) {
			return Config{}, fmt.Errorf("%w: %w: %s", ErrInvalidConfig, strategy.ErrStrategyNotFound, name)
		}
		if _, dup := seen[name]; dup {
			return Config{}, fmt.Errorf("%w: duplicate strategy %s", ErrInvalidConfig, name)
		}
		seen[name] = struct{}{}
	}
	cfg.Strategies = append([]strategy.Name(nil), cfg.Strategies...)
	if cfg.Payoff.IsZero() {
		cfg.Payoff = game.DefaultPayoff
	}
	if err := cfg.Payoff.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg, nil
}

// InitialShare is the number of players each variant receives before the
// random fill. When there are more variants than players it is zero and the
// whole population comes from the random fill, so the population never
// exceeds the requested size.
func InitialShare(players, variants int) int {
	if variants <= 0 {
		return 0
	}
	return players / variants
}

func (s *Simulation) populate() error {
	share := InitialShare(s.cfg.Players, len(s.cfg.Strategies))
	for _, name := range s.cfg.Strategies {
		for i := 0; i < share; i++ {
			if _, err := s.spawn(name, model.NoParent); err != nil {
				return err
			}
		}
	}
	for len(s.players) < s.cfg.Players {
		name := s.cfg.Strategies[s.rng.Intn(len(s.cfg.Strategies))]
		if _, err := s.spawn(name, model.NoParent); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) spawn(name strategy.Name, parentID int) (*Player, error) {
	instance, err := s.cfg.Registry.New(name, s.rng)
	if err != nil {
		return nil, err
	}
	p := NewPlayer(s.nextID, instance)
	s.players[p.ID] = p
	s.nextID++

	operation := model.OperationReplicate
	if parentID == model.NoParent {
		operation = model.OperationSeed
	}
	s.lineage = append(s.lineage, model.LineageRecord{
		VersionedRecord: model.CurrentVersion(),
		PlayerID:        p.ID,
		ParentID:        parentID,
		Generation:      s.generation,
		Strategy:        string(name),
		Operation:       operation,
	})
	return p, nil
}

// SingleGeneration plays one generation, reshapes the population and records
// its statistics.
func (s *Simulation) SingleGeneration() model.GenerationDiagnostics {
	s.generation++
	order := s.orderedPlayers()

	for _, p := range order {
		p.Reset()
	}
	for _, p := range order {
		for i := 0; i < s.cfg.Interactions; i++ {
			s.playGame(p, s.pickOpponent(order, p))
		}
	}

	diag := summarizeScores(order, s.generation)

	// Removal and replication both read this ranking.
	weakest := Weakest(order, s.cfg.PopulationShift)
	strongest := Strongest(order, s.cfg.PopulationShift)

	diag.RemovedIDs = make([]int, 0, len(weakest))
	for _, p := range weakest {
		delete(s.players, p.ID)
		diag.RemovedIDs = append(diag.RemovedIDs, p.ID)
	}
	diag.ParentIDs = make([]int, 0, len(strongest))
	diag.ChildIDs = make([]int, 0, len(strongest))
	for _, parent := range strongest {
		child, err := s.spawn(parent.Strategy.Name(), parent.ID)
		if err != nil {
			// Every name in play was checked against the registry up front.
			panic(fmt.Sprintf("replicate player %d: %v", parent.ID, err))
		}
		diag.ParentIDs = append(diag.ParentIDs, parent.ID)
		diag.ChildIDs = append(diag.ChildIDs, child.ID)
	}

	counts := s.countStrategies()
	for _, name := range s.cfg.Strategies {
		s.frequencies[name] = append(s.frequencies[name], counts[name])
		if s.lastCounts[name] > 0 && counts[name] == 0 {
			diag.ExtinctStrategies = append(diag.ExtinctStrategies, string(name))
		}
	}
	s.lastCounts = counts
	diag.PopulationSize = len(s.players)
	s.diagnostics = append(s.diagnostics, diag)

	s.logger.Debug("generation complete",
		"generation", diag.Generation,
		"population", diag.PopulationSize,
		"best_score", diag.BestScore,
		"min_score", diag.MinScore,
		"extinct", diag.ExtinctStrategies,
	)
	if s.cfg.OnGeneration != nil {
		s.cfg.OnGeneration(diag)
	}
	return diag
}

// Run plays every configured generation. The context is only checked between
// generations.
func (s *Simulation) Run(ctx context.Context) (RunResult, error) {
	s.logger.Info("simulation started",
		"players", s.cfg.Players,
		"generations", s.cfg.Generations,
		"interactions", s.cfg.Interactions,
		"population_shift", s.cfg.PopulationShift,
		"seed", s.cfg.Seed,
	)
	for gen := 0; gen < s.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		s.SingleGeneration()
	}
	s.logger.Info("simulation finished", "generations", s.generation, "population", len(s.players))

	return RunResult{
		Frequencies:     s.FrequencySeries(),
		Diagnostics:     s.Diagnostics(),
		Lineage:         s.Lineage(),
		FinalPopulation: s.Players(),
	}, nil
}

func (s *Simulation) playGame(a, b *Player) {
	actionA := a.Play(b)
	actionB := b.Play(a)
	pointsA, pointsB := s.cfg.Payoff.Resolve(actionA, actionB)
	a.Update(pointsA, b, actionB)
	b.Update(pointsB, a, actionA)
}

// pickOpponent draws uniformly until it lands on someone other than self.
func (s *Simulation) pickOpponent(order []*Player, self *Player) *Player {
	other := order[s.rng.Intn(len(order))]
	for other.ID == self.ID {
		other = order[s.rng.Intn(len(order))]
	}
	return other
}

// orderedPlayers lists the population by ascending id so that a seed fully
// determines a run.
func (s *Simulation) orderedPlayers() []*Player {
	order := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		order = append(order, p)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].ID < order[j].ID })
	return order
}

func (s *Simulation) countStrategies() map[strategy.Name]int {
	counts := make(map[strategy.Name]int, len(s.cfg.Strategies))
	for _, p := range s.players {
		counts[p.Strategy.Name()]++
	}
	return counts
}

func summarizeScores(players []*Player, generation int) model.GenerationDiagnostics {
	if len(players) == 0 {
		return model.GenerationDiagnostics{Generation: generation}
	}
	total := 0
	best := players[0].Score
	worst := players[0].Score
	for _, p := range players {
		total += p.Score
		if p.Score > best {
			best = p.Score
		}
		if p.Score < worst {
			worst = p.Score
		}
	}
	return model.GenerationDiagnostics{
		Generation: generation,
		BestScore:  best,
		MeanScore:  float64(total) / float64(len(players)),
		MinScore:   worst,
	}
}

func (s *Simulation) Size() int {
	return len(s.players)
}

// Generation is the number of generations played so far.
func (s *Simulation) Generation() int {
	return s.generation
}

// Payoff is the table in effect after defaults were applied.
func (s *Simulation) Payoff() game.PayoffTable {
	return s.cfg.Payoff
}

func (s *Simulation) Strategies() []strategy.Name {
	return append([]strategy.Name(nil), s.cfg.Strategies...)
}

// Players returns the population ordered by id.
func (s *Simulation) Players() []PlayerSnapshot {
	order := s.orderedPlayers()
	out := make([]PlayerSnapshot, 0, len(order))
	for _, p := range order {
		out = append(out, p.Snapshot())
	}
	return out
}

// Frequencies returns a copy of the per-generation counts by strategy.
func (s *Simulation) Frequencies() map[strategy.Name][]int {
	out := make(map[strategy.Name][]int, len(s.frequencies))
	for name, counts := range s.frequencies {
		out[name] = append([]int(nil), counts...)
	}
	return out
}

// FrequencySeries returns the counts in strategy order.
func (s *Simulation) FrequencySeries() []model.FrequencySeries {
	out := make([]model.FrequencySeries, 0, len(s.cfg.Strategies))
	for _, name := range s.cfg.Strategies {
		out = append(out, model.FrequencySeries{
			Strategy: string(name),
			Counts:   append([]int(nil), s.frequencies[name]...),
		})
	}
	return out
}

func (s *Simulation) Diagnostics() []model.GenerationDiagnostics {
	out := make([]model.GenerationDiagnostics, len(s.diagnostics))
	copy(out, s.diagnostics)
	return out
}

func (s *Simulation) Lineage() []model.LineageRecord {
	out := make([]model.LineageRecord, len(s.lineage))
	copy(out, s.lineage)
	return out
}
