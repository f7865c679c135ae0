package strategy

import (
	"math/rand"

	"github.com/tgsachse/prisoners/internal/game"
)

type random struct {
	rng *rand.Rand
}

// NewRandom cooperates or defects with equal probability.
func NewRandom(rng *rand.Rand) Strategy {
	return &random{rng: rng}
}

func (r *random) Name() Name { return Random }

func (r *random) Decide(int) game.Action {
	return coinFlip(r.rng)
}

func (r *random) Observe(int, game.Action) {}

func (r *random) Reset() {}

func coinFlip(rng *rand.Rand) game.Action {
	if rng.Intn(2) == 0 {
		return game.Cooperate
	}
	return game.Defect
}
