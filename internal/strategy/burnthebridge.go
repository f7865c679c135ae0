package strategy

import (
	"math/rand"

	"github.com/tgsachse/prisoners/internal/game"
)

// burnTheBridge plays randomly until its first defection against an
// opponent, after which it always defects against that opponent.
type burnTheBridge struct {
	rng   *rand.Rand
	burnt opponentSet
}

func NewBurnTheBridge(rng *rand.Rand) Strategy {
	return &burnTheBridge{rng: rng, burnt: opponentSet{}}
}

func (b *burnTheBridge) Name() Name { return BurnTheBridge }

func (b *burnTheBridge) Decide(opponent int) game.Action {
	if b.burnt.has(opponent) {
		return game.Defect
	}
	action := coinFlip(b.rng)
	if action == game.Defect {
		b.burnt.add(opponent)
	}
	return action
}

func (b *burnTheBridge) Observe(int, game.Action) {}

func (b *burnTheBridge) Reset() {
	b.burnt = opponentSet{}
}
