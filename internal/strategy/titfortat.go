package strategy

import "github.com/tgsachse/prisoners/internal/game"

// titForTat strikes back once at an opponent that defected, then forgives.
type titForTat struct {
	cheaters opponentSet
}

func NewTitForTat() Strategy {
	return &titForTat{cheaters: opponentSet{}}
}

func (t *titForTat) Name() Name { return TitForTat }

// Decide clears the mark as it retaliates.
func (t *titForTat) Decide(opponent int) game.Action {
	if t.cheaters.take(opponent) {
		return game.Defect
	}
	return game.Cooperate
}

func (t *titForTat) Observe(opponent int, action game.Action) {
	if action == game.Defect {
		t.cheaters.add(opponent)
	}
}

func (t *titForTat) Reset() {
	t.cheaters = opponentSet{}
}
