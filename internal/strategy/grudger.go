package strategy

import "github.com/tgsachse/prisoners/internal/game"

// grudger cooperates until an opponent defects, then never again.
type grudger struct {
	cheaters opponentSet
}

func NewGrudger() Strategy {
	return &grudger{cheaters: opponentSet{}}
}

func (g *grudger) Name() Name { return Grudger }

func (g *grudger) Decide(opponent int) game.Action {
	if g.cheaters.has(opponent) {
		return game.Defect
	}
	return game.Cooperate
}

func (g *grudger) Observe(opponent int, action game.Action) {
	if action == game.Defect {
		g.cheaters.add(opponent)
	}
}

func (g *grudger) Reset() {
	g.cheaters = opponentSet{}
}
