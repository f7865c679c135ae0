package strategy

import "github.com/tgsachse/prisoners/internal/game"

// exploiter defects once against any opponent that just cooperated with it.
type exploiter struct {
	marks opponentSet
}

func NewExploiter() Strategy {
	return &exploiter{marks: opponentSet{}}
}

func (e *exploiter) Name() Name { return Exploiter }

func (e *exploiter) Decide(opponent int) game.Action {
	if e.marks.take(opponent) {
		return game.Defect
	}
	return game.Cooperate
}

func (e *exploiter) Observe(opponent int, action game.Action) {
	if action == game.Cooperate {
		e.marks.add(opponent)
	}
}

func (e *exploiter) Reset() {
	e.marks = opponentSet{}
}
