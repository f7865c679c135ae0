package strategy

import "github.com/tgsachse/prisoners/internal/game"

type constant struct {
	name   Name
	action game.Action
}

// NewAlwaysDefect defects every round.
func NewAlwaysDefect() Strategy {
	return constant{name: AlwaysDefect, action: game.Defect}
}

// NewAlwaysCooperate cooperates every round.
func NewAlwaysCooperate() Strategy {
	return constant{name: AlwaysCooperate, action: game.Cooperate}
}

func (c constant) Name() Name               { return c.name }
func (c constant) Decide(int) game.Action   { return c.action }
func (c constant) Observe(int, game.Action) {}
func (c constant) Reset()                   {}
