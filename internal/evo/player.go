package evo

import (
	"github.com/tgsachse/prisoners/internal/game"
	"github.com/tgsachse/prisoners/internal/strategy"
)

// Player owns a strategy and the score it earned this generation.
type Player struct {
	ID       int
	Strategy strategy.Strategy
	Score    int
}

func NewPlayer(id int, s strategy.Strategy) *Player {
	return &Player{ID: id, Strategy: s}
}

// Play returns the action this player takes against opponent.
func (p *Player) Play(opponent *Player) game.Action {
	return p.Strategy.Decide(opponent.ID)
}

// Update adds points and lets the strategy remember what opponent did.
func (p *Player) Update(points int, opponent *Player, opponentAction game.Action) {
	p.Score += points
	p.Strategy.Observe(opponent.ID, opponentAction)
}

// Reset clears the score and the strategy's memory.
func (p *Player) Reset() {
	p.Score = 0
	p.Strategy.Reset()
}

// Less orders players by score alone.
func (p *Player) Less(other *Player) bool {
	return p.Score < other.Score
}

// PlayerSnapshot is a read-only view of a player.
type PlayerSnapshot struct {
	ID       int           `json:"id"`
	Strategy strategy.Name `json:"strategy"`
	Score    int           `json:"score"`
}

func (p *Player) Snapshot() PlayerSnapshot {
	return PlayerSnapshot{ID: p.ID, Strategy: p.Strategy.Name(), Score: p.Score}
}
