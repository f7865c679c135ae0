package evo

import (
	"testing"

	"github.com/tgsachse/prisoners/internal/game"
	"github.com/tgsachse/prisoners/internal/strategy"
)

func TestPlayerDelegatesToStrategyByOpponentID(t *testing.T) {
	grudger := NewPlayer(1, strategy.NewGrudger())
	cheat := NewPlayer(2, strategy.NewAlwaysDefect())
	stranger := NewPlayer(3, strategy.NewAlwaysDefect())

	grudger.Update(game.DefaultPayoff.Sucker, cheat, game.Defect)
	if got := grudger.Play(cheat); got != game.Defect {
		t.Fatalf("expected grudge against player 2, got %s", got)
	}
	if got := grudger.Play(stranger); got != game.Cooperate {
		t.Fatalf("expected cooperation with a stranger of the same variant, got %s", got)
	}
}

func TestPlayerResetClearsScoreAndMemory(t *testing.T) {
	p := NewPlayer(1, strategy.NewTitForTat())
	opponent := NewPlayer(2, strategy.NewAlwaysDefect())
	p.Update(7, opponent, game.Defect)

	p.Reset()
	if p.Score != 0 {
		t.Fatalf("expected zero score after reset, got %d", p.Score)
	}
	if got := p.Play(opponent); got != game.Cooperate {
		t.Fatalf("expected memory cleared after reset, got %s", got)
	}
}

func TestPlayerLessComparesScoreOnly(t *testing.T) {
	a := NewPlayer(9, strategy.NewAlwaysCooperate())
	b := NewPlayer(1, strategy.NewAlwaysDefect())
	a.Score, b.Score = 2, 2
	if a.Less(b) || b.Less(a) {
		t.Fatal("equal scores must not be ordered")
	}
	b.Score = 3
	if !a.Less(b) {
		t.Fatal("expected lower score to order first")
	}
}
