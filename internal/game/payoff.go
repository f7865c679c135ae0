package game

import (
	"errors"
	"fmt"
)

// Action is a single move in one round of the dilemma.
type Action int

const (
	Cooperate Action = iota
	Defect
)

func (a Action) String() string {
	switch a {
	case Cooperate:
		return "cooperate"
	case Defect:
		return "defect"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

var ErrInvalidPayoff = errors.New("invalid payoff table")

// PayoffTable assigns points to each side of a round.
type PayoffTable struct {
	Temptation int `json:"temptation"`
	Reward     int `json:"reward"`
	Punishment int `json:"punishment"`
	Sucker     int `json:"sucker"`
}

// DefaultPayoff is the canonical T=5, R=3, P=1, S=0 matrix.
var DefaultPayoff = PayoffTable{
	Temptation: 5,
	Reward:     3,
	Punishment: 1,
	Sucker:     0,
}

// IsZero reports whether no value has been set.
func (p PayoffTable) IsZero() bool {
	return p == PayoffTable{}
}

// Validate enforces T > R > P > S and 2R > T + S.
func (p PayoffTable) Validate() error {
	if !(p.Temptation > p.Reward && p.Reward > p.Punishment && p.Punishment > p.Sucker) {
		return fmt.Errorf("%w: require temptation > reward > punishment > sucker, got T=%d R=%d P=%d S=%d",
			ErrInvalidPayoff, p.Temptation, p.Reward, p.Punishment, p.Sucker)
	}
	if 2*p.Reward <= p.Temptation+p.Sucker {
		return fmt.Errorf("%w: require 2*reward > temptation + sucker, got 2*%d <= %d + %d",
			ErrInvalidPayoff, p.Reward, p.Temptation, p.Sucker)
	}
	return nil
}

// Resolve returns the points earned by a and b respectively.
func (p PayoffTable) Resolve(a, b Action) (int, int) {
	switch {
	case a == Cooperate && b == Cooperate:
		return p.Reward, p.Reward
	case a == Cooperate && b == Defect:
		return p.Sucker, p.Temptation
	case a == Defect && b == Cooperate:
		return p.Temptation, p.Sucker
	default:
		return p.Punishment, p.Punishment
	}
}
