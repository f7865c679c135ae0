// Package strategy holds the decision policies a player delegates to.
//
// Strategies remember opponents by player ID. A replicated player gets a new
// ID, so it is a stranger to every strategy even when its variant matches a
// player seen earlier.
package strategy

import (
	"strings"

	"github.com/tgsachse/prisoners/internal/game"
)

// Name tags a strategy variant for statistics and replication.
type Name string

const (
	Random          Name = "RANDOM"
	AlwaysDefect    Name = "ALWAYS_DEFECT"
	AlwaysCooperate Name = "ALWAYS_COOPERATE"
	Grudger         Name = "GRUDGER"
	TitForTat       Name = "TIT_FOR_TAT"
	Exploiter       Name = "EXPLOITER"
	BurnTheBridge   Name = "BURN_THE_BRIDGE"
)

// Strategy decides actions against opponents identified by player ID.
type Strategy interface {
	Name() Name
	// Decide picks the action to play against opponent.
	Decide(opponent int) game.Action
	// Observe records the action opponent just played against us.
	Observe(opponent int, action game.Action)
	// Reset forgets every opponent.
	Reset()
}

// ParseName resolves a wire name against the built-in registry.
func ParseName(raw string) (Name, error) {
	return Default().Resolve(raw)
}

// ParseNames resolves a list of wire names against the built-in registry.
func ParseNames(raw []string) ([]Name, error) {
	return Default().ResolveAll(raw)
}

func normalizeName(raw string) Name {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	return Name(strings.ReplaceAll(normalized, "-", "_"))
}

// opponentSet is the per-opponent memory shared by the remembering variants.
type opponentSet map[int]struct{}

func (s opponentSet) add(id int) {
	s[id] = struct{}{}
}

func (s opponentSet) has(id int) bool {
	_, ok := s[id]
	return ok
}

// take removes id and reports whether it was present.
func (s opponentSet) take(id int) bool {
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}
