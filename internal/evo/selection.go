package evo

import "container/heap"

// lowerScore ranks weaker players first; ties go to the older player.
func lowerScore(a, b *Player) bool {
	if a.Score != b.Score {
		return a.Less(b)
	}
	return a.ID < b.ID
}

// higherScore ranks stronger players first; ties go to the older player.
func higherScore(a, b *Player) bool {
	if a.Score != b.Score {
		return b.Less(a)
	}
	return a.ID < b.ID
}

// Weakest returns the n lowest scoring players, weakest first.
func Weakest(players []*Player, n int) []*Player {
	return selectFirst(players, n, lowerScore)
}

// Strongest returns the n highest scoring players, strongest first.
func Strongest(players []*Player, n int) []*Player {
	return selectFirst(players, n, higherScore)
}

// selectFirst keeps the n players that come first under before using a
// bounded heap whose root is the last of the kept players.
func selectFirst(players []*Player, n int, before func(a, b *Player) bool) []*Player {
	if n <= 0 {
		return nil
	}
	if n > len(players) {
		n = len(players)
	}

	h := &boundedHeap{before: before, items: make([]*Player, 0, n)}
	for _, p := range players {
		if h.Len() < n {
			heap.Push(h, p)
			continue
		}
		if before(p, h.items[0]) {
			h.items[0] = p
			heap.Fix(h, 0)
		}
	}

	out := make([]*Player, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(*Player)
	}
	return out
}

type boundedHeap struct {
	before func(a, b *Player) bool
	items  []*Player
}

func (h *boundedHeap) Len() int { return len(h.items) }

func (h *boundedHeap) Less(i, j int) bool { return h.before(h.items[j], h.items[i]) }

func (h *boundedHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *boundedHeap) Push(x any) { h.items = append(h.items, x.(*Player)) }

func (h *boundedHeap) Pop() any {
	old := h.items
	last := old[len(old)-1]
	h.items = old[:len(old)-1]
	return last
}
