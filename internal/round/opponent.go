package round

import (
	"math/rand/v2"
	"sync"

	"github.com/ayusman/roshambo/internal/gesture"
)

// RandomOpponent draws uniformly from rock, paper and scissors.
type RandomOpponent struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomOpponent returns an opponent seeded from the runtime.
func NewRandomOpponent() *RandomOpponent {
	return &RandomOpponent{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededOpponent returns a reproducible opponent.
func NewSeededOpponent(seed uint64) *RandomOpponent {
	return &RandomOpponent{rng: rand.New(rand.NewPCG(seed, seed))}
}

// Move implements Opponent.
func (o *RandomOpponent) Move() gesture.Label {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gesture.Moves[o.rng.IntN(len(gesture.Moves))]
}

// FixedOpponent always plays the same move.
type FixedOpponent gesture.Label

// Move implements Opponent.
func (o FixedOpponent) Move() gesture.Label {
	return gesture.Label(o)
}
