package arena

import (
	"math/rand/v2"
	"slices"

	"github.com/gosuda/turingarena/internal/domain"
)

// Shuffle returns a shuffled copy of players. players is not modified and
// the result is never nil.
func Shuffle(r *rand.Rand, players []domain.Player) []domain.Player {
	out := make([]domain.Player, len(players))
	copy(out, players)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// drawRoster picks n distinct names from pool and binds them to a random
// permutation of 1..n.
func drawRoster(r *rand.Rand, pool []string, n int) []domain.Player {
	names := slices.Clone(pool)
	r.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })

	ids := r.Perm(n)
	players := make([]domain.Player, n)
	for i := range n {
		players[i] = domain.Player{Name: names[i], ID: ids[i] + 1}
	}
	return players
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // display order and names only
}
