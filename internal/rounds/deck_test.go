package rounds

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeck_DealsEveryWordOnce(t *testing.T) {
	words := []string{"kazoo", "igloo", "tuba", "walrus"}
	d := newDeck(words, rand.New(rand.NewPCG(1, 2)))

	seen := map[string]int{}
	for range words {
		seen[d.draw()]++
	}

	assert.Len(t, seen, len(words))
	for _, w := range words {
		assert.Equal(t, 1, seen[w], w)
	}
}

func TestDeck_ReshufflesWhenEmpty(t *testing.T) {
	d := newDeck([]string{"kazoo", "igloo"}, rand.New(rand.NewPCG(3, 4)))

	for i := 0; i < 10; i++ {
		assert.Contains(t, []string{"kazoo", "igloo"}, d.draw())
	}
}

func TestDeck_DefaultsAndCopies(t *testing.T) {
	words := []string{"b", "a"}
	d := newDeck(words, nil)
	d.draw()
	assert.Equal(t, []string{"b", "a"}, words, "caller's list is not shuffled in place")

	empty := newDeck(nil, nil)
	assert.Contains(t, DefaultWords, empty.draw())
}
