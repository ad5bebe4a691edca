package rounds

import (
	"math/rand/v2"
	"time"
)

// DefaultWords are the round words dealt when no other list is configured
var DefaultWords = []string{
	"lighthouse", "trampoline", "submarine", "volcano", "accordion",
	"skateboard", "igloo", "waffle", "parachute", "telescope",
	"cactus", "jellyfish", "bagpipes", "snowglobe", "treehouse",
	"hammock", "periscope", "carousel", "pretzel", "windmill",
	"kazoo", "pinata", "sombrero", "hovercraft", "origami",
	"marionette", "boomerang", "gondola", "tuba", "yo-yo",
	"compass", "scarecrow", "chandelier", "flamingo", "walrus",
	"dumpling", "zeppelin", "harmonica", "sandcastle", "quicksand",
}

// deck deals words without repeats, reshuffling once every word has been dealt
type deck struct {
	words []string
	next  int
	rng   *rand.Rand
}

func newDeck(words []string, rng *rand.Rand) *deck {
	if len(words) == 0 {
		words = DefaultWords
	}
	if rng == nil {
		now := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(now, now>>32))
	}

	d := &deck{
		words: append([]string(nil), words...),
		rng:   rng,
	}
	d.reset()
	return d
}

// draw returns the next word
func (d *deck) draw() string {
	if d.next >= len(d.words) {
		d.reset()
	}
	word := d.words[d.next]
	d.next++
	return word
}

// reset reshuffles so every word can be dealt again
func (d *deck) reset() {
	d.rng.Shuffle(len(d.words), func(i, j int) {
		d.words[i], d.words[j] = d.words[j], d.words[i]
	})
	d.next = 0
}
