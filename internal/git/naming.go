package git

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/google/uuid"
)

// nouns used for random node name generation
var nouns = []string{
	"falcon", "river", "summit", "spark", "wave", "flame", "storm", "frost",
	"dawn", "dusk", "moon", "star", "cloud", "breeze", "shadow", "echo",
	"forge", "bloom", "drift", "pulse", "glow", "nexus", "prism", "flux",
	"zenith", "aurora", "comet", "nebula", "quasar", "nova", "orbit", "beacon",
	"ember", "crystal", "thunder", "whisper", "canyon", "meadow", "harbor", "peak",
}

const base32Alphabet = "abcdefghijklmnopqrstuvwxyz234567"

// shortHash returns a 5-character base32 hash of the input.
// 32^5 gives roughly 33 million possibilities.
func shortHash(input string) string {
	h := fnv.New64a()
	h.Write([]byte(input))
	sum := h.Sum64()

	buf := make([]byte, 5)
	for i := range buf {
		buf[i] = base32Alphabet[sum&0x1f]
		sum >>= 5
	}
	return string(buf)
}

// GenerateNodeName produces a unique node name with format
// {noun}-{noun}-{hash}, for example ember-river-k9q2m. The two words
// keep it human readable and the hash suffix makes collisions with
// existing branch names vanishingly rare; the retry loop is a safety
// net on top.
func GenerateNodeName(existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		taken[name] = struct{}{}
	}

	for attempt := 0; attempt < 10; attempt++ {
		noun1 := nouns[rand.Intn(len(nouns))]
		noun2 := nouns[rand.Intn(len(nouns))]
		suffix := shortHash(fmt.Sprintf("%s-%d", uuid.NewString(), attempt))

		name := fmt.Sprintf("%s-%s-%s", noun1, noun2, suffix)
		if _, ok := taken[name]; !ok {
			return name
		}
	}

	// Virtually impossible to reach
	return "node-" + uuid.NewString()[:8]
}
