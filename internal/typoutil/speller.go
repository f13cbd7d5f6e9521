package typoutil

// Corrector suggests spelling corrections from a frequency-weighted
// vocabulary. It is not safe for concurrent use; the owning engine serializes
// access.
type Corrector struct {
	words map[string]int
}

// NewCorrector creates a corrector over an existing vocabulary map. The map
// is shared, not copied, so an engine can persist it directly.
func NewCorrector(words map[string]int) *Corrector {
	if words == nil {
		words = make(map[string]int)
	}
	return &Corrector{words: words}
}

// Add increments a word's frequency.
func (c *Corrector) Add(word string) {
	if word == "" {
		return
	}
	c.words[word]++
}

// Remove decrements a word's frequency, dropping the word at zero.
func (c *Corrector) Remove(word string) {
	n, ok := c.words[word]
	if !ok {
		return
	}
	if n <= 1 {
		delete(c.words, word)
		return
	}
	c.words[word] = n - 1
}

// maxEditDistance scales the allowed edits with word length: short words get
// no correction, medium words one edit, long words two.
func maxEditDistance(word string) int {
	switch n := len([]rune(word)); {
	case n < 4:
		return 0
	case n < 7:
		return 1
	default:
		return 2
	}
}

// Suggest returns the closest vocabulary word to the input, preferring
// smaller edit distance, then higher frequency, then lexicographic order for
// determinism. A word already in the vocabulary needs no correction. The
// second result is false when nothing within the allowed distance exists.
func (c *Corrector) Suggest(word string) (string, bool) {
	if word == "" {
		return "", false
	}
	if _, ok := c.words[word]; ok {
		return word, true
	}
	maxDist := maxEditDistance(word)
	if maxDist == 0 {
		return "", false
	}

	best := ""
	bestDist := maxDist + 1
	bestFreq := 0
	for candidate, freq := range c.words {
		dist := DistanceWithLimit(word, candidate, maxDist)
		if dist > maxDist {
			continue
		}
		if dist < bestDist ||
			(dist == bestDist && freq > bestFreq) ||
			(dist == bestDist && freq == bestFreq && candidate < best) {
			best, bestDist, bestFreq = candidate, dist, freq
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}
