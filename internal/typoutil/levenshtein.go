// Package typoutil provides edit-distance computation and the spelling
// corrector built on it. The corrector serves spell-corrected query text for
// fields indexed with the spell flag.
package typoutil

// Distance computes the Damerau-Levenshtein distance between two strings:
// the minimum number of insertions, deletions, substitutions and adjacent
// transpositions turning one into the other. Works on runes, so multi-byte
// characters count as single edits.
func Distance(a, b string) int {
	return DistanceWithLimit(a, b, len(a)+len(b))
}

// DistanceWithLimit is Distance with early termination: once the distance
// provably exceeds maxDistance it returns maxDistance + 1 without finishing
// the matrix.
func DistanceWithLimit(a, b string, maxDistance int) int {
	runesA := []rune(a)
	runesB := []rune(b)
	lenA, lenB := len(runesA), len(runesB)

	lengthDiff := lenA - lenB
	if lengthDiff < 0 {
		lengthDiff = -lengthDiff
	}
	if lengthDiff > maxDistance {
		return maxDistance + 1
	}
	if lenA == 0 {
		return lenB
	}
	if lenB == 0 {
		return lenA
	}

	// Three rolling rows: transpositions look two rows back.
	prevPrevRow := make([]int, lenB+1)
	prevRow := make([]int, lenB+1)
	currRow := make([]int, lenB+1)
	for j := 0; j <= lenB; j++ {
		prevRow[j] = j
	}

	for i := 1; i <= lenA; i++ {
		currRow[0] = i
		minInRow := i

		for j := 1; j <= lenB; j++ {
			cost := 0
			if runesA[i-1] != runesB[j-1] {
				cost = 1
			}

			deletion := prevRow[j] + 1
			insertion := currRow[j-1] + 1
			substitution := prevRow[j-1] + cost

			d := deletion
			if insertion < d {
				d = insertion
			}
			if substitution < d {
				d = substitution
			}

			if i > 1 && j > 1 &&
				runesA[i-1] == runesB[j-2] &&
				runesA[i-2] == runesB[j-1] {
				if t := prevPrevRow[j-2] + cost; t < d {
					d = t
				}
			}

			currRow[j] = d
			if d < minInRow {
				minInRow = d
			}
		}

		if minInRow > maxDistance {
			return maxDistance + 1
		}

		prevPrevRow, prevRow, currRow = prevRow, currRow, prevPrevRow
	}

	return prevRow[lenB]
}
