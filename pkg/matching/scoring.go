package matching

import (
	"strings"
)

// Scorer provides string and value comparison algorithms
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// StringSimilarity is the normalized Levenshtein similarity. Identical strings score 1
// and a single empty side scores 0.
func (s *Scorer) StringSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	return s.Levenshtein(a, b)
}

// Levenshtein returns 1 - distance/maxLen over runes
func (s *Scorer) Levenshtein(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(s.LevenshteinDistance(a, b))/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	row := make([]int, len(rb)+1)
	prevRow := make([]int, len(rb)+1)

	for j := 0; j <= len(rb); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			row[j] = min(row[j-1]+1, prevRow[j]+1, prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(rb)]
}

// TokenSimilarity compares whitespace-separated tokens. A token matches when it is
// identical to, or more than threshold similar to, an unused token on the other side.
// Matching is one-to-one, so a repeated token is only credited once ("john john" vs
// "john smith" scores 0.5). The score is the matched count over the larger token count.
func (s *Scorer) TokenSimilarity(a, b string, threshold float64) float64 {
	ta := strings.Fields(strings.ToLower(a))
	tb := strings.Fields(strings.ToLower(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	used := make([]bool, len(tb))
	matched := 0
	for _, x := range ta {
		for j, y := range tb {
			if used[j] {
				continue
			}
			if x == y || s.StringSimilarity(x, y) > threshold {
				used[j] = true
				matched++
				break
			}
		}
	}

	return float64(matched) / float64(max(len(ta), len(tb)))
}

// WeightedScore calculates a weighted average. Fields without an explicit weight use defaultWeight.
func (s *Scorer) WeightedScore(scores map[string]float64, weights map[string]float64, defaultWeight float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}

	var totalWeight float64
	var weightedSum float64

	for field, score := range scores {
		weight := defaultWeight
		if w, ok := weights[field]; ok {
			weight = w
		}
		weightedSum += score * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0.0
	}

	return weightedSum / totalWeight
}
