package usecase

import (
	"regexp"
	"strings"
)

var (
	reBrackets   = regexp.MustCompile(`[\[\](){}]`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// normalizeServiceName lowercases, turns brackets into spaces and collapses whitespace.
func normalizeServiceName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = reBrackets.ReplaceAllString(s, " ")
	s = reWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// similarity is the Ratcliff/Obershelp ratio 2*M/T, where M counts the characters
// of recursively found longest common blocks and T is the total length.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingChars(ra, 0, len(ra), rb, 0, len(rb))) / float64(total)
}

func matchingChars(a []rune, alo, ahi int, b []rune, blo, bhi int) int {
	i, j, k := longestMatch(a, alo, ahi, b, blo, bhi)
	if k == 0 {
		return 0
	}
	return k + matchingChars(a, alo, i, b, blo, j) + matchingChars(a, i+k, ahi, b, j+k, bhi)
}

// longestMatch returns the earliest longest common block of a[alo:ahi] and b[blo:bhi].
func longestMatch(a []rune, alo, ahi int, b []rune, blo, bhi int) (int, int, int) {
	besti, bestj, bestk := alo, blo, 0
	prev := make([]int, bhi-blo+1)
	for i := alo; i < ahi; i++ {
		cur := make([]int, bhi-blo+1)
		for j := blo; j < bhi; j++ {
			if a[i] != b[j] {
				continue
			}
			k := prev[j-blo] + 1
			cur[j-blo+1] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		prev = cur
	}
	return besti, bestj, bestk
}
