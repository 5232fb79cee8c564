package tiers

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// Similarity ratios on the 0..100 scale. All comparisons are
// case-folded and rune-aware; Cyrillic queries are the common case.

// Ratio is the plain Levenshtein ratio between two strings.
func Ratio(a, b string) int {
	return levRatio(fold(a), fold(b))
}

// PartialRatio slides the shorter string over the longer one and
// returns the best window ratio. Catches a short query embedded in a
// long entity name ("ivanov" in "ivanov petr sergeevich").
func PartialRatio(a, b string) int {
	a, b = fold(a), fold(b)
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	if len(short) == len(long) {
		return levRatio(string(short), string(long))
	}

	best := 0
	for i := 0; i+len(short) <= len(long); i++ {
		if r := levRatio(string(short), string(long[i:i+len(short)])); r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

// TokenSortRatio compares the strings with their tokens sorted, so
// word order ("petrov ivan" vs "ivan petrov") stops mattering.
func TokenSortRatio(a, b string) int {
	return levRatio(sortTokens(fold(a)), sortTokens(fold(b)))
}

// TokenSetRatio compares token intersections against each side's
// remainder, which tolerates one side carrying extra tokens (aliases
// with patronymics, legal-form suffixes).
func TokenSetRatio(a, b string) int {
	ta, tb := tokenSet(fold(a)), tokenSet(fold(b))

	var inter, onlyA, onlyB []string
	for t := range ta {
		if tb[t] {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if !ta[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(inter, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := levRatio(base, withA)
	if r := levRatio(base, withB); r > best {
		best = r
	}
	if r := levRatio(withA, withB); r > best {
		best = r
	}
	return best
}

func levRatio(a, b string) int {
	if a == b {
		return 100
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	longest := la
	if lb > longest {
		longest = lb
	}
	dist := edlib.LevenshteinDistance(a, b)
	if dist >= longest {
		return 0
	}
	return int(float64(longest-dist) / float64(longest) * 100)
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		set[t] = true
	}
	return set
}

// wordOverlap is the Jaccard overlap of the two strings' token sets.
func wordOverlap(a, b string) float64 {
	ta, tb := tokenSet(fold(a)), tokenSet(fold(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}
