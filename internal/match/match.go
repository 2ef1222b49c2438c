// Package match scores how likely two person names refer to the same entity.
package match

import (
	"math"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultThreshold is the minimum TokenSetRatio accepted as a name match.
const DefaultThreshold = 70

// Substitution costs two so Distance counts insertions plus deletions only.
var indelParams = levenshtein.NewParams().SubCost(2)

// TokenSetRatio compares the word sets of a and b and returns 0..100. Word
// order, duplicates, punctuation, case and accents are ignored; a name that is
// a subset of the other ("Jane Doe" vs "Dr. Jane Doe MD") scores 100.
func TokenSetRatio(a, b string) int {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range tb {
		if _, ok := ta[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}
	slices.Sort(common)
	slices.Sort(onlyA)
	slices.Sort(onlyB)

	sect := strings.Join(common, " ")
	combinedA := strings.TrimSpace(sect + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(sect + " " + strings.Join(onlyB, " "))

	best := ratio(combinedA, combinedB)
	if sect != "" {
		best = max(best, ratio(sect, combinedA), ratio(sect, combinedB))
	}
	return int(math.Round(best))
}

// ratio is the normalized indel similarity of a and b in 0..100.
func ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	dist := levenshtein.Distance(a, b, indelParams)
	return 100 * float64(total-dist) / float64(total)
}

func tokenize(s string) map[string]struct{} {
	folded, _, err := transform.String(foldAccents(), s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// foldAccents returns a fresh transformer; transform.Chain values are stateful.
func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}
