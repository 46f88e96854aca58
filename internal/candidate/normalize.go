package candidate

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeTerm folds a skill, keyword, field of study or location token to
// its comparison form: NFKC, case-folded, inner whitespace collapsed.
func NormalizeTerm(s string) string {
	s = norm.NFKC.String(s)
	// Caser values are stateful; never share one between goroutines.
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// TermSet builds a normalised set from raw terms, dropping empties.
// It returns nil when no usable term remains, which callers treat as
// "no constraint".
func TermSet(terms ...[]string) mapset.Set[string] {
	var set mapset.Set[string]
	for _, group := range terms {
		for _, t := range group {
			n := NormalizeTerm(t)
			if n == "" {
				continue
			}
			if set == nil {
				set = mapset.NewThreadUnsafeSet[string]()
			}
			set.Add(n)
		}
	}
	return set
}
