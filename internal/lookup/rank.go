package lookup

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RankSimilar returns up to limit candidates resembling name, closest first.
// Candidates matching the whole name come before those matching only its
// first word.
func RankSimilar(name string, candidates []string, limit int) []string {
	words := strings.Fields(name)
	if len(words) == 0 || limit <= 0 {
		return nil
	}
	queries := []string{strings.Join(words, " ")}
	if len(words) > 1 {
		queries = append(queries, words[0])
	}

	seen := make(map[int]bool)
	var out []string
	for _, q := range queries {
		ranks := fuzzy.RankFindNormalizedFold(q, candidates)
		sort.Stable(ranks)
		for _, r := range ranks {
			if seen[r.OriginalIndex] {
				continue
			}
			seen[r.OriginalIndex] = true
			out = append(out, r.Target)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

// MaxUsernameSuggestions bounds SuggestUsernames.
const MaxUsernameSuggestions = 4

// SuggestUsernames derives login names from an operator's first and last
// name. Accents are folded and anything outside a-z dropped; first names
// shorter than two letters yield nothing.
func SuggestUsernames(firstName, lastName string, year int) []string {
	first := usernamePart(firstName)
	last := usernamePart(lastName)
	if len(first) < 2 {
		return nil
	}

	out := []string{first}
	if last != "" {
		out = append(out,
			first+last,
			first+"."+last,
			first[:1]+last,
			first+last[:1],
		)
	}
	out = append(out, first+"01", first+strconv.Itoa(year))
	if len(out) > MaxUsernameSuggestions {
		out = out[:MaxUsernameSuggestions]
	}
	return out
}

func usernamePart(s string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	var b strings.Builder
	for _, r := range folded {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
