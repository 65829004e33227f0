/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package fuzzy

import (
	"sort"
	"strings"
)

// Hint maps a phrase of the question to a known value
type Hint struct {
	Term  string
	Value string
	Score float64
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "by": {}, "of": {}, "in": {}, "on": {},
	"what": {}, "was": {}, "were": {}, "is": {}, "are": {}, "how": {}, "much": {},
	"many": {}, "show": {}, "me": {}, "total": {}, "last": {}, "year": {},
	"month": {}, "week": {}, "per": {}, "with": {}, "from": {}, "to": {},
	"which": {}, "top": {}, "all": {}, "did": {}, "does": {}, "a": {}, "an": {},
	"at": {}, "as": {}, "or": {}, "it": {}, "be": {},
}

// maxPhraseWords bounds the n-grams taken from a question
const maxPhraseWords = 3

// Hints finds question phrases that resolve to a listed value without
// matching it exactly. Values the question already names are skipped and
// each remaining value is reported once, for its best phrase.
func (m Matcher) Hints(question string, values []string) []Hint {
	normalized := Normalize(question)
	padded := " " + normalized + " "

	exact := make(map[string]struct{}, len(values))
	candidates := make([]string, 0, len(values))
	for _, v := range values {
		nv := Normalize(v)
		exact[nv] = struct{}{}
		if nv != "" && strings.Contains(padded, " "+nv+" ") {
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		return nil
	}

	words := strings.Fields(normalized)
	best := make(map[string]Hint)

	for n := 1; n <= maxPhraseWords; n++ {
		for i := 0; i+n <= len(words); i++ {
			phrase := words[i : i+n]
			if _, stop := stopwords[phrase[0]]; stop {
				continue
			}
			if _, stop := stopwords[phrase[n-1]]; stop {
				continue
			}
			term := strings.Join(phrase, " ")
			if len(term) < 3 {
				continue
			}
			// Already spelled like a listed value
			if _, ok := exact[term]; ok {
				continue
			}

			match, ok := m.Best(term, candidates)
			if !ok {
				continue
			}
			if prev, seen := best[match.Value]; !seen || match.Score > prev.Score {
				best[match.Value] = Hint{Term: term, Value: match.Value, Score: match.Score}
			}
		}
	}

	hints := make([]Hint, 0, len(best))
	for _, h := range best {
		hints = append(hints, h)
	}
	sort.Slice(hints, func(i, j int) bool {
		if hints[i].Score != hints[j].Score {
			return hints[i].Score > hints[j].Score
		}
		return hints[i].Value < hints[j].Value
	})
	return hints
}
