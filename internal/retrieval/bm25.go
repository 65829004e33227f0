/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package retrieval

import (
	"math"
	"strings"
	"unicode"
)

// bm25 parameters
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Tokenize converts text to lowercase word tokens
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	// Single letters carry no signal; single digits might
	filtered := words[:0]
	for _, word := range words {
		if len(word) > 1 || unicode.IsNumber(rune(word[0])) {
			filtered = append(filtered, word)
		}
	}
	return filtered
}

// bm25Scores scores each document against the query
func bm25Scores(query string, docs []string) []float64 {
	scores := make([]float64, len(docs))
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 || len(docs) == 0 {
		return scores
	}

	tokens := make([][]string, len(docs))
	total := 0
	docFreq := make(map[string]int)
	for i, d := range docs {
		tokens[i] = Tokenize(d)
		total += len(tokens[i])
		seen := make(map[string]bool)
		for _, tok := range tokens[i] {
			if !seen[tok] {
				docFreq[tok]++
				seen[tok] = true
			}
		}
	}
	if total == 0 {
		return scores
	}
	avgLen := float64(total) / float64(len(docs))
	n := float64(len(docs))

	for i, doc := range tokens {
		tf := make(map[string]int)
		for _, tok := range doc {
			tf[tok]++
		}
		docLen := float64(len(doc))
		for _, q := range queryTokens {
			f, ok := tf[q]
			if !ok {
				continue
			}
			df := float64(docFreq[q])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1.0)
			num := float64(f) * (bm25K1 + 1)
			den := float64(f) + bm25K1*(1-bm25B+bm25B*docLen/avgLen)
			scores[i] += idf * num / den
		}
	}
	return scores
}

// cosine returns the cosine similarity of a query vector and a stored vector
func cosine(a []float64, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		bv := float64(b[i])
		dot += a[i] * bv
		na += a[i] * a[i]
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
