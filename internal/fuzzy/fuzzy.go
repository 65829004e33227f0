/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package fuzzy resolves user-typed terms to the closest known categorical
// value. Similarity is the Jaccard index of padded character trigrams, with
// a bonus when the Soundex codes agree.
package fuzzy

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultThreshold is the minimum score for a match
const DefaultThreshold = 0.45

// soundexBonus is added when two terms sound alike
const soundexBonus = 0.15

// Matcher finds nearest matches above a threshold
type Matcher struct {
	Threshold float64
}

// New returns a matcher; a non-positive threshold selects the default
func New(threshold float64) Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Matcher{Threshold: threshold}
}

// Match is a scored candidate
type Match struct {
	Value string
	Score float64
}

// Best returns the highest scoring candidate that clears the threshold.
// Ties go to the candidate closest in length to term, then to the
// lexically smallest.
func (m Matcher) Best(term string, candidates []string) (Match, bool) {
	ranked := m.Rank(term, candidates)
	if len(ranked) == 0 {
		return Match{}, false
	}
	return ranked[0], true
}

// Rank returns every candidate that clears the threshold, best first
func (m Matcher) Rank(term string, candidates []string) []Match {
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	var out []Match
	for _, c := range candidates {
		if score := Similarity(term, c); score >= threshold {
			out = append(out, Match{Value: c, Score: score})
		}
	}

	termLen := len([]rune(term))
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		di := abs(len([]rune(out[i].Value)) - termLen)
		dj := abs(len([]rune(out[j].Value)) - termLen)
		if di != dj {
			return di < dj
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// Similarity scores two strings in [0, 1]
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	score := jaccard(trigrams(na), trigrams(nb))
	if sa, sb := Soundex(na), Soundex(nb); sa != "" && sa == sb {
		score += soundexBonus
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Normalize lowercases and reduces punctuation runs to single spaces
func Normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// trigrams pads each word with two leading blanks and one trailing blank
func trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(s) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for g := range a {
		if _, ok := b[g]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

var soundexCodes = map[rune]byte{
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	'd': '3', 't': '3',
	'l': '4',
	'm': '5', 'n': '5',
	'r': '6',
}

// Soundex returns the American Soundex code of the letters in s, or "" when
// s has no ASCII letters
func Soundex(s string) string {
	var letters []rune
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			letters = append(letters, r)
		}
	}
	if len(letters) == 0 {
		return ""
	}

	code := []byte{byte(unicode.ToUpper(letters[0]))}
	last := soundexCodes[letters[0]]
	for _, r := range letters[1:] {
		digit, ok := soundexCodes[r]
		switch {
		case !ok:
			// h and w do not separate equal codes, vowels do
			if r != 'h' && r != 'w' {
				last = 0
			}
		case digit != last:
			code = append(code, digit)
			last = digit
		}
		if len(code) == 4 {
			break
		}
	}
	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
