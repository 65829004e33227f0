/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package sanitize

import (
	"fmt"
	"strings"

	"pgedge-dataset-agent/internal/fuzzy"
	"pgedge-dataset-agent/internal/logging"
	"pgedge-dataset-agent/internal/schema"
)

// ResolveFilters replaces literals compared against a categorical column
// that are not listed values with the nearest listed value. Handles
// <column> = '<literal>' and <column> IN ('<literal>', ...).
func ResolveFilters(q Query, s schema.Schema, m fuzzy.Matcher) Query {
	tokens := lex(q.SQL)
	changed := false

	for i, t := range tokens {
		if t.kind != tokWord && t.kind != tokQuotedName {
			continue
		}
		name := t.text
		if t.kind == tokQuotedName {
			name = unquote(t)
		}
		desc, ok := s.Lookup(name)
		if !ok || desc.Kind != schema.KindCategorical {
			continue
		}

		op := nextSignificant(tokens, i+1)
		if op < 0 {
			continue
		}

		var literals []int
		switch {
		case tokens[op].kind == tokSymbol && (tokens[op].text == "=" || tokens[op].text == "=="):
			if lit := nextSignificant(tokens, op+1); lit >= 0 && tokens[lit].kind == tokString {
				literals = append(literals, lit)
			}
		case tokens[op].kind == tokWord && strings.EqualFold(tokens[op].text, "IN"):
			literals = inListLiterals(tokens, op)
		}

		for _, lit := range literals {
			value := unquote(tokens[lit])
			if containsString(desc.Values, value) {
				continue
			}
			match, ok := m.Best(value, desc.Values)
			if !ok {
				continue
			}
			tokens[lit].text = quoteString(match.Value)
			q.Rewrites = append(q.Rewrites, fmt.Sprintf("%s: %q -> %q", name, value, match.Value))
			changed = true

			logging.Debug("filter_value_resolved",
				"column", name,
				"literal", value,
				"value", match.Value,
				"score", match.Score,
			)
		}
	}

	if changed {
		q.SQL = join(tokens)
	}
	return q
}

// inListLiterals returns the string literals of the parenthesised list
// after IN. Lists holding anything other than literals are left alone.
func inListLiterals(tokens []token, in int) []int {
	open := nextSignificant(tokens, in+1)
	if open < 0 || tokens[open].text != "(" {
		return nil
	}

	var literals []int
	for i := nextSignificant(tokens, open+1); i >= 0; i = nextSignificant(tokens, i+1) {
		switch {
		case tokens[i].kind == tokString:
			literals = append(literals, i)
		case tokens[i].text == ",":
		case tokens[i].text == ")":
			return literals
		default:
			return nil
		}
	}
	return nil
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
