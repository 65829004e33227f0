/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package sanitize extracts a generated query from a completion and makes
// it safe to run: one read-only statement with a bounded row count.
//
// The checks here are lexical. The read-only transaction opened by the
// store is what actually prevents writes.
package sanitize

import (
	"fmt"
	"strconv"
	"strings"

	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/logging"
)

// Default row bounds
const (
	DefaultLimitFloor   = 1
	DefaultLimitMinimum = 5
	DefaultMaxRows      = 1000
)

// ExtractionError reports a completion that did not yield a usable query
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "query extraction failed: " + e.Reason
}

// Query is a sanitized statement ready for execution
type Query struct {
	SQL      string
	Limit    int      // Row cap of the outermost statement
	Rewrites []string // Changes made to the generated text
}

// mutating keywords removed wherever they appear outside literals
var mutating = map[string]struct{}{
	"INSERT": {}, "UPDATE": {}, "DELETE": {}, "DROP": {}, "CREATE": {},
	"ALTER": {}, "TRUNCATE": {}, "REPLACE": {}, "MERGE": {}, "GRANT": {},
	"REVOKE": {}, "ATTACH": {}, "DETACH": {}, "PRAGMA": {}, "VACUUM": {},
	"COPY": {},
}

// Sanitizer applies the row bounds
type Sanitizer struct {
	LimitFloor   int
	LimitMinimum int
	MaxRows      int

	// Tables lists the relations a query may read. Empty allows any.
	Tables []string
}

// New creates a sanitizer from configuration, filling unset bounds with
// the defaults
func New(cfg config.SanitizerConfig) *Sanitizer {
	s := &Sanitizer{
		LimitFloor:   cfg.LimitFloor,
		LimitMinimum: cfg.LimitMinimum,
		MaxRows:      cfg.MaxRows,
	}
	if s.LimitFloor <= 0 {
		s.LimitFloor = DefaultLimitFloor
	}
	if s.LimitMinimum <= 0 {
		s.LimitMinimum = DefaultLimitMinimum
	}
	if s.MaxRows <= 0 {
		s.MaxRows = DefaultMaxRows
	}
	return s
}

// Sanitize extracts the query from a raw completion and checks it
func (s *Sanitizer) Sanitize(raw string) (Query, error) {
	block, ok := FindBlock(raw, "sql")
	if !ok {
		return Query{}, &ExtractionError{Reason: "no fenced query block in the reply"}
	}

	var q Query
	tokens := stripComments(lex(block.Body))

	statements := splitStatements(tokens)
	switch {
	case len(statements) == 0:
		return Query{}, &ExtractionError{Reason: "the query block is empty"}
	case len(statements) > 1:
		return Query{}, &ExtractionError{Reason: fmt.Sprintf("expected one statement, found %d", len(statements))}
	}
	tokens = statements[0]

	tokens = s.stripMutating(tokens, &q)
	first := nextSignificant(tokens, 0)
	if first < 0 {
		return Query{}, &ExtractionError{Reason: "nothing left after removing write keywords"}
	}
	if kw := strings.ToUpper(tokens[first].text); tokens[first].kind != tokWord || kw != "SELECT" && kw != "WITH" {
		return Query{}, &ExtractionError{Reason: fmt.Sprintf("statement starts with %q, not SELECT or WITH", tokens[first].text)}
	}

	if name, ok := s.unknownTable(tokens); !ok {
		return Query{}, &ExtractionError{Reason: fmt.Sprintf("query reads unknown table %q", name)}
	}

	tokens = s.boundLimit(tokens, &q)
	q.SQL = strings.TrimSpace(join(tokens))

	logging.Debug("query_sanitized",
		"sql", q.SQL,
		"limit", q.Limit,
		"rewrites", len(q.Rewrites),
	)
	return q, nil
}

// stripComments replaces comments with a single space
func stripComments(tokens []token) []token {
	out := make([]token, 0, len(tokens))
	for _, t := range tokens {
		if t.kind == tokComment {
			t = token{tokSpace, " "}
		}
		out = append(out, t)
	}
	return out
}

// splitStatements splits at semicolons and drops empty statements, so a
// trailing semicolon is ignored
func splitStatements(tokens []token) [][]token {
	var statements [][]token
	var current []token

	flush := func() {
		if nextSignificant(current, 0) >= 0 {
			statements = append(statements, current)
		}
		current = nil
	}

	for _, t := range tokens {
		if t.kind == tokSymbol && t.text == ";" {
			flush()
			continue
		}
		current = append(current, t)
	}
	flush()
	return statements
}

// stripMutating drops write keywords. REPLACE followed by a parenthesis is
// the string function and is kept.
func (s *Sanitizer) stripMutating(tokens []token, q *Query) []token {
	out := make([]token, 0, len(tokens))
	for i, t := range tokens {
		if t.kind == tokWord {
			upper := strings.ToUpper(t.text)
			if _, ok := mutating[upper]; ok {
				next := nextSignificant(tokens, i+1)
				if upper != "REPLACE" || next < 0 || tokens[next].text != "(" {
					q.Rewrites = append(q.Rewrites, "removed keyword "+upper)
					continue
				}
			}
		}
		out = append(out, t)
	}
	return out
}

// boundLimit rewrites or appends the LIMIT of the outermost statement
func (s *Sanitizer) boundLimit(tokens []token, q *Query) []token {
	limitAt := -1
	depth := 0
	for i, t := range tokens {
		switch {
		case t.kind == tokSymbol && t.text == "(":
			depth++
		case t.kind == tokSymbol && t.text == ")":
			depth--
		case depth == 0 && t.kind == tokWord && strings.EqualFold(t.text, "LIMIT"):
			limitAt = i
		}
	}

	if limitAt < 0 {
		tokens = trimTrailingSpace(tokens)
		tokens = append(tokens,
			token{tokSpace, " "},
			token{tokWord, "LIMIT"},
			token{tokSpace, " "},
			token{tokNumber, strconv.Itoa(s.MaxRows)},
		)
		q.Limit = s.MaxRows
		q.Rewrites = append(q.Rewrites, fmt.Sprintf("added LIMIT %d", s.MaxRows))
		return tokens
	}

	// The count is the first number, or the second in LIMIT offset, count
	countAt := nextSignificant(tokens, limitAt+1)
	if countAt >= 0 && tokens[countAt].kind == tokNumber {
		if comma := nextSignificant(tokens, countAt+1); comma >= 0 && tokens[comma].text == "," {
			if second := nextSignificant(tokens, comma+1); second >= 0 && tokens[second].kind == tokNumber {
				countAt = second
			}
		}
	}

	if countAt < 0 || tokens[countAt].kind != tokNumber {
		// LIMIT ALL or an expression: bound the whole statement instead
		inner := strings.TrimSpace(join(tokens))
		q.Limit = s.MaxRows
		q.Rewrites = append(q.Rewrites, fmt.Sprintf("wrapped query with LIMIT %d", s.MaxRows))
		return lex(fmt.Sprintf("SELECT * FROM (%s) AS bounded LIMIT %d", inner, s.MaxRows))
	}

	n, err := strconv.Atoi(tokens[countAt].text)
	if err != nil {
		// Fractional or out of range
		n = s.MaxRows + 1
	}

	limit := n
	switch {
	case n <= s.LimitFloor:
		limit = s.LimitMinimum
	case n > s.MaxRows:
		limit = s.MaxRows
	}
	if limit != n {
		q.Rewrites = append(q.Rewrites, fmt.Sprintf("changed LIMIT %s to %d", tokens[countAt].text, limit))
		tokens[countAt].text = strconv.Itoa(limit)
	}
	q.Limit = limit
	return tokens
}

func trimTrailingSpace(tokens []token) []token {
	for len(tokens) > 0 && tokens[len(tokens)-1].kind == tokSpace {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// unknownTable checks the relation named after each FROM and JOIN against
// Tables and the statement's own CTE names. FROM inside a function call,
// as in EXTRACT(YEAR FROM date), is not a relation.
func (s *Sanitizer) unknownTable(tokens []token) (string, bool) {
	if len(s.Tables) == 0 {
		return "", true
	}

	known := make(map[string]bool)
	for _, t := range s.Tables {
		known[strings.ToLower(t)] = true
	}
	for i := range tokens {
		// name AS ( or name(columns) AS ( starts a CTE
		as := nextSignificant(tokens, i+1)
		if as < 0 || !strings.EqualFold(tokens[as].text, "AS") {
			continue
		}
		if open := nextSignificant(tokens, as+1); open < 0 || tokens[open].text != "(" {
			continue
		}
		nameAt := i
		if tokens[i].text == ")" {
			nameAt = prevSignificant(tokens, matchingOpen(tokens, i))
		}
		if nameAt >= 0 && (tokens[nameAt].kind == tokWord || tokens[nameAt].kind == tokQuotedName) {
			known[strings.ToLower(identName(tokens[nameAt]))] = true
		}
	}

	// selects[d] is true once SELECT appears at paren depth d
	selects := []bool{false}
	for i, t := range tokens {
		depth := len(selects) - 1
		switch {
		case t.kind == tokSymbol && t.text == "(":
			selects = append(selects, false)
		case t.kind == tokSymbol && t.text == ")":
			if depth > 0 {
				selects = selects[:depth]
			}
		case t.kind == tokWord && strings.EqualFold(t.text, "SELECT"):
			selects[depth] = true
		case t.kind == tokWord && (strings.EqualFold(t.text, "FROM") || strings.EqualFold(t.text, "JOIN")):
			if !selects[depth] {
				continue
			}
			// a IS DISTINCT FROM b
			if prev := prevSignificant(tokens, i); prev >= 0 && strings.EqualFold(tokens[prev].text, "DISTINCT") {
				continue
			}
			if name, ok := relationKnown(tokens, i, known); !ok {
				return name, false
			}
			if !strings.EqualFold(t.text, "FROM") {
				continue
			}
			for _, comma := range fromListCommas(tokens, i) {
				if name, ok := relationKnown(tokens, comma, known); !ok {
					return name, false
				}
			}
		}
	}
	return "", true
}

// relationKnown checks the relation named after the token at i. Subqueries
// and anything that is not a name are left to the caller's scan.
func relationKnown(tokens []token, i int, known map[string]bool) (string, bool) {
	next := nextSignificant(tokens, i+1)
	if next >= 0 && (strings.EqualFold(tokens[next].text, "LATERAL") || strings.EqualFold(tokens[next].text, "ONLY")) {
		next = nextSignificant(tokens, next+1)
	}
	if next < 0 || tokens[next].kind != tokWord && tokens[next].kind != tokQuotedName {
		return "", true
	}
	name := identName(tokens[next])
	if dot := nextSignificant(tokens, next+1); dot >= 0 && tokens[dot].text == "." {
		if part := nextSignificant(tokens, dot+1); part >= 0 {
			name += "." + identName(tokens[part])
		}
	}
	return name, known[strings.ToLower(name)]
}

// fromListEnd are the words that close a FROM list
var fromListEnd = map[string]bool{
	"WHERE": true, "GROUP": true, "HAVING": true, "WINDOW": true, "QUALIFY": true,
	"ORDER": true, "LIMIT": true, "OFFSET": true, "FETCH": true,
	"UNION": true, "INTERSECT": true, "EXCEPT": true,
}

// fromListCommas returns the commas that separate the relations of the
// FROM clause whose keyword is at from
func fromListCommas(tokens []token, from int) []int {
	var commas []int
	depth := 0
	for j := from + 1; j < len(tokens); j++ {
		t := tokens[j]
		switch {
		case t.kind == tokSymbol && t.text == "(":
			depth++
		case t.kind == tokSymbol && t.text == ")":
			if depth == 0 {
				return commas
			}
			depth--
		case depth > 0:
		case t.kind == tokSymbol && t.text == ",":
			commas = append(commas, j)
		case t.kind == tokSymbol && t.text == ";":
			return commas
		case t.kind == tokWord && fromListEnd[strings.ToUpper(t.text)]:
			return commas
		}
	}
	return commas
}

// identName returns the name of a bare or quoted identifier token
func identName(t token) string {
	if t.kind == tokQuotedName {
		return unquote(t)
	}
	return t.text
}

// matchingOpen returns the index of the parenthesis closed at i, or -1
func matchingOpen(tokens []token, i int) int {
	depth := 0
	for ; i >= 0; i-- {
		if tokens[i].kind != tokSymbol {
			continue
		}
		switch tokens[i].text {
		case ")":
			depth++
		case "(":
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
