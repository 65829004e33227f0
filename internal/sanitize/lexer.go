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
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokSpace tokenKind = iota
	tokComment
	tokWord
	tokNumber
	tokString     // '...'
	tokQuotedName // "...", `...` or [...]
	tokSymbol
)

type token struct {
	kind tokenKind
	text string
}

// multi-character operators kept as one symbol
var operators = []string{"<=", ">=", "<>", "!=", "==", "||", "::"}

// lex splits SQL into tokens. It understands just enough of the grammar to
// keep string literals, quoted names and comments intact; concatenating
// the token texts gives back the input.
func lex(sql string) []token {
	var tokens []token
	i := 0
	for i < len(sql) {
		c := sql[i]
		start := i

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			for i < len(sql) && strings.IndexByte(" \t\n\r\f", sql[i]) >= 0 {
				i++
			}
			tokens = append(tokens, token{tokSpace, sql[start:i]})

		case strings.HasPrefix(sql[i:], "--"):
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				i = len(sql)
			} else {
				i += end
			}
			tokens = append(tokens, token{tokComment, sql[start:i]})

		case strings.HasPrefix(sql[i:], "/*"):
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = len(sql)
			} else {
				i += end + 4
			}
			tokens = append(tokens, token{tokComment, sql[start:i]})

		case c == '\'':
			i = scanQuoted(sql, i, '\'')
			tokens = append(tokens, token{tokString, sql[start:i]})

		case c == '"' || c == '`':
			i = scanQuoted(sql, i, c)
			tokens = append(tokens, token{tokQuotedName, sql[start:i]})

		case c == '[':
			end := strings.IndexByte(sql[i:], ']')
			if end < 0 {
				i = len(sql)
			} else {
				i += end + 1
			}
			tokens = append(tokens, token{tokQuotedName, sql[start:i]})

		case c >= '0' && c <= '9' || c == '.' && i+1 < len(sql) && sql[i+1] >= '0' && sql[i+1] <= '9':
			for i < len(sql) && (sql[i] >= '0' && sql[i] <= '9' || sql[i] == '.') {
				i++
			}
			// Exponent
			if i < len(sql) && (sql[i] == 'e' || sql[i] == 'E') {
				j := i + 1
				if j < len(sql) && (sql[j] == '+' || sql[j] == '-') {
					j++
				}
				if j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
					i = j
					for i < len(sql) && sql[i] >= '0' && sql[i] <= '9' {
						i++
					}
				}
			}
			tokens = append(tokens, token{tokNumber, sql[start:i]})

		default:
			r, size := utf8.DecodeRuneInString(sql[i:])
			if r == '_' || unicode.IsLetter(r) {
				for i < len(sql) {
					r, size = utf8.DecodeRuneInString(sql[i:])
					if r != '_' && r != '$' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
						break
					}
					i += size
				}
				tokens = append(tokens, token{tokWord, sql[start:i]})
				continue
			}

			op := ""
			for _, candidate := range operators {
				if strings.HasPrefix(sql[i:], candidate) {
					op = candidate
					break
				}
			}
			if op != "" {
				i += len(op)
			} else {
				i += size
			}
			tokens = append(tokens, token{tokSymbol, sql[start:i]})
		}
	}
	return tokens
}

// scanQuoted returns the index after the quoted run starting at i. A
// doubled quote is an escaped quote. An unterminated run ends the input.
func scanQuoted(sql string, i int, quote byte) int {
	i++
	for i < len(sql) {
		if sql[i] == quote {
			if i+1 < len(sql) && sql[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(sql)
}

// join concatenates token texts
func join(tokens []token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.text)
	}
	return sb.String()
}

// unquote strips the quotes from a string literal or quoted name
func unquote(t token) string {
	text := t.text
	if len(text) < 2 {
		return text
	}
	switch text[0] {
	case '\'', '"', '`':
		q := text[:1]
		if text[len(text)-1] == text[0] {
			text = text[1 : len(text)-1]
		} else {
			text = text[1:]
		}
		return strings.ReplaceAll(text, q+q, q)
	case '[':
		return strings.TrimSuffix(text[1:], "]")
	}
	return text
}

// quoteString renders s as a SQL string literal
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// nextSignificant returns the index of the first token at or after i that
// is neither whitespace nor a comment, or -1
func nextSignificant(tokens []token, i int) int {
	for ; i < len(tokens); i++ {
		if tokens[i].kind != tokSpace && tokens[i].kind != tokComment {
			return i
		}
	}
	return -1
}

// prevSignificant returns the index of the last token before i that is
// neither whitespace nor a comment, or -1
func prevSignificant(tokens []token, i int) int {
	for i--; i >= 0; i-- {
		if tokens[i].kind != tokSpace && tokens[i].kind != tokComment {
			return i
		}
	}
	return -1
}
