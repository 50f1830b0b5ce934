package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokQuotedIdent
	tokString
	tokNumber
	tokParam
	tokPunct
	tokComment
)

// token is one lexeme of a SQL statement. start/end are byte offsets into the
// original text.
type token struct {
	kind  tokenKind
	text  string
	start int
	end   int
}

// name returns the identifier a token denotes, lower-cased and unquoted.
// Non-identifier tokens return "".
func (t token) name() string {
	switch t.kind {
	case tokIdent:
		return strings.ToLower(t.text)
	case tokQuotedIdent:
		inner := t.text[1 : len(t.text)-1]
		q := t.text[:1]
		return strings.ToLower(strings.ReplaceAll(inner, q+q, q))
	}
	return ""
}

func (t token) isKeyword(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func (t token) isPunct(p string) bool {
	return t.kind == tokPunct && t.text == p
}

// lexSQL splits a statement into tokens. Whitespace is dropped; comments are
// kept as tokComment so callers can decide what to do with them. Constructs
// whose boundaries differ between engines (backslash escapes, dollar quoting,
// nested comments) are rejected rather than guessed at.
func lexSQL(sql string) ([]token, error) {
	var toks []token
	i := 0
	n := len(sql)
	for i < n {
		c := sql[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			i++

		case c == '-' && i+1 < n && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end == -1 {
				end = n
			} else {
				end += i
			}
			toks = append(toks, token{tokComment, sql[i:end], i, end})
			i = end

		case c == '/' && i+1 < n && sql[i+1] == '*':
			rel := strings.Index(sql[i+2:], "*/")
			if rel == -1 {
				return nil, fmt.Errorf("unterminated block comment at offset %d", i)
			}
			body := sql[i+2 : i+2+rel]
			if strings.Contains(body, "/*") {
				return nil, fmt.Errorf("nested block comment at offset %d", i)
			}
			end := i + 2 + rel + 2
			toks = append(toks, token{tokComment, sql[i:end], i, end})
			i = end

		case c == '\'':
			end, err := scanQuoted(sql, i, '\'')
			if err != nil {
				return nil, err
			}
			if strings.ContainsRune(sql[i:end], '\\') {
				return nil, fmt.Errorf("backslash in string literal at offset %d", i)
			}
			// E'..', U&'..' and similar prefixed literals change escape rules.
			if prev, ok := prefixOf(toks, i); ok {
				return nil, fmt.Errorf("prefixed string literal %s'...' at offset %d", prev.text, prev.start)
			}
			toks = append(toks, token{tokString, sql[i:end], i, end})
			i = end

		case c == '"' || c == '`':
			end, err := scanQuoted(sql, i, c)
			if err != nil {
				return nil, err
			}
			if end-i < 3 {
				return nil, fmt.Errorf("empty quoted identifier at offset %d", i)
			}
			// U&"d\0061ta" spells a name the lexer cannot see.
			if prev, ok := prefixOf(toks, i); ok {
				return nil, fmt.Errorf("prefixed quoted identifier %s\"...\" at offset %d", prev.text, prev.start)
			}
			toks = append(toks, token{tokQuotedIdent, sql[i:end], i, end})
			i = end

		case c >= '0' && c <= '9' || (c == '.' && i+1 < n && sql[i+1] >= '0' && sql[i+1] <= '9'):
			end := scanNumber(sql, i)
			toks = append(toks, token{tokNumber, sql[i:end], i, end})
			i = end

		case c == '$':
			if i+1 < n && sql[i+1] >= '0' && sql[i+1] <= '9' {
				end := i + 1
				for end < n && sql[end] >= '0' && sql[end] <= '9' {
					end++
				}
				toks = append(toks, token{tokParam, sql[i:end], i, end})
				i = end
				continue
			}
			return nil, fmt.Errorf("dollar quoting is not allowed (offset %d)", i)

		case c == '?':
			end := i + 1
			for end < n && sql[end] >= '0' && sql[end] <= '9' {
				end++
			}
			toks = append(toks, token{tokParam, sql[i:end], i, end})
			i = end

		case c == '@' || (c == ':' && i+1 < n && isIdentStart(sql[i+1:])):
			end := i + 1
			for end < n {
				r, size := utf8.DecodeRuneInString(sql[end:])
				if !isIdentRune(r) {
					break
				}
				end += size
			}
			toks = append(toks, token{tokParam, sql[i:end], i, end})
			i = end

		case c == ':' && i+1 < n && sql[i+1] == ':':
			toks = append(toks, token{tokPunct, "::", i, i + 2})
			i += 2

		case isIdentStart(sql[i:]):
			end := i
			for end < n {
				r, size := utf8.DecodeRuneInString(sql[end:])
				if !isIdentRune(r) {
					break
				}
				end += size
			}
			toks = append(toks, token{tokIdent, sql[i:end], i, end})
			i = end

		default:
			_, size := utf8.DecodeRuneInString(sql[i:])
			toks = append(toks, token{tokPunct, sql[i : i+size], i, i + size})
			i += size
		}
	}
	return toks, nil
}

// prefixOf returns the token glued to the quote at offset i when it is an
// identifier or the & of a U& prefix.
func prefixOf(toks []token, i int) (token, bool) {
	if len(toks) == 0 {
		return token{}, false
	}
	prev := toks[len(toks)-1]
	if prev.end != i {
		return token{}, false
	}
	return prev, prev.kind == tokIdent || prev.isPunct("&")
}

// scanQuoted returns the offset just past the closing quote, treating a
// doubled quote as an escaped one.
func scanQuoted(sql string, start int, q byte) (int, error) {
	i := start + 1
	for i < len(sql) {
		if sql[i] == q {
			if i+1 < len(sql) && sql[i+1] == q {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, fmt.Errorf("unterminated quoted text at offset %d", start)
}

func scanNumber(sql string, i int) int {
	n := len(sql)
	for i < n && (sql[i] >= '0' && sql[i] <= '9' || sql[i] == '.') {
		i++
	}
	if i < n && (sql[i] == 'e' || sql[i] == 'E') {
		j := i + 1
		if j < n && (sql[j] == '+' || sql[j] == '-') {
			j++
		}
		if j < n && sql[j] >= '0' && sql[j] <= '9' {
			for j < n && sql[j] >= '0' && sql[j] <= '9' {
				j++
			}
			i = j
		}
	}
	return i
}

func isIdentStart(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r == '_' || unicode.IsLetter(r)
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// significant drops comment tokens.
func significant(toks []token) []token {
	out := make([]token, 0, len(toks))
	for _, t := range toks {
		if t.kind != tokComment {
			out = append(out, t)
		}
	}
	return out
}
