package sqlguard

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuotedIdent
	tokString
	tokNumber
	tokParam
	tokPunct
)

type token struct {
	kind tokenKind
	// text is lowercased for words, unquoted for quoted identifiers and raw otherwise.
	text string
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

func (t token) isWord(words ...string) bool {
	if t.kind != tokWord {
		return false
	}
	for _, w := range words {
		if t.text == w {
			return true
		}
	}
	return false
}

func (t token) isIdent() bool {
	return t.kind == tokWord || t.kind == tokQuotedIdent
}

// lex splits query into tokens and returns the query text with comments
// replaced by single spaces.
func lex(query string) ([]token, string, error) {
	var (
		tokens []token
		out    strings.Builder
		i      int
	)

	for i < len(query) {
		c := query[i]

		switch {
		case c == '-' && strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				i = len(query)
			} else {
				i += end
			}
			out.WriteByte(' ')

		case c == '/' && strings.HasPrefix(query[i:], "/*"):
			end, err := skipBlockComment(query, i)
			if err != nil {
				return nil, "", err
			}
			i = end
			out.WriteByte(' ')

		case isSpace(c):
			out.WriteByte(c)
			i++

		case c == '\'' || ((c == 'E' || c == 'e') && i+1 < len(query) && query[i+1] == '\''):
			start := i
			escapes := c != '\''
			if escapes {
				i++
			}
			end, err := skipString(query, i, escapes)
			if err != nil {
				return nil, "", err
			}
			i = end
			tokens = append(tokens, token{kind: tokString, text: query[start:i]})
			out.WriteString(query[start:i])

		case c == '"':
			end, ident, err := readQuotedIdent(query, i)
			if err != nil {
				return nil, "", err
			}
			tokens = append(tokens, token{kind: tokQuotedIdent, text: ident})
			out.WriteString(query[i:end])
			i = end

		case c == '$':
			start := i
			if tag, ok := dollarTag(query, i); ok {
				end := strings.Index(query[i+len(tag):], tag)
				if end < 0 {
					return nil, "", reject("unterminated dollar-quoted string", tag)
				}
				i += len(tag) + end + len(tag)
				tokens = append(tokens, token{kind: tokString, text: query[start:i]})
			} else {
				i++
				for i < len(query) && isDigit(query[i]) {
					i++
				}
				tokens = append(tokens, token{kind: tokParam, text: query[start:i]})
			}
			out.WriteString(query[start:i])

		case isDigit(c):
			start := i
			for i < len(query) && (isDigit(query[i]) || query[i] == '.' || query[i] == 'e' || query[i] == 'E') {
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: query[start:i]})
			out.WriteString(query[start:i])

		case isIdentStart(query, i):
			start := i
			for i < len(query) && isIdentPart(query, i) {
				_, size := utf8.DecodeRuneInString(query[i:])
				i += size
			}
			tokens = append(tokens, token{kind: tokWord, text: strings.ToLower(query[start:i])})
			out.WriteString(query[start:i])

		default:
			tokens = append(tokens, token{kind: tokPunct, text: string(c)})
			out.WriteByte(c)
			i++
		}
	}

	return tokens, out.String(), nil
}

func skipBlockComment(query string, i int) (int, error) {
	depth := 0
	for i < len(query) {
		switch {
		case strings.HasPrefix(query[i:], "/*"):
			depth++
			i += 2
		case strings.HasPrefix(query[i:], "*/"):
			depth--
			i += 2
			if depth == 0 {
				return i, nil
			}
		default:
			i++
		}
	}
	return 0, reject("unterminated comment", "/*")
}

func skipString(query string, i int, backslashEscapes bool) (int, error) {
	i++ // opening quote
	for i < len(query) {
		switch query[i] {
		case '\\':
			if backslashEscapes {
				i += 2
				continue
			}
		case '\'':
			if i+1 < len(query) && query[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, reject("unterminated string literal", "'")
}

func readQuotedIdent(query string, i int) (int, string, error) {
	var b strings.Builder
	i++
	for i < len(query) {
		if query[i] == '"' {
			if i+1 < len(query) && query[i+1] == '"' {
				b.WriteByte('"')
				i += 2
				continue
			}
			return i + 1, b.String(), nil
		}
		b.WriteByte(query[i])
		i++
	}
	return 0, "", reject("unterminated quoted identifier", `"`)
}

// dollarTag returns the $tag$ opening a dollar-quoted string at i.
func dollarTag(query string, i int) (string, bool) {
	j := i + 1
	for j < len(query) && query[j] != '$' {
		if !isIdentPart(query, j) || (j == i+1 && isDigit(query[j])) {
			return "", false
		}
		j++
	}
	if j >= len(query) {
		return "", false
	}
	return query[i : j+1], true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(s string, i int) bool {
	r, _ := utf8.DecodeRuneInString(s[i:])
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(s string, i int) bool {
	r, _ := utf8.DecodeRuneInString(s[i:])
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
