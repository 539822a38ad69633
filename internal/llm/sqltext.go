package llm

import (
	"regexp"
	"strings"
)

var sqlStart = regexp.MustCompile(`(?i)\b(select|with)\b`)

var fenceLangs = map[string]bool{"": true, "sql": true, "postgresql": true, "postgres": true, "pgsql": true}

// CleanSQL extracts the SQL statement from a model reply. The first fenced
// code block wins when present; prose before the first SELECT/WITH and
// anything after the first semicolon outside quotes and comments is dropped.
func CleanSQL(content string) string {
	content = strings.TrimSpace(content)

	if start := strings.Index(content, "```"); start >= 0 {
		block := content[start+3:]
		if nl := strings.IndexByte(block, '\n'); nl >= 0 && fenceLangs[strings.ToLower(strings.TrimSpace(block[:nl]))] {
			block = block[nl+1:]
		}
		if end := strings.Index(block, "```"); end >= 0 {
			block = block[:end]
		}
		content = strings.TrimSpace(block)
	}

	if loc := sqlStart.FindStringIndex(content); loc != nil {
		content = content[loc[0]:]
	}
	if end := statementEnd(content); end >= 0 {
		content = content[:end+1]
	}

	return strings.TrimSpace(content)
}

// statementEnd returns the index of the first `;` that is not inside a
// string literal, quoted identifier, dollar-quoted string or comment.
func statementEnd(sql string) int {
	for i := 0; i < len(sql); i++ {
		switch c := sql[i]; {
		case c == ';':
			return i
		case c == '\'' || c == '"':
			i = closingQuote(sql, i, c)
		case c == '-' && strings.HasPrefix(sql[i:], "--"):
			nl := strings.IndexByte(sql[i:], '\n')
			if nl < 0 {
				return -1
			}
			i += nl
		case c == '/' && strings.HasPrefix(sql[i:], "/*"):
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return -1
			}
			i += end + 3
		case c == '$':
			if tag := dollarTag.FindString(sql[i:]); tag != "" {
				end := strings.Index(sql[i+len(tag):], tag)
				if end < 0 {
					return -1
				}
				i += len(tag) + end + len(tag) - 1
			}
		}
	}
	return -1
}

var dollarTag = regexp.MustCompile(`^\$[A-Za-z_]*\$`)

// closingQuote returns the index of the quote closing the one at open;
// doubled quotes are escapes.
func closingQuote(sql string, open int, q byte) int {
	for i := open + 1; i < len(sql); i++ {
		if sql[i] != q {
			continue
		}
		if i+1 < len(sql) && sql[i+1] == q {
			i++
			continue
		}
		return i
	}
	return len(sql)
}
