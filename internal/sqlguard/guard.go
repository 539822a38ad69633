// Package sqlguard decides whether a caller-supplied SQL statement may be run
// against the news database. Only a single read-only SELECT over allow-listed
// relations passes; everything else is rejected with an *Error.
package sqlguard

import (
	"errors"
	"fmt"
	"strings"
)

var ErrRejected = errors.New("query rejected")

// Error describes why a statement was rejected.
type Error struct {
	Reason string
	Token  string
}

func (e *Error) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("query rejected: %s: %q", e.Reason, e.Token)
	}
	return "query rejected: " + e.Reason
}

func (e *Error) Unwrap() error { return ErrRejected }

func reject(reason, tok string) *Error {
	return &Error{Reason: reason, Token: tok}
}

var DefaultAllowedTables = []string{
	"articles",
	"information_schema.tables",
	"information_schema.columns",
}

var deniedKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "merge": {}, "upsert": {},
	"drop": {}, "alter": {}, "create": {}, "truncate": {}, "grant": {},
	"revoke": {}, "copy": {}, "vacuum": {}, "analyze": {}, "call": {},
	"do": {}, "set": {}, "reset": {}, "lock": {}, "listen": {},
	"notify": {}, "unlisten": {}, "prepare": {}, "execute": {}, "deallocate": {},
	"refresh": {}, "comment": {}, "into": {}, "reindex": {}, "cluster": {},
	"discard": {}, "checkpoint": {}, "load": {}, "import": {},
}

var deniedFunctions = map[string]struct{}{
	"pg_sleep": {}, "pg_sleep_for": {}, "pg_sleep_until": {},
	"pg_read_file": {}, "pg_read_binary_file": {}, "pg_ls_dir": {}, "pg_stat_file": {},
	"dblink": {}, "dblink_exec": {},
	"pg_terminate_backend": {}, "pg_cancel_backend": {}, "pg_reload_conf": {},
	"set_config": {}, "current_setting": {}, "pg_notify": {},
	"ts_stat": {}, "ts_rewrite": {}, "xpath": {}, "xpath_exists": {},
}

// deniedFunctionPrefixes cover function families that read files, large
// objects or run SQL passed as text, which would escape the relation check.
var deniedFunctionPrefixes = []string{
	"query_to_xml", "cursor_to_xml", "table_to_xml", "schema_to_xml", "database_to_xml",
	"lo_", "dblink_", "pg_ls_", "pg_read_", "pg_file_", "pg_logfile_",
	"pg_create_", "pg_drop_", "pg_replication_", "pg_advisory_", "pg_try_advisory_",
}

func deniedFunction(name string) bool {
	name = strings.ToLower(name)
	if _, ok := deniedFunctions[name]; ok {
		return true
	}
	for _, p := range deniedFunctionPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// functions whose argument list may contain FROM without naming a relation
var fromTakingFunctions = map[string]struct{}{
	"extract": {}, "substring": {}, "trim": {}, "overlay": {}, "position": {},
}

// keywords that end a FROM item and so cannot be an alias
var clauseKeywords = map[string]struct{}{
	"where": {}, "group": {}, "order": {}, "limit": {}, "offset": {}, "having": {},
	"join": {}, "inner": {}, "left": {}, "right": {}, "full": {}, "cross": {},
	"natural": {}, "on": {}, "using": {}, "union": {}, "intersect": {}, "except": {},
	"window": {}, "fetch": {}, "for": {}, "tablesample": {}, "lateral": {},
}

type Guard struct {
	allowed map[string]struct{}
}

// New returns a Guard permitting the given relations. Names are matched
// case-insensitively; schema-qualified names must be listed qualified. With
// no names DefaultAllowedTables is used.
func New(allowedTables ...string) *Guard {
	if len(allowedTables) == 0 {
		allowedTables = DefaultAllowedTables
	}

	allowed := make(map[string]struct{}, len(allowedTables))
	for _, t := range allowedTables {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			allowed[t] = struct{}{}
		}
	}
	return &Guard{allowed: allowed}
}

// Validate checks query and returns it with comments and the trailing
// semicolon removed, ready to be embedded as a sub-select.
func (g *Guard) Validate(query string) (string, error) {
	tokens, stripped, err := lex(query)
	if err != nil {
		return "", err
	}

	if len(tokens) > 0 && tokens[len(tokens)-1].is(tokPunct, ";") {
		tokens = tokens[:len(tokens)-1]
		stripped = strings.TrimSpace(stripped)
		stripped = strings.TrimSpace(strings.TrimSuffix(stripped, ";"))
	}
	if len(tokens) == 0 {
		return "", reject("empty statement", "")
	}

	if err := checkShape(tokens); err != nil {
		return "", err
	}

	if err := g.checkRelations(tokens); err != nil {
		return "", err
	}

	return strings.TrimSpace(stripped), nil
}

func checkShape(tokens []token) error {
	first := 0
	for first < len(tokens) && tokens[first].is(tokPunct, "(") {
		first++
	}
	if first == len(tokens) || !tokens[first].isWord("select", "with") {
		return reject("only SELECT statements are allowed", tokens[min(first, len(tokens)-1)].text)
	}

	for i, t := range tokens {
		switch t.kind {
		case tokPunct:
			if t.text == ";" {
				return reject("multiple statements are not allowed", ";")
			}
		case tokWord:
			if _, ok := deniedKeywords[t.text]; ok {
				return reject("keyword is not allowed", t.text)
			}
			if _, ok := deniedFunctions[t.text]; ok && i+1 < len(tokens) && tokens[i+1].is(tokPunct, "(") {
				return reject("function is not allowed", t.text)
			}
		case tokQuotedIdent:
			if _, ok := deniedFunctions[strings.ToLower(t.text)]; ok && i+1 < len(tokens) && tokens[i+1].is(tokPunct, "(") {
				return reject("function is not allowed", t.text)
			}
		case tokParam:
			return reject("bind parameters are not supported", t.text)
		}
	}

	return nil
}

type cteDecl struct {
	name string
	// bodyEnd is the index of the `)` closing the CTE body.
	bodyEnd int
}

// cteDecls collects the CTEs a WITH clause starting at tokens[i] declares:
// `name AS (`, `name (col, ...) AS (`, optionally MATERIALIZED.
func cteDecls(tokens []token, i int) (decls []cteDecl, recursive bool) {
	i++ // WITH
	if i < len(tokens) && tokens[i].isWord("recursive") {
		recursive = true
		i++
	}

	for i < len(tokens) && tokens[i].isIdent() {
		name := relationName(tokens[i])
		j := i + 1
		if j < len(tokens) && tokens[j].is(tokPunct, "(") {
			end := matchParen(tokens, j)
			if end < 0 {
				return decls, recursive
			}
			j = end + 1
		}
		if j >= len(tokens) || !tokens[j].isWord("as") {
			return decls, recursive
		}
		j++
		if j < len(tokens) && tokens[j].isWord("not") {
			j++
		}
		if j < len(tokens) && tokens[j].isWord("materialized") {
			j++
		}
		if j >= len(tokens) || !tokens[j].is(tokPunct, "(") {
			return decls, recursive
		}

		end := matchParen(tokens, j)
		if end < 0 {
			return decls, recursive
		}
		decls = append(decls, cteDecl{name: name, bodyEnd: end})

		if end+1 >= len(tokens) || !tokens[end+1].is(tokPunct, ",") {
			return decls, recursive
		}
		i = end + 2
	}

	return decls, recursive
}

// fromEnding are the keywords that close a FROM clause at their depth.
var fromEnding = map[string]struct{}{
	"where": {}, "group": {}, "order": {}, "limit": {}, "offset": {}, "having": {},
	"union": {}, "intersect": {}, "except": {}, "window": {}, "fetch": {}, "for": {},
	"select": {},
}

type frame struct {
	// fromFunc marks the argument list of a function such as EXTRACT where
	// FROM is part of the syntax.
	fromFunc bool
	inFrom   bool
	// ctes declared by a WITH clause at this depth
	ctes []string
}

type scope []frame

// visible reports whether name refers to a CTE declared at the current or
// an enclosing depth.
func (s scope) visible(name string) bool {
	for i := len(s) - 1; i >= 0; i-- {
		for _, c := range s[i].ctes {
			if c == name {
				return true
			}
		}
	}
	return false
}

// tableStarters are the tokens after which TABLE opens a `TABLE name` query.
var tableStarters = map[string]struct{}{
	"union": {}, "intersect": {}, "except": {}, "all": {}, "distinct": {},
}

func startsTableQuery(tokens []token, i int) bool {
	if i == 0 || tokens[i-1].is(tokPunct, "(") {
		return true
	}
	_, ok := tableStarters[tokens[i-1].text]
	return tokens[i-1].kind == tokWord && ok
}

// checkRelations walks every FROM item, JOIN target, comma-separated FROM
// list entry and TABLE query at each parenthesis depth and checks it
// against the allow-list and the CTEs in scope. A CTE of a plain WITH is in
// scope once its body is closed; WITH RECURSIVE names are in scope at once.
func (g *Guard) checkRelations(tokens []token) error {
	stack := scope{{}}
	// CTE names waiting for the `)` at the given index to close their body
	pending := map[int]string{}

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		top := &stack[len(stack)-1]

		var next int
		var err error

		switch {
		case t.is(tokPunct, "("):
			fromFunc := false
			if i > 0 && tokens[i-1].kind == tokWord {
				_, fromFunc = fromTakingFunctions[tokens[i-1].text]
			}
			stack = append(stack, frame{fromFunc: fromFunc})
			continue
		case t.is(tokPunct, ")"):
			if len(stack) == 1 {
				return reject("unbalanced parentheses", ")")
			}
			stack = stack[:len(stack)-1]
			if name, ok := pending[i]; ok {
				stack[len(stack)-1].ctes = append(stack[len(stack)-1].ctes, name)
				delete(pending, i)
			}
			continue
		case t.isWord("with"):
			decls, recursive := cteDecls(tokens, i)
			for _, d := range decls {
				if recursive {
					top.ctes = append(top.ctes, d.name)
				} else {
					pending[d.bodyEnd] = d.name
				}
			}
			continue
		case t.isWord("table") && startsTableQuery(tokens, i):
			next, err = g.checkFromItem(tokens, i+1, stack)
		case t.isWord("from"):
			if top.fromFunc || (i > 0 && tokens[i-1].isWord("distinct")) {
				continue
			}
			top.inFrom = true
			next, err = g.checkFromItem(tokens, i+1, stack)
		case t.isWord("join"):
			top.inFrom = true
			next, err = g.checkFromItem(tokens, i+1, stack)
		case t.is(tokPunct, ",") && top.inFrom:
			next, err = g.checkFromItem(tokens, i+1, stack)
		default:
			if t.kind == tokWord {
				if _, ok := fromEnding[t.text]; ok {
					top.inFrom = false
				}
			}
			continue
		}

		if err != nil {
			return err
		}
		i = next - 1
	}

	if len(stack) != 1 {
		return reject("unbalanced parentheses", "(")
	}
	return nil
}

// checkFromItem validates one relation reference starting at i, skips its
// alias and returns the index of the next unread token. A parenthesized
// sub-select is left for the caller to walk.
func (g *Guard) checkFromItem(tokens []token, i int, ctes scope) (int, error) {
	for i < len(tokens) && tokens[i].isWord("lateral", "only") {
		i++
	}
	if i >= len(tokens) {
		return 0, reject("missing relation", "")
	}
	if tokens[i].is(tokPunct, "(") {
		return i, nil
	}
	if !tokens[i].isIdent() {
		return 0, reject("unexpected relation", tokens[i].text)
	}

	parts := []string{relationName(tokens[i])}
	i++
	for i+1 < len(tokens) && tokens[i].is(tokPunct, ".") && tokens[i+1].isIdent() {
		parts = append(parts, relationName(tokens[i+1]))
		i += 2
	}
	name := strings.Join(parts, ".")

	if i < len(tokens) && tokens[i].is(tokPunct, "(") {
		return 0, reject("table functions are not allowed", name)
	}

	_, isAllowed := g.allowed[name]
	if !isAllowed && !ctes.visible(name) {
		return 0, reject("relation is not allowed", name)
	}

	if i < len(tokens) && tokens[i].isWord("as") {
		i++
	}
	if i < len(tokens) && tokens[i].isIdent() {
		if _, isClause := clauseKeywords[tokens[i].text]; !isClause || tokens[i].kind == tokQuotedIdent {
			i++
		}
	}

	return i, nil
}

func relationName(t token) string {
	if t.kind == tokQuotedIdent {
		return t.text
	}
	return strings.ToLower(t.text)
}

func matchParen(tokens []token, open int) int {
	depth := 0
	for i := open; i < len(tokens); i++ {
		switch {
		case tokens[i].is(tokPunct, "("):
			depth++
		case tokens[i].is(tokPunct, ")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
