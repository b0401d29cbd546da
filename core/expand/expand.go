// Package expand is the preprocessing front end: it rewrites a raw command
// line into a form the structural parser and backends can run on a host
// without a native bash. Passes run in a fixed order over the text; each
// pass is quote-aware and leaves single-quoted regions alone.
package expand

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/jpibz/wbash/core/scratch"
)

// DefaultMaxDepth bounds nested command substitution.
const DefaultMaxDepth = 5

// ErrRecursionDepth reports command substitutions nested past the limit.
var ErrRecursionDepth = errors.New("command substitution nested too deeply")

// SubRunner executes the inner command of a substitution. The executor
// implements this by re-entering the full pipeline with the given depth so
// nested substitutions stay bounded.
type SubRunner interface {
	RunSubstitution(ctx context.Context, command string, depth int) (stdout string, exitCode int, err error)
}

// Options configures an Engine.
type Options struct {
	Aliases  map[string]string
	Home     string
	Vars     *VarContext
	Runner   SubRunner
	Scratch  *scratch.Dir
	Logger   *log.Logger
	MaxDepth int
}

// Engine runs the expansion passes for one invocation. It is not safe for
// concurrent use; each invocation builds its own engine over its own
// scratch directory and variable context.
type Engine struct {
	aliases  map[string]string
	home     string
	vars     *VarContext
	runner   SubRunner
	scratch  *scratch.Dir
	logger   *log.Logger
	maxDepth int
}

// New builds an Engine. A nil Vars gets an empty context; MaxDepth zero
// means DefaultMaxDepth.
func New(opts Options) *Engine {
	vars := opts.Vars
	if vars == nil {
		vars = NewVarContext(nil)
	}
	depth := opts.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(nullWriter{}, "", 0)
	}
	return &Engine{
		aliases:  opts.Aliases,
		home:     opts.Home,
		vars:     vars,
		runner:   opts.Runner,
		scratch:  opts.Scratch,
		logger:   logger,
		maxDepth: depth,
	}
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

// Vars exposes the engine's variable context so the executor can apply
// assignment statements.
func (e *Engine) Vars() *VarContext { return e.vars }

// Result is the expanded text plus any commands that must run after the
// main pipeline, produced by output-form process substitution.
type Result struct {
	Text         string
	PostCommands []string
}

// Expand runs all passes at substitution depth zero.
func (e *Engine) Expand(ctx context.Context, text string) (Result, error) {
	return e.ExpandAt(ctx, text, 0)
}

// ExpandAt runs all passes at the given substitution depth. Control
// structures skip word-level expansion entirely: the block executes as a
// single shell unit later, and a partial expansion of its keywords or loop
// variables would change its meaning.
//
// Statements are expanded one at a time in chain order. An assignment
// statement updates the variable context as soon as it is expanded, so
// X=5; echo $X resolves $X against the value just assigned. Pipe segments
// run in subshells and never touch the parent context.
func (e *Engine) ExpandAt(ctx context.Context, text string, depth int) (Result, error) {
	if depth > e.maxDepth {
		return Result{}, ErrRecursionDepth
	}
	text = strings.TrimSpace(text)
	if HasControlStructure(text) {
		return Result{Text: text}, nil
	}

	text, err := e.extractHeredocs(ctx, text, depth)
	if err != nil {
		return Result{}, err
	}

	parts := splitStatementsKeepSep(text)
	var out strings.Builder
	var post []string
	for i, part := range parts {
		if part.sep {
			out.WriteString(part.text)
			continue
		}
		stmt, stmtPost, err := e.expandStatement(ctx, part.text, depth)
		if err != nil {
			return Result{}, err
		}
		if name, value, ok := ParseAssignment(stmt); ok && !pipeAdjacent(parts, i) {
			e.vars.Set(name, value)
		}
		out.WriteString(stmt)
		post = append(post, stmtPost...)
	}
	return Result{Text: out.String(), PostCommands: post}, nil
}

// pipeAdjacent reports whether the statement at index i is a pipe segment.
func pipeAdjacent(parts []textPart, i int) bool {
	if i > 0 && parts[i-1].sep && parts[i-1].text == "|" {
		return true
	}
	if i+1 < len(parts) && parts[i+1].sep && parts[i+1].text == "|" {
		return true
	}
	return false
}

// expandStatement runs the word-level passes over one statement. Command
// substitution output is held inert behind markers until the word passes
// finish, then spliced in verbatim; it is never re-expanded.
func (e *Engine) expandStatement(ctx context.Context, text string, depth int) (string, []string, error) {
	body := strings.Trim(text, " \t")
	if body == "" {
		return text, nil, nil
	}
	lead := text[:strings.Index(text, body)]
	trail := text[len(lead)+len(body):]

	body = e.expandAliasHead(body)
	body = e.expandTilde(body)

	body, spliced, err := e.expandCmdSubst(ctx, body, depth)
	if err != nil {
		return "", nil, err
	}

	body, err = e.expandArith(body)
	if err != nil {
		return "", nil, err
	}

	body = expandBraces(body)

	body, err = expandParams(body, e.vars)
	if err != nil {
		return "", nil, err
	}

	body = restoreSpliced(body, spliced)

	body, post, err := e.expandProcSubst(ctx, body, depth)
	if err != nil {
		return "", nil, err
	}
	return lead + body + trail, post, nil
}

var controlKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "until": true, "case": true,
}

// HasControlStructure reports whether any statement in the text opens a
// shell control structure. Such input is kept whole rather than expanded.
func HasControlStructure(text string) bool {
	for _, stmt := range splitStatements(text) {
		word := firstWord(stmt)
		if controlKeywords[word] {
			return true
		}
	}
	return false
}

func splitStatements(text string) []string {
	var stmts []string
	for _, part := range splitStatementsKeepSep(text) {
		if !part.sep {
			stmts = append(stmts, part.text)
		}
	}
	return stmts
}

func firstWord(s string) string {
	s = strings.TrimLeft(s, " \t")
	end := 0
	for end < len(s) && s[end] != ' ' && s[end] != '\t' {
		end++
	}
	return s[:end]
}

// expandAliasHead replaces the statement's leading word. One level only;
// an alias whose replacement starts with its own name does not loop.
func (e *Engine) expandAliasHead(text string) string {
	if len(e.aliases) == 0 {
		return text
	}
	word := firstWord(text)
	if repl, ok := e.aliases[word]; ok && word != "" {
		return repl + text[len(word):]
	}
	return text
}

type textPart struct {
	text string
	sep  bool
}

// splitStatementsKeepSep cuts text at unquoted chain operators, keeping the
// separators as their own parts. Separators inside quotes, backticks, or
// parenthesized spans (substitutions, subshells) belong to the enclosing
// statement and do not split.
func splitStatementsKeepSep(text string) []textPart {
	var parts []textPart
	var cur strings.Builder
	inSingle, inDouble, inBacktick := false, false, false
	parens := 0
	flush := func() {
		parts = append(parts, textPart{text: cur.String()})
		cur.Reset()
	}
	bare := func() bool { return !inSingle && !inDouble && !inBacktick && parens == 0 }
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\\' && !inSingle && i+1 < len(text):
			cur.WriteByte(c)
			i++
			cur.WriteByte(text[i])
		case c == '\'' && !inDouble && !inBacktick:
			inSingle = !inSingle
			cur.WriteByte(c)
		case c == '"' && !inSingle && !inBacktick:
			inDouble = !inDouble
			cur.WriteByte(c)
		case c == '`' && !inSingle:
			inBacktick = !inBacktick
			cur.WriteByte(c)
		case c == '(' && !inSingle && !inDouble && !inBacktick:
			parens++
			cur.WriteByte(c)
		case c == ')' && !inSingle && !inDouble && !inBacktick && parens > 0:
			parens--
			cur.WriteByte(c)
		case bare() && (c == ';' || c == '\n'):
			flush()
			parts = append(parts, textPart{text: string(c), sep: true})
		case bare() && c == '|':
			flush()
			sep := "|"
			if i+1 < len(text) && text[i+1] == '|' {
				sep = "||"
				i++
			}
			parts = append(parts, textPart{text: sep, sep: true})
		case bare() && c == '&' && i+1 < len(text) && text[i+1] == '&':
			flush()
			parts = append(parts, textPart{text: "&&", sep: true})
			i++
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return parts
}

// expandTilde rewrites ~ at the start of an unquoted word to the home
// directory.
func (e *Engine) expandTilde(text string) string {
	if e.home == "" || !strings.Contains(text, "~") {
		return text
	}
	words := splitPreserving(text)
	for i, w := range words {
		if w == "~" {
			words[i] = e.home
		} else if strings.HasPrefix(w, "~/") {
			words[i] = e.home + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// expandArith evaluates every $(( ... )) in place.
func (e *Engine) expandArith(text string) (string, error) {
	for {
		start := indexUnquoted(text, "$((")
		if start < 0 {
			return text, nil
		}
		end := matchDoubleParen(text, start+1)
		if end < 0 {
			return "", fmt.Errorf("unterminated arithmetic expansion in %q", text)
		}
		body := text[start+3 : end]
		v, err := arithEval(body, e.vars)
		if err != nil {
			return "", fmt.Errorf("arithmetic expansion $((%s)): %w", body, err)
		}
		text = text[:start] + strconv.FormatInt(v, 10) + text[end+2:]
	}
}

// matchDoubleParen matches the "((" at open and returns the index of the
// closing "))".
func matchDoubleParen(text string, open int) int {
	depth := 0
	for i := open; i < len(text)-1; i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i+1 < len(text) && text[i+1] == ')' {
				return i
			}
			if depth == 0 {
				return -1
			}
		}
	}
	return -1
}

// expandCmdSubst resolves $( ... ) and backtick substitutions by running
// the inner command. The captured stdout, with exactly one trailing newline
// removed, replaces the substitution behind an inert marker; restoreSpliced
// puts the text back after the remaining passes, so substituted output is
// spliced verbatim rather than expanded again. A failing inner command
// contributes an empty string; the surrounding pipeline still runs,
// matching shell behavior.
func (e *Engine) expandCmdSubst(ctx context.Context, text string, depth int) (string, []string, error) {
	if e.runner == nil {
		return text, nil, nil
	}
	var spliced []string
	for {
		start, end, inner, ok := findCmdSubst(text)
		if !ok {
			return text, spliced, nil
		}
		if depth+1 > e.maxDepth {
			return "", nil, ErrRecursionDepth
		}
		out, err := e.runInner(ctx, inner, depth+1)
		if err != nil {
			return "", nil, err
		}
		spliced = append(spliced, strings.TrimSuffix(out, "\n"))
		text = text[:start] + splicedMarker(len(spliced)-1) + text[end:]
	}
}

// splicedMarker builds the placeholder for the i-th substitution. NUL never
// appears in command-line input, so the markers cannot collide with text.
func splicedMarker(i int) string {
	return "\x00" + strconv.Itoa(i) + "\x00"
}

// restoreSpliced replaces the markers with the captured outputs. Brace
// expansion may have duplicated a marker into several words, so every
// occurrence is replaced.
func restoreSpliced(text string, spliced []string) string {
	for i, out := range spliced {
		text = strings.ReplaceAll(text, splicedMarker(i), out)
	}
	return text
}

func (e *Engine) runInner(ctx context.Context, command string, depth int) (string, error) {
	stdout, code, err := e.runner.RunSubstitution(ctx, command, depth)
	if errors.Is(err, ErrRecursionDepth) {
		return "", err
	}
	if err != nil || code != 0 {
		e.logger.Printf("command substitution $(%s) failed (exit %d): %v", command, code, err)
		return "", nil
	}
	return stdout, nil
}

// findCmdSubst locates the first substitution outside single quotes,
// returning the span to replace and the inner command.
func findCmdSubst(text string) (start, end int, inner string, ok bool) {
	inSingle, inDouble := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\\' && !inSingle && i+1 < len(text):
			i++
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case c == '$' && !inSingle && strings.HasPrefix(text[i:], "$(") && !strings.HasPrefix(text[i:], "$(("):
			close := matchParen(text, i+1)
			if close < 0 {
				return 0, 0, "", false
			}
			return i, close + 1, strings.TrimSpace(text[i+2 : close]), true
		case c == '`' && !inSingle:
			j := strings.IndexByte(text[i+1:], '`')
			if j < 0 {
				return 0, 0, "", false
			}
			return i, i + j + 2, strings.TrimSpace(text[i+1 : i+1+j]), true
		}
	}
	return 0, 0, "", false
}

func matchParen(text string, open int) int {
	depth := 0
	inSingle, inDouble := false, false
	for i := open; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\\' && !inSingle && i+1 < len(text):
			i++
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case c == '(' && !inSingle && !inDouble:
			depth++
		case c == ')' && !inSingle && !inDouble:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// expandProcSubst rewrites process substitution. The input form <(cmd) runs
// now and becomes a scratch file path; the output form >(cmd) becomes a
// fresh scratch file path plus a post-command that feeds the file to cmd
// after the main pipeline finishes.
func (e *Engine) expandProcSubst(ctx context.Context, text string, depth int) (string, []string, error) {
	if e.runner == nil || e.scratch == nil {
		return text, nil, nil
	}
	var post []string
	for {
		start, end, inner, output, ok := findProcSubst(text)
		if !ok {
			return text, post, nil
		}
		if output {
			res, err := e.scratch.Create(scratch.ProcessSubOutput, nil)
			if err != nil {
				return "", nil, fmt.Errorf("materializing process substitution: %w", err)
			}
			post = append(post, inner+" < "+res.Path)
			text = text[:start] + res.Path + text[end:]
			continue
		}
		if depth+1 > e.maxDepth {
			return "", nil, ErrRecursionDepth
		}
		out, err := e.runInner(ctx, inner, depth+1)
		if err != nil {
			return "", nil, err
		}
		res, err := e.scratch.Create(scratch.ProcessSubInput, []byte(out))
		if err != nil {
			return "", nil, fmt.Errorf("materializing process substitution: %w", err)
		}
		text = text[:start] + res.Path + text[end:]
	}
}

func findProcSubst(text string) (start, end int, inner string, output, ok bool) {
	inSingle, inDouble := false, false
	for i := 0; i < len(text)-1; i++ {
		c := text[i]
		switch {
		case c == '\\' && !inSingle && i+1 < len(text):
			i++
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case (c == '<' || c == '>') && !inSingle && !inDouble && text[i+1] == '(':
			// 2>(...) is a redirection, not process substitution.
			if i > 0 && text[i-1] >= '0' && text[i-1] <= '9' {
				continue
			}
			if i > 0 && text[i-1] == '<' {
				continue
			}
			close := matchParen(text, i+1)
			if close < 0 {
				return 0, 0, "", false, false
			}
			return i, close + 1, strings.TrimSpace(text[i+2 : close]), c == '>', true
		}
	}
	return 0, 0, "", false, false
}

func indexUnquoted(text, sub string) int {
	inSingle, inDouble := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\\' && !inSingle && i+1 < len(text):
			i++
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		default:
			if !inSingle && strings.HasPrefix(text[i:], sub) {
				return i
			}
		}
	}
	return -1
}
