package expand

import (
	"context"
	"fmt"
	"strings"

	"github.com/jpibz/wbash/core/scratch"
)

// heredocOp is one << / <<- / <<< operator found on a command line, with
// the byte span of the operator plus delimiter so the line can be rewritten
// in place.
type heredocOp struct {
	start, end int
	delim      string
	quoted     bool
	stripTabs  bool
	hereString bool
	word       string
}

// extractHeredocs rewrites every here-document into a redirection from a
// scratch file. The body is captured literally for a quoted delimiter and
// run through the word passes otherwise; <<- strips leading tabs from body
// lines; a missing terminator is an error. Here-strings (<<<) become
// one-line scratch files the same way.
func (e *Engine) extractHeredocs(ctx context.Context, text string, depth int) (string, error) {
	if !strings.Contains(text, "<<") {
		return text, nil
	}

	lines := strings.Split(text, "\n")
	var out []string
	i := 0
	for i < len(lines) {
		line := lines[i]
		ops := findHeredocOps(line)
		if len(ops) == 0 {
			out = append(out, line)
			i++
			continue
		}

		// Bodies follow the command line in operator order.
		cursor := i + 1
		replacements := make([]string, len(ops))
		for k, op := range ops {
			var body string
			if op.hereString {
				body = trimMatchedQuotes(op.word) + "\n"
			} else {
				collected, next, err := collectHeredocBody(lines, cursor, op)
				if err != nil {
					return "", err
				}
				body, cursor = collected, next
			}
			if !op.quoted && !op.hereString {
				expanded, err := e.expandHeredocBody(ctx, body, depth)
				if err != nil {
					return "", err
				}
				body = expanded
			}
			res, err := e.scratch.Create(scratch.Heredoc, []byte(body))
			if err != nil {
				return "", fmt.Errorf("materializing here-document: %w", err)
			}
			replacements[k] = "< " + res.Path
		}

		for k := len(ops) - 1; k >= 0; k-- {
			line = line[:ops[k].start] + replacements[k] + line[ops[k].end:]
		}
		out = append(out, line)
		i = cursor
	}
	return strings.Join(out, "\n"), nil
}

// expandHeredocBody runs an unquoted-delimiter body through the word
// passes: tilde, command substitution, arithmetic, braces, and parameters.
// The tilde and brace passes rebuild whole words, so they run per line and
// only on lines that carry their trigger characters; everything else passes
// through byte for byte, keeping the body's line structure intact.
func (e *Engine) expandHeredocBody(ctx context.Context, body string, depth int) (string, error) {
	body, spliced, err := e.expandCmdSubst(ctx, body, depth)
	if err != nil {
		return "", err
	}
	body, err = e.expandArith(body)
	if err != nil {
		return "", err
	}

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		line = e.expandTilde(line)
		if strings.ContainsRune(line, '{') {
			line = expandBraces(line)
		}
		lines[i] = line
	}
	body = strings.Join(lines, "\n")

	body, err = expandParams(body, e.vars)
	if err != nil {
		return "", err
	}
	return restoreSpliced(body, spliced), nil
}

func collectHeredocBody(lines []string, start int, op heredocOp) (string, int, error) {
	var body strings.Builder
	for i := start; i < len(lines); i++ {
		candidate := lines[i]
		if op.stripTabs {
			candidate = strings.TrimLeft(candidate, "\t")
		}
		if candidate == op.delim {
			return body.String(), i + 1, nil
		}
		body.WriteString(candidate)
		body.WriteByte('\n')
	}
	return "", 0, fmt.Errorf("here-document delimited by %q is not terminated", op.delim)
}

// findHeredocOps scans one line for heredoc operators outside quotes.
func findHeredocOps(line string) []heredocOp {
	var ops []heredocOp
	inSingle, inDouble := false, false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && !inSingle:
			i++
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case c == '<' && !inSingle && !inDouble && strings.HasPrefix(line[i:], "<<"):
			op, end, ok := parseHeredocOp(line, i)
			if !ok {
				return nil
			}
			ops = append(ops, op)
			i = end - 1
		}
	}
	return ops
}

func parseHeredocOp(line string, start int) (heredocOp, int, bool) {
	op := heredocOp{start: start}
	i := start + 2
	if i < len(line) && line[i] == '<' {
		op.hereString = true
		i++
	} else if i < len(line) && line[i] == '-' {
		op.stripTabs = true
		i++
	}
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	if i >= len(line) {
		return op, 0, false
	}

	if op.hereString {
		word, end := scanWord(line, i)
		if word == "" {
			return op, 0, false
		}
		op.word = word
		op.end = end
		return op, end, true
	}

	switch line[i] {
	case '\'', '"':
		q := line[i]
		j := strings.IndexByte(line[i+1:], q)
		if j < 0 {
			return op, 0, false
		}
		op.delim = line[i+1 : i+1+j]
		op.quoted = true
		op.end = i + j + 2
	case '\\':
		word, end := scanWord(line, i+1)
		op.delim = word
		op.quoted = true
		op.end = end
	default:
		word, end := scanWord(line, i)
		op.delim = word
		op.end = end
	}
	if op.delim == "" {
		return op, 0, false
	}
	return op, op.end, true
}

func scanWord(line string, start int) (string, int) {
	i := start
	for i < len(line) {
		c := line[i]
		if c == ' ' || c == '\t' || c == '|' || c == ';' || c == '&' || c == '<' || c == '>' {
			break
		}
		i++
	}
	return line[start:i], i
}
