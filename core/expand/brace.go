package expand

import (
	"fmt"
	"strconv"
	"strings"
)

// maxBraceResults bounds the Cartesian product so pathological input cannot
// allocate without limit.
const maxBraceResults = 4096

// expandBraces performs bash brace expansion across a command line: comma
// lists with nesting, numeric and alpha ranges with optional step, zero
// padding when an endpoint carries a leading zero, and Cartesian combination
// of adjacent groups. Expansion works word by word so a group never spills
// into neighboring arguments, and quoted regions are left untouched.
func expandBraces(text string) string {
	words := splitPreserving(text)
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, braceExpandOne(w)...)
	}
	return strings.Join(out, " ")
}

// splitPreserving breaks a line on unquoted whitespace, keeping quotes and
// escapes inside each word intact.
func splitPreserving(text string) []string {
	var words []string
	var cur strings.Builder
	inSingle, inDouble := false, false
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\\' && !inSingle && i+1 < len(text):
			cur.WriteByte(c)
			i++
			cur.WriteByte(text[i])
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			cur.WriteByte(c)
		case c == '"' && !inSingle:
			inDouble = !inDouble
			cur.WriteByte(c)
		case (c == ' ' || c == '\t') && !inSingle && !inDouble:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return words
}

func braceExpandOne(text string) []string {
	open := findOpenBrace(text)
	if open < 0 {
		return []string{text}
	}
	close := matchBrace(text, open)
	if close < 0 {
		return []string{text}
	}

	prefix := text[:open]
	body := text[open+1 : close]
	suffix := text[close+1:]

	alts := braceAlternatives(body)
	if alts == nil {
		// Not expandable: keep the braces literal but look further right.
		rest := braceExpandOne(suffix)
		out := make([]string, 0, len(rest))
		for _, r := range rest {
			out = append(out, prefix+"{"+body+"}"+r)
		}
		return out
	}

	var out []string
	for _, alt := range alts {
		for _, expanded := range braceExpandOne(alt + suffix) {
			if len(out) >= maxBraceResults {
				return out
			}
			out = append(out, prefix+expanded)
		}
	}
	return out
}

// braceAlternatives splits a brace body into its alternatives, or returns
// nil when the body is not an expansion (no top-level comma and no range).
func braceAlternatives(body string) []string {
	if r := rangeAlternatives(body); r != nil {
		return r
	}

	var alts []string
	depth := 0
	start := 0
	sawComma := false
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				alts = append(alts, body[start:i])
				start = i + 1
				sawComma = true
			}
		}
	}
	if !sawComma {
		return nil
	}
	return append(alts, body[start:])
}

// rangeAlternatives handles {x..y} and {x..y..step} for integers and single
// letters. A leading zero on either integer endpoint pads every result to
// the wider endpoint's width.
func rangeAlternatives(body string) []string {
	parts := strings.Split(body, "..")
	if len(parts) != 2 && len(parts) != 3 {
		return nil
	}
	step := 1
	if len(parts) == 3 {
		n, err := strconv.Atoi(parts[2])
		if err != nil || n == 0 {
			return nil
		}
		if n < 0 {
			n = -n
		}
		step = n
	}

	lo, errLo := strconv.Atoi(parts[0])
	hi, errHi := strconv.Atoi(parts[1])
	if errLo == nil && errHi == nil {
		return intRange(parts[0], parts[1], lo, hi, step)
	}

	if len(parts[0]) == 1 && len(parts[1]) == 1 {
		return charRange(rune(parts[0][0]), rune(parts[1][0]), step)
	}
	return nil
}

func intRange(loText, hiText string, lo, hi, step int) []string {
	width := 0
	if hasLeadingZero(loText) || hasLeadingZero(hiText) {
		width = len(loText)
		if len(hiText) > width {
			width = len(hiText)
		}
	}

	var out []string
	emit := func(n int) {
		if width > 0 {
			out = append(out, fmt.Sprintf("%0*d", width, n))
		} else {
			out = append(out, strconv.Itoa(n))
		}
	}
	if lo <= hi {
		for n := lo; n <= hi && len(out) < maxBraceResults; n += step {
			emit(n)
		}
	} else {
		for n := lo; n >= hi && len(out) < maxBraceResults; n -= step {
			emit(n)
		}
	}
	return out
}

func hasLeadingZero(s string) bool {
	s = strings.TrimPrefix(s, "-")
	return len(s) > 1 && s[0] == '0'
}

func charRange(lo, hi rune, step int) []string {
	if !isAlpha(lo) || !isAlpha(hi) {
		return nil
	}
	var out []string
	if lo <= hi {
		for c := lo; c <= hi; c += rune(step) {
			out = append(out, string(c))
		}
	} else {
		for c := lo; c >= hi; c -= rune(step) {
			out = append(out, string(c))
		}
	}
	return out
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// findOpenBrace locates the first expandable '{' outside quotes: not
// escaped, and not the ${...} parameter form.
func findOpenBrace(text string) int {
	inSingle, inDouble := false, false
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case '{':
			if inSingle || inDouble {
				continue
			}
			if i > 0 && text[i-1] == '$' {
				continue
			}
			return i
		}
	}
	return -1
}

// matchBrace returns the index of the '}' closing the brace at open, or -1.
func matchBrace(text string, open int) int {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
