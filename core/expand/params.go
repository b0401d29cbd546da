package expand

import (
	"fmt"
	"strconv"
	"strings"
)

// expandParams resolves $NAME and every supported ${...} form against the
// variable context. Single-quoted regions are opaque; double quotes allow
// expansion as in bash. Unknown variables expand to the empty string unless
// a ${NAME:-...} family operator says otherwise.
func expandParams(text string, vars *VarContext) (string, error) {
	var out strings.Builder
	inSingle, inDouble := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\\' && !inSingle && i+1 < len(text):
			out.WriteByte(c)
			i++
			out.WriteByte(text[i])
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			out.WriteByte(c)
		case c == '"' && !inSingle:
			inDouble = !inDouble
			out.WriteByte(c)
		case c == '$' && !inSingle && i+1 < len(text):
			replaced, consumed, err := expandDollar(text[i:], vars)
			if err != nil {
				return "", err
			}
			if consumed == 0 {
				out.WriteByte(c)
				continue
			}
			out.WriteString(replaced)
			i += consumed - 1
		default:
			out.WriteByte(c)
		}
	}
	return out.String(), nil
}

// expandDollar handles one expansion starting at a '$'. It returns the
// replacement text and how many input bytes the expansion consumed, zero
// when the dollar sign is literal.
func expandDollar(text string, vars *VarContext) (string, int, error) {
	if text[1] == '{' {
		end := matchBrace(text, 1)
		if end < 0 {
			return "", 0, fmt.Errorf("unterminated ${ in %q", text)
		}
		replaced, err := expandBraceParam(text[2:end], vars)
		if err != nil {
			return "", 0, err
		}
		return replaced, end + 1, nil
	}

	// $NAME form.
	j := 1
	for j < len(text) && isNameByte(text[j]) {
		j++
	}
	if j == 1 {
		return "", 0, nil
	}
	name := text[1:j]
	if name[0] >= '0' && name[0] <= '9' {
		return "", 0, nil
	}
	v, _ := vars.Get(name)
	return v, j, nil
}

// expandBraceParam evaluates the body of ${...}: plain lookup, ${#NAME},
// the :- := :+ :? default family, # ## % %% pattern stripping, ^^ ,, ^ ,
// case conversion, and / // substitution.
func expandBraceParam(body string, vars *VarContext) (string, error) {
	if body == "" {
		return "", fmt.Errorf("bad substitution: ${}")
	}

	if body[0] == '#' {
		v, _ := vars.Get(body[1:])
		return strconv.Itoa(len(v)), nil
	}

	nameEnd := 0
	for nameEnd < len(body) && isNameByte(body[nameEnd]) {
		nameEnd++
	}
	if nameEnd == 0 {
		return "", fmt.Errorf("bad substitution: ${%s}", body)
	}
	name := body[:nameEnd]
	op := body[nameEnd:]
	value, set := vars.Get(name)

	switch {
	case op == "":
		return value, nil

	case strings.HasPrefix(op, ":-"):
		if value == "" {
			return op[2:], nil
		}
		return value, nil

	case strings.HasPrefix(op, ":="):
		if value == "" {
			value = op[2:]
			vars.Set(name, value)
		}
		return value, nil

	case strings.HasPrefix(op, ":+"):
		if value != "" {
			return op[2:], nil
		}
		return "", nil

	case strings.HasPrefix(op, ":?"):
		if value == "" {
			msg := op[2:]
			if msg == "" {
				msg = "parameter null or not set"
			}
			return "", fmt.Errorf("%s: %s", name, msg)
		}
		return value, nil

	case strings.HasPrefix(op, "##"):
		return stripPrefix(value, op[2:], true), nil
	case strings.HasPrefix(op, "#"):
		return stripPrefix(value, op[1:], false), nil
	case strings.HasPrefix(op, "%%"):
		return stripSuffix(value, op[2:], true), nil
	case strings.HasPrefix(op, "%"):
		return stripSuffix(value, op[1:], false), nil

	case op == "^^":
		return strings.ToUpper(value), nil
	case op == ",,":
		return strings.ToLower(value), nil
	case op == "^":
		return upperFirst(value), nil
	case op == ",":
		return lowerFirst(value), nil

	case strings.HasPrefix(op, "//"):
		old, new := splitSubst(op[2:])
		if old == "" {
			return value, nil
		}
		return strings.ReplaceAll(value, old, new), nil
	case strings.HasPrefix(op, "/"):
		old, new := splitSubst(op[1:])
		if old == "" {
			return value, nil
		}
		return strings.Replace(value, old, new, 1), nil
	}

	_ = set
	return "", fmt.Errorf("bad substitution: ${%s}", body)
}

func splitSubst(s string) (old, new string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == '/' {
			return unescapeSlashes(s[:i]), unescapeSlashes(s[i+1:])
		}
	}
	return unescapeSlashes(s), ""
}

func unescapeSlashes(s string) string {
	return strings.ReplaceAll(s, `\/`, "/")
}

// stripPrefix removes the shortest or longest leading match of a glob
// pattern, the ${NAME#pat} and ${NAME##pat} operators.
func stripPrefix(value, pattern string, longest bool) string {
	if longest {
		for i := len(value); i >= 0; i-- {
			if globMatch(pattern, value[:i]) {
				return value[i:]
			}
		}
	} else {
		for i := 0; i <= len(value); i++ {
			if globMatch(pattern, value[:i]) {
				return value[i:]
			}
		}
	}
	return value
}

// stripSuffix removes the shortest or longest trailing match, the
// ${NAME%pat} and ${NAME%%pat} operators.
func stripSuffix(value, pattern string, longest bool) string {
	if longest {
		for i := 0; i <= len(value); i++ {
			if globMatch(pattern, value[i:]) {
				return value[:i]
			}
		}
	} else {
		for i := len(value); i >= 0; i-- {
			if globMatch(pattern, value[i:]) {
				return value[:i]
			}
		}
	}
	return value
}

// globMatch matches the whole string against a pattern of literals, ? and
// *. Unlike path matching, * crosses every character including separators.
func globMatch(pattern, s string) bool {
	var pi, si int
	var starP, starS = -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			starP, starS = pi, si
			pi++
		case starP >= 0:
			starS++
			pi, si = starP+1, starS
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
