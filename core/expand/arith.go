package expand

import (
	"fmt"
	"strconv"
	"strings"
)

// arithEval evaluates the body of a $(( ... )) expression. It is a small
// recursive-descent evaluator over 64-bit integers: parentheses, unary - !,
// ** * / % + -, comparisons, and && ||. Bare names resolve through the
// variable context, with unset names reading as zero per shell arithmetic
// rules.
func arithEval(expr string, vars *VarContext) (int64, error) {
	p := &arithParser{input: expr, vars: vars}
	v, err := p.parseOr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q in arithmetic expression", p.input[p.pos:])
	}
	return v, nil
}

type arithParser struct {
	input string
	pos   int
	vars  *VarContext
}

func (p *arithParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *arithParser) accept(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.input[p.pos:], tok) {
		// Do not let "<" swallow the first half of "<=".
		rest := p.input[p.pos+len(tok):]
		if (tok == "<" || tok == ">" || tok == "=" || tok == "!" || tok == "*") &&
			len(rest) > 0 && (rest[0] == '=' || (tok == "*" && rest[0] == '*') ||
			(tok == "<" && rest[0] == '<') || (tok == ">" && rest[0] == '>')) {
			return false
		}
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *arithParser) parseOr() (int64, error) {
	left, err := p.parseAnd()
	if err != nil {
		return 0, err
	}
	for p.accept("||") {
		right, err := p.parseAnd()
		if err != nil {
			return 0, err
		}
		left = boolToInt(left != 0 || right != 0)
	}
	return left, nil
}

func (p *arithParser) parseAnd() (int64, error) {
	left, err := p.parseCompare()
	if err != nil {
		return 0, err
	}
	for p.accept("&&") {
		right, err := p.parseCompare()
		if err != nil {
			return 0, err
		}
		left = boolToInt(left != 0 && right != 0)
	}
	return left, nil
}

func (p *arithParser) parseCompare() (int64, error) {
	left, err := p.parseAdd()
	if err != nil {
		return 0, err
	}
	for {
		var op string
		switch {
		case p.accept("=="):
			op = "=="
		case p.accept("!="):
			op = "!="
		case p.accept("<="):
			op = "<="
		case p.accept(">="):
			op = ">="
		case p.accept("<"):
			op = "<"
		case p.accept(">"):
			op = ">"
		default:
			return left, nil
		}
		right, err := p.parseAdd()
		if err != nil {
			return 0, err
		}
		switch op {
		case "==":
			left = boolToInt(left == right)
		case "!=":
			left = boolToInt(left != right)
		case "<=":
			left = boolToInt(left <= right)
		case ">=":
			left = boolToInt(left >= right)
		case "<":
			left = boolToInt(left < right)
		case ">":
			left = boolToInt(left > right)
		}
	}
}

func (p *arithParser) parseAdd() (int64, error) {
	left, err := p.parseMul()
	if err != nil {
		return 0, err
	}
	for {
		switch {
		case p.accept("+"):
			right, err := p.parseMul()
			if err != nil {
				return 0, err
			}
			left += right
		case p.accept("-"):
			right, err := p.parseMul()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *arithParser) parseMul() (int64, error) {
	left, err := p.parsePower()
	if err != nil {
		return 0, err
	}
	for {
		switch {
		case p.accept("*"):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			left *= right
		case p.accept("/"):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case p.accept("%"):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left %= right
		default:
			return left, nil
		}
	}
}

func (p *arithParser) parsePower() (int64, error) {
	base, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	// Right associative, as in bash.
	if p.accept("**") {
		exp, err := p.parsePower()
		if err != nil {
			return 0, err
		}
		if exp < 0 {
			return 0, fmt.Errorf("negative exponent")
		}
		var out int64 = 1
		for i := int64(0); i < exp; i++ {
			out *= base
		}
		return out, nil
	}
	return base, nil
}

func (p *arithParser) parseUnary() (int64, error) {
	switch {
	case p.accept("-"):
		v, err := p.parseUnary()
		return -v, err
	case p.accept("+"):
		return p.parseUnary()
	case p.accept("!"):
		v, err := p.parseUnary()
		return boolToInt(v == 0), err
	}
	return p.parsePrimary()
}

func (p *arithParser) parsePrimary() (int64, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("unexpected end of arithmetic expression")
	}
	if p.input[p.pos] == '(' {
		p.pos++
		v, err := p.parseOr()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	c := p.input[p.pos]
	if c >= '0' && c <= '9' {
		for p.pos < len(p.input) && isNumByte(p.input[p.pos]) {
			p.pos++
		}
		// Base prefixes follow shell rules: 0x hex, leading 0 octal.
		v, err := strconv.ParseInt(p.input[start:p.pos], 0, 64)
		if err != nil {
			return 0, fmt.Errorf("bad number %q", p.input[start:p.pos])
		}
		return v, nil
	}

	if c == '$' {
		p.pos++
		start = p.pos
	}
	for p.pos < len(p.input) && isNameByte(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return 0, fmt.Errorf("unexpected %q in arithmetic expression", string(c))
	}
	name := p.input[start:p.pos]
	val, _ := p.vars.Get(name)
	if val == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(val), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("variable %s is not numeric", name)
	}
	return v, nil
}

func isNumByte(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') ||
		(c >= 'A' && c <= 'F') || c == 'x' || c == 'X'
}

func isNameByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
