package translate

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/jpibz/wbash/core/backend"
	"github.com/jpibz/wbash/core/scratch"
)

// ConvertControl translates an entire control construct (if/for/while/test)
// into a script for the chosen backend and materializes it as a temporary
// resource executed as one unit. With a POSIX shell present the construct
// passes through verbatim; otherwise its grammar is rebuilt in the host
// scripting shell's control-flow grammar.
func (r *Registry) ConvertControl(raw string, dir *scratch.Dir, posixAvailable bool) (Translation, error) {
	if posixAvailable {
		res, err := dir.Create(scratch.ControlScript, []byte(raw+"\n"))
		if err != nil {
			return Translation{}, err
		}
		return Translation{
			Backend:   backend.PosixPassthrough,
			Text:      ". " + quoteArg(res.Path),
			Resources: []scratch.Resource{res},
		}, nil
	}

	script, err := r.controlToScript(raw)
	if err != nil {
		return Translation{}, err
	}
	res, err := dir.Create(scratch.ControlScript, []byte(script+"\n"))
	if err != nil {
		return Translation{}, err
	}
	return Translation{
		Backend:   backend.EmulatedScript,
		Text:      "& " + quoteArg(res.Path),
		Resources: []scratch.Resource{res},
	}, nil
}

func (r *Registry) controlToScript(raw string) (string, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(raw), "")
	if err != nil {
		return "", fmt.Errorf("control block: %w", err)
	}
	var out []string
	for _, stmt := range file.Stmts {
		converted, err := r.convertControlStmt(stmt)
		if err != nil {
			return "", err
		}
		out = append(out, converted)
	}
	return strings.Join(out, "\n"), nil
}

func (r *Registry) convertControlStmt(stmt *syntax.Stmt) (string, error) {
	switch cmd := stmt.Cmd.(type) {
	case *syntax.IfClause:
		return r.convertIf(cmd)
	case *syntax.ForClause:
		return r.convertFor(cmd)
	case *syntax.WhileClause:
		return r.convertWhile(cmd)
	case *syntax.TestClause:
		cond, err := convertTestExpr(cmd.X)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("if (%s) { exit 0 } else { exit 1 }", cond), nil
	case *syntax.CallExpr:
		return r.convertBodyCall(cmd)
	default:
		return "", fmt.Errorf("control block: unsupported statement %T", cmd)
	}
}

func (r *Registry) convertIf(clause *syntax.IfClause) (string, error) {
	var out strings.Builder

	for first := true; clause != nil; clause = clause.Else {
		if len(clause.Cond) == 0 {
			// Terminal else branch.
			body, err := r.convertBody(clause.Then)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&out, " else {\n%s\n}", body)
			break
		}

		cond, err := r.convertCondition(clause.Cond)
		if err != nil {
			return "", err
		}
		body, err := r.convertBody(clause.Then)
		if err != nil {
			return "", err
		}
		keyword := "if"
		if !first {
			keyword = " elseif"
		}
		fmt.Fprintf(&out, "%s (%s) {\n%s\n}", keyword, cond, body)
		first = false
	}

	return out.String(), nil
}

func (r *Registry) convertFor(clause *syntax.ForClause) (string, error) {
	iter, ok := clause.Loop.(*syntax.WordIter)
	if !ok || iter.Name == nil {
		return "", fmt.Errorf("control block: only for-in loops are convertible")
	}
	var items []string
	for _, word := range iter.Items {
		text, err := flattenControlWord(word)
		if err != nil {
			return "", err
		}
		items = append(items, "'"+escapeSingle(text)+"'")
	}
	body, err := r.convertBody(clause.Do)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("foreach ($%s in @(%s)) {\n%s\n}",
		iter.Name.Value, strings.Join(items, ", "), body), nil
}

func (r *Registry) convertWhile(clause *syntax.WhileClause) (string, error) {
	cond, err := r.convertCondition(clause.Cond)
	if err != nil {
		return "", err
	}
	if clause.Until {
		cond = "-not (" + cond + ")"
	}
	body, err := r.convertBody(clause.Do)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("while (%s) {\n%s\n}", cond, body), nil
}

// convertCondition accepts test-style conditions only; arbitrary commands in
// a condition need the POSIX tier.
func (r *Registry) convertCondition(cond []*syntax.Stmt) (string, error) {
	if len(cond) != 1 {
		return "", fmt.Errorf("control block: compound conditions need the posix shell")
	}
	switch cmd := cond[0].Cmd.(type) {
	case *syntax.CallExpr:
		var fields []string
		for _, word := range cmd.Args {
			text, err := flattenControlWord(word)
			if err != nil {
				return "", err
			}
			fields = append(fields, text)
		}
		if len(fields) == 0 {
			return "", fmt.Errorf("control block: empty condition")
		}
		if fields[0] == "test" || fields[0] == "[" {
			args := fields[1:]
			if len(args) > 0 && args[len(args)-1] == "]" {
				args = args[:len(args)-1]
			}
			return testCondition(args)
		}
		return "", fmt.Errorf("control block: condition %q needs the posix shell", fields[0])
	case *syntax.TestClause:
		return convertTestExpr(cmd.X)
	default:
		return "", fmt.Errorf("control block: unsupported condition %T", cmd)
	}
}

func (r *Registry) convertBody(stmts []*syntax.Stmt) (string, error) {
	var lines []string
	for _, stmt := range stmts {
		line, err := r.convertControlStmt(stmt)
		if err != nil {
			return "", err
		}
		lines = append(lines, "  "+line)
	}
	return strings.Join(lines, "\n"), nil
}

// convertBodyCall translates one body command through the registry's
// emulators, so control blocks reuse the same single table as every other
// tier.
func (r *Registry) convertBodyCall(call *syntax.CallExpr) (string, error) {
	var fields []string
	for _, word := range call.Args {
		text, err := flattenControlWord(word)
		if err != nil {
			return "", err
		}
		fields = append(fields, text)
	}
	if len(fields) == 0 {
		return "", fmt.Errorf("control block: empty command")
	}

	rule, ok := r.Lookup(fields[0])
	if !ok || rule.Emulate == nil {
		return "", fmt.Errorf("control block: no emulation for %q", fields[0])
	}
	return rule.Emulate(fields[1:], StagePosition{})
}

func convertTestExpr(expr syntax.TestExpr) (string, error) {
	switch expr := expr.(type) {
	case *syntax.Word:
		text, err := flattenControlWord(expr)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("'%s' -ne ''", escapeSingle(text)), nil

	case *syntax.UnaryTest:
		operandWord, ok := expr.X.(*syntax.Word)
		if !ok {
			if expr.Op == syntax.TsNot {
				inner, err := convertTestExpr(expr.X)
				if err != nil {
					return "", err
				}
				return "-not (" + inner + ")", nil
			}
			return "", fmt.Errorf("control block: unsupported test operand")
		}
		operand, err := flattenControlWord(operandWord)
		if err != nil {
			return "", err
		}
		switch expr.Op {
		case syntax.TsExists:
			return testCondition([]string{"-e", operand})
		case syntax.TsRegFile:
			return testCondition([]string{"-f", operand})
		case syntax.TsDirect:
			return testCondition([]string{"-d", operand})
		case syntax.TsEmpStr:
			return testCondition([]string{"-z", operand})
		case syntax.TsNempStr:
			return testCondition([]string{"-n", operand})
		case syntax.TsNot:
			inner, err := convertTestExpr(expr.X)
			if err != nil {
				return "", err
			}
			return "-not (" + inner + ")", nil
		default:
			return "", fmt.Errorf("control block: unsupported test operator %s", expr.Op.String())
		}

	case *syntax.BinaryTest:
		left, right := wordOf(expr.X), wordOf(expr.Y)
		if left == nil || right == nil {
			return "", fmt.Errorf("control block: unsupported test operands")
		}
		lhs, err := flattenControlWord(left)
		if err != nil {
			return "", err
		}
		rhs, err := flattenControlWord(right)
		if err != nil {
			return "", err
		}
		switch expr.Op {
		case syntax.TsMatch, syntax.TsMatchShort:
			return testCondition([]string{lhs, "=", rhs})
		case syntax.TsNoMatch:
			return testCondition([]string{lhs, "!=", rhs})
		case syntax.TsEql:
			return testCondition([]string{lhs, "-eq", rhs})
		case syntax.TsNeq:
			return testCondition([]string{lhs, "-ne", rhs})
		case syntax.TsLss:
			return testCondition([]string{lhs, "-lt", rhs})
		case syntax.TsLeq:
			return testCondition([]string{lhs, "-le", rhs})
		case syntax.TsGtr:
			return testCondition([]string{lhs, "-gt", rhs})
		case syntax.TsGeq:
			return testCondition([]string{lhs, "-ge", rhs})
		default:
			return "", fmt.Errorf("control block: unsupported test operator %s", expr.Op.String())
		}

	case *syntax.ParenTest:
		inner, err := convertTestExpr(expr.X)
		if err != nil {
			return "", err
		}
		return "(" + inner + ")", nil

	default:
		return "", fmt.Errorf("control block: unsupported test expression %T", expr)
	}
}

func wordOf(expr syntax.TestExpr) *syntax.Word {
	w, _ := expr.(*syntax.Word)
	return w
}

// flattenControlWord resolves literals and quotes; parameter references keep
// their $name spelling, which the scripting shell shares.
func flattenControlWord(word *syntax.Word) (string, error) {
	var out strings.Builder
	for _, part := range word.Parts {
		switch part := part.(type) {
		case *syntax.Lit:
			out.WriteString(part.Value)
		case *syntax.SglQuoted:
			out.WriteString(part.Value)
		case *syntax.DblQuoted:
			inner, err := flattenControlWord(&syntax.Word{Parts: part.Parts})
			if err != nil {
				return "", err
			}
			out.WriteString(inner)
		case *syntax.ParamExp:
			if part.Param == nil {
				return "", fmt.Errorf("control block: malformed parameter")
			}
			out.WriteString("$" + part.Param.Value)
		default:
			return "", fmt.Errorf("control block: unsupported word part %T", part)
		}
	}
	return out.String(), nil
}
