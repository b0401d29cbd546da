package pipeline

import (
	"bytes"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ParseError reports malformed command text.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// Parse builds the command tree for fully expanded text.
func Parse(text string) (Node, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(text), "")
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if len(file.Stmts) == 0 {
		return nil, &ParseError{Err: fmt.Errorf("empty command")}
	}

	node, err := convertStmt(file.Stmts[0])
	if err != nil {
		return nil, err
	}
	// Top-level statements separated by ; or newline fold into a SEQ chain.
	for _, stmt := range file.Stmts[1:] {
		right, err := convertStmt(stmt)
		if err != nil {
			return nil, err
		}
		node = &Chain{Left: node, Op: SeqOp, Right: right}
	}
	return node, nil
}

func convertStmt(stmt *syntax.Stmt) (Node, error) {
	node, err := convertCmd(stmt.Cmd)
	if err != nil {
		return nil, err
	}
	for _, redir := range stmt.Redirs {
		wrapped, err := wrapRedirect(node, redir)
		if err != nil {
			return nil, err
		}
		node = wrapped
	}
	return node, nil
}

func convertCmd(cmd syntax.Command) (Node, error) {
	switch cmd := cmd.(type) {
	case *syntax.CallExpr:
		return convertCall(cmd)

	case *syntax.BinaryCmd:
		left, err := convertStmt(cmd.X)
		if err != nil {
			return nil, err
		}
		right, err := convertStmt(cmd.Y)
		if err != nil {
			return nil, err
		}
		switch cmd.Op {
		case syntax.AndStmt:
			return &Chain{Left: left, Op: AndOp, Right: right}, nil
		case syntax.OrStmt:
			return &Chain{Left: left, Op: OrOp, Right: right}, nil
		case syntax.Pipe:
			return &Pipe{Left: left, Right: right}, nil
		case syntax.PipeAll:
			// |& pipes stderr along with stdout.
			return &Pipe{Left: &Redirect{Node: left, Mode: RedirErrToOut}, Right: right}, nil
		default:
			return nil, &ParseError{Err: fmt.Errorf("unsupported operator %s", cmd.Op.String())}
		}

	case *syntax.Subshell:
		inner, err := convertStmts(cmd.Stmts)
		if err != nil {
			return nil, err
		}
		return &Subshell{Node: inner}, nil

	case *syntax.Block:
		inner, err := convertStmts(cmd.Stmts)
		if err != nil {
			return nil, err
		}
		return &Group{Node: inner}, nil

	case *syntax.IfClause:
		return &ControlBlock{Kind: ControlIf, Raw: printNode(cmd)}, nil
	case *syntax.ForClause:
		return &ControlBlock{Kind: ControlFor, Raw: printNode(cmd)}, nil
	case *syntax.WhileClause:
		return &ControlBlock{Kind: ControlWhile, Raw: printNode(cmd)}, nil
	case *syntax.TestClause:
		return &ControlBlock{Kind: ControlTest, Raw: printNode(cmd)}, nil

	default:
		return nil, &ParseError{Err: fmt.Errorf("unsupported construct %T", cmd)}
	}
}

func convertStmts(stmts []*syntax.Stmt) (Node, error) {
	if len(stmts) == 0 {
		return nil, &ParseError{Err: fmt.Errorf("empty group")}
	}
	node, err := convertStmt(stmts[0])
	if err != nil {
		return nil, err
	}
	for _, stmt := range stmts[1:] {
		right, err := convertStmt(stmt)
		if err != nil {
			return nil, err
		}
		node = &Chain{Left: node, Op: SeqOp, Right: right}
	}
	return node, nil
}

func convertCall(call *syntax.CallExpr) (Node, error) {
	var fields []string
	for _, word := range call.Args {
		text, err := flattenWord(word)
		if err != nil {
			return nil, err
		}
		fields = append(fields, text)
	}
	// A bare assignment has no argument words; keep its source form so the
	// executor can apply it to the variable context.
	if len(fields) == 0 {
		if len(call.Assigns) == 0 {
			return nil, &ParseError{Err: fmt.Errorf("empty call")}
		}
		return &SimpleCommand{Name: "", Text: printNode(call)}, nil
	}
	return &SimpleCommand{
		Name: fields[0],
		Args: fields[1:],
		Text: printNode(call),
	}, nil
}

// flattenWord resolves a parsed word to its literal text. By the time the
// structural parser runs, expansion has already replaced substitutions, so
// anything beyond plain literals and quotes is preserved verbatim for the
// passthrough path.
func flattenWord(word *syntax.Word) (string, error) {
	var out strings.Builder
	for _, part := range word.Parts {
		text, err := flattenWordPart(part)
		if err != nil {
			return "", err
		}
		out.WriteString(text)
	}
	return out.String(), nil
}

func flattenWordPart(part syntax.WordPart) (string, error) {
	switch part := part.(type) {
	case *syntax.Lit:
		return unescapeLit(part.Value), nil
	case *syntax.SglQuoted:
		return part.Value, nil
	case *syntax.DblQuoted:
		var out strings.Builder
		for _, sub := range part.Parts {
			text, err := flattenWordPart(sub)
			if err != nil {
				return "", err
			}
			out.WriteString(text)
		}
		return out.String(), nil
	default:
		// Unresolved markers (leftover $VAR, <(...)) keep their source form.
		return printNode(part), nil
	}
}

func unescapeLit(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			out.WriteByte(s[i])
			continue
		}
		out.WriteByte(s[i])
	}
	return out.String()
}

func wrapRedirect(node Node, redir *syntax.Redirect) (Node, error) {
	fd := ""
	if redir.N != nil {
		fd = redir.N.Value
	}

	target := ""
	if redir.Word != nil {
		text, err := flattenWord(redir.Word)
		if err != nil {
			return nil, err
		}
		target = text
	}

	switch redir.Op {
	case syntax.RdrIn:
		return &Redirect{Node: node, Target: target, Mode: RedirIn}, nil
	case syntax.RdrOut, syntax.ClbOut:
		if fd == "2" {
			return &Redirect{Node: node, Target: target, Mode: RedirErr}, nil
		}
		return &Redirect{Node: node, Target: target, Mode: RedirOut}, nil
	case syntax.AppOut:
		if fd == "2" {
			return &Redirect{Node: node, Target: target, Mode: RedirErr}, nil
		}
		return &Redirect{Node: node, Target: target, Mode: RedirAppend}, nil
	case syntax.DplOut:
		// 2>&1 and 1>&2 both collapse the streams.
		return &Redirect{Node: node, Target: target, Mode: RedirErrToOut}, nil
	case syntax.RdrAll, syntax.AppAll:
		return &Redirect{Node: &Redirect{Node: node, Mode: RedirErrToOut}, Target: target, Mode: RedirOut}, nil
	default:
		return nil, &ParseError{Err: fmt.Errorf("unsupported redirection %s", redir.Op.String())}
	}
}

func printNode(node syntax.Node) string {
	var buf bytes.Buffer
	if err := syntax.NewPrinter().Print(&buf, node); err != nil {
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}
