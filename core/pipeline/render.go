package pipeline

import "strings"

// Render reconstructs shell text for a subtree. Passthrough backends and
// diagnostics use this; it round-trips meaning, not byte-exact source.
func Render(n Node) string {
	switch n := n.(type) {
	case *SimpleCommand:
		if n.Text != "" {
			return n.Text
		}
		return strings.Join(append([]string{n.Name}, n.Args...), " ")
	case *Pipe:
		return Render(n.Left) + " | " + Render(n.Right)
	case *Chain:
		return Render(n.Left) + " " + n.Op.String() + " " + Render(n.Right)
	case *Redirect:
		return Render(n.Node) + " " + redirText(n)
	case *Subshell:
		return "(" + Render(n.Node) + ")"
	case *Group:
		return "{ " + Render(n.Node) + "; }"
	case *ControlBlock:
		return n.Raw
	}
	return ""
}

func redirText(r *Redirect) string {
	switch r.Mode {
	case RedirIn:
		return "< " + r.Target
	case RedirOut:
		return "> " + r.Target
	case RedirAppend:
		return ">> " + r.Target
	case RedirErr:
		return "2> " + r.Target
	default:
		return "2>&1"
	}
}
