// Package pipeline turns fully expanded command text into a structural tree
// and derives a pure analysis of its shape. It deliberately knows nothing
// about execution: the strategy layer consumes its output.
package pipeline

// Node is one tagged variant of the command tree. Trees are built once per
// expanded text and never mutated afterwards.
type Node interface {
	node()
}

// SimpleCommand is a single stage: a command name and its arguments.
type SimpleCommand struct {
	Name string
	Args []string
	// Text is the printed source of this stage, used for passthrough
	// backends and unresolved-marker detection.
	Text string
}

// Pipe connects the stdout of Left to the stdin of Right.
type Pipe struct {
	Left, Right Node
}

// ChainOp is the operator joining two chained commands.
type ChainOp int

const (
	AndOp ChainOp = iota // &&
	OrOp                 // ||
	SeqOp                // ;
)

func (op ChainOp) String() string {
	switch op {
	case AndOp:
		return "&&"
	case OrOp:
		return "||"
	default:
		return ";"
	}
}

// Chain joins two commands with &&, || or ;.
type Chain struct {
	Left  Node
	Op    ChainOp
	Right Node
}

// RedirMode describes a redirection operator.
type RedirMode int

const (
	RedirIn     RedirMode = iota // < target
	RedirOut                     // > target
	RedirAppend                  // >> target
	RedirErr                     // 2> target
	RedirErrToOut                // 2>&1, &>, |& forms
)

// Redirect attaches a redirection to a command.
type Redirect struct {
	Node   Node
	Target string
	Mode   RedirMode
}

// Subshell is (command), an isolated environment.
type Subshell struct {
	Node Node
}

// Group is {command;}, the current environment.
type Group struct {
	Node Node
}

// ControlKind tags a shell control construct.
type ControlKind int

const (
	ControlIf ControlKind = iota
	ControlFor
	ControlWhile
	ControlTest
)

func (k ControlKind) String() string {
	switch k {
	case ControlIf:
		return "if"
	case ControlFor:
		return "for"
	case ControlWhile:
		return "while"
	default:
		return "test"
	}
}

// ControlBlock is an entire conditional, loop, or test construct. It is kept
// whole and handed to the script-conversion path, never treated as a list of
// simple commands.
type ControlBlock struct {
	Kind ControlKind
	Raw  string
}

func (*SimpleCommand) node() {}
func (*Pipe) node()          {}
func (*Chain) node()         {}
func (*Redirect) node()      {}
func (*Subshell) node()      {}
func (*Group) node()         {}
func (*ControlBlock) node()  {}

// Walk visits every node in depth-first order. The visitor returns false to
// stop descending into a subtree.
func Walk(n Node, visit func(Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	switch n := n.(type) {
	case *Pipe:
		Walk(n.Left, visit)
		Walk(n.Right, visit)
	case *Chain:
		Walk(n.Left, visit)
		Walk(n.Right, visit)
	case *Redirect:
		Walk(n.Node, visit)
	case *Subshell:
		Walk(n.Node, visit)
	case *Group:
		Walk(n.Node, visit)
	}
}

// Stages returns the pipe-connected stages of n in execution order. A node
// with no pipes is a single stage.
func Stages(n Node) []Node {
	if p, ok := unwrap(n).(*Pipe); ok {
		return append(Stages(p.Left), Stages(p.Right)...)
	}
	return []Node{n}
}

// unwrap peels redirections off a node; the redirection does not change the
// node's structural role.
func unwrap(n Node) Node {
	for {
		r, ok := n.(*Redirect)
		if !ok {
			return n
		}
		n = r.Node
	}
}

// StageName returns the command name of a stage, or "" for compound stages.
func StageName(n Node) string {
	if sc, ok := unwrap(n).(*SimpleCommand); ok {
		return sc.Name
	}
	return ""
}
