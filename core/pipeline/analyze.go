package pipeline

import "strings"

// Complexity buckets a tree for strategy decisions.
type Complexity int

const (
	ComplexityLow Complexity = iota
	ComplexityMedium
	ComplexityHigh
)

func (c Complexity) String() string {
	switch c {
	case ComplexityHigh:
		return "HIGH"
	case ComplexityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Analysis is the structural summary of one tree. It is a pure function of
// the tree and is never mutated after construction.
type Analysis struct {
	HasPipeline     bool
	HasChain        bool
	HasRedirection  bool
	HasStderrRedir  bool
	HasProcessSubst bool
	HasControlBlock bool
	HasSubshell     bool

	StageCount int
	StageNames []string

	// Signature is the pipe-stage names joined with "|", the key the
	// strategy catalog matches against.
	Signature string

	Complexity Complexity
}

// Analyze derives the structural summary of a tree.
func Analyze(root Node) Analysis {
	a := Analysis{StageCount: 1}

	Walk(root, func(n Node) bool {
		switch n := n.(type) {
		case *Pipe:
			a.HasPipeline = true
		case *Chain:
			a.HasChain = true
		case *Redirect:
			a.HasRedirection = true
			if n.Mode == RedirErr || n.Mode == RedirErrToOut {
				a.HasStderrRedir = true
			}
		case *Subshell:
			a.HasSubshell = true
		case *ControlBlock:
			a.HasControlBlock = true
		case *SimpleCommand:
			if strings.Contains(n.Text, "<(") || strings.Contains(n.Text, ">(") {
				a.HasProcessSubst = true
			}
		}
		return true
	})

	stages := Stages(chainHead(root))
	a.StageCount = len(stages)
	for _, stage := range stages {
		if name := StageName(stage); name != "" {
			a.StageNames = append(a.StageNames, name)
		}
	}
	a.Signature = strings.Join(a.StageNames, "|")

	switch {
	case a.HasProcessSubst || a.HasControlBlock || a.StageCount > 2:
		a.Complexity = ComplexityHigh
	case a.HasPipeline || a.HasChain:
		a.Complexity = ComplexityMedium
	default:
		a.Complexity = ComplexityLow
	}

	return a
}

// chainHead returns the first pipeline of a chained command; the signature
// is derived from it so "a | b && c" keys on "a|b".
func chainHead(n Node) Node {
	if c, ok := unwrap(n).(*Chain); ok {
		return chainHead(c.Left)
	}
	return n
}
