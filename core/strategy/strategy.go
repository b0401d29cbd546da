// Package strategy decides how parsed command trees run: a pipeline-wide
// macro decision (passthrough, split, per-stage, unsupported) and a
// per-command micro decision over the four translation tiers. Decisions are
// pure functions of analysis plus capabilities, so identical inputs always
// select identical strategies.
package strategy

import (
	"errors"
	"fmt"

	"github.com/jpibz/wbash/core/pipeline"
)

// Kind is the whole-pipeline execution strategy.
type Kind int

const (
	// FullPassthrough hands the entire text to the POSIX shell.
	FullPassthrough Kind = iota
	// Split divides the pipeline at a pipe boundary and runs the halves on
	// different backends connected by an OS pipe.
	Split
	// PerStage resolves every stage through the micro engine.
	PerStage
	// Unsupported means no backend can honor the pipeline's semantics.
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case FullPassthrough:
		return "full-passthrough"
	case Split:
		return "split"
	case PerStage:
		return "per-stage"
	default:
		return "unsupported"
	}
}

// Strategy is the macro decision: what to do, where to split, why, and what
// to try next if the chosen backend turns out to be missing. The fallback
// chain is finite and acyclic; it is consulted only when a backend is
// unavailable, never when a command merely exits non-zero.
type Strategy struct {
	Kind        Kind
	SplitPoints []int
	Reason      string
	Fallback    *Strategy
}

// ErrUnsupportedConstruct reports that no tier or strategy applies.
var ErrUnsupportedConstruct = errors.New("unsupported construct")

// CanSplit returns the legal split boundaries of the tree: indices between
// pipe stages of the top-level pipeline. A boundary never falls inside a
// Subshell or Group, and never after a stage that establishes shell state
// (an assignment or export) the right-hand side would depend on.
func CanSplit(root pipeline.Node) []int {
	stages := pipeline.Stages(root)
	if len(stages) < 2 {
		return nil
	}

	var points []int
	for i := 0; i < len(stages)-1; i++ {
		if compound(stages[i]) || compound(stages[i+1]) {
			continue
		}
		if establishesState(stages[i]) {
			continue
		}
		points = append(points, i+1)
	}
	return points
}

func compound(n pipeline.Node) bool {
	switch n.(type) {
	case *pipeline.Subshell, *pipeline.Group, *pipeline.Chain, *pipeline.ControlBlock:
		return true
	case *pipeline.Redirect:
		return compound(n.(*pipeline.Redirect).Node)
	}
	return false
}

func establishesState(n pipeline.Node) bool {
	name := pipeline.StageName(n)
	return name == "" || name == "export" || name == "set" || name == "read"
}

func unsupported(reason string) Strategy {
	return Strategy{Kind: Unsupported, Reason: reason}
}

func withFallback(s Strategy, next Strategy) Strategy {
	// Guard against self-reference: a strategy never falls back to its own
	// kind.
	if next.Kind == s.Kind {
		return s
	}
	s.Fallback = &next
	return s
}

func reasonf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
