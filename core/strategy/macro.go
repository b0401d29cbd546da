package strategy

import (
	"strings"

	"github.com/jpibz/wbash/core/backend"
	"github.com/jpibz/wbash/core/pipeline"
	"github.com/jpibz/wbash/core/translate"
)

// catalogEntry pins a known pipeline shape to a strategy. The signature is
// the sequence of stage names joined by "|"; shapes in this table have been
// observed to break under naive stage-by-stage emulation, usually because a
// downstream stage depends on exact upstream formatting.
type catalogEntry struct {
	signature  string
	needsPosix bool
	reason     string
}

var catalog = []catalogEntry{
	{"find|xargs", true, "xargs argument framing depends on find's exact output"},
	{"find|grep", true, "path separators in find output differ outside the posix shell"},
	{"grep|awk", true, "awk field splitting is sensitive to grep's line endings"},
	{"sort|uniq", true, "uniq adjacency depends on sort's collation order"},
	{"du|sort", true, "du units and tab framing feed sort -n"},
	{"ps|grep", true, "ps column layout has no faithful emulation"},
	{"sed|sed", true, "chained sed programs share hold-space conventions"},
}

func matchCatalog(signature string) *catalogEntry {
	for i := range catalog {
		if catalog[i].signature == signature {
			return &catalog[i]
		}
	}
	return nil
}

// Decide picks the pipeline-wide strategy from the analysis and the host's
// capabilities. The result carries a human-readable reason and, where a
// weaker strategy could still make progress, a fallback for the executor to
// use when the chosen backend proves unavailable at launch time.
func Decide(a pipeline.Analysis, caps backend.CapabilitySet, reg *translate.Registry, root pipeline.Node) Strategy {
	posix := caps.PosixAvailable()

	// Process substitution survives expansion only when the expansion layer
	// could not rewrite it to a scratch file, which means the text must run
	// under a real shell or not at all.
	if a.HasProcessSubst {
		if posix {
			return Strategy{Kind: FullPassthrough, Reason: "process substitution requires a posix shell"}
		}
		return unsupported("process substitution requires a posix shell and none is available")
	}

	if entry := matchCatalog(a.Signature); entry != nil {
		if entry.needsPosix {
			if posix {
				return Strategy{Kind: FullPassthrough, Reason: entry.reason}
			}
			return decideDegraded(a, caps, reg, entry.reason)
		}
	}

	// Control blocks run as one unit: the micro engine converts the whole
	// block to a script for whichever shell is present.
	if a.HasControlBlock {
		if posix {
			return withFallback(
				Strategy{Kind: FullPassthrough, Reason: "control structure runs as a single shell unit"},
				Strategy{Kind: PerStage, Reason: "control structure converted to a host script"})
		}
		return Strategy{Kind: PerStage, Reason: "control structure converted to a host script"}
	}

	// Stderr redirection has no faithful per-stage emulation; the host
	// shell's stream model differs enough that 2> and 2>&1 only behave
	// correctly under a posix shell.
	if a.HasStderrRedir {
		if posix {
			return Strategy{Kind: FullPassthrough, Reason: "stderr redirection requires posix stream semantics"}
		}
		return unsupported("stderr redirection requires a posix shell and none is available")
	}

	required := posixRequiredStages(a.StageNames, reg)
	if len(required) > 0 {
		if !posix {
			return decideDegraded(a, caps, reg, reasonf("%s requires the posix shell", strings.Join(required, ", ")))
		}
		// If only part of the pipeline needs the shell, splitting lets the
		// remainder run on cheaper tiers while keeping the shell-bound
		// stages together.
		if a.HasPipeline && len(required) < a.StageCount {
			if points := splitIsolating(root, required, reg); len(points) > 0 {
				return withFallback(
					Strategy{
						Kind:        Split,
						SplitPoints: points,
						Reason:      reasonf("isolating %s on the posix shell", strings.Join(required, ", ")),
					},
					Strategy{Kind: FullPassthrough, Reason: "split boundary backend unavailable"})
			}
		}
		return Strategy{Kind: FullPassthrough, Reason: reasonf("%s requires the posix shell", strings.Join(required, ", "))}
	}

	if posix && (a.HasPipeline || a.HasChain || a.HasSubshell) {
		// Per-stage remains the primary choice so cheap tiers get used, but
		// the shell is a complete fallback if any stage's backend is gone.
		return withFallback(
			Strategy{Kind: PerStage, Reason: "every stage resolves through the per-command tiers"},
			Strategy{Kind: FullPassthrough, Reason: "stage backend unavailable"})
	}

	return Strategy{Kind: PerStage, Reason: "every stage resolves through the per-command tiers"}
}

// decideDegraded is the no-posix path for shell-preferring pipelines: run
// per-stage if every shell-bound stage at least has an emulation, otherwise
// give up with the original reason.
func decideDegraded(a pipeline.Analysis, caps backend.CapabilitySet, reg *translate.Registry, reason string) Strategy {
	for _, name := range a.StageNames {
		rule, ok := reg.Lookup(name)
		if !ok {
			return unsupported(reasonf("%s; %q has no emulation", reason, name))
		}
		if rule.PosixRequired && rule.Emulate == nil {
			return unsupported(reasonf("%s; %q has no emulation", reason, name))
		}
	}
	return Strategy{Kind: PerStage, Reason: reasonf("%s; approximating with emulations", reason)}
}

func posixRequiredStages(names []string, reg *translate.Registry) []string {
	var required []string
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			continue
		}
		if reg.PosixRequired(name) {
			required = append(required, name)
			seen[name] = true
		}
	}
	return required
}

// splitIsolating returns split points that separate shell-bound stages from
// the rest, or nil when the legal boundaries cannot isolate them. Only a
// single contiguous run of shell-bound stages is splittable; interleaved
// shapes fall back to full passthrough.
func splitIsolating(root pipeline.Node, required []string, reg *translate.Registry) []int {
	legal := CanSplit(root)
	if len(legal) == 0 {
		return nil
	}
	legalSet := map[int]bool{}
	for _, p := range legal {
		legalSet[p] = true
	}

	stages := pipeline.Stages(root)
	first, last := -1, -1
	for i, st := range stages {
		if reg.PosixRequired(pipeline.StageName(st)) {
			if first == -1 {
				first = i
			}
			last = i
		}
	}
	if first == -1 {
		return nil
	}
	// Interleaved shell-bound stages cannot be isolated by cutting.
	for i := first; i <= last; i++ {
		if !reg.PosixRequired(pipeline.StageName(stages[i])) {
			return nil
		}
	}

	var points []int
	if first > 0 {
		if !legalSet[first] {
			return nil
		}
		points = append(points, first)
	}
	if last < len(stages)-1 {
		if !legalSet[last+1] {
			return nil
		}
		points = append(points, last+1)
	}
	return points
}
