// Package translate holds the single Translation Registry: the lookup from
// a command name to its tier-specific translation rules. Every tier and
// every engine layer consults this table; nothing else in the repo carries
// its own command knowledge.
package translate

import (
	"fmt"
	"sort"

	"github.com/jpibz/wbash/core/backend"
	"github.com/jpibz/wbash/core/scratch"
)

// StagePosition locates a command inside its pipeline. Translators use it to
// decide between the file-argument and the pipe-reading form of a command; a
// stage that reads from a preceding pipe must never be translated as if it
// required a file argument.
type StagePosition struct {
	Index int // zero-based position in the pipeline
	Total int // total number of stages
}

// ReadsPipe reports whether the stage consumes the previous stage's output.
func (p StagePosition) ReadsPipe() bool { return p.Index > 0 }

// EmulatorFunc synthesizes a host scripting-shell equivalent for one
// command. It is a pure function of its inputs and performs no execution.
type EmulatorFunc func(args []string, pos StagePosition) (string, error)

// Rule is the per-command translation contract across the four tiers.
type Rule struct {
	// Direct marks a context-free single-primitive equivalent (tier 1).
	Direct bool
	// NativeAlias overrides the name probed for a compiled binary (tier 2),
	// e.g. python3 runs the host's python.
	NativeAlias string
	// PosixRequired puts the command in the curated "needs full shell
	// semantics" set: rich pattern languages, locale-sensitive behavior.
	PosixRequired bool
	// PosixUnsupported excludes the command from the minimal POSIX
	// environment (external tools the slim shell does not ship).
	PosixUnsupported bool
	// ReadsStdin marks commands that consume the pipe when mid-pipeline.
	ReadsStdin bool
	// Emulate synthesizes the tier-4 script. Nil means the command has no
	// emulation and the tier is skipped.
	Emulate EmulatorFunc
}

// Translation is the outcome of selecting a tier for one simple command.
type Translation struct {
	Backend   backend.Backend
	Argv      []string
	Text      string
	Resources []scratch.Resource
}

// Registry maps command names to rules.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry builds the registry with its default entries.
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[string]Rule)}
	r.registerDefaults()
	return r
}

// Register adds or replaces a rule.
func (r *Registry) Register(name string, rule Rule) {
	r.rules[name] = rule
}

// Lookup returns the rule for a command name.
func (r *Registry) Lookup(name string) (Rule, bool) {
	rule, ok := r.rules[name]
	return rule, ok
}

// NativeName returns the name to probe for a compiled equivalent.
func (r *Registry) NativeName(name string) string {
	if rule, ok := r.rules[name]; ok && rule.NativeAlias != "" {
		return rule.NativeAlias
	}
	return name
}

// PosixRequired reports whether the command belongs to the curated
// full-shell-semantics set.
func (r *Registry) PosixRequired(name string) bool {
	rule, ok := r.rules[name]
	return ok && rule.PosixRequired
}

// Names returns every registered command name, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.rules))
	for name := range r.rules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Tiers describes which backends a rule can reach, in selection order.
func (rule Rule) Tiers() []string {
	var tiers []string
	if rule.Direct {
		tiers = append(tiers, "direct")
	}
	tiers = append(tiers, "native")
	if !rule.PosixUnsupported {
		tiers = append(tiers, "posix")
	}
	if rule.Emulate != nil {
		tiers = append(tiers, "emulated")
	}
	return tiers
}

func (r *Registry) registerDefaults() {
	// Tier-1 primitives, mirrored by the execution service's builtin table.
	for _, name := range []string{
		"pwd", "echo", "true", "false", "basename", "dirname",
		"seq", "env", "printenv", "sleep", "yes",
	} {
		r.Register(name, Rule{Direct: true, Emulate: genericEmulator(name)})
	}
	r.Register("wc", Rule{Direct: true, ReadsStdin: true, Emulate: emulateWc})

	// Commands whose exact behavior needs a real POSIX shell: rich pattern
	// languages, field selection edge cases, locale-sensitive collation.
	for _, name := range []string{
		"find", "awk", "sed", "grep", "diff", "tar",
		"sort", "uniq", "split", "join", "comm", "paste",
		"xargs", "cut", "tr", "tee",
	} {
		rule := Rule{PosixRequired: true, ReadsStdin: readsStdin(name)}
		switch name {
		case "grep":
			rule.Emulate = emulateGrep
		case "sort":
			rule.Emulate = emulateSort
		case "uniq":
			rule.Emulate = emulateUniq
		case "find":
			rule.Emulate = emulateFind
		}
		r.Register(name, rule)
	}

	// External tools absent from the minimal POSIX environment.
	for _, name := range []string{
		"jq", "wget", "curl", "timeout", "zip", "unzip", "watch",
		"sha256sum", "sha1sum", "md5sum",
	} {
		r.Register(name, Rule{PosixUnsupported: true})
	}

	// Filesystem verbs with clean scripting-shell equivalents.
	r.Register("ls", Rule{Emulate: emulateLs})
	r.Register("cat", Rule{ReadsStdin: true, Emulate: emulateCat})
	r.Register("mkdir", Rule{Emulate: emulateMkdir})
	r.Register("rm", Rule{Emulate: emulateRm})
	r.Register("cp", Rule{Emulate: emulateCp})
	r.Register("mv", Rule{Emulate: emulateMv})
	r.Register("touch", Rule{Emulate: emulateTouch})
	r.Register("head", Rule{ReadsStdin: true, Emulate: emulateHead})
	r.Register("tail", Rule{ReadsStdin: true, Emulate: emulateTail})
	r.Register("which", Rule{Emulate: emulateWhich})
	r.Register("date", Rule{Emulate: emulateDate})
	r.Register("test", Rule{Emulate: emulateTest})
	r.Register("[", Rule{Emulate: emulateTest})

	// The host interpreter drops the version suffix.
	r.Register("python3", Rule{NativeAlias: "python"})
	r.Register("python", Rule{NativeAlias: "python"})
}

// readsStdin covers the curated POSIX set's filters.
func readsStdin(name string) bool {
	switch name {
	case "awk", "sed", "grep", "sort", "uniq", "cut", "tr", "tee", "xargs", "join", "paste":
		return true
	}
	return false
}

// genericEmulator quotes the argv back as-is for commands whose scripting
// shell accepts the same spelling.
func genericEmulator(name string) EmulatorFunc {
	return func(args []string, _ StagePosition) (string, error) {
		out := name
		for _, a := range args {
			out += " " + quoteArg(a)
		}
		return out, nil
	}
}

func quoteArg(a string) string {
	if a == "" {
		return `""`
	}
	for _, r := range a {
		switch {
		case r == ' ' || r == '"' || r == '\'' || r == '$' || r == '`' || r == '|' ||
			r == '<' || r == '>' || r == '&' || r == ';' || r == '(' || r == ')':
			return fmt.Sprintf("%q", a)
		}
	}
	return a
}
