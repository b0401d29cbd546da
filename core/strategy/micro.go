package strategy

import (
	"fmt"
	"strings"

	"github.com/jpibz/wbash/core/backend"
	"github.com/jpibz/wbash/core/pipeline"
	"github.com/jpibz/wbash/core/scratch"
	"github.com/jpibz/wbash/core/translate"
)

// Select resolves one simple command to a concrete translation by walking
// the tiers in fixed order: direct mapping, native binary, posix
// passthrough, emulated script. The first tier whose preconditions hold
// wins; runtime unavailability of the chosen backend is the executor's
// problem and is handled through the strategy fallback chain, not here.
func Select(cmd *pipeline.SimpleCommand, pos translate.StagePosition, caps backend.CapabilitySet, reg *translate.Registry) (translate.Translation, error) {
	if cmd.Name == "" {
		return translate.Translation{}, fmt.Errorf("%w: empty command", ErrUnsupportedConstruct)
	}

	rule, known := reg.Lookup(cmd.Name)

	if known && rule.Direct {
		return translate.Translation{
			Backend: backend.DirectMapping,
			Argv:    append([]string{cmd.Name}, cmd.Args...),
		}, nil
	}

	if native := reg.NativeName(cmd.Name); caps.HasNative(native) {
		return translate.Translation{
			Backend: backend.NativeBinary,
			Argv:    append([]string{native}, cmd.Args...),
		}, nil
	}

	if caps.PosixAvailable() && posixEligible(rule, known) {
		return translate.Translation{
			Backend: backend.PosixPassthrough,
			Text:    posixText(cmd),
		}, nil
	}

	if known && rule.Emulate != nil {
		text, err := rule.Emulate(cmd.Args, pos)
		if err != nil {
			return translate.Translation{}, fmt.Errorf("%w: %v", ErrUnsupportedConstruct, err)
		}
		return translate.Translation{
			Backend: backend.EmulatedScript,
			Text:    text,
		}, nil
	}

	return translate.Translation{}, fmt.Errorf("%w: no backend for %q", ErrUnsupportedConstruct, cmd.Name)
}

// posixEligible reports whether passthrough applies: shell-bound commands
// always, unknown commands as a best effort, and known commands whose rule
// does not blacklist the shell and has no emulation of its own.
func posixEligible(rule translate.Rule, known bool) bool {
	if !known {
		return true
	}
	if rule.PosixUnsupported {
		return false
	}
	return rule.PosixRequired || rule.Emulate == nil
}

func posixText(cmd *pipeline.SimpleCommand) string {
	if cmd.Text != "" {
		return cmd.Text
	}
	parts := make([]string, 0, len(cmd.Args)+1)
	parts = append(parts, cmd.Name)
	for _, a := range cmd.Args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`&|;<>(){}*?[]~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// SelectControl resolves a whole control structure. The block is never
// decomposed; it becomes a scratch script for the posix shell when one is
// present, otherwise a host-shell script built from the converted grammar.
func SelectControl(block *pipeline.ControlBlock, dir *scratch.Dir, caps backend.CapabilitySet, reg *translate.Registry) (translate.Translation, error) {
	tr, err := reg.ConvertControl(block.Raw, dir, caps.PosixAvailable())
	if err != nil {
		return translate.Translation{}, fmt.Errorf("%w: %v", ErrUnsupportedConstruct, err)
	}
	return tr, nil
}
