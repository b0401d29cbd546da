// Package sandbox screens command lines before anything executes. The
// validator is a pure policy check over tokens: it never touches the
// filesystem, so a rejected command has no side effects at all.
package sandbox

import (
	"fmt"
	"strings"

	shlex "github.com/anmitsu/go-shlex"
)

// PolicyError reports a rejected command with the rule that fired.
type PolicyError struct {
	Command string
	Rule    string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("command rejected by sandbox policy: %s (%s)", e.Rule, e.Command)
}

// Policy configures the validator.
type Policy struct {
	// AllowedRoots are the virtual roots commands may reference with
	// absolute paths. Empty means no containment check.
	AllowedRoots []string
	// ExtraBlocked adds command names to the built-in blocklist.
	ExtraBlocked []string
	// AllowNetwork permits the network client commands in the restricted
	// set.
	AllowNetwork bool
}

// blockedCommands never run regardless of arguments. These are commands
// that alter the host outside any workspace or subvert the process model.
var blockedCommands = map[string]string{
	"sudo":     "privilege escalation",
	"su":       "privilege escalation",
	"shutdown": "host power control",
	"reboot":   "host power control",
	"halt":     "host power control",
	"poweroff": "host power control",
	"mkfs":     "filesystem creation",
	"fdisk":    "partition manipulation",
	"mount":    "mount manipulation",
	"umount":   "mount manipulation",
	"kill":     "process control outside the sandbox",
	"killall":  "process control outside the sandbox",
	"pkill":    "process control outside the sandbox",
	"crontab":  "scheduled task manipulation",
	"at":       "scheduled task manipulation",
	"chroot":   "filesystem root manipulation",
	"insmod":   "kernel module manipulation",
	"rmmod":    "kernel module manipulation",
	"modprobe": "kernel module manipulation",
	"useradd":  "account manipulation",
	"userdel":  "account manipulation",
	"passwd":   "account manipulation",
}

// networkCommands are allowed only when the policy opts in.
var networkCommands = map[string]bool{
	"curl": true, "wget": true, "nc": true, "ncat": true,
	"ssh": true, "scp": true, "ftp": true, "telnet": true,
}

// Validator applies a Policy to command text.
type Validator struct {
	policy  Policy
	blocked map[string]string
}

// New builds a Validator from the policy.
func New(policy Policy) *Validator {
	blocked := make(map[string]string, len(blockedCommands)+len(policy.ExtraBlocked))
	for k, v := range blockedCommands {
		blocked[k] = v
	}
	for _, name := range policy.ExtraBlocked {
		blocked[name] = "blocked by configuration"
	}
	return &Validator{policy: policy, blocked: blocked}
}

// Check validates a full command line. Every statement in the line is
// screened, so a blocked command cannot hide behind && or a pipe.
func (v *Validator) Check(text string) error {
	tokens, err := shlex.Split(text, true)
	if err != nil {
		// Unbalanced quoting is the parser's problem, not a policy breach.
		tokens = strings.Fields(text)
	}

	commandPos := true
	for _, tok := range tokens {
		switch tok {
		case "|", "||", "&&", ";", "&":
			commandPos = true
			continue
		}
		if commandPos {
			if err := v.checkCommand(tok, text); err != nil {
				return err
			}
			commandPos = false
		}
		if err := v.checkToken(tok, text); err != nil {
			return err
		}
	}

	if err := v.checkDestructive(tokens, text); err != nil {
		return err
	}
	return nil
}

func (v *Validator) checkCommand(name, text string) error {
	base := name
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if rule, ok := v.blocked[base]; ok {
		return &PolicyError{Command: text, Rule: rule}
	}
	if !v.policy.AllowNetwork && networkCommands[base] {
		return &PolicyError{Command: text, Rule: "network access disabled"}
	}
	return nil
}

// checkToken enforces workspace containment on absolute path arguments.
func (v *Validator) checkToken(tok, text string) error {
	if len(v.policy.AllowedRoots) == 0 {
		return nil
	}
	if !strings.HasPrefix(tok, "/") || tok == "/" {
		if tok == "/" {
			return &PolicyError{Command: text, Rule: "path escapes the workspace: /"}
		}
		return nil
	}
	// Device and process pseudo-files are always fine to read.
	if tok == "/dev/null" || strings.HasPrefix(tok, "/dev/fd") {
		return nil
	}
	for _, root := range v.policy.AllowedRoots {
		root = strings.TrimRight(root, "/")
		if tok == root || strings.HasPrefix(tok, root+"/") {
			return nil
		}
	}
	return &PolicyError{Command: text, Rule: "path escapes the workspace: " + tok}
}

// checkDestructive rejects the classic footguns: recursive deletion of a
// root or of everything under one, and raw writes to devices.
func (v *Validator) checkDestructive(tokens []string, text string) error {
	for i, tok := range tokens {
		if tok != "rm" {
			if strings.HasPrefix(tok, "/dev/sd") || strings.HasPrefix(tok, "/dev/nvme") {
				return &PolicyError{Command: text, Rule: "raw device access: " + tok}
			}
			continue
		}
		recursive := false
	args:
		for _, arg := range tokens[i+1:] {
			switch arg {
			case "|", "||", "&&", ";", "&":
				break args
			}
			if strings.HasPrefix(arg, "-") && strings.ContainsAny(arg, "rR") {
				recursive = true
				continue
			}
			if recursive && dangerousTarget(arg) {
				return &PolicyError{Command: text, Rule: "recursive deletion of " + arg}
			}
		}
	}
	return nil
}

func dangerousTarget(arg string) bool {
	switch arg {
	case "/", "/*", "~", "~/", ".", "./", "..", "../", "*":
		return true
	}
	// A bare root with a glob, like /workspace/*.
	return strings.HasPrefix(arg, "/") && strings.Count(arg, "/") == 1 && strings.HasSuffix(arg, "*")
}
