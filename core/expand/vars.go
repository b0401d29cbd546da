package expand

import (
	"sort"
	"strings"
)

// VarContext holds the variables visible to one invocation. Lookups fall
// through to a fixed environment snapshot taken at construction; writes land
// in a call-local layer so invocations never leak state into each other.
type VarContext struct {
	env   map[string]string
	local map[string]string
}

// NewVarContext builds a context over an environment given as KEY=VALUE
// pairs, the shape returned by os.Environ.
func NewVarContext(environ []string) *VarContext {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return &VarContext{env: env, local: map[string]string{}}
}

// Get returns the variable's value and whether it is set at all. The local
// layer shadows the environment, including local empty strings.
func (c *VarContext) Get(name string) (string, bool) {
	if v, ok := c.local[name]; ok {
		return v, true
	}
	v, ok := c.env[name]
	return v, ok
}

// Set writes into the call-local layer.
func (c *VarContext) Set(name, value string) {
	c.local[name] = value
}

// Snapshot returns an independent copy, used when a subshell must see the
// current state without its own writes becoming visible to the parent.
func (c *VarContext) Snapshot() *VarContext {
	env := make(map[string]string, len(c.env))
	for k, v := range c.env {
		env[k] = v
	}
	local := make(map[string]string, len(c.local))
	for k, v := range c.local {
		local[k] = v
	}
	return &VarContext{env: env, local: local}
}

// Environ flattens the merged view back to KEY=VALUE pairs, sorted for
// stable output. Used when spawning backend processes.
func (c *VarContext) Environ() []string {
	merged := make(map[string]string, len(c.env)+len(c.local))
	for k, v := range c.env {
		merged[k] = v
	}
	for k, v := range c.local {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// ParseAssignment recognizes a bare NAME=value statement and returns its
// parts. Only a leading well-formed name qualifies, and the value must be
// a single statement: an unquoted separator or pipe after the = means the
// text is a chain, not an assignment.
func ParseAssignment(text string) (name, value string, ok bool) {
	text = strings.TrimSpace(text)
	i := strings.IndexByte(text, '=')
	if i <= 0 {
		return "", "", false
	}
	name = text[:i]
	if !validName(name) {
		return "", "", false
	}
	value = strings.TrimSpace(text[i+1:])
	if containsUnquotedBreak(value) {
		return "", "", false
	}
	value = trimMatchedQuotes(value)
	return name, value, true
}

// containsUnquotedBreak reports a statement separator outside quotes.
func containsUnquotedBreak(s string) bool {
	inSingle, inDouble := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && !inSingle && i+1 < len(s):
			i++
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case (c == ';' || c == '|' || c == '&' || c == '\n') && !inSingle && !inDouble:
			return true
		}
	}
	return false
}

func validName(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return len(s) > 0
}

func trimMatchedQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
