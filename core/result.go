package core

import (
	"fmt"
	"os"
	"strings"
)

const appendFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY

// Result is the outcome of one invocation. Field layout matches the backend
// result so the two convert directly.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Render formats the result the way callers consume it: the exit code
// first, then stdout, then a marked stderr section when there is any.
func (r Result) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Exit code: %d\n", r.ExitCode)
	if r.Stdout != "" {
		b.WriteString(r.Stdout)
		if !strings.HasSuffix(r.Stdout, "\n") {
			b.WriteByte('\n')
		}
	}
	if r.Stderr != "" {
		b.WriteString("--- stderr ---\n")
		b.WriteString(r.Stderr)
		if !strings.HasSuffix(r.Stderr, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
