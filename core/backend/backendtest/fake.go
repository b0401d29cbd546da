// Package backendtest provides a deterministic Service for tests.
package backendtest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jpibz/wbash/core/backend"
)

// Call records one Execute invocation for assertions.
type Call struct {
	Backend backend.Backend
	Text    string
	Argv    []string
	Stdin   string
}

// Fake is a scripted execution service. Outputs are keyed on the joined
// command text so tests stay order-independent; unmatched requests fall back
// to the direct-mapping builtins so simple commands behave realistically.
type Fake struct {
	Caps backend.CapabilitySet
	// Outputs maps command text (Text for shell backends, joined Argv
	// otherwise) to a canned result.
	Outputs map[string]backend.Result
	// Unavailable marks backends that report ErrUnavailable, used to drive
	// fallback-chain tests.
	Unavailable map[backend.Backend]bool

	mu    sync.Mutex
	calls []Call
}

func NewFake() *Fake {
	return &Fake{
		Caps:        backend.CapabilitySet{NativeBinaries: map[string]string{}},
		Outputs:     map[string]backend.Result{},
		Unavailable: map[backend.Backend]bool{},
	}
}

// WithNative registers a native binary in the capability set.
func (f *Fake) WithNative(names ...string) *Fake {
	for _, n := range names {
		f.Caps.NativeBinaries[n] = "/opt/native/" + n
	}
	return f
}

// WithPosixShell marks the POSIX shell as installed.
func (f *Fake) WithPosixShell() *Fake {
	f.Caps.PosixShell = "/opt/posix/sh"
	return f
}

func (f *Fake) Capabilities() backend.CapabilitySet { return f.Caps }

func (f *Fake) IsAvailable(name string) bool { return f.Caps.HasNative(name) }

// Calls returns a snapshot of everything executed so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) Execute(ctx context.Context, req backend.Request) (backend.Result, error) {
	if err := ctx.Err(); err != nil {
		return backend.Result{}, err
	}

	var stdin string
	if req.Stdin != nil {
		b, _ := io.ReadAll(req.Stdin)
		stdin = string(b)
		req.Stdin = strings.NewReader(stdin)
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Backend: req.Backend, Text: req.Text, Argv: req.Argv, Stdin: stdin})
	unavailable := f.Unavailable[req.Backend]
	f.mu.Unlock()

	if unavailable {
		return backend.Result{}, fmt.Errorf("%s: %w", req.Backend, backend.ErrUnavailable)
	}

	key := req.Text
	if key == "" {
		key = strings.Join(req.Argv, " ")
	}
	if result, ok := f.Outputs[key]; ok {
		return result, nil
	}

	if req.Backend == backend.DirectMapping {
		if fn, ok := backend.Builtins[req.Argv[0]]; ok {
			var stdout, stderr strings.Builder
			code := fn(req, req.Stdin, &stdout, &stderr)
			return backend.Result{ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String()}, nil
		}
		return backend.Result{}, fmt.Errorf("builtin %q: %w", req.Argv[0], backend.ErrUnavailable)
	}

	// Unknown commands echo their key so tests can see what ran.
	return backend.Result{Stdout: "fake:" + key + "\n"}, nil
}
