// Package backend is the process boundary of the engine. The core never
// spawns an OS process directly; it hands a Request to a Service and gets a
// Result back. A deterministic fake lives in backendtest for the rest of the
// repo to test against.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Backend identifies how a translated command runs.
type Backend int

const (
	// DirectMapping runs a built-in primitive inside the service, no
	// external process.
	DirectMapping Backend = iota
	// NativeBinary runs a compiled equivalent found in the capability set.
	NativeBinary
	// PosixPassthrough hands the text whole to a POSIX-compatible shell.
	PosixPassthrough
	// EmulatedScript runs a synthesized script in the host scripting shell.
	EmulatedScript
)

func (b Backend) String() string {
	switch b {
	case DirectMapping:
		return "direct"
	case NativeBinary:
		return "native"
	case PosixPassthrough:
		return "posix"
	case EmulatedScript:
		return "emulated"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// CapabilitySet holds the runtime-probed facts about the host: which native
// binaries exist and whether a POSIX shell is installed. Read-only to the
// engine.
type CapabilitySet struct {
	// NativeBinaries maps a command name to the host path of its compiled
	// equivalent.
	NativeBinaries map[string]string
	// PosixShell is the host path of the POSIX shell, empty when absent.
	PosixShell string
}

func (c CapabilitySet) HasNative(name string) bool {
	_, ok := c.NativeBinaries[name]
	return ok
}

func (c CapabilitySet) PosixAvailable() bool {
	return c.PosixShell != ""
}

// Request describes one execution. Either Argv (native/direct) or Text
// (posix/emulated) is populated depending on the backend.
type Request struct {
	Backend Backend
	Text    string
	Argv    []string

	Stdin io.Reader
	Dir   string
	Env   []string
}

// Result is what a launched command produced. A non-zero exit code is data,
// not an error.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Service executes requests and answers capability queries.
type Service interface {
	Execute(ctx context.Context, req Request) (Result, error)
	IsAvailable(name string) bool
	Capabilities() CapabilitySet
}

// ErrUnavailable reports that the requested backend is missing on this host.
// The strategy layer recovers from it by moving down the fallback chain.
var ErrUnavailable = errors.New("backend unavailable")

// LaunchError reports that a backend was present but the process could not
// be started or collected.
type LaunchError struct {
	Backend Backend
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%s backend: %v", e.Backend, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
