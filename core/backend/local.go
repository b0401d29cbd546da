package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Options configure host probing for a local Service.
type Options struct {
	// PosixShellCandidates are tried in order; the first found becomes the
	// POSIX passthrough backend.
	PosixShellCandidates []string
	// NativeBinaries are the command names probed on PATH.
	NativeBinaries []string
	// NativeBinaryPaths pins command names to explicit host binaries,
	// skipping the PATH probe for those names.
	NativeBinaryPaths map[string]string
	// ScriptShell is the host scripting shell invocation prefix for
	// emulated scripts, e.g. ["powershell", "-NoProfile", "-Command"].
	ScriptShell []string
}

// Local is the production Service. It probes the host once at construction
// and holds the resulting capability set immutable afterwards.
type Local struct {
	caps        CapabilitySet
	scriptShell []string
}

// NewLocal probes the host and builds the execution service.
func NewLocal(opts Options) *Local {
	caps := CapabilitySet{NativeBinaries: make(map[string]string)}
	for _, name := range opts.NativeBinaries {
		if p, err := exec.LookPath(name); err == nil {
			caps.NativeBinaries[name] = p
		}
	}
	for name, path := range opts.NativeBinaryPaths {
		if _, err := os.Stat(path); err == nil {
			caps.NativeBinaries[name] = path
		}
	}
	for _, candidate := range opts.PosixShellCandidates {
		if p, err := exec.LookPath(candidate); err == nil {
			caps.PosixShell = p
			break
		}
	}
	return &Local{caps: caps, scriptShell: opts.ScriptShell}
}

func (l *Local) Capabilities() CapabilitySet { return l.caps }

func (l *Local) IsAvailable(name string) bool { return l.caps.HasNative(name) }

func (l *Local) Execute(ctx context.Context, req Request) (Result, error) {
	switch req.Backend {
	case DirectMapping:
		return l.executeBuiltin(req)
	case NativeBinary:
		if len(req.Argv) == 0 {
			return Result{}, &LaunchError{Backend: req.Backend, Err: errors.New("empty argv")}
		}
		binPath, ok := l.caps.NativeBinaries[req.Argv[0]]
		if !ok {
			return Result{}, fmt.Errorf("native %q: %w", req.Argv[0], ErrUnavailable)
		}
		return l.run(ctx, req, binPath, req.Argv[1:]...)
	case PosixPassthrough:
		if !l.caps.PosixAvailable() {
			return Result{}, fmt.Errorf("posix shell: %w", ErrUnavailable)
		}
		return l.run(ctx, req, l.caps.PosixShell, "-c", req.Text)
	case EmulatedScript:
		if len(l.scriptShell) == 0 {
			return Result{}, fmt.Errorf("script shell: %w", ErrUnavailable)
		}
		args := append(append([]string{}, l.scriptShell[1:]...), req.Text)
		return l.run(ctx, req, l.scriptShell[0], args...)
	default:
		return Result{}, &LaunchError{Backend: req.Backend, Err: errors.New("unknown backend")}
	}
}

func (l *Local) executeBuiltin(req Request) (Result, error) {
	if len(req.Argv) == 0 {
		return Result{}, &LaunchError{Backend: DirectMapping, Err: errors.New("empty argv")}
	}
	fn, ok := Builtins[req.Argv[0]]
	if !ok {
		return Result{}, fmt.Errorf("builtin %q: %w", req.Argv[0], ErrUnavailable)
	}
	var stdout, stderr bytes.Buffer
	code := fn(req, req.Stdin, &stdout, &stderr)
	return Result{ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func (l *Local) run(ctx context.Context, req Request, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env
	cmd.Stdin = req.Stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit is ordinary data, matching shell semantics.
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, &LaunchError{Backend: req.Backend, Err: err}
	}
	return result, nil
}
