// Package scratch manages per-invocation temporary files.
//
// Every expansion or translation that needs a backing file (heredoc bodies,
// process substitution endpoints, synthesized control scripts) allocates it
// through a Dir. A Dir is owned by exactly one top-level invocation and is
// released on every exit path, so no stale files survive a call.
package scratch

import (
	"fmt"
	"log"
	"path"
	"sync"

	"github.com/spf13/afero"
)

// Kind describes why a temporary resource exists.
type Kind int

const (
	Heredoc Kind = iota
	ProcessSubInput
	ProcessSubOutput
	ControlScript
)

func (k Kind) String() string {
	switch k {
	case Heredoc:
		return "heredoc"
	case ProcessSubInput:
		return "procsub_in"
	case ProcessSubOutput:
		return "procsub_out"
	case ControlScript:
		return "script"
	default:
		return "unknown"
	}
}

// Resource is one temporary file owned by a call.
type Resource struct {
	Path string
	Kind Kind
}

// Dir is a call-scoped allocator for temporary resources. Paths are derived
// from the call ID so concurrent invocations sharing one scratch root never
// collide. Safe for use from the recursive sub-invocations of a single call.
type Dir struct {
	fs     afero.Fs
	root   string
	callID string

	mu        sync.Mutex
	seq       int
	resources []Resource
}

// NewDir creates the allocator for one invocation. The directory itself is
// created lazily on first allocation.
func NewDir(fs afero.Fs, root, callID string) *Dir {
	return &Dir{fs: fs, root: root, callID: callID}
}

// Create materializes a new resource with the given content.
func (d *Dir) Create(kind Kind, content []byte) (Resource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fs.MkdirAll(d.root, 0700); err != nil {
		return Resource{}, fmt.Errorf("scratch dir: %w", err)
	}

	d.seq++
	ext := ".tmp"
	if kind == ControlScript {
		// Script hosts dispatch on the extension.
		ext = ".ps1"
	}
	name := fmt.Sprintf("%s_%s_%d%s", kind, d.callID, d.seq, ext)
	res := Resource{Path: path.Join(d.root, name), Kind: kind}

	if err := afero.WriteFile(d.fs, res.Path, content, 0600); err != nil {
		return Resource{}, fmt.Errorf("write %s: %w", res.Path, err)
	}

	d.resources = append(d.resources, res)
	return res, nil
}

// Resources returns a snapshot of everything allocated so far.
func (d *Dir) Resources() []Resource {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Resource, len(d.resources))
	copy(out, d.resources)
	return out
}

// Release deletes every resource the call created. Failures are logged and
// never mask the caller's primary result.
func (d *Dir) Release(logger *log.Logger) {
	d.mu.Lock()
	resources := d.resources
	d.resources = nil
	d.mu.Unlock()

	for _, res := range resources {
		if err := d.fs.Remove(res.Path); err != nil {
			if logger != nil {
				logger.Printf("scratch: failed to remove %s: %v", res.Path, err)
			}
		}
	}
}
