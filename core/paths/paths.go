// Package paths maps between the virtual Unix-style paths commands are
// written against and the host's real filesystem layout. Commands see roots
// like /workspace; the translator rewrites those to host directories before
// execution and folds host paths back to virtual form in output.
package paths

import (
	"fmt"
	"sort"
	"strings"
)

// Mapping binds one virtual root to a host directory.
type Mapping struct {
	Virtual string
	Host    string
}

// Translator rewrites paths in both directions. Mappings are checked
// longest virtual prefix first so nested roots behave predictably.
type Translator struct {
	mappings []Mapping
	// hostStyle is the host path separator in rendered paths.
	hostSep string
}

// New builds a Translator. Virtual roots must be absolute slash paths; host
// targets are taken as given. The separator is what host-side paths use,
// "\\" on Windows hosts.
func New(mappings []Mapping, hostSep string) (*Translator, error) {
	if hostSep == "" {
		hostSep = "/"
	}
	cleaned := make([]Mapping, 0, len(mappings))
	for _, m := range mappings {
		if !strings.HasPrefix(m.Virtual, "/") {
			return nil, fmt.Errorf("virtual root %q is not absolute", m.Virtual)
		}
		cleaned = append(cleaned, Mapping{
			Virtual: strings.TrimRight(m.Virtual, "/"),
			Host:    strings.TrimRight(m.Host, "/\\"),
		})
	}
	sort.Slice(cleaned, func(i, j int) bool {
		return len(cleaned[i].Virtual) > len(cleaned[j].Virtual)
	})
	return &Translator{mappings: cleaned, hostSep: hostSep}, nil
}

// ToHost converts one virtual path to its host form. Paths outside every
// mapping come back unchanged with ok=false.
func (t *Translator) ToHost(virtual string) (string, bool) {
	for _, m := range t.mappings {
		if virtual == m.Virtual {
			return m.Host, true
		}
		if strings.HasPrefix(virtual, m.Virtual+"/") {
			rest := virtual[len(m.Virtual):]
			if t.hostSep != "/" {
				rest = strings.ReplaceAll(rest, "/", t.hostSep)
			}
			return m.Host + rest, true
		}
	}
	return virtual, false
}

// ToVirtual converts one host path back to virtual form.
func (t *Translator) ToVirtual(host string) (string, bool) {
	norm := host
	if t.hostSep != "/" {
		norm = strings.ReplaceAll(host, t.hostSep, "/")
	}
	for _, m := range t.mappings {
		hostVirt := m.Host
		if t.hostSep != "/" {
			hostVirt = strings.ReplaceAll(m.Host, t.hostSep, "/")
		}
		if norm == hostVirt {
			return m.Virtual, true
		}
		if strings.HasPrefix(norm, hostVirt+"/") {
			return m.Virtual + norm[len(hostVirt):], true
		}
	}
	return host, false
}

// RewriteToHost replaces every occurrence of a virtual root in command text
// with its host directory. Replacement is textual: the roots are chosen to
// be distinctive enough (absolute, slash-anchored) that prefix replacement
// is safe.
func (t *Translator) RewriteToHost(text string) string {
	for _, m := range t.mappings {
		text = replacePrefixed(text, m.Virtual, m.Host, t.hostSep)
	}
	return text
}

// RewriteToVirtual folds host directories appearing in output back to their
// virtual roots and normalizes separators inside rewritten spans.
func (t *Translator) RewriteToVirtual(text string) string {
	for _, m := range t.mappings {
		if m.Host == "" {
			continue
		}
		for {
			i := strings.Index(text, m.Host)
			if i < 0 {
				break
			}
			end := i + len(m.Host)
			for end < len(text) && !isPathBoundary(text[end]) {
				end++
			}
			tail := text[i+len(m.Host) : end]
			if t.hostSep != "/" {
				tail = strings.ReplaceAll(tail, t.hostSep, "/")
			}
			text = text[:i] + m.Virtual + tail + text[end:]
		}
	}
	return text
}

// replacePrefixed substitutes root for every occurrence of virt that starts
// a path token, converting the remainder of the token to the host
// separator.
func replacePrefixed(text, virt, host, sep string) string {
	var out strings.Builder
	for {
		i := strings.Index(text, virt)
		if i < 0 {
			out.WriteString(text)
			return out.String()
		}
		boundary := i+len(virt) >= len(text) || text[i+len(virt)] == '/' || isPathBoundary(text[i+len(virt)])
		if !boundary {
			out.WriteString(text[:i+len(virt)])
			text = text[i+len(virt):]
			continue
		}
		end := i + len(virt)
		for end < len(text) && !isPathBoundary(text[end]) {
			end++
		}
		tail := text[i+len(virt) : end]
		if sep != "/" {
			tail = strings.ReplaceAll(tail, "/", sep)
		}
		out.WriteString(text[:i])
		out.WriteString(host)
		out.WriteString(tail)
		text = text[end:]
	}
}

func isPathBoundary(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\'', '"', ';', '|', '&', '<', '>', '(', ')', ':':
		return true
	}
	return false
}
