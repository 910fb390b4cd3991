package builtin

import (
	"errors"
	"fmt"
	"strings"
)

// Entry pairs a specifier with the compiled module blob it resolves to.
type Entry struct {
	Specifier string
	Blob      []byte
}

// Size returns the length of the blob in bytes.
func (e Entry) Size() int { return len(e.Blob) }

// Registry is an ordered, immutable table of entries. The zero value and a nil
// *Registry are both empty registries.
type Registry struct {
	entries []Entry
}

// NewRegistry builds a registry from entries in the given order. Specifiers
// must be non-empty and unique.
func NewRegistry(entries ...Entry) (*Registry, error) {
	seen := make(map[string]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))

	for i, e := range entries {
		if e.Specifier == "" {
			return nil, fmt.Errorf("entry %d: empty specifier", i)
		}
		if _, dup := seen[e.Specifier]; dup {
			return nil, fmt.Errorf("entry %d: duplicate specifier %q", i, e.Specifier)
		}
		if len(e.Blob) == 0 {
			return nil, fmt.Errorf("entry %d (%s): %w", i, e.Specifier, errEmptyBlob)
		}
		seen[e.Specifier] = struct{}{}
		out = append(out, e)
	}

	return &Registry{entries: out}, nil
}

var errEmptyBlob = errors.New("empty blob")

// Resolve returns the first entry, in declaration order, whose specifier is a
// byte-wise prefix of specifier. There is no segment boundary check, so
// "tjs:assert-extra" resolves to "tjs:assert". The boolean is false when no
// entry matches.
func (r *Registry) Resolve(specifier string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	for _, e := range r.entries {
		if strings.HasPrefix(specifier, e.Specifier) {
			return e, true
		}
	}
	return Entry{}, false
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Specifiers lists the registered specifiers in declaration order.
func (r *Registry) Specifiers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Specifier
	}
	return out
}

// Entries returns a copy of the table. Blobs are shared and must not be
// modified.
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
