package builtin

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"sync"

	"github.com/caffeineduck/tjs/bytecode"
)

//go:generate go run ../internal/tools/compile tjs: stdlib

// stdlibFS holds each module's source and, once generated, its compiled blob.
//
//go:embed stdlib
var stdlibFS embed.FS

// stdlibTable is the builtin table in declaration order. Earlier entries
// shadow later ones under prefix matching.
var stdlibTable = []struct {
	specifier string
	name      string
}{
	{"tjs:assert", "assert"},
	{"tjs:getopts", "getopts"},
	{"tjs:hashing", "hashing"},
	{"tjs:ipaddr", "ipaddr"},
	{"tjs:path", "path"},
	{"tjs:uuid", "uuid"},
	{"tjs:v8", "v8"},
}

// Predeclared lists the names builtin modules may reference besides the
// Starlark universe. The host must supply them when initializing a module.
var Predeclared = []string{"tjs"}

// IsPredeclared reports whether name is in Predeclared.
func IsPredeclared(name string) bool {
	return slices.Contains(Predeclared, name)
}

// Default returns the registry of the embedded standard library. Entries hold
// the blobs written by go generate. A checkout that has not been generated
// yet compiles the embedded sources once instead.
var Default = sync.OnceValue(func() *Registry {
	entries := make([]Entry, 0, len(stdlibTable))
	for _, t := range stdlibTable {
		blob, err := stdlibBlob(t.specifier, t.name)
		if err != nil {
			panic(fmt.Sprintf("builtin: %v", err))
		}
		entries = append(entries, Entry{Specifier: t.specifier, Blob: blob})
	}
	reg, err := NewRegistry(entries...)
	if err != nil {
		panic(fmt.Sprintf("builtin: %v", err))
	}
	return reg
})

func stdlibBlob(specifier, name string) ([]byte, error) {
	blob, err := stdlibFS.ReadFile("stdlib/" + name + ".tjsb")
	if err == nil {
		return blob, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	src, err := stdlibFS.ReadFile("stdlib/" + name + ".star")
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return bytecode.Compile(specifier, src, bytecode.KindModule, IsPredeclared)
}

// Source returns the embedded source of the builtin registered under
// specifier exactly.
func Source(specifier string) ([]byte, bool) {
	for _, t := range stdlibTable {
		if t.specifier == specifier {
			src, err := stdlibFS.ReadFile("stdlib/" + t.name + ".star")
			return src, err == nil
		}
	}
	return nil, false
}
