// Package bytecode defines the container format for precompiled Starlark
// programs and the reader that turns a container back into an executable
// object.
//
// A blob starts with the 4-byte magic "\x00TJB" followed by protobuf wire
// fields:
//
//	1  format version (varint)
//	2  artifact kind  (varint)
//	3  name           (bytes)
//	4  program        (bytes, output of (*starlark.Program).Write)
//
// Blobs are tied to the runtime that produced them. A blob whose format version
// differs from [FormatVersion] is rejected, there is no cross-version
// compatibility.
package bytecode

import (
	"bytes"
	"errors"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	magic = "\x00TJB"

	// FormatVersion is bumped whenever the envelope or the engine changes
	// in a way that invalidates previously compiled blobs.
	FormatVersion = 1
)

const (
	fieldVersion protowire.Number = 1
	fieldKind    protowire.Number = 2
	fieldName    protowire.Number = 3
	fieldProgram protowire.Number = 4
)

var (
	ErrMagic     = errors.New("wrong magic number")
	ErrVersion   = errors.New("unsupported format version")
	ErrKind      = errors.New("unexpected artifact kind")
	ErrTruncated = errors.New("truncated blob")
)

// Kind identifies what a compiled artifact is meant to be used as.
type Kind int

const (
	// KindScript is a program executed for its side effects.
	KindScript Kind = iota + 1
	// KindFunction is a program that defines a single callable named "main".
	KindFunction
	// KindModule is a program whose globals are exported to importers.
	KindModule
)

func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindFunction:
		return "function"
	case KindModule:
		return "module"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a kind name as accepted by the CLI.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "script":
		return KindScript, nil
	case "function":
		return KindFunction, nil
	case "module":
		return KindModule, nil
	default:
		return 0, fmt.Errorf("unknown kind %q (expected script, function, or module)", s)
	}
}

// FileOptions are the dialect options every program is compiled with.
var FileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Compile parses and compiles src and wraps the program in a blob of the given
// kind. isPredeclared reports the names the program may reference besides the
// Starlark universe.
func Compile(name string, src []byte, kind Kind, isPredeclared func(string) bool) ([]byte, error) {
	if isPredeclared == nil {
		isPredeclared = func(string) bool { return false }
	}

	f, prog, err := starlark.SourceProgramOptions(FileOptions, name, src, isPredeclared)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	if kind == KindFunction && !definesMain(f) {
		return nil, fmt.Errorf("compile %s: function artifact must define main", name)
	}

	var program bytes.Buffer
	if err := prog.Write(&program); err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}

	return Encode(kind, name, program.Bytes()), nil
}

func definesMain(f *syntax.File) bool {
	for _, stmt := range f.Stmts {
		switch stmt := stmt.(type) {
		case *syntax.DefStmt:
			if stmt.Name.Name == "main" {
				return true
			}
		case *syntax.AssignStmt:
			if id, ok := stmt.LHS.(*syntax.Ident); ok && id.Name == "main" {
				return true
			}
		}
	}
	return false
}

// Encode wraps an already serialized program in the blob envelope.
func Encode(kind Kind, name string, program []byte) []byte {
	b := make([]byte, 0, len(magic)+len(name)+len(program)+16)
	b = append(b, magic...)
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, FormatVersion)
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(kind))
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendString(b, name)
	b = protowire.AppendTag(b, fieldProgram, protowire.BytesType)
	b = protowire.AppendBytes(b, program)
	return b
}

// header is the decoded envelope before the program is deserialized.
type header struct {
	version uint64
	kind    Kind
	name    string
	program []byte
}

func decode(blob []byte) (header, error) {
	var h header

	if len(blob) < len(magic) {
		return h, ErrTruncated
	}
	if string(blob[:len(magic)]) != magic {
		return h, ErrMagic
	}
	b := blob[len(magic):]

	var sawProgram bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return h, fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return h, fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n))
			}
			h.version = v
			b = b[n:]
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return h, fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n))
			}
			h.kind = Kind(v)
			b = b[n:]
		case num == fieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return h, fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n))
			}
			h.name = string(v)
			b = b[n:]
		case num == fieldProgram && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return h, fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n))
			}
			h.program = v
			sawProgram = true
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return h, fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if h.version != FormatVersion {
		return h, fmt.Errorf("%w: %d", ErrVersion, h.version)
	}
	if !sawProgram {
		return h, fmt.Errorf("%w: missing program", ErrTruncated)
	}
	return h, nil
}
