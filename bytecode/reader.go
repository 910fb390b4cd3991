package bytecode

import (
	"bytes"
	"fmt"

	"go.starlark.net/starlark"
	"go.uber.org/zap"
)

// Policy decides what happens when a blob cannot be turned into an object.
type Policy int

const (
	// Untrusted blobs come from outside the binary. Failures are returned to
	// the caller as ordinary errors.
	Untrusted Policy = iota
	// Trusted blobs were produced by the runtime's own build and embedded in
	// the binary. A failure means the binary is corrupt: the reader logs it at
	// fatal level, which exits the process.
	Trusted
)

func (p Policy) String() string {
	if p == Trusted {
		return "trusted"
	}
	return "untrusted"
}

// CorruptError describes a trusted blob that fails to decode or decodes to the
// wrong kind. It is the panic value when the logger's fatal hook returns
// instead of exiting.
type CorruptError struct {
	Name string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt embedded bytecode for %q: %v", e.Name, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Object is a deserialized artifact ready for execution.
type Object struct {
	Kind    Kind
	Name    string
	Program *starlark.Program
}

// Reader deserializes blobs under a fixed policy.
type Reader struct {
	policy Policy
	log    *zap.Logger
}

// NewReader returns a Reader for the given policy. A nil logger is replaced
// with a no-op logger.
func NewReader(policy Policy, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{policy: policy, log: log}
}

// Policy returns the reader's policy.
func (r *Reader) Policy() Policy { return r.policy }

// Read decodes blob and checks that it holds an artifact of kind want. name
// identifies the blob in diagnostics (a specifier or a file path).
//
// Under the Trusted policy Read never returns an error. The failure is logged
// with Fatal, so a logger with zap's default fatal hook terminates the
// process; recover() in a caller such as net/http cannot keep it alive. If
// the hook returns, Read panics with a *CorruptError.
func (r *Reader) Read(name string, blob []byte, want Kind) (*Object, error) {
	obj, err := read(blob, want)
	if err == nil {
		return obj, nil
	}

	if r.policy == Trusted {
		r.log.Fatal("corrupt embedded bytecode",
			zap.String("name", name),
			zap.Stringer("want", want),
			zap.Int("size", len(blob)),
			zap.Error(err),
		)
		panic(&CorruptError{Name: name, Err: err})
	}

	r.log.Debug("rejected bytecode",
		zap.String("name", name),
		zap.Stringer("want", want),
		zap.Error(err),
	)
	return nil, fmt.Errorf("read %s: %w", name, err)
}

func read(blob []byte, want Kind) (*Object, error) {
	h, err := decode(blob)
	if err != nil {
		return nil, err
	}
	if h.kind != want {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrKind, h.kind, want)
	}

	prog, err := starlark.CompiledProgram(bytes.NewReader(h.program))
	if err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}

	return &Object{Kind: h.kind, Name: h.name, Program: prog}, nil
}

// Peek returns the kind recorded in a blob's envelope without deserializing
// the program.
func Peek(blob []byte) (Kind, error) {
	h, err := decode(blob)
	if err != nil {
		return 0, err
	}
	return h.kind, nil
}
