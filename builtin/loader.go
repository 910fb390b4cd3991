package builtin

import (
	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/caffeineduck/tjs/bytecode"
)

// Module is a deserialized builtin ready to be initialized by the host.
type Module struct {
	// Specifier is the string the importer asked for.
	Specifier string
	// Entry is the registered specifier that matched it.
	Entry   string
	Kind    bytecode.Kind
	Program *starlark.Program
}

// Loader turns registry entries into modules. It keeps no reference to the
// modules it returns: every Load deserializes the blob again.
type Loader struct {
	reg    *Registry
	reader *bytecode.Reader
	log    *zap.Logger
}

// NewLoader returns a loader over reg. Blobs are read with the Trusted policy,
// so a corrupt entry is logged to log at fatal level.
func NewLoader(reg *Registry, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		reg:    reg,
		reader: bytecode.NewReader(bytecode.Trusted, log),
		log:    log,
	}
}

// Registry returns the table the loader resolves against.
func (l *Loader) Registry() *Registry { return l.reg }

// Load resolves specifier and deserializes the matching blob as a module.
// It returns false when no entry matches. A blob that fails to decode, or
// decodes to anything but a module, is fatal.
func (l *Loader) Load(specifier string) (*Module, bool) {
	e, ok := l.reg.Resolve(specifier)
	if !ok {
		return nil, false
	}

	obj, err := l.reader.Read(e.Specifier, e.Blob, bytecode.KindModule)
	if err != nil {
		panic(&bytecode.CorruptError{Name: e.Specifier, Err: err})
	}

	l.log.Debug("loaded builtin",
		zap.String("specifier", specifier),
		zap.String("entry", e.Specifier),
		zap.Int("size", e.Size()),
	)

	return &Module{
		Specifier: specifier,
		Entry:     e.Specifier,
		Kind:      obj.Kind,
		Program:   obj.Program,
	}, true
}
