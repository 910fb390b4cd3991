package executor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/caffeineduck/tjs/builtin"
	"github.com/caffeineduck/tjs/bytecode"
	"github.com/caffeineduck/tjs/errno"
)

// Module file extensions recognized under a module root.
const (
	SourceExt = ".star"
	BlobExt   = ".tjsb"
)

type moduleState int

const (
	moduleLoading moduleState = iota
	moduleLoaded
)

type moduleRecord struct {
	state   moduleState
	globals starlark.StringDict
}

// resolver implements load() for one execution or session. It looks a
// specifier up in its cache, then under the module root, then in the builtin
// loader. Only successful loads stay cached; a failed specifier is resolved
// again on its next load.
type resolver struct {
	loader      *builtin.Loader
	reader      *bytecode.Reader
	root        string
	predeclared starlark.StringDict
	exec        *execution
	log         *zap.Logger

	cache map[string]*moduleRecord
	stack []string
}

func newResolver(loader *builtin.Loader, root string, log *zap.Logger) *resolver {
	return &resolver{
		loader: loader,
		reader: bytecode.NewReader(bytecode.Untrusted, log),
		root:   root,
		log:    log,
		cache:  make(map[string]*moduleRecord),
	}
}

// Load is installed as starlark.Thread.Load.
func (r *resolver) Load(thread *starlark.Thread, specifier string) (starlark.StringDict, error) {
	if rec, ok := r.cache[specifier]; ok {
		if rec.state == moduleLoading {
			return nil, fmt.Errorf("import cycle: %s -> %s", strings.Join(r.stack, " -> "), specifier)
		}
		return rec.globals, nil
	}

	rec := &moduleRecord{state: moduleLoading}
	r.cache[specifier] = rec
	r.stack = append(r.stack, specifier)

	globals, err := r.load(thread, specifier)
	r.stack = r.stack[:len(r.stack)-1]
	if err != nil {
		delete(r.cache, specifier)
		return nil, err
	}

	rec.globals = globals
	rec.state = moduleLoaded
	return globals, nil
}

func (r *resolver) load(thread *starlark.Thread, specifier string) (starlark.StringDict, error) {
	prog, err := r.fromFS(specifier)
	if err != nil {
		return nil, err
	}
	if prog != nil {
		return r.init(thread, specifier, prog)
	}

	if mod, ok := r.loader.Load(specifier); ok {
		return r.init(thread, specifier, mod.Program)
	}

	return nil, fmt.Errorf("unresolved import %q", specifier)
}

// fromFS finds specifier under the module root. It returns nil and no error
// when the root is unset or holds no such module.
func (r *resolver) fromFS(specifier string) (*starlark.Program, error) {
	if r.root == "" || !filepath.IsLocal(specifier) {
		return nil, nil
	}

	candidates := []string{specifier}
	switch filepath.Ext(specifier) {
	case SourceExt, BlobExt:
	default:
		candidates = []string{specifier + SourceExt, specifier + BlobExt}
	}

	for _, rel := range candidates {
		path := filepath.Join(r.root, rel)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", specifier, errno.Wrap(err))
		}

		r.log.Debug("loading module from file",
			zap.String("specifier", specifier),
			zap.String("path", path),
		)

		if filepath.Ext(rel) == BlobExt {
			obj, err := r.reader.Read(rel, data, bytecode.KindModule)
			if err != nil {
				return nil, err
			}
			return obj.Program, nil
		}

		_, prog, err := starlark.SourceProgramOptions(bytecode.FileOptions, rel, data, r.predeclared.Has)
		if err != nil {
			return nil, err
		}
		return prog, nil
	}
	return nil, nil
}

func (r *resolver) init(parent *starlark.Thread, specifier string, prog *starlark.Program) (starlark.StringDict, error) {
	thread := r.exec.newThread(specifier)
	thread.Load = r.Load
	thread.Print = parent.Print

	globals, err := prog.Init(thread, r.predeclared)
	if err != nil {
		return nil, err
	}
	globals.Freeze()
	return globals, nil
}
