package executor

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/caffeineduck/tjs/errno"
	"github.com/caffeineduck/tjs/hostfunc"
	"github.com/caffeineduck/tjs/serial"
)

// Version is reported to scripts as tjs.version.
const Version = "0.1.0"

const contextKey = "tjs.context"

// threadContext returns the context the running execution was started with.
func threadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

// newNamespace builds the tjs module: the error helpers, value
// serialization, the module table, and one builtin per host function in reg.
func newNamespace(reg *hostfunc.Registry, builtins, args []string) *starlarkstruct.Module {
	members := starlark.StringDict{
		"Error":    errno.Constructor(),
		"catch":    errno.Catch(),
		"throw":    errno.Throw(),
		"call":     callBuiltin(reg),

		"serialize":   serial.Serialize(),
		"deserialize": serial.Deserialize(),

		"version":  starlark.String(Version),
		"builtins": stringTuple(builtins),
		"args":     stringTuple(args),
	}

	for _, name := range reg.List() {
		fn, _ := reg.Get(name)
		members[name] = hostBuiltin(name, fn)
	}

	ns := &starlarkstruct.Module{Name: "tjs", Members: members}
	ns.Freeze()
	return ns
}

func stringTuple(ss []string) starlark.Tuple {
	t := make(starlark.Tuple, len(ss))
	for i, s := range ss {
		t[i] = starlark.String(s)
	}
	return t
}

// hostBuiltin exposes fn to scripts. Host functions take keyword arguments
// only, since their parameters have no declared order.
func hostBuiltin(name string, fn hostfunc.Func) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("%s: unexpected positional arguments, use keywords", b.Name())
		}
		return invoke(thread, b.Name(), fn, kwargs)
	})
}

// callBuiltin returns tjs.call(name, **kwargs), which dispatches by name.
func callBuiltin(reg *hostfunc.Registry) *starlark.Builtin {
	return starlark.NewBuiltin("call", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, nil, 1, &name); err != nil {
			return nil, err
		}
		fn, ok := reg.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown function: %s", name)
		}
		return invoke(thread, name, fn, kwargs)
	})
}

func invoke(thread *starlark.Thread, name string, fn hostfunc.Func, kwargs []starlark.Tuple) (starlark.Value, error) {
	goArgs := make(map[string]any, len(kwargs))
	for _, kv := range kwargs {
		key := string(kv[0].(starlark.String))
		v, err := toGo(kv[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", name, key, err)
		}
		goArgs[key] = v
	}

	result, err := fn(threadContext(thread), goArgs)
	if err != nil {
		return nil, err
	}

	v, err := fromGo(result)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
