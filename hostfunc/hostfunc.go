package hostfunc

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

// Func is a host function callable from scripts. Arguments arrive as the
// keyword arguments of the call, already converted to Go values.
type Func func(ctx context.Context, args map[string]any) (any, error)

type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	return fn, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Clone returns a registry holding the same functions. Later registrations on
// either registry do not affect the other.
func (r *Registry) Clone() *Registry {
	c := NewRegistry()
	if r == nil {
		return c
	}
	r.mu.RLock()
	for name, fn := range r.funcs {
		c.funcs[name] = fn
	}
	r.mu.RUnlock()
	return c
}

// decode fills a request struct from loosely typed script arguments. Field
// names come from the json tags; numbers, strings and bytes convert freely.
func decode[T any](fn string, args map[string]any) (T, error) {
	var req T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &req,
	})
	if err != nil {
		return req, err
	}
	if err := dec.Decode(args); err != nil {
		return req, fmt.Errorf("%s: %w", fn, err)
	}
	return req, nil
}
