package errno

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"go.starlark.net/starlark"
)

// Error is the script-visible error value. Its fields are plain attributes:
// scripts may read, overwrite or add them until the value is frozen.
type Error struct {
	names  []string
	fields map[string]starlark.Value
	frozen bool

	origin  Code
	hasCode bool
}

var (
	_ starlark.HasSetField = (*Error)(nil)
	_ error                = (*Error)(nil)
)

// NewError returns an Error with the given message and code fields.
func NewError(message, code string) *Error {
	e := &Error{fields: make(map[string]starlark.Value, 2)}
	e.set("message", starlark.String(message))
	e.set("code", starlark.String(code))
	return e
}

// Translate builds a fresh Error for code. It never fails.
func Translate(code Code) *Error {
	name := Name(code)
	e := NewError(name+": "+Describe(code), name)
	e.origin = code
	e.hasCode = true
	return e
}

func (e *Error) set(name string, v starlark.Value) {
	if _, ok := e.fields[name]; !ok {
		e.names = append(e.names, name)
	}
	e.fields[name] = v
}

func (e *Error) field(name string) string {
	switch v := e.fields[name].(type) {
	case nil:
		return ""
	case starlark.String:
		return string(v)
	default:
		return v.String()
	}
}

// Message returns the current message field.
func (e *Error) Message() string { return e.field("message") }

// Code returns the current code field.
func (e *Error) Code() string { return e.field("code") }

func (e *Error) lookupCode() (Code, bool) { return e.origin, e.hasCode }

// Error implements the error interface.
func (e *Error) Error() string { return e.Message() }

func (e *Error) String() string {
	var b strings.Builder
	b.WriteString("Error(")
	for i, name := range e.names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteString(" = ")
		b.WriteString(e.fields[name].String())
	}
	b.WriteByte(')')
	return b.String()
}

func (e *Error) Type() string { return "Error" }

func (e *Error) Freeze() {
	if e.frozen {
		return
	}
	e.frozen = true
	for _, v := range e.fields {
		v.Freeze()
	}
}

func (e *Error) Truth() starlark.Bool { return starlark.True }

func (e *Error) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: %s", e.Type())
}

func (e *Error) Attr(name string) (starlark.Value, error) {
	if v, ok := e.fields[name]; ok {
		return v, nil
	}
	return nil, nil
}

func (e *Error) AttrNames() []string {
	names := make([]string, len(e.names))
	copy(names, e.names)
	return names
}

func (e *Error) SetField(name string, v starlark.Value) error {
	if e.frozen {
		return fmt.Errorf("cannot set .%s on frozen %s", name, e.Type())
	}
	e.set(name, v)
	return nil
}

// Exception carries a raised value through Starlark's error channel. The value
// is usually an *Error but scripts may throw anything, including None.
type Exception struct {
	Value starlark.Value
}

func (x *Exception) Error() string {
	switch v := x.Value.(type) {
	case nil, starlark.NoneType:
		return "uncaught exception: None"
	case *Error:
		return v.Message()
	case starlark.String:
		return string(v)
	default:
		return v.String()
	}
}

func (x *Exception) Unwrap() error {
	if e, ok := x.Value.(*Error); ok {
		return e
	}
	return nil
}

// Raise translates code and returns it as the active exception. Translate
// cannot fail, so the exception always carries an *Error.
func Raise(code Code) error {
	return &Exception{Value: Translate(code)}
}

// Wrap raises the platform code behind err, or returns err unchanged when it
// does not come from the OS layer.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var x *Exception
	if errors.As(err, &x) {
		return x
	}
	if code, ok := FromError(err); ok {
		return Raise(code)
	}
	return err
}

// Constructor returns the script-callable Error(errno) builtin. It produces
// the same value a binding raises for that code. Any number is accepted and
// converted to a 32-bit code the way JavaScript's ToInt32 does: floats are
// truncated, values wrap modulo 2^32, and NaN or infinities become 0.
func Constructor() *starlark.Builtin {
	return starlark.NewBuiltin("Error", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "errno", &v); err != nil {
			return nil, err
		}
		code, ok := toInt32(v)
		if !ok {
			return nil, fmt.Errorf("%s: for parameter errno: got %s, want int or float", b.Name(), v.Type())
		}
		return Translate(Code(code)), nil
	})
}

var mask32 = new(big.Int).SetUint64(math.MaxUint32)

func toInt32(v starlark.Value) (int32, bool) {
	switch x := v.(type) {
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return int32(i), true
		}
		return int32(uint32(new(big.Int).And(x.BigInt(), mask32).Uint64())), true
	case starlark.Float:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, true
		}
		f = math.Mod(math.Trunc(f), 1<<32)
		return int32(uint32(int64(f))), true
	}
	return 0, false
}

// Throw returns the throw(value) builtin, which raises value as an exception.
func Throw() *starlark.Builtin {
	return starlark.NewBuiltin("throw", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
			return nil, err
		}
		return nil, &Exception{Value: v}
	})
}

// terminal is implemented by errors that end the script, such as an exit
// request. catch passes them through.
type terminal interface {
	Terminal() bool
}

// Catch returns the catch(fn, *args, **kwargs) builtin. It calls fn and returns
// a (result, error) pair; exactly one of them is None unless fn returned None.
// Raised exceptions yield their value, other failures yield their message.
func Catch() *starlark.Builtin {
	return starlark.NewBuiltin("catch", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("%s: missing callable", b.Name())
		}
		fn, ok := args[0].(starlark.Callable)
		if !ok {
			return nil, fmt.Errorf("%s: got %s, want callable", b.Name(), args[0].Type())
		}

		v, err := starlark.Call(thread, fn, args[1:], kwargs)
		if err == nil {
			return starlark.Tuple{v, starlark.None}, nil
		}
		var t terminal
		if errors.As(err, &t) && t.Terminal() {
			return nil, err
		}

		var x *Exception
		if errors.As(err, &x) {
			val := x.Value
			if val == nil {
				val = starlark.None
			}
			return starlark.Tuple{starlark.None, val}, nil
		}

		msg := err.Error()
		var ee *starlark.EvalError
		if errors.As(err, &ee) {
			msg = ee.Msg
		}
		return starlark.Tuple{starlark.None, starlark.String(msg)}, nil
	})
}
