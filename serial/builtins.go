package serial

import (
	"go.starlark.net/starlark"
)

// Serialize returns the serialize(value) builtin, which yields bytes.
func Serialize() *starlark.Builtin {
	return starlark.NewBuiltin("serialize", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &v); err != nil {
			return nil, err
		}
		data, err := Marshal(v)
		if err != nil {
			return nil, err
		}
		return starlark.Bytes(data), nil
	})
}

// Deserialize returns the deserialize(data) builtin, the inverse of Serialize.
func Deserialize() *starlark.Builtin {
	return starlark.NewBuiltin("deserialize", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var data starlark.Bytes
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "data", &data); err != nil {
			return nil, err
		}
		return Unmarshal([]byte(data))
	})
}
