// Package serial converts Starlark values to a compact binary form and back.
//
// A serialized value starts with a header byte and a format version, followed
// by one tagged value. Tags and lengths are protobuf varints, integers that
// fit in 64 bits are zigzag-encoded, larger ones carry their magnitude as
// big-endian bytes, and floats are stored as fixed64 IEEE 754 bits.
//
//	data, err := serial.Marshal(starlark.NewList([]starlark.Value{starlark.MakeInt(1)}))
//	v, err := serial.Unmarshal(data)
//
// Supported values are None, bool, int, float, string, bytes, list, tuple,
// dict and set. Containers are copied; a value that refers to itself fails
// with ErrDepth.
package serial

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"go.starlark.net/starlark"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	header  = 0xff
	version = 1

	// MaxDepth bounds container nesting in both directions.
	MaxDepth = 256
)

type tag uint64

const (
	tagNone tag = iota
	tagFalse
	tagTrue
	tagInt
	tagBigInt
	tagFloat
	tagString
	tagBytes
	tagList
	tagTuple
	tagDict
	tagSet
)

var (
	ErrMalformed   = errors.New("malformed serialized value")
	ErrVersion     = errors.New("unsupported serialization version")
	ErrDepth       = errors.New("value nested too deeply")
	ErrUnsupported = errors.New("value cannot be serialized")
)

// Marshal serializes v.
func Marshal(v starlark.Value) ([]byte, error) {
	b := []byte{header}
	b = protowire.AppendVarint(b, version)
	return appendValue(b, v, 0)
}

func appendValue(b []byte, v starlark.Value, depth int) ([]byte, error) {
	if depth > MaxDepth {
		return nil, ErrDepth
	}

	switch v := v.(type) {
	case starlark.NoneType:
		return protowire.AppendVarint(b, uint64(tagNone)), nil
	case starlark.Bool:
		if v {
			return protowire.AppendVarint(b, uint64(tagTrue)), nil
		}
		return protowire.AppendVarint(b, uint64(tagFalse)), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			b = protowire.AppendVarint(b, uint64(tagInt))
			return protowire.AppendVarint(b, protowire.EncodeZigZag(i)), nil
		}
		n := v.BigInt()
		b = protowire.AppendVarint(b, uint64(tagBigInt))
		b = protowire.AppendVarint(b, protowire.EncodeBool(n.Sign() < 0))
		return protowire.AppendBytes(b, new(big.Int).Abs(n).Bytes()), nil
	case starlark.Float:
		b = protowire.AppendVarint(b, uint64(tagFloat))
		return protowire.AppendFixed64(b, math.Float64bits(float64(v))), nil
	case starlark.String:
		b = protowire.AppendVarint(b, uint64(tagString))
		return protowire.AppendString(b, string(v)), nil
	case starlark.Bytes:
		b = protowire.AppendVarint(b, uint64(tagBytes))
		return protowire.AppendString(b, string(v)), nil
	case *starlark.List:
		return appendSeq(b, tagList, v, depth)
	case starlark.Tuple:
		return appendSeq(b, tagTuple, v, depth)
	case *starlark.Set:
		return appendSeq(b, tagSet, v, depth)
	case *starlark.Dict:
		b = protowire.AppendVarint(b, uint64(tagDict))
		b = protowire.AppendVarint(b, uint64(v.Len()))
		var err error
		for _, item := range v.Items() {
			if b, err = appendValue(b, item[0], depth+1); err != nil {
				return nil, err
			}
			if b, err = appendValue(b, item[1], depth+1); err != nil {
				return nil, err
			}
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, v.Type())
	}
}

type sequence interface {
	starlark.Iterable
	Len() int
}

func appendSeq(b []byte, t tag, seq sequence, depth int) ([]byte, error) {
	b = protowire.AppendVarint(b, uint64(t))
	b = protowire.AppendVarint(b, uint64(seq.Len()))

	iter := seq.Iterate()
	defer iter.Done()

	var (
		x   starlark.Value
		err error
	)
	for iter.Next(&x) {
		if b, err = appendValue(b, x, depth+1); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Unmarshal decodes data produced by Marshal. The result is unfrozen.
func Unmarshal(data []byte) (starlark.Value, error) {
	if len(data) == 0 || data[0] != header {
		return nil, fmt.Errorf("%w: missing header", ErrMalformed)
	}
	d := decoder{buf: data[1:]}

	ver, err := d.varint()
	if err != nil {
		return nil, err
	}
	if ver != version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, ver)
	}

	v, err := d.value(0)
	if err != nil {
		return nil, err
	}
	if len(d.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(d.buf))
	}
	return v, nil
}

type decoder struct {
	buf []byte
}

func (d *decoder) varint() (uint64, error) {
	v, n := protowire.ConsumeVarint(d.buf)
	if n < 0 {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	d.buf = d.buf[n:]
	return v, nil
}

func (d *decoder) bytes() ([]byte, error) {
	v, n := protowire.ConsumeBytes(d.buf)
	if n < 0 {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	d.buf = d.buf[n:]
	return v, nil
}

// count reads a container length. Every element takes at least one byte, so
// a length beyond the remaining input is rejected before allocating.
func (d *decoder) count() (int, error) {
	n, err := d.varint()
	if err != nil {
		return 0, err
	}
	if n > uint64(len(d.buf)) {
		return 0, fmt.Errorf("%w: length %d exceeds input", ErrMalformed, n)
	}
	return int(n), nil
}

func (d *decoder) value(depth int) (starlark.Value, error) {
	if depth > MaxDepth {
		return nil, ErrDepth
	}

	t, err := d.varint()
	if err != nil {
		return nil, err
	}

	switch tag(t) {
	case tagNone:
		return starlark.None, nil
	case tagFalse:
		return starlark.False, nil
	case tagTrue:
		return starlark.True, nil
	case tagInt:
		v, err := d.varint()
		if err != nil {
			return nil, err
		}
		return starlark.MakeInt64(protowire.DecodeZigZag(v)), nil
	case tagBigInt:
		neg, err := d.varint()
		if err != nil {
			return nil, err
		}
		mag, err := d.bytes()
		if err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(mag)
		if protowire.DecodeBool(neg) {
			n.Neg(n)
		}
		return starlark.MakeBigInt(n), nil
	case tagFloat:
		v, n := protowire.ConsumeFixed64(d.buf)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		d.buf = d.buf[n:]
		return starlark.Float(math.Float64frombits(v)), nil
	case tagString:
		s, err := d.bytes()
		if err != nil {
			return nil, err
		}
		return starlark.String(s), nil
	case tagBytes:
		s, err := d.bytes()
		if err != nil {
			return nil, err
		}
		return starlark.Bytes(s), nil
	case tagList, tagTuple, tagSet:
		elems, err := d.elems(depth)
		if err != nil {
			return nil, err
		}
		switch tag(t) {
		case tagList:
			return starlark.NewList(elems), nil
		case tagTuple:
			return starlark.Tuple(elems), nil
		}
		set := starlark.NewSet(len(elems))
		for _, x := range elems {
			if err := set.Insert(x); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
		return set, nil
	case tagDict:
		n, err := d.count()
		if err != nil {
			return nil, err
		}
		dict := starlark.NewDict(n)
		for i := 0; i < n; i++ {
			k, err := d.value(depth + 1)
			if err != nil {
				return nil, err
			}
			v, err := d.value(depth + 1)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(k, v); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrMalformed, t)
	}
}

func (d *decoder) elems(depth int) ([]starlark.Value, error) {
	n, err := d.count()
	if err != nil {
		return nil, err
	}
	elems := make([]starlark.Value, n)
	for i := range elems {
		if elems[i], err = d.value(depth + 1); err != nil {
			return nil, err
		}
	}
	return elems, nil
}
