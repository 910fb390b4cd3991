package serial

import (
	"math"
	"math/big"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func roundTrip(t *testing.T, v starlark.Value) starlark.Value {
	t.Helper()
	data, err := Marshal(v)
	require.NoError(t, err)
	got, err := Unmarshal(data)
	require.NoError(t, err)
	return got
}

func assertEqual(t *testing.T, want, got starlark.Value) {
	t.Helper()
	require.Equal(t, want.Type(), got.Type())
	eq, err := starlark.Equal(want, got)
	require.NoError(t, err)
	assert.True(t, eq, "want %s, got %s", want, got)
}

func TestSmallInts(t *testing.T) {
	for i := -1000; i < 1000; i++ {
		assertEqual(t, starlark.MakeInt(i), roundTrip(t, starlark.MakeInt(i)))
	}
}

func TestBigInts(t *testing.T) {
	for i := int64(-100); i < 100; i++ {
		n := new(big.Int).Lsh(big.NewInt(i), 64)
		v := starlark.MakeBigInt(n)
		assertEqual(t, v, roundTrip(t, v))
	}

	for _, v := range []starlark.Value{
		starlark.MakeInt64(math.MaxInt64),
		starlark.MakeInt64(math.MinInt64),
		starlark.MakeUint64(math.MaxUint64),
	} {
		assertEqual(t, v, roundTrip(t, v))
	}
}

func TestInt32Range(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 100; i++ {
		signed := starlark.MakeInt64(int64(int32(r.Uint32())))
		assertEqual(t, signed, roundTrip(t, signed))
		unsigned := starlark.MakeUint64(uint64(r.Uint32()))
		assertEqual(t, unsigned, roundTrip(t, unsigned))
	}
}

func TestScalars(t *testing.T) {
	for _, v := range []starlark.Value{
		starlark.None,
		starlark.True,
		starlark.False,
		starlark.Float(0),
		starlark.Float(-1.5),
		starlark.Float(math.MaxFloat64),
		starlark.Float(math.Inf(-1)),
		starlark.String(""),
		starlark.String("héllo"),
		starlark.String("\xff\xfe"),
		starlark.Bytes(""),
		starlark.Bytes("\x00\x01\x02"),
	} {
		assertEqual(t, v, roundTrip(t, v))
	}

	nan := roundTrip(t, starlark.Float(math.NaN()))
	assert.True(t, math.IsNaN(float64(nan.(starlark.Float))))
}

func TestContainers(t *testing.T) {
	inner := starlark.NewDict(2)
	require.NoError(t, inner.SetKey(starlark.String("a"), starlark.MakeInt(1)))
	require.NoError(t, inner.SetKey(starlark.MakeInt(2), starlark.Tuple{starlark.None, starlark.Bytes("x")}))

	set := starlark.NewSet(2)
	require.NoError(t, set.Insert(starlark.String("s")))
	require.NoError(t, set.Insert(starlark.MakeInt(9)))

	v := starlark.NewList([]starlark.Value{inner, set, starlark.Tuple{}, starlark.NewList(nil)})
	got := roundTrip(t, v)
	assertEqual(t, v, got)

	assert.NoError(t, got.(*starlark.List).Append(starlark.None), "decoded values are mutable")
}

func TestRandomObjects(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 100; i++ {
		v := randomObject(r, 3, 3)
		assertEqual(t, v, roundTrip(t, v))
	}
}

func randomString(r *rand.Rand, n int) string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	var sb strings.Builder
	sb.WriteByte(chars[r.IntN(52)])
	for i := 0; i < n; i++ {
		sb.WriteByte(chars[r.IntN(len(chars))])
	}
	return sb.String()
}

func randomValue(r *rand.Rand, nested bool) starlark.Value {
	kinds := 7
	if nested {
		kinds++
	}
	switch r.IntN(kinds) {
	case 0:
		return starlark.String(randomString(r, r.IntN(100)))
	case 1:
		return starlark.MakeInt64(r.Int64N(1<<53) - 1<<52)
	case 2:
		return starlark.Float(r.Float64() * math.MaxFloat64)
	case 3:
		return starlark.Bool(r.IntN(2) == 0)
	case 4:
		buf := make([]byte, r.IntN(100))
		for i := range buf {
			buf[i] = byte(r.Uint32())
		}
		return starlark.Bytes(buf)
	case 5:
		return starlark.MakeBigInt(new(big.Int).Lsh(big.NewInt(r.Int64()), 80))
	case 7:
		elems := make([]starlark.Value, r.IntN(10))
		for i := range elems {
			elems[i] = randomValue(r, true)
		}
		return starlark.NewList(elems)
	default:
		return starlark.None
	}
}

func randomObject(r *rand.Rand, breadth, depth int) starlark.Value {
	if depth == 0 {
		return randomValue(r, false)
	}
	d := starlark.NewDict(breadth)
	for i, n := 0, 1+r.IntN(breadth); i < n; i++ {
		d.SetKey(starlark.String(randomString(r, 1+r.IntN(16))), randomValue(r, false))
	}
	for i, n := 0, 1+r.IntN(breadth); i < n; i++ {
		d.SetKey(starlark.String(randomString(r, 1+r.IntN(16))), randomObject(r, breadth, depth-1))
	}
	return d
}

func TestSelfReferenceFails(t *testing.T) {
	list := starlark.NewList(nil)
	require.NoError(t, list.Append(list))

	_, err := Marshal(list)
	assert.ErrorIs(t, err, ErrDepth)
}

func TestUnsupported(t *testing.T) {
	_, err := Marshal(starlark.NewBuiltin("f", nil))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestUnmarshalRejectsBadInput(t *testing.T) {
	valid, err := Marshal(starlark.NewList([]starlark.Value{starlark.String("abc")}))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrMalformed},
		{"no header", []byte{0x01, 0x01, 0x00}, ErrMalformed},
		{"version", []byte{header, 2, 0}, ErrVersion},
		{"truncated", valid[:len(valid)-1], ErrMalformed},
		{"trailing", append(append([]byte{}, valid...), 0), ErrMalformed},
		{"unknown tag", []byte{header, version, 99}, ErrMalformed},
		{"huge length", []byte{header, version, byte(tagList), 0xff, 0xff, 0xff, 0x0f}, ErrMalformed},
		{"unhashable key", []byte{header, version, byte(tagDict), 1, byte(tagList), 0, byte(tagNone)}, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuiltins(t *testing.T) {
	predeclared := starlark.StringDict{
		"serialize":   Serialize(),
		"deserialize": Deserialize(),
	}
	globals, err := starlark.ExecFile(&starlark.Thread{Name: "test"}, "test.star", `
data = serialize({"k": [1, 2.5, (None, True)], "n": 1 << 70})
back = deserialize(data)
same = back == {"k": [1, 2.5, (None, True)], "n": 1 << 70}
kind = type(data)
`, predeclared)
	require.NoError(t, err)
	assert.Equal(t, starlark.True, globals["same"])
	assert.Equal(t, starlark.String("bytes"), globals["kind"])

	_, err = starlark.ExecFile(&starlark.Thread{Name: "test"}, "test.star", `deserialize("not bytes")`, predeclared)
	assert.Error(t, err)
}
