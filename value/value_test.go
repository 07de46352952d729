package value

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type conn struct{ addr string }

func TestOpaqueRoundTrip(t *testing.T) {
	c := &conn{addr: "db:5432"}
	v := Opaque(c)

	require.True(t, IsHandle(v))
	got, ok := Unwrap(v)
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = Unwrap(cty.StringVal("x"))
	assert.False(t, ok)
	_, ok = Unwrap(cty.NilVal)
	assert.False(t, ok)
	_, ok = Unwrap(cty.NullVal(HandleType))
	assert.False(t, ok)
}

func TestFromGo(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want cty.Value
	}{
		{"int", 3, cty.NumberIntVal(3)},
		{"string", "hi", cty.StringVal("hi")},
		{"bool", true, cty.True},
		{"slice", []string{"a", "b"}, cty.ListVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")})},
		{"map", map[string]int{"k": 1}, cty.MapVal(map[string]cty.Value{"k": cty.NumberIntVal(1)})},
		{"nil", nil, cty.NullVal(cty.DynamicPseudoType)},
		{"cty passthrough", cty.NumberIntVal(9), cty.NumberIntVal(9)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FromGo(tc.in)
			require.NoError(t, err)
			assert.True(t, Equal(tc.want, got), "expected %#v, got %#v", tc.want, got)
		})
	}

	_, err := FromGo(make(chan int))
	assert.Error(t, err)
}

func TestToGo(t *testing.T) {
	var n int
	require.NoError(t, ToGo(cty.StringVal("42"), &n))
	assert.Equal(t, 42, n)

	var s []string
	require.NoError(t, ToGo(cty.TupleVal([]cty.Value{cty.StringVal("a"), cty.NumberIntVal(1)}), &s))
	assert.Equal(t, []string{"a", "1"}, s)

	assert.Error(t, ToGo(cty.StringVal("x"), n))
	assert.Error(t, ToGo(cty.StringVal("not a number"), &n))
}

func TestCoerce(t *testing.T) {
	got, err := Coerce(cty.StringVal("2.5"), cty.Number)
	require.NoError(t, err)
	assert.True(t, got.RawEquals(cty.MustParseNumberVal("2.5")))

	same, err := Coerce(cty.True, cty.DynamicPseudoType)
	require.NoError(t, err)
	assert.True(t, same.RawEquals(cty.True))

	_, err = Coerce(cty.StringVal("abc"), cty.Number)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot use string as number")
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(cty.NilVal, cty.NilVal))
	assert.False(t, Equal(cty.NilVal, cty.Zero))
	assert.False(t, Equal(cty.NumberIntVal(1), cty.StringVal("1")))
	assert.True(t, Equal(cty.NumberIntVal(1), cty.NumberIntVal(1)))
}

func TestJSON(t *testing.T) {
	v := cty.ObjectVal(map[string]cty.Value{
		"n":      cty.NumberIntVal(2),
		"s":      cty.StringVal("x"),
		"handle": Opaque(&conn{}),
	})
	b, err := JSON(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2,"s":"x","handle":"<handle>"}`, string(b))

	b, err = JSON(cty.NilVal)
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestTypedJSONRoundTrip(t *testing.T) {
	v := cty.ObjectVal(map[string]cty.Value{
		"items": cty.ListVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(2)}),
		"name":  cty.StringVal("sum"),
	})
	b, err := TypedJSON(v)
	require.NoError(t, err)

	back, err := FromTypedJSON(b)
	require.NoError(t, err)
	assert.True(t, Equal(v, back), "round trip changed value: %s", String(back))
}

func TestFromJSON(t *testing.T) {
	v, err := FromJSON([]byte(`{"a":[1,2],"b":"c"}`))
	require.NoError(t, err)
	assert.True(t, v.Type().IsObjectType())
	assert.Equal(t, 2, v.GetAttr("a").LengthInt())

	_, err = FromJSON([]byte(`{nope`))
	assert.Error(t, err)
}

func TestString(t *testing.T) {
	assert.Equal(t, "nil", String(cty.NilVal))
	assert.Equal(t, `"x"`, String(cty.StringVal("x")))
	assert.True(t, strings.HasPrefix(String(cty.UnknownVal(cty.Number)), "(unknown"))
	assert.Equal(t, "nil", TypeName(cty.NilVal))
	assert.Equal(t, "number", TypeName(cty.Zero))
}
