package value

import (
	"fmt"
	"reflect"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

type handle struct {
	v any
}

// HandleType is the capsule type for opaque host values.
var HandleType = cty.Capsule("handle", reflect.TypeOf(handle{}))

// Opaque wraps an arbitrary Go value in a HandleType capsule.
func Opaque(v any) cty.Value {
	return cty.CapsuleVal(HandleType, &handle{v: v})
}

// Unwrap returns the Go value wrapped by Opaque.
func Unwrap(v cty.Value) (any, bool) {
	if v == cty.NilVal || !v.Type().Equals(HandleType) || !v.IsKnown() || v.IsNull() {
		return nil, false
	}
	h, ok := v.EncapsulatedValue().(*handle)
	if !ok {
		return nil, false
	}
	return h.v, true
}

// IsHandle reports whether v is a HandleType capsule.
func IsHandle(v cty.Value) bool {
	return v != cty.NilVal && v.Type().Equals(HandleType)
}

// FromGo converts a native Go value, inferring its cty type.
// A nil input becomes a dynamic null.
func FromGo(v any) (cty.Value, error) {
	if v == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	if cv, ok := v.(cty.Value); ok {
		return cv, nil
	}
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unable to infer cty.Type for %T: %w", v, err)
	}
	return gocty.ToCtyValue(v, ty)
}

// ToGo decodes v into the Go value target points to, converting v to the
// type implied by target first when possible.
func ToGo(v cty.Value, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer, got %T", target)
	}
	ty, err := gocty.ImpliedType(rv.Elem().Interface())
	if err != nil {
		return gocty.FromCtyValue(v, target)
	}
	converted, err := convert.Convert(v, ty)
	if err != nil {
		return fmt.Errorf("cannot convert %s to %s: %w", v.Type().FriendlyName(), ty.FriendlyName(), err)
	}
	return gocty.FromCtyValue(converted, target)
}

// Coerce converts v to ty. cty.DynamicPseudoType accepts any value
// unchanged.
func Coerce(v cty.Value, ty cty.Type) (cty.Value, error) {
	if ty == cty.NilType || ty.Equals(cty.DynamicPseudoType) {
		return v, nil
	}
	out, err := convert.Convert(v, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("cannot use %s as %s: %w", v.Type().FriendlyName(), ty.FriendlyNameForConstraint(), err)
	}
	return out, nil
}

// Equal reports whether a and b are identical, including their types.
func Equal(a, b cty.Value) bool {
	if a == cty.NilVal || b == cty.NilVal {
		return a == cty.NilVal && b == cty.NilVal
	}
	return a.RawEquals(b)
}

// TypeName returns a short human-readable name for the type of v.
func TypeName(v cty.Value) string {
	if v == cty.NilVal {
		return "nil"
	}
	return v.Type().FriendlyName()
}
