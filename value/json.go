package value

import (
	"encoding/json"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// HandlePlaceholder is the JSON rendering of an opaque handle.
const HandlePlaceholder = "<handle>"

// Typed is the JSON envelope produced by TypedJSON.
type Typed struct {
	Value json.RawMessage `json:"value"`
	Type  json.RawMessage `json:"type"`
}

// JSON renders v as plain JSON. Handles render as HandlePlaceholder.
func JSON(v cty.Value) ([]byte, error) {
	if v == cty.NilVal {
		return []byte("null"), nil
	}
	v, err := stripHandles(v)
	if err != nil {
		return nil, err
	}
	return ctyjson.SimpleJSONValue{Value: v}.MarshalJSON()
}

// TypedJSON renders v together with its type so it can be read back
// without losing type information.
func TypedJSON(v cty.Value) ([]byte, error) {
	if v == cty.NilVal {
		v = cty.NullVal(cty.DynamicPseudoType)
	}
	v, err := stripHandles(v)
	if err != nil {
		return nil, err
	}
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	ty, err := ctyjson.MarshalType(v.Type())
	if err != nil {
		return nil, fmt.Errorf("marshal type: %w", err)
	}
	return json.Marshal(Typed{Value: raw, Type: ty})
}

// FromJSON parses plain JSON, inferring the cty type from its shape.
func FromJSON(data []byte) (cty.Value, error) {
	var sv ctyjson.SimpleJSONValue
	if err := sv.UnmarshalJSON(data); err != nil {
		return cty.NilVal, err
	}
	return sv.Value, nil
}

// FromTypedJSON reads the envelope written by TypedJSON.
func FromTypedJSON(data []byte) (cty.Value, error) {
	var env Typed
	if err := json.Unmarshal(data, &env); err != nil {
		return cty.NilVal, err
	}
	ty, err := ctyjson.UnmarshalType(env.Type)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unmarshal type: %w", err)
	}
	return ctyjson.Unmarshal(env.Value, ty)
}

// String renders v for logs and error messages.
func String(v cty.Value) string {
	if v == cty.NilVal {
		return "nil"
	}
	if !v.IsWhollyKnown() {
		return "(unknown " + v.Type().FriendlyName() + ")"
	}
	b, err := JSON(v)
	if err != nil {
		return "(" + v.Type().FriendlyName() + ")"
	}
	return string(b)
}

func stripHandles(v cty.Value) (cty.Value, error) {
	return cty.Transform(v, func(_ cty.Path, v cty.Value) (cty.Value, error) {
		if IsHandle(v) {
			return cty.StringVal(HandlePlaceholder), nil
		}
		return v, nil
	})
}
