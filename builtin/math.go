package builtin

import (
	"context"
	"fmt"
	"math/big"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/operation"
)

func mathBlocks() []block {
	a, b := port("a", cty.Number), port("b", cty.Number)
	xs := port("xs", cty.Number)
	return []block{
		{def("add", "a + b", cty.Number, a, b), operation.FromFunction("add", stdlib.AddFunc)},
		{def("subtract", "a - b", cty.Number, a, b), operation.FromFunction("subtract", stdlib.SubtractFunc)},
		{def("multiply", "a * b", cty.Number, a, b), operation.FromFunction("multiply", stdlib.MultiplyFunc)},
		{def("divide", "a / b; b must not be zero", cty.Number, a, b), operation.Func("divide", divide)},
		{def("modulo", "a % b; b must not be zero", cty.Number, a, b), operation.Func("modulo", modulo)},
		{def("negate", "-a", cty.Number, a), operation.FromFunction("negate", stdlib.NegateFunc)},
		{variadic(def("max", "largest of one or more numbers", cty.Number, xs)), operation.Func("max", nonEmpty(stdlib.MaxFunc.Call))},
		{variadic(def("min", "smallest of one or more numbers", cty.Number, xs)), operation.Func("min", nonEmpty(stdlib.MinFunc.Call))},
		{def("abs", "|a|", cty.Number, a), operation.FromFunction("abs", stdlib.AbsoluteFunc)},
		{def("ceil", "smallest integer >= a", cty.Number, a), operation.FromFunction("ceil", stdlib.CeilFunc)},
		{def("floor", "largest integer <= a", cty.Number, a), operation.FromFunction("floor", stdlib.FloorFunc)},
		{variadic(def("mean", "arithmetic mean of one or more numbers", cty.Number, xs)), operation.Func("mean", nonEmpty(mean))},
		{def("sqrt", "square root of a; a must not be negative", cty.Number, a), operation.Func("sqrt", sqrt)},
		{def("vector_add", "element-wise sum of two lists of equal length", cty.List(cty.Number),
			port("a", cty.List(cty.Number)), port("b", cty.List(cty.Number))), operation.Func("vector_add", vectorAdd)},
		{def("fixed_multiply", "a * b in signed 32.32 fixed point, as a decimal string", cty.String,
			port("a", cty.String), port("b", cty.String)), operation.Func("fixed_multiply", fixedMultiply)},
	}
}

func sqrt(_ context.Context, inv operation.Invocation) (cty.Value, error) {
	v := inv.Args[0]
	if v.LessThan(cty.Zero).True() {
		return cty.NilVal, errors.InvalidInput("a", "square root of a negative number")
	}
	return cty.NumberVal(sqrtBig(v)), nil
}

func sqrtBig(v cty.Value) *big.Float {
	f := v.AsBigFloat()
	return new(big.Float).SetPrec(f.Prec()).Sqrt(f)
}

func vectorAdd(_ context.Context, inv operation.Invocation) (cty.Value, error) {
	a, b := inv.Args[0], inv.Args[1]
	if a.IsNull() || b.IsNull() {
		return cty.NilVal, errors.InvalidInput("a", "vectors must not be null")
	}
	if a.LengthInt() != b.LengthInt() {
		return cty.NilVal, errors.InvalidInput("b",
			fmt.Sprintf("length %d does not match a's length %d", b.LengthInt(), a.LengthInt()))
	}
	if a.LengthInt() == 0 {
		return cty.ListValEmpty(cty.Number), nil
	}
	as, bs := a.AsValueSlice(), b.AsValueSlice()
	out := make([]cty.Value, len(as))
	for i := range as {
		v, err := stdlib.Add(as[i], bs[i])
		if err != nil {
			return cty.NilVal, err
		}
		out[i] = v
	}
	return cty.ListVal(out), nil
}

// fixedFrac is the number of fractional bits of a fixed-point value.
const fixedFrac = 32

var (
	fixedOne = new(big.Float).SetMantExp(big.NewFloat(1), fixedFrac)
	fixedMin = new(big.Int).Lsh(big.NewInt(-1), 63)
	fixedMax = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 63), big.NewInt(1))
)

func fixedMultiply(_ context.Context, inv operation.Invocation) (cty.Value, error) {
	a, err := toFixed("a", inv.Args[0])
	if err != nil {
		return cty.NilVal, err
	}
	b, err := toFixed("b", inv.Args[1])
	if err != nil {
		return cty.NilVal, err
	}
	p := new(big.Int).Mul(a, b)
	p.Rsh(p, fixedFrac)
	if !inFixedRange(p) {
		return cty.NilVal, errors.InvalidInput("b", "product overflows the fixed-point range")
	}
	f := new(big.Float).SetInt(p)
	return cty.StringVal(f.SetMantExp(f, -fixedFrac).Text('f', -1)), nil
}

// toFixed parses a decimal string into its raw 32.32 representation,
// truncating bits below the fixed-point resolution.
func toFixed(port string, v cty.Value) (*big.Int, error) {
	if v.IsNull() {
		return nil, errors.InvalidInput(port, "must not be null")
	}
	n, err := cty.ParseNumberVal(v.AsString())
	if err != nil {
		return nil, errors.InvalidInput(port, fmt.Sprintf("invalid fixed-point number %q", v.AsString()))
	}
	raw, _ := new(big.Float).Mul(n.AsBigFloat(), fixedOne).Int(nil)
	if !inFixedRange(raw) {
		return nil, errors.InvalidInput(port, fmt.Sprintf("%s is outside the fixed-point range", v.AsString()))
	}
	return raw, nil
}

func inFixedRange(raw *big.Int) bool {
	return raw.Cmp(fixedMin) >= 0 && raw.Cmp(fixedMax) <= 0
}

func divide(_ context.Context, inv operation.Invocation) (cty.Value, error) {
	if isZero(inv.Args[1]) {
		return cty.NilVal, errors.InvalidInput("b", "division by zero")
	}
	return stdlib.Divide(inv.Args[0], inv.Args[1])
}

func modulo(_ context.Context, inv operation.Invocation) (cty.Value, error) {
	if isZero(inv.Args[1]) {
		return cty.NilVal, errors.InvalidInput("b", "modulo by zero")
	}
	return stdlib.Modulo(inv.Args[0], inv.Args[1])
}

func isZero(v cty.Value) bool {
	return v.IsKnown() && !v.IsNull() && v.Equals(cty.Zero).True()
}

// nonEmpty rejects a call without arguments before fn sees it.
func nonEmpty(fn func([]cty.Value) (cty.Value, error)) operation.ExecuteFunc {
	return func(_ context.Context, inv operation.Invocation) (cty.Value, error) {
		if len(inv.Args) == 0 {
			return cty.NilVal, errors.InvalidInput("xs", "at least one value is required")
		}
		return fn(inv.Args)
	}
}

func mean(args []cty.Value) (cty.Value, error) {
	total, err := sum(args)
	if err != nil {
		return cty.NilVal, err
	}
	return stdlib.Divide(total, cty.NumberIntVal(int64(len(args))))
}

// sum folds values with stdlib.Add. The empty sum is zero.
func sum(values []cty.Value) (cty.Value, error) {
	total := cty.Zero
	for _, v := range values {
		var err error
		if total, err = stdlib.Add(total, v); err != nil {
			return cty.NilVal, err
		}
	}
	return total, nil
}
