package builtin

import (
	"context"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/operation"
)

func collectionBlocks() []block {
	list := port("list", cty.DynamicPseudoType)
	return []block{
		{def("length", "number of elements", cty.Number, port("collection", cty.DynamicPseudoType)), operation.FromFunction("length", stdlib.LengthFunc)},
		{variadic(def("concat", "concatenate sequences", cty.DynamicPseudoType, port("seqs", cty.DynamicPseudoType))), operation.FromFunction("concat", stdlib.ConcatFunc)},
		{def("distinct", "drop repeated elements, keeping first occurrences", cty.DynamicPseudoType, list), operation.FromFunction("distinct", stdlib.DistinctFunc)},
		{def("sort", "sort strings lexically", cty.List(cty.String), port("list", cty.List(cty.String))), operation.FromFunction("sort", stdlib.SortFunc)},
		{def("reverse", "reverse a sequence", cty.DynamicPseudoType, list), operation.FromFunction("reverse", stdlib.ReverseListFunc)},
		{def("sum", "sum of a list of numbers", cty.Number, port("list", cty.List(cty.Number))), operation.Func("sum", sumList)},
		{def("stats_summary", "count, mean, sample variance, standard deviation, min and max of a non-empty list of numbers",
			summaryType, port("list", cty.List(cty.Number))), operation.Func("stats_summary", statsSummary)},
	}
}

var summaryType = cty.Object(map[string]cty.Type{
	"count":    cty.Number,
	"mean":     cty.Number,
	"variance": cty.Number,
	"std_dev":  cty.Number,
	"min":      cty.Number,
	"max":      cty.Number,
})

// statsSummary reports the sample variance. A single value has variance
// zero.
func statsSummary(_ context.Context, inv operation.Invocation) (cty.Value, error) {
	list := inv.Args[0]
	if list.IsNull() || list.LengthInt() == 0 {
		return cty.NilVal, errors.InvalidInput("list", "at least one value is required")
	}
	values := list.AsValueSlice()
	avg, err := mean(values)
	if err != nil {
		return cty.NilVal, err
	}
	lo, err := stdlib.Min(values...)
	if err != nil {
		return cty.NilVal, err
	}
	hi, err := stdlib.Max(values...)
	if err != nil {
		return cty.NilVal, err
	}

	variance := cty.Zero
	if len(values) > 1 {
		squares := make([]cty.Value, len(values))
		for i, v := range values {
			d := v.Subtract(avg)
			squares[i] = d.Multiply(d)
		}
		total, err := sum(squares)
		if err != nil {
			return cty.NilVal, err
		}
		variance = total.Divide(cty.NumberIntVal(int64(len(values) - 1)))
	}

	return cty.ObjectVal(map[string]cty.Value{
		"count":    cty.NumberIntVal(int64(len(values))),
		"mean":     avg,
		"variance": variance,
		"std_dev":  cty.NumberVal(sqrtBig(variance)),
		"min":      lo,
		"max":      hi,
	}), nil
}

func sumList(_ context.Context, inv operation.Invocation) (cty.Value, error) {
	list := inv.Args[0]
	if list.IsNull() {
		return cty.NilVal, errors.InvalidInput("list", "must not be null")
	}
	return sum(list.AsValueSlice())
}
