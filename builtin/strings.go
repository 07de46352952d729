package builtin

import (
	"context"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/kbukum/flowkit/operation"
)

func stringBlocks() []block {
	s := port("s", cty.String)
	sep := port("sep", cty.String)
	return []block{
		{variadic(def("concat", "join parts with sep", cty.String, sep, port("parts", cty.String))), operation.Func("concat", concatStrings)},
		{def("split", "split s at every sep", cty.List(cty.String), sep, s), operation.FromFunction("split", stdlib.SplitFunc)},
		{def("trim", "strip leading and trailing whitespace", cty.String, s), operation.FromFunction("trim", stdlib.TrimSpaceFunc)},
		{def("upper", "upper-case s", cty.String, s), operation.FromFunction("upper", stdlib.UpperFunc)},
		{def("lower", "lower-case s", cty.String, s), operation.FromFunction("lower", stdlib.LowerFunc)},
		{variadic(def("format", "printf-style formatting", cty.String, port("format", cty.String), port("args", cty.DynamicPseudoType))), operation.FromFunction("format", stdlib.FormatFunc)},
		{def("length", "number of characters in s", cty.Number, s), operation.FromFunction("length", stdlib.StrlenFunc)},
	}
}

func concatStrings(_ context.Context, inv operation.Invocation) (cty.Value, error) {
	parts := cty.ListValEmpty(cty.String)
	if len(inv.Args) > 1 {
		parts = cty.ListVal(inv.Args[1:])
	}
	return stdlib.Join(inv.Args[0], parts)
}
