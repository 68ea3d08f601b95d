package selector

import "github.com/vango-dev/slicestore/pkg/store"

var defaultEvaluator = New()

// Use evaluates expression against key's value inside a component render,
// re-evaluating whenever the value changes. It panics like
// store.UseSelector for a missing key, and with an *Error when the
// expression fails.
func Use(key, expression string) any {
	return store.UseSelector(key, func(v any) any {
		out, err := defaultEvaluator.Eval(expression, v)
		if err != nil {
			panic(err)
		}
		return out
	})
}
