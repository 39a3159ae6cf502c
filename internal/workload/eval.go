package workload

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// evalEnv is what an eval step can see.
type evalEnv struct {
	Unit    string
	Elapsed float64
	Last    any
}

// evaluate runs a JavaScript expression in a fresh VM. A body wrapped in
// ${ ... } runs as a function and must return its value.
func evaluate(expr string, env evalEnv) (any, error) {
	vm := goja.New()
	if err := vm.Set("unit", env.Unit); err != nil {
		return nil, fmt.Errorf("set unit: %w", err)
	}
	if err := vm.Set("elapsed", env.Elapsed); err != nil {
		return nil, fmt.Errorf("set elapsed: %w", err)
	}
	if err := vm.Set("last", env.Last); err != nil {
		return nil, fmt.Errorf("set last: %w", err)
	}

	code := strings.TrimSpace(expr)
	if strings.HasPrefix(code, "${") && strings.HasSuffix(code, "}") {
		body := strings.TrimSpace(code[2 : len(code)-1])
		code = fmt.Sprintf("(function() { %s })()", body)
	}

	val, err := vm.RunString(code)
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}
