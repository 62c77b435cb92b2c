// Package cel compiles CEL expressions used by repository queries: boolean filters over one entity and
// comparers ordering two entities. Entities are presented to expressions as map[string]any.
package cel

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/google/cel-go/cel"
)

// Evaluator holds a compiled comparer expression over two entities, mapX & mapY, that yields
// -1, 0 or 1 like a compare function.
type Evaluator struct {
	Expression string
	program    cel.Program
}

// NewEvaluator compiles a comparer expression, e.g. "mapX['age'] < mapY['age'] ? -1 : mapX['age'] > mapY['age'] ? 1 : 0".
func NewEvaluator(name string, expression string) (*Evaluator, error) {
	if name == "" {
		return nil, fmt.Errorf("name can't be empty string")
	}
	if expression == "" {
		return nil, fmt.Errorf("expression can't be empty string")
	}

	env, err := cel.NewEnv(
		cel.Variable("mapX", cel.MapType(cel.StringType, cel.AnyType)),
		cel.Variable("mapY", cel.MapType(cel.StringType, cel.AnyType)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %v", err)
	}
	p, err := compile(env, expression)
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		Expression: expression,
		program:    p,
	}, nil
}

// Evaluate runs the comparer against mapX & mapY.
func (e *Evaluator) Evaluate(mapX map[string]any, mapY map[string]any) (int, error) {
	out, _, err := e.program.Eval(map[string]any{
		"mapX": mapX,
		"mapY": mapY,
	})
	if err != nil {
		return 0, fmt.Errorf("error evaluating CEL expression: %v", err)
	}
	nv, err := out.ConvertToNative(reflect.TypeOf(int(0)))
	if err != nil {
		return 0, fmt.Errorf("error ConvertToNative, got err: %v", err)
	}
	if v, ok := nv.(int); !ok {
		return 0, fmt.Errorf("error converting to int, nv: %v", nv)
	} else {
		return v, nil
	}
}

// SortBy orders items with the comparer applied to their map form, keeping the original order of equal
// items. On an evaluation error items are left untouched.
func SortBy[T any](e *Evaluator, items []T, toMap func(T) map[string]any) error {
	maps := make([]map[string]any, len(items))
	for i := range items {
		maps[i] = toMap(items[i])
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	var lastErr error
	sort.SliceStable(idx, func(i, j int) bool {
		if lastErr != nil {
			return false
		}
		r, err := e.Evaluate(maps[idx[i]], maps[idx[j]])
		if err != nil {
			lastErr = err
			return false
		}
		return r < 0
	})
	if lastErr != nil {
		return lastErr
	}
	sorted := make([]T, len(items))
	for i, k := range idx {
		sorted[i] = items[k]
	}
	copy(items, sorted)
	return nil
}

// Filter holds a compiled boolean expression over one entity, exposed as the variable "entity".
type Filter struct {
	Expression string
	program    cel.Program
}

// NewFilter compiles a filter expression, e.g. "entity['Status'] == 'open' && entity['Total'] > 10.0".
func NewFilter(expression string) (*Filter, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression can't be empty string")
	}
	env, err := cel.NewEnv(
		cel.Variable("entity", cel.MapType(cel.StringType, cel.AnyType)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %v", err)
	}
	p, err := compile(env, expression)
	if err != nil {
		return nil, err
	}
	return &Filter{
		Expression: expression,
		program:    p,
	}, nil
}

// Match reports whether entity satisfies the filter. An expression that does not yield a bool is an error.
func (f *Filter) Match(entity map[string]any) (bool, error) {
	out, _, err := f.program.Eval(map[string]any{
		"entity": entity,
	})
	if err != nil {
		return false, fmt.Errorf("error evaluating CEL filter: %v", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter '%s' yielded %v, not a bool", f.Expression, out.Value())
	}
	return b, nil
}

func compile(env *cel.Env, expression string) (cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error compiling CEL expression: %v", issues.Err())
	}
	p, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("error creating Program: %v", err)
	}
	return p, nil
}
