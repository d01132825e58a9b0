package rules

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Predicate decides a boolean over a node's mapped input.
type Predicate interface {
	Evaluate(input map[string]interface{}) (bool, error)
}

// PredicateFunc is a function adapter for Predicate.
type PredicateFunc func(input map[string]interface{}) (bool, error)

// Evaluate implements the Predicate interface.
func (f PredicateFunc) Evaluate(input map[string]interface{}) (bool, error) {
	return f(input)
}

// Transformer rewrites a node's mapped input into its result.
type Transformer interface {
	Transform(input map[string]interface{}) (map[string]interface{}, error)
}

// TransformerFunc is a function adapter for Transformer.
type TransformerFunc func(input map[string]interface{}) (map[string]interface{}, error)

// Transform implements the Transformer interface.
func (f TransformerFunc) Transform(input map[string]interface{}) (map[string]interface{}, error) {
	return f(input)
}

// Evaluator evaluates string expressions against an execution context.
// Expression-backed conditions stay serializable where function-valued
// predicates do not.
type Evaluator interface {
	Evaluate(expression string, context map[string]interface{}) (bool, error)
}

// ExprEvaluator is an implementation of Evaluator using expr-lang/expr.
// Compiled programs are cached per expression string.
type ExprEvaluator struct {
	cache       map[string]*vm.Program
	mu          sync.RWMutex
	optionsFunc map[string]func(map[string]interface{}) interface{}
}

// NewExprEvaluator creates a new ExprEvaluator with an initialized cache.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{
		cache:       make(map[string]*vm.Program),
		optionsFunc: make(map[string]func(map[string]interface{}) interface{}),
	}
}

// AddOptionFunc registers a named helper computed from the context and made
// visible to every expression under that name.
func (e *ExprEvaluator) AddOptionFunc(name string, f func(map[string]interface{}) interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.optionsFunc[name] = f
}

// Condition adapts an expression into a Predicate evaluated by this evaluator.
func (e *ExprEvaluator) Condition(expression string) Predicate {
	return PredicateFunc(func(input map[string]interface{}) (bool, error) {
		return e.Evaluate(expression, input)
	})
}

// Evaluate evaluates the given expression against the provided context.
// The expression must evaluate to a boolean; otherwise, an error is returned.
// Returns false and an error if compilation, execution, or type assertion fails.
func (e *ExprEvaluator) Evaluate(expression string, context map[string]interface{}) (bool, error) {
	e.mu.RLock()
	for k, v := range e.optionsFunc {
		context[k] = v(context)
	}
	program, ok := e.cache[expression]
	e.mu.RUnlock()

	if !ok {
		// Compile with write lock
		e.mu.Lock()
		if program, ok = e.cache[expression]; !ok {
			var err error
			program, err = expr.Compile(expression, expr.Env(context))
			if err != nil {
				e.mu.Unlock()
				return false, err
			}
			e.cache[expression] = program
		}
		e.mu.Unlock()
	}

	result, err := expr.Run(program, context)
	if err != nil {
		return false, err
	}

	if boolResult, ok := result.(bool); ok {
		return boolResult, nil
	}
	return false, fmt.Errorf("expression '%s' did not evaluate to a boolean, got %T", expression, result)
}
