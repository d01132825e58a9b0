package rules

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestExprEvaluator tests the ExprEvaluator implementation.
func TestExprEvaluator(t *testing.T) {
	evaluator := NewExprEvaluator()

	tests := []struct {
		name       string
		expression string
		context    map[string]interface{}
		wantResult bool
		wantErr    bool
		errMsg     string
	}{
		{
			name:       "Valid true expression",
			expression: "score > 60",
			context:    map[string]interface{}{"score": 85},
			wantResult: true,
			wantErr:    false,
		},
		{
			name:       "Valid false expression",
			expression: "score < 60",
			context:    map[string]interface{}{"score": 85},
			wantResult: false,
			wantErr:    false,
		},
		{
			name:       "Non-boolean result",
			expression: "score + 5",
			context:    map[string]interface{}{"score": 85},
			wantResult: false,
			wantErr:    true,
			errMsg:     "expression 'score + 5' did not evaluate to a boolean, got int",
		},
		{
			name:       "Invalid expression",
			expression: "score >>> 60", // Invalid syntax
			context:    map[string]interface{}{"score": 85},
			wantResult: false,
			wantErr:    true,
			errMsg:     "unexpected token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(tt.expression, tt.context)
			if tt.wantErr {
				assert.Error(t, err, "Evaluate() should return an error")
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg, "Error message should match")
				}
				assert.Equal(t, tt.wantResult, result, "Evaluate() result should match even with error")
			} else {
				assert.NoError(t, err, "Evaluate() should not return an error")
				assert.Equal(t, tt.wantResult, result, "Evaluate() result should match")
			}
		})
	}

	// Evaluate the same expression twice and ensure consistent results
	t.Run("Caching works", func(t *testing.T) {
		expr := "score > 10"
		context := map[string]interface{}{"score": 15}

		result1, err1 := evaluator.Evaluate(expr, context)
		assert.NoError(t, err1)
		assert.True(t, result1)

		result2, err2 := evaluator.Evaluate(expr, context)
		assert.NoError(t, err2)
		assert.True(t, result2)
	})

	// Multiple goroutines evaluating expressions
	t.Run("Concurrent evaluation", func(t *testing.T) {
		var wg sync.WaitGroup
		numGoroutines := 100
		expr := "value > 0"
		context := map[string]interface{}{"value": 42}

		wg.Add(numGoroutines)
		for i := 0; i < numGoroutines; i++ {
			go func() {
				defer wg.Done()
				result, err := evaluator.Evaluate(expr, context)
				assert.NoError(t, err)
				assert.True(t, result)
			}()
		}
		wg.Wait()
	})
}

// TestExprEvaluatorOptionFunc tests context helpers registered via AddOptionFunc.
func TestExprEvaluatorOptionFunc(t *testing.T) {
	evaluator := NewExprEvaluator()
	evaluator.AddOptionFunc("passed", func(ctx map[string]interface{}) interface{} {
		score, _ := ctx["score"].(int)
		return score >= 60
	})

	result, err := evaluator.Evaluate("passed", map[string]interface{}{"score": 72})
	assert.NoError(t, err)
	assert.True(t, result)
}

// TestCondition tests adapting an expression into a Predicate.
func TestCondition(t *testing.T) {
	evaluator := NewExprEvaluator()
	pred := evaluator.Condition("conditionInput > 3")

	ok, err := pred.Evaluate(map[string]interface{}{"conditionInput": 5})
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = pred.Evaluate(map[string]interface{}{"conditionInput": 1})
	assert.NoError(t, err)
	assert.False(t, ok)
}

// TestFuncAdapters tests the function adapters for Predicate and Transformer.
func TestFuncAdapters(t *testing.T) {
	pred := PredicateFunc(func(input map[string]interface{}) (bool, error) {
		return input["ready"] == true, nil
	})
	ok, err := pred.Evaluate(map[string]interface{}{"ready": true})
	assert.NoError(t, err)
	assert.True(t, ok)

	wantErr := errors.New("transform failed")
	tr := TransformerFunc(func(input map[string]interface{}) (map[string]interface{}, error) {
		if input == nil {
			return nil, wantErr
		}
		return map[string]interface{}{"doubled": input["n"].(int) * 2}, nil
	})

	out, err := tr.Transform(map[string]interface{}{"n": 4})
	assert.NoError(t, err)
	assert.Equal(t, 8, out["doubled"])

	_, err = tr.Transform(nil)
	assert.ErrorIs(t, err, wantErr)
}

// BenchmarkEvaluate benchmarks the performance of Evaluate with caching.
func BenchmarkEvaluate(b *testing.B) {
	evaluator := NewExprEvaluator()
	expression := "x > 5"
	context := map[string]interface{}{"x": 10}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = evaluator.Evaluate(expression, context)
	}
}
