package expression

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Engine is a wrapper around expr-lang/expr that compiles each predicate once
type Engine struct {
	programCache map[string]*vm.Program
	mu           sync.RWMutex
}

// NewEngine creates a new expression engine
func NewEngine() *Engine {
	return &Engine{programCache: make(map[string]*vm.Program)}
}

// EvaluateBool runs a predicate. The expression must produce a boolean.
func (e *Engine) EvaluateBool(expression string, env map[string]any) (bool, error) {
	program, err := e.getProgram(expression, env)
	if err != nil {
		return false, err
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q produced %T, not bool", expression, output)
	}
	return result, nil
}

// ValidateBool compiles a predicate against a prototype environment without running it
func (e *Engine) ValidateBool(expression string, env map[string]any) error {
	_, err := e.getProgram(expression, env)
	return err
}

func (e *Engine) getProgram(expression string, env map[string]any) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.programCache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double check
	if prog, ok := e.programCache[expression]; ok {
		return prog, nil
	}

	options := []expr.Option{
		expr.Env(env),
		expr.Function("LOWER", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("LOWER requires 1 argument")
			}
			s, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("LOWER argument must be string")
			}
			return strings.ToLower(s), nil
		}),
		expr.Function("HAS", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("HAS requires 2 arguments (collection, value)")
			}
			return contains(params[0], params[1]), nil
		}),
		expr.AsBool(),
	}

	program, err := expr.Compile(expression, options...)
	if err != nil {
		return nil, err
	}

	e.programCache[expression] = program
	return program, nil
}

// contains reports whether a claim, either a list or a space separated string
// like an OAuth scope, holds value.
func contains(collection, value any) bool {
	switch c := collection.(type) {
	case []any:
		for _, item := range c {
			if item == value {
				return true
			}
		}
	case []string:
		for _, item := range c {
			if item == value {
				return true
			}
		}
	case string:
		s, ok := value.(string)
		if !ok {
			return false
		}
		for _, field := range strings.Fields(c) {
			if field == s {
				return true
			}
		}
	}
	return false
}
