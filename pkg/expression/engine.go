package expression

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Engine compiles and caches boolean condition expressions
type Engine struct {
	programCache map[string]*vm.Program
	mu           sync.RWMutex
}

// NewEngine creates a new expression engine
func NewEngine() *Engine {
	return &Engine{
		programCache: make(map[string]*vm.Program),
	}
}

// Compile checks that expression is a valid boolean expression over env
func (e *Engine) Compile(expression string, env map[string]interface{}) error {
	_, err := e.getProgram(expression, env)
	return err
}

// EvaluateBool runs expression against env. An empty expression is true.
func (e *Engine) EvaluateBool(expression string, env map[string]interface{}) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := e.getProgram(expression, env)
	if err != nil {
		return false, err
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate %q: %w", expression, err)
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, want bool", expression, output)
	}
	return result, nil
}

func (e *Engine) getProgram(expression string, env map[string]interface{}) (*vm.Program, error) {
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

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile %q: %w", expression, err)
	}

	e.programCache[expression] = program
	return program, nil
}
