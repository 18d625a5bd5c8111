package cel

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

const (
	// maxCachedPrograms bounds the compiled program cache. Tag arguments make
	// most expressions unique, so the cache is reset rather than grown forever.
	maxCachedPrograms = 1024

	// maxCost caps the runtime cost of a single expression
	maxCost = 10000
)

var (
	// ErrInvalidExpression is returned for expressions outside plain arithmetic
	ErrInvalidExpression = errors.New("invalid arithmetic expression")

	numberLiteral = regexp.MustCompile(`\d+\.\d*|\.\d+|\d+`)
)

// Evaluator evaluates arithmetic expressions with CEL
type Evaluator struct {
	env   *cel.Env
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewEvaluator creates a new CEL arithmetic evaluator
func NewEvaluator() *Evaluator {
	env, err := cel.NewEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to create CEL environment: %v", err))
	}

	return &Evaluator{
		env:   env,
		cache: make(map[string]cel.Program),
	}
}

// Calculate evaluates an arithmetic expression made of numbers, + - * /,
// parentheses and whitespace. Every number is evaluated as a double.
func (e *Evaluator) Calculate(expression string) (float64, error) {
	normalized, err := normalize(expression)
	if err != nil {
		return 0, err
	}

	program, err := e.getProgram(normalized)
	if err != nil {
		return 0, fmt.Errorf("failed to compile expression: %w", err)
	}

	out, _, err := program.Eval(map[string]any{})
	if err != nil {
		return 0, fmt.Errorf("evaluation failed: %w", err)
	}

	value, ok := out.Value().(float64)
	if !ok {
		return 0, fmt.Errorf("%w: result is %s", ErrInvalidExpression, out.Type().TypeName())
	}
	return value, nil
}

// normalize rejects anything but arithmetic and rewrites integer literals as
// doubles, since CEL has no implicit int/double promotion.
func normalize(expression string) (string, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidExpression)
	}

	for _, r := range expression {
		switch {
		case r >= '0' && r <= '9':
		case strings.ContainsRune("+-*/(). \t\n", r):
		default:
			return "", fmt.Errorf("%w: unexpected %q", ErrInvalidExpression, r)
		}
	}

	return numberLiteral.ReplaceAllStringFunc(expression, func(lit string) string {
		switch {
		case strings.HasSuffix(lit, "."):
			return lit + "0"
		case !strings.Contains(lit, "."):
			return lit + ".0"
		default:
			return lit
		}
	}), nil
}

// getProgram gets a compiled program from cache or compiles it
func (e *Evaluator) getProgram(expression string) (cel.Program, error) {
	e.mu.RLock()
	if program, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return program, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Check again in case another goroutine compiled it
	if program, ok := e.cache[expression]; ok {
		return program, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("parse error: %w", issues.Err())
	}

	program, err := e.env.Program(ast, cel.CostLimit(maxCost))
	if err != nil {
		return nil, fmt.Errorf("program generation error: %w", err)
	}

	if len(e.cache) >= maxCachedPrograms {
		e.cache = make(map[string]cel.Program)
	}
	e.cache[expression] = program

	return program, nil
}
