package tagscript

import (
	"fmt"
	"sort"
	"strings"
)

// Block is a named executable unit of a template.
//
// Lazy reports whether the evaluator must hand the payload over unresolved.
// Eager blocks receive both parameter and payload resolved; lazy blocks
// receive the resolved parameter and the raw payload, and call
// Context.Resolve on whatever part they decide to render.
type Block interface {
	Names() []string
	Lazy() bool
	Process(ctx *Context, v Verb) Result
}

// Fallback is a block consulted when no named block matches a declaration.
// Fallbacks declare no names.
type Fallback interface {
	Block
	Accepts(ctx *Context, declaration string) bool
}

// Action is a named side effect collected apart from the body
type Action struct {
	Name  string
	Value any
}

// Result is the outcome of one block execution.
//
// The zero value rejects the expression, which renders its source literally.
type Result struct {
	Text    string
	Action  *Action
	Handled bool
	// Stop halts the evaluation of the rest of the template.
	Stop bool
}

// Output returns a handled result contributing text to the body
func Output(text string) Result {
	return Result{Text: text, Handled: true}
}

// SetAction returns a handled result that sets an action and adds no text
func SetAction(name string, value any) Result {
	return Result{Action: &Action{Name: name, Value: value}, Handled: true}
}

// Reject returns a result that leaves the expression as literal text
func Reject() Result {
	return Result{}
}

type eager struct{}

func (eager) Lazy() bool { return false }

type lazy struct{}

func (lazy) Lazy() bool { return true }

// Registry is the immutable name → block dispatch table
type Registry struct {
	named     map[string]Block
	fallbacks []Fallback
}

// NewRegistry builds a registry from blocks. Block names are case-insensitive
// and must be unique.
func NewRegistry(blocks ...Block) (*Registry, error) {
	r := &Registry{named: make(map[string]Block)}

	for _, block := range blocks {
		names := block.Names()
		if len(names) == 0 {
			fallback, ok := block.(Fallback)
			if !ok {
				return nil, fmt.Errorf("block %T declares no names", block)
			}
			r.fallbacks = append(r.fallbacks, fallback)
			continue
		}

		for _, name := range names {
			key := strings.ToLower(name)
			if key == "" {
				return nil, fmt.Errorf("block %T declares an empty name", block)
			}
			if existing, ok := r.named[key]; ok {
				return nil, fmt.Errorf("block name %q declared by both %T and %T", key, existing, block)
			}
			r.named[key] = block
		}
	}

	return r, nil
}

// Lookup returns the block handling a declaration, or nil
func (r *Registry) Lookup(ctx *Context, declaration string) Block {
	if block, ok := r.named[strings.ToLower(declaration)]; ok {
		return block
	}
	for _, fallback := range r.fallbacks {
		if fallback.Accepts(ctx, declaration) {
			return fallback
		}
	}
	return nil
}

// Names returns the sorted list of registered block names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.named))
	for name := range r.named {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
