package tagscript

import "strings"

// VariableGetterBlock resolves {name} and {name(param)} against the adapters
// bound in the current evaluation.
type VariableGetterBlock struct{ eager }

// NewVariableGetterBlock creates a new variable getter
func NewVariableGetterBlock() *VariableGetterBlock {
	return &VariableGetterBlock{}
}

// Names returns nil; the getter is a fallback consulted after named blocks
func (b *VariableGetterBlock) Names() []string { return nil }

// Accepts reports whether an adapter is bound under the declaration
func (b *VariableGetterBlock) Accepts(ctx *Context, declaration string) bool {
	return ctx.HasVariable(declaration)
}

// Process resolves the adapter
func (b *VariableGetterBlock) Process(ctx *Context, v Verb) Result {
	adapter, ok := ctx.Variable(v.Declaration)
	if !ok {
		return Reject()
	}
	value, ok := adapter.Resolve(v)
	if !ok {
		return Reject()
	}
	return Output(value)
}

// AssignmentBlock binds {assign(name):value} for the rest of the evaluation
type AssignmentBlock struct{ eager }

// NewAssignmentBlock creates a new assignment block
func NewAssignmentBlock() *AssignmentBlock {
	return &AssignmentBlock{}
}

// Names returns the accepted declarations
func (b *AssignmentBlock) Names() []string {
	return []string{"=", "assign", "let", "var"}
}

// Process binds the payload, clipped to the output bound, as a string adapter
func (b *AssignmentBlock) Process(ctx *Context, v Verb) Result {
	if v.Parameter == nil || v.Payload == nil {
		return Reject()
	}
	name := strings.TrimSpace(*v.Parameter)
	if name == "" {
		return Reject()
	}
	ctx.SetVariable(name, NewStringAdapter(ctx.Clip(*v.Payload)))
	return Output("")
}
