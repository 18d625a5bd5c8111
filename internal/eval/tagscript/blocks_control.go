package tagscript

import "strings"

// IfBlock renders one of two branches: {if({args}==yes):Agreed|Refused}.
// Only the chosen branch is evaluated.
type IfBlock struct{ lazy }

// NewIfBlock creates a new if block
func NewIfBlock() *IfBlock {
	return &IfBlock{}
}

// Names returns the accepted declarations
func (b *IfBlock) Names() []string {
	return []string{"if"}
}

// Process evaluates the condition and resolves the matching branch
func (b *IfBlock) Process(ctx *Context, v Verb) Result {
	if v.Parameter == nil || v.Payload == nil {
		return Reject()
	}
	ok, valid := EvaluateCondition(*v.Parameter)
	if !valid {
		return Reject()
	}
	return Output(branch(ctx, *v.Payload, ok))
}

// AnyBlock is the disjunction of conditions separated by "|":
// {any({args}==hi|{args}==hello):Welcome!|Bye.}
type AnyBlock struct{ lazy }

// NewAnyBlock creates a new any block
func NewAnyBlock() *AnyBlock {
	return &AnyBlock{}
}

// Names returns the accepted declarations
func (b *AnyBlock) Names() []string {
	return []string{"any", "or"}
}

// Process resolves the then branch when any condition holds
func (b *AnyBlock) Process(ctx *Context, v Verb) Result {
	results, ok := conditions(v)
	if !ok {
		return Reject()
	}
	matched := false
	for _, r := range results {
		matched = matched || r
	}
	return Output(branch(ctx, *v.Payload, matched))
}

// AllBlock is the conjunction of conditions separated by "|"
type AllBlock struct{ lazy }

// NewAllBlock creates a new all block
func NewAllBlock() *AllBlock {
	return &AllBlock{}
}

// Names returns the accepted declarations
func (b *AllBlock) Names() []string {
	return []string{"all", "and"}
}

// Process resolves the then branch when every condition holds
func (b *AllBlock) Process(ctx *Context, v Verb) Result {
	results, ok := conditions(v)
	if !ok {
		return Reject()
	}
	matched := true
	for _, r := range results {
		matched = matched && r
	}
	return Output(branch(ctx, *v.Payload, matched))
}

// BreakBlock replaces the whole output with its payload and stops when the
// condition holds: {break({args}==):Provide an argument.}
type BreakBlock struct{ lazy }

// NewBreakBlock creates a new break block
func NewBreakBlock() *BreakBlock {
	return &BreakBlock{}
}

// Names returns the accepted declarations
func (b *BreakBlock) Names() []string {
	return []string{"break", "short", "shortcircuit"}
}

// Process halts evaluation when the condition holds
func (b *BreakBlock) Process(ctx *Context, v Verb) Result {
	if v.Parameter == nil {
		return Reject()
	}
	ok, valid := EvaluateCondition(*v.Parameter)
	if !valid {
		return Reject()
	}
	if !ok {
		return Output("")
	}
	ctx.ReplaceBody(ctx.Resolve(v.PayloadValue()))
	return Result{Handled: true, Stop: true}
}

// StopBlock halts evaluation, keeping what was rendered so far followed by
// its payload: {stop({args}==):Missing argument.}
type StopBlock struct{ lazy }

// NewStopBlock creates a new stop block
func NewStopBlock() *StopBlock {
	return &StopBlock{}
}

// Names returns the accepted declarations
func (b *StopBlock) Names() []string {
	return []string{"stop", "halt", "error"}
}

// Process halts evaluation when the condition holds
func (b *StopBlock) Process(ctx *Context, v Verb) Result {
	if v.Parameter == nil {
		return Reject()
	}
	ok, valid := EvaluateCondition(*v.Parameter)
	if !valid {
		return Reject()
	}
	if !ok {
		return Output("")
	}
	return Result{Text: ctx.Resolve(v.PayloadValue()), Handled: true, Stop: true}
}

// branch resolves the then or else part of a "then|else" payload
func branch(ctx *Context, payload string, cond bool) string {
	then, otherwise, hasElse := cutTopLevel(payload, '|')
	if cond {
		return ctx.Resolve(then)
	}
	if !hasElse {
		return ""
	}
	return ctx.Resolve(otherwise)
}

func conditions(v Verb) ([]bool, bool) {
	if v.Parameter == nil || v.Payload == nil {
		return nil, false
	}
	var results []bool
	for _, part := range strings.Split(*v.Parameter, "|") {
		ok, valid := EvaluateCondition(part)
		if !valid {
			return nil, false
		}
		results = append(results, ok)
	}
	return results, true
}

func cutTopLevel(span string, sep byte) (string, string, bool) {
	parts := splitTopLevel(span, sep)
	if len(parts) == 1 {
		return parts[0], "", false
	}
	return parts[0], strings.Join(parts[1:], string(sep)), true
}
