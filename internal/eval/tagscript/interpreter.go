package tagscript

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultMaxDepth bounds how deep nested expressions are resolved
const DefaultMaxDepth = 32

// DefaultMaxOutput bounds, in bytes, any text rendered during evaluation:
// the body, resolved payloads and parameters, and assigned values
const DefaultMaxOutput = 64 << 10

// Response is the result of one Process call
type Response struct {
	// Body is the rendered text, empty when nothing was produced.
	Body string
	// Actions holds side effects by name; the last write wins.
	Actions map[string]any
	// Variables holds the adapters referenced or assigned during evaluation.
	Variables map[string]Adapter
}

// Interpreter evaluates TagScript templates.
//
// An Interpreter is immutable after construction and safe for concurrent use.
type Interpreter struct {
	registry     *Registry
	defaults     map[string]Adapter
	maxDepth     int
	maxOutput    int
	dotParameter bool
	logger       *zap.Logger
}

// Option configures an Interpreter
type Option func(*Interpreter)

// WithMaxDepth sets the nesting bound
func WithMaxDepth(depth int) Option {
	return func(i *Interpreter) {
		if depth > 0 {
			i.maxDepth = depth
		}
	}
}

// WithMaxOutput sets the rendered text bound in bytes
func WithMaxOutput(size int) Option {
	return func(i *Interpreter) {
		if size > 0 {
			i.maxOutput = size
		}
	}
}

// WithDefaultAdapters binds adapters into every evaluation. Seed variables
// passed to Process take precedence on name collision.
func WithDefaultAdapters(adapters map[string]Adapter) Option {
	return func(i *Interpreter) {
		for name, adapter := range adapters {
			i.defaults[name] = adapter
		}
	}
}

// WithDotParameter enables {name.param} as shorthand for {name(param)}
func WithDotParameter() Option {
	return func(i *Interpreter) {
		i.dotParameter = true
	}
}

// WithLogger sets the logger used for recovered block failures
func WithLogger(logger *zap.Logger) Option {
	return func(i *Interpreter) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewInterpreter creates a new interpreter over the given blocks
func NewInterpreter(blocks []Block, opts ...Option) (*Interpreter, error) {
	registry, err := NewRegistry(blocks...)
	if err != nil {
		return nil, fmt.Errorf("failed to build block registry: %w", err)
	}

	i := &Interpreter{
		registry: registry,
		defaults: make(map[string]Adapter),
		maxDepth:  DefaultMaxDepth,
		maxOutput: DefaultMaxOutput,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}

	return i, nil
}

// Registry returns the block registry
func (i *Interpreter) Registry() *Registry {
	return i.registry
}

// Process evaluates a template. It never fails: malformed syntax, unknown
// names and excess nesting all render as literal text.
func (i *Interpreter) Process(template string, seed map[string]Adapter) *Response {
	ctx := i.newContext(seed)
	body := ctx.render(Parse(template))
	if ctx.override != nil {
		body = *ctx.override
	}

	return &Response{
		Body:      ctx.Clip(body),
		Actions:   ctx.actions,
		Variables: ctx.referenced,
	}
}

func (i *Interpreter) newContext(seed map[string]Adapter) *Context {
	variables := make(map[string]Adapter, len(i.defaults)+len(seed))
	for name, adapter := range i.defaults {
		variables[name] = adapter
	}
	for name, adapter := range seed {
		variables[name] = adapter
	}

	return &Context{
		interpreter: i,
		variables:   variables,
		referenced:  make(map[string]Adapter),
		actions:     make(map[string]any),
	}
}

// Context is the state of a single evaluation. It is owned by one Process
// call and must not be retained by blocks.
type Context struct {
	interpreter *Interpreter
	variables   map[string]Adapter
	referenced  map[string]Adapter
	actions     map[string]any
	depth       int
	stopped     bool
	override    *string
}

// Resolve parses and evaluates a raw span in this context
func (c *Context) Resolve(span string) string {
	if !strings.ContainsRune(span, blockStart) {
		return span
	}

	c.depth++
	defer func() { c.depth-- }()

	return c.render(Parse(span))
}

// Variable looks up an adapter and records the reference
func (c *Context) Variable(name string) (Adapter, bool) {
	adapter, ok := c.variables[name]
	if ok {
		c.referenced[name] = adapter
	}
	return adapter, ok
}

// HasVariable reports whether an adapter is bound, without recording it
func (c *Context) HasVariable(name string) bool {
	_, ok := c.variables[name]
	return ok
}

// SetVariable binds an adapter for the rest of this evaluation
func (c *Context) SetVariable(name string, adapter Adapter) {
	c.variables[name] = adapter
	c.referenced[name] = adapter
}

// Action returns the current value of an action
func (c *Context) Action(name string) (any, bool) {
	value, ok := c.actions[name]
	return value, ok
}

// ReplaceBody discards the rendered body in favour of text
func (c *Context) ReplaceBody(text string) {
	c.override = &text
}

// Clip cuts text to the output bound on a rune boundary
func (c *Context) Clip(text string) string {
	return clip(text, c.interpreter.maxOutput)
}

func clip(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}

// render evaluates nodes in order. Once the output bound is reached the
// remaining blocks still run for their actions but add no text.
func (c *Context) render(nodes []Node) string {
	var b strings.Builder
	full := false
	for _, node := range nodes {
		if c.stopped {
			break
		}

		text := node.Source
		if node.Kind == NodeBlock {
			text = c.evalBlock(node)
		}
		if full {
			continue
		}

		room := c.interpreter.maxOutput - b.Len()
		if len(text) > room {
			text = clip(text, room)
			full = true
			c.interpreter.logger.Debug("output limit reached, dropping text",
				zap.Int("max_output", c.interpreter.maxOutput),
			)
		}
		b.WriteString(text)
	}
	return b.String()
}

func (c *Context) evalBlock(node Node) (out string) {
	if c.depth >= c.interpreter.maxDepth {
		c.interpreter.logger.Debug("nesting limit reached, rendering literally",
			zap.Int("max_depth", c.interpreter.maxDepth),
		)
		return node.Source
	}

	defer func() {
		if r := recover(); r != nil {
			c.interpreter.logger.Error("block panicked, rendering literally",
				zap.String("declaration", node.Verb.Declaration),
				zap.Any("panic", r),
			)
			out = node.Source
		}
	}()

	verb := node.Verb
	if strings.ContainsRune(verb.Declaration, blockStart) {
		verb.Declaration = c.Resolve(verb.Declaration)
	}
	if c.interpreter.dotParameter && verb.Parameter == nil {
		if name, param, ok := strings.Cut(verb.Declaration, "."); ok {
			verb.Declaration = name
			verb.Parameter = &param
		}
	}

	block := c.interpreter.registry.Lookup(c, verb.Declaration)
	if block == nil {
		return node.Source
	}

	if verb.Payload != nil && !block.Lazy() {
		payload := c.Resolve(*verb.Payload)
		verb.Payload = &payload
	}
	if verb.Parameter != nil {
		param := c.Resolve(*verb.Parameter)
		verb.Parameter = &param
	}

	result := block.Process(c, verb)
	if !result.Handled {
		return node.Source
	}
	if result.Action != nil {
		c.actions[result.Action.Name] = result.Action.Value
	}
	if result.Stop {
		c.stopped = true
	}

	return result.Text
}
