package tagscript

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
)

// RandomBlock picks one option: {random:a,b,c} or {random:a~b~c} when the
// options contain commas. A parameter seeds the choice so that
// {random({user(id)}):...} is stable per user.
type RandomBlock struct{ eager }

// NewRandomBlock creates a new random block
func NewRandomBlock() *RandomBlock {
	return &RandomBlock{}
}

// Names returns the accepted declarations
func (b *RandomBlock) Names() []string {
	return []string{"random", "rand", "#"}
}

// Process returns one of the payload options
func (b *RandomBlock) Process(ctx *Context, v Verb) Result {
	if v.Payload == nil {
		return Reject()
	}

	sep := ","
	if strings.Contains(*v.Payload, "~") {
		sep = "~"
	}
	options := strings.Split(*v.Payload, sep)

	var idx int
	if v.Parameter != nil {
		h := fnv.New64a()
		_, _ = h.Write([]byte(*v.Parameter))
		seed := h.Sum64()
		idx = rand.New(rand.NewPCG(seed, seed>>1)).IntN(len(options))
	} else {
		idx = rand.IntN(len(options))
	}

	return Output(strings.TrimSpace(options[idx]))
}

// Calculator evaluates arithmetic expressions
type Calculator interface {
	Calculate(expression string) (float64, error)
}

// MathBlock evaluates arithmetic: {math:2*(3+4)}
type MathBlock struct {
	eager
	calc Calculator
}

// NewMathBlock creates a new math block backed by calc
func NewMathBlock(calc Calculator) *MathBlock {
	return &MathBlock{calc: calc}
}

// Names returns the accepted declarations
func (b *MathBlock) Names() []string {
	return []string{"math", "m", "+", "calc"}
}

// Process evaluates the payload
func (b *MathBlock) Process(ctx *Context, v Verb) Result {
	expr := strings.TrimSpace(v.PayloadValue())
	if expr == "" || b.calc == nil {
		return Reject()
	}

	value, err := b.calc.Calculate(expr)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return Reject()
	}
	return Output(strconv.FormatFloat(value, 'f', -1, 64))
}

// DefaultBlocks returns the built-in catalog. calc may be nil, in which case
// the math block is left out.
func DefaultBlocks(calc Calculator) []Block {
	blocks := []Block{
		NewVariableGetterBlock(),
		NewAssignmentBlock(),
		NewCommandBlock(),
		NewEmbedBlock(),
		NewIfBlock(),
		NewAnyBlock(),
		NewAllBlock(),
		NewBreakBlock(),
		NewStopBlock(),
		NewRequireBlock(),
		NewBlacklistBlock(),
		NewDeleteBlock(),
		NewSilentBlock(),
		NewRedirectBlock(),
		NewRandomBlock(),
	}
	if calc != nil {
		blocks = append(blocks, NewMathBlock(calc))
	}
	return blocks
}
