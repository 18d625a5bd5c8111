package tagscript

import (
	"strconv"
	"strings"
)

// Adapter is a named value source bound into one evaluation.
//
// Resolve receives the verb that referenced the adapter, so adapters can use
// the parameter as an attribute selector and the payload as an option. A false
// return leaves the expression as literal text.
type Adapter interface {
	Resolve(v Verb) (string, bool)
}

// StringAdapter exposes a fixed string.
//
// With a parameter the value is split into words: "2" selects the second word,
// "2+" the second word onwards and "+2" the first two words. The payload, when
// present, replaces the default space separator.
type StringAdapter struct {
	value string
}

// NewStringAdapter creates a new string adapter
func NewStringAdapter(value string) *StringAdapter {
	return &StringAdapter{value: value}
}

// Resolve returns the value or the selected words
func (a *StringAdapter) Resolve(v Verb) (string, bool) {
	if v.Parameter == nil {
		return a.value, true
	}

	sep := " "
	if v.Payload != nil && *v.Payload != "" {
		sep = *v.Payload
	}
	return selectWords(a.value, strings.TrimSpace(*v.Parameter), sep)
}

func selectWords(value, selector, sep string) (string, bool) {
	var words []string
	if sep == " " {
		words = strings.Fields(value)
	} else {
		words = strings.Split(value, sep)
	}

	var from, to int
	switch {
	case strings.HasPrefix(selector, "+"):
		n, err := strconv.Atoi(selector[1:])
		if err != nil || n < 0 {
			return "", false
		}
		from, to = 1, n
	case strings.HasSuffix(selector, "+"):
		n, err := strconv.Atoi(strings.TrimSuffix(selector, "+"))
		if err != nil || n < 1 {
			return "", false
		}
		from, to = n, len(words)
	default:
		n, err := strconv.Atoi(selector)
		if err != nil || n < 1 {
			return "", false
		}
		from, to = n, n
	}

	if to > len(words) {
		to = len(words)
	}
	if from > to {
		return "", true
	}
	return strings.Join(words[from-1:to], sep), true
}

// IntAdapter exposes an integer
type IntAdapter struct {
	value int
}

// NewIntAdapter creates a new integer adapter
func NewIntAdapter(value int) *IntAdapter {
	return &IntAdapter{value: value}
}

// Resolve returns the decimal representation of the value
func (a *IntAdapter) Resolve(Verb) (string, bool) {
	return strconv.Itoa(a.value), true
}

// FunctionAdapter computes its value on every reference
type FunctionAdapter struct {
	fn func() string
}

// NewFunctionAdapter creates a new function adapter
func NewFunctionAdapter(fn func() string) *FunctionAdapter {
	return &FunctionAdapter{fn: fn}
}

// Resolve calls the wrapped function
func (a *FunctionAdapter) Resolve(Verb) (string, bool) {
	return a.fn(), true
}

// AttributeAdapter exposes a fixed set of named attributes, e.g.
// {member(id)} or {guild(name)}. A reference without parameter returns the
// default attribute.
type AttributeAdapter struct {
	attributes  map[string]string
	defaultAttr string
}

// NewAttributeAdapter creates a new attribute adapter. Attribute names are
// matched case-insensitively.
func NewAttributeAdapter(attributes map[string]string, defaultAttr string) *AttributeAdapter {
	attrs := make(map[string]string, len(attributes))
	for k, v := range attributes {
		attrs[strings.ToLower(k)] = v
	}
	return &AttributeAdapter{
		attributes:  attrs,
		defaultAttr: strings.ToLower(defaultAttr),
	}
}

// Resolve returns the selected attribute
func (a *AttributeAdapter) Resolve(v Verb) (string, bool) {
	name := a.defaultAttr
	if v.Parameter != nil {
		name = strings.ToLower(strings.TrimSpace(*v.Parameter))
	}
	value, ok := a.attributes[name]
	return value, ok
}

// Attribute returns a single attribute value
func (a *AttributeAdapter) Attribute(name string) (string, bool) {
	value, ok := a.attributes[strings.ToLower(name)]
	return value, ok
}
