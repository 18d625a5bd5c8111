package tagscript

import (
	"strconv"
	"strings"
)

// comparison operators, longest first so ">=" wins over ">"
var operators = []string{"==", "!=", ">=", "<=", ">", "<"}

// EvaluateCondition evaluates a comparison such as "{args}==hi" or "3>2".
// Numeric operands are compared as numbers, anything else as strings.
// The second return value is false when the text is not a condition.
func EvaluateCondition(text string) (bool, bool) {
	text = strings.TrimSpace(text)

	switch strings.ToLower(text) {
	case "true":
		return true, true
	case "false":
		return false, true
	}

	for _, op := range operators {
		idx := strings.Index(text, op)
		if idx < 0 {
			continue
		}
		left := strings.TrimSpace(text[:idx])
		right := strings.TrimSpace(text[idx+len(op):])
		return compare(left, op, right), true
	}

	return false, false
}

func compare(left, op, right string) bool {
	l, lerr := strconv.ParseFloat(left, 64)
	r, rerr := strconv.ParseFloat(right, 64)
	if lerr == nil && rerr == nil {
		switch op {
		case "==":
			return l == r
		case "!=":
			return l != r
		case ">=":
			return l >= r
		case "<=":
			return l <= r
		case ">":
			return l > r
		case "<":
			return l < r
		}
	}

	switch op {
	case "==":
		return left == right
	case "!=":
		return left != right
	case ">=":
		return left >= right
	case "<=":
		return left <= right
	case ">":
		return left > right
	case "<":
		return left < right
	}
	return false
}

// splitTopLevel splits a raw span on sep, ignoring separators inside nested
// block expressions.
func splitTopLevel(span string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(span); i++ {
		switch span[i] {
		case escapeChar:
			if isEscaped(span, i) {
				i++
			}
		case blockStart:
			depth++
		case blockEnd:
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = append(parts, span[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, span[start:])
}
