package tagscript

// Block expression markers
const (
	blockStart = '{'
	blockEnd   = '}'
	paramStart = '('
	paramEnd   = ')'
	payloadSep = ':'
	escapeChar = '\\'
)

// NodeKind distinguishes literal text from block expressions
type NodeKind int

const (
	// NodeText is literal text copied to the body unchanged
	NodeText NodeKind = iota

	// NodeBlock is a {declaration(parameter):payload} expression
	NodeBlock
)

// Node is one element of a parsed template
type Node struct {
	Kind NodeKind
	// Source is the exact template text covered by the node, braces included.
	Source string
	Verb   Verb
}

// Verb is the decomposed content of a block expression.
//
// Parameter and Payload are nil when the segment is absent, which is
// different from present but empty ("{x()}" or "{x:}").
type Verb struct {
	Declaration string
	Parameter   *string
	Payload     *string
}

// ParamValue returns the parameter or "" when absent
func (v Verb) ParamValue() string {
	if v.Parameter == nil {
		return ""
	}
	return *v.Parameter
}

// PayloadValue returns the payload or "" when absent
func (v Verb) PayloadValue() string {
	if v.Payload == nil {
		return ""
	}
	return *v.Payload
}

// Parse splits a template into literal text and block nodes.
//
// Parse never fails. Unmatched markers are kept as literal text and scanning
// resumes right after them, so later well-formed expressions still parse.
// Parameter and payload spans are captured raw; they are parsed again only when
// the evaluator resolves them.
func Parse(src string) []Node {
	if src == "" {
		return nil
	}

	pairs := matchMarkers(src)
	if len(pairs) == 0 {
		return []Node{{Kind: NodeText, Source: src}}
	}

	var nodes []Node
	textStart := 0
	for i := 0; i < len(src); i++ {
		end, ok := pairs[i]
		if !ok {
			continue
		}
		if i > textStart {
			nodes = append(nodes, Node{Kind: NodeText, Source: src[textStart:i]})
		}
		nodes = append(nodes, Node{
			Kind:   NodeBlock,
			Source: src[i : end+1],
			Verb:   parseVerb(src[i+1 : end]),
		})
		textStart = end + 1
		i = end
	}
	if textStart < len(src) {
		nodes = append(nodes, Node{Kind: NodeText, Source: src[textStart:]})
	}

	return nodes
}

// matchMarkers pairs every start marker with its balancing end marker in a
// single pass. Start markers left on the stack are unterminated.
func matchMarkers(src string) map[int]int {
	var stack []int
	pairs := make(map[int]int)
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case escapeChar:
			if isEscaped(src, i) {
				i++
			}
		case blockStart:
			stack = append(stack, i)
		case blockEnd:
			if len(stack) == 0 {
				continue
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			pairs[open] = i
		}
	}
	return pairs
}

// isEscaped reports whether the byte after position i is an escaped marker
func isEscaped(s string, i int) bool {
	if i+1 >= len(s) {
		return false
	}
	next := s[i+1]
	return next == blockStart || next == blockEnd
}

// parseVerb splits block content into declaration, parameter and payload.
// Content that does not have that shape becomes a declaration-only verb, which
// no block recognizes and therefore renders literally.
func parseVerb(content string) Verb {
	depth := 0
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case escapeChar:
			if isEscaped(content, i) {
				i++
			}
		case blockStart:
			depth++
		case blockEnd:
			depth--
		case payloadSep:
			if depth == 0 {
				payload := content[i+1:]
				return Verb{Declaration: content[:i], Payload: &payload}
			}
		case paramStart:
			if depth != 0 {
				continue
			}
			closeIdx := matchParen(content, i)
			if closeIdx < 0 {
				return Verb{Declaration: content}
			}
			param := content[i+1 : closeIdx]
			verb := Verb{Declaration: content[:i], Parameter: &param}
			rest := content[closeIdx+1:]
			switch {
			case rest == "":
				return verb
			case rest[0] == payloadSep:
				payload := rest[1:]
				verb.Payload = &payload
				return verb
			default:
				return Verb{Declaration: content}
			}
		}
	}
	return Verb{Declaration: content}
}

// matchParen returns the index of the parenthesis closing the one at open,
// ignoring parentheses inside nested block expressions, or -1.
func matchParen(s string, open int) int {
	parens, braces := 0, 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case escapeChar:
			if isEscaped(s, i) {
				i++
			}
		case blockStart:
			braces++
		case blockEnd:
			braces--
		case paramStart:
			if braces == 0 {
				parens++
			}
		case paramEnd:
			if braces != 0 {
				continue
			}
			parens--
			if parens == 0 {
				return i
			}
		}
	}
	return -1
}
