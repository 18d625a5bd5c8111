// Package cel evaluates the arithmetic used by the TagScript math block with
// CEL (Common Expression Language).
//
// CEL is non-Turing complete and every program runs under a cost limit, so
// expressions built from untrusted tag arguments are safe to evaluate.
// Input is restricted to numbers, + - * /, parentheses and whitespace.
//
// Example usage:
//
//	evaluator := cel.NewEvaluator()
//
//	value, err := evaluator.Calculate("2 * (3 + 4) / 4")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// value == 3.5
//
// The evaluator satisfies tagscript.Calculator:
//
//	blocks := tagscript.DefaultBlocks(cel.NewEvaluator())
package cel
