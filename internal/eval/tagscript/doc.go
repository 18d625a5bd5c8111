// Package tagscript implements the TagScript template interpreter used by tags
// and application messages.
//
// A template is literal text interleaved with block expressions:
//
//	{declaration}
//	{declaration(parameter)}
//	{declaration:payload}
//	{declaration(parameter):payload}
//
// Parameters and payloads may contain further expressions. They are resolved
// depth-first before the outer block runs, unless the block is lazy (if, any,
// all, break, stop), in which case the block decides which part of its payload
// to evaluate.
//
// Example usage:
//
//	interpreter, err := tagscript.NewInterpreter(tagscript.DefaultBlocks(nil))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp := interpreter.Process(
//	    "{embed(title):Hello {args(1)}}{if({args(2)}==loud):HELLO|hello}",
//	    map[string]tagscript.Adapter{"args": tagscript.NewStringAdapter("world loud")},
//	)
//	// resp.Body == "HELLO"
//	// resp.Actions["embed"].(*tagscript.Embed).Title == "Hello world"
//
// Templates are untrusted. Process never fails: unterminated expressions,
// unknown names and nesting deeper than the configured bound are rendered as
// the literal source text.
//
// Built-in blocks:
//   - {name} / {name(param)} - variable lookup through adapters
//   - assign, let, var, = - bind a value for the rest of the evaluation
//   - command, com, c - request a bot command (action "command")
//   - embed - build an embed (action "embed")
//   - if, any, all - conditional branches
//   - break, stop - halt evaluation
//   - require, blacklist - restrict a tag to roles or channels
//   - delete, silent, redirect - response handling hints
//   - random - pick an option
//   - math - arithmetic
package tagscript
