// Package tags stores TagScript snippets per guild and runs them.
//
// Tags live in a scope: a guild ID, or "" for global tags that every guild can
// invoke. Lookups check the guild first and fall back to global tags; names and
// aliases are case-folded.
//
// Example usage:
//
//	interpreter, _ := tagscript.NewInterpreter(tagscript.DefaultBlocks(cel.NewEvaluator()))
//	catalog := template.NewCatalog(template.NewEngine())
//	service := tags.NewService(tags.NewMemoryStore(), interpreter, catalog, tags.DefaultLimits(), logger)
//
//	msg, err := service.Create(ctx, tags.CreateRequest{
//	    GuildID:   "123",
//	    Name:      "hello",
//	    TagScript: "Hello {args}!",
//	})
//
//	out, err := service.Invoke(ctx, tags.InvokeRequest{GuildID: "123", Name: "hello", Args: "world"})
//	// out.Content == "Hello world!"
//
// Errors meant for the person issuing a command are *FeedbackError and
// *CharacterLimitError; UserMessage renders any service error as text.
package tags
