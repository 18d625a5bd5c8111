// Package template provides a Handlebars template engine and the message
// catalog used for user-facing feedback from the tags service and the
// application summaries.
//
// TagScript is what end users write. Handlebars is what operators use to
// reword the bot's own messages without a rebuild.
//
// Example usage:
//
//	catalog := template.NewCatalog(template.NewEngine())
//
//	msg, err := catalog.Render(template.MsgTagLimitGuild, map[string]interface{}{
//	    "limit": 10000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// Output: This server has reached the limit of **10,000** tags.
//
//	_ = catalog.Override(template.MsgTagCreated, "Saved {{{name}}}!")
//
// Built-in helpers:
//   - uppercase, lowercase, trim - String case and whitespace
//   - default - Return default value if first arg is empty
//   - eq, ne - Equality comparison
//   - comma - Thousands separators (10000 -> 10,000)
//   - plural - {{plural count "tag" "tags"}}
//   - join - Join a string list with a separator
//   - len - Length of a string, list or map
//
// Messages use triple-stash ({{{name}}}) for user supplied text, since
// Discord does not interpret HTML entities.
package template
