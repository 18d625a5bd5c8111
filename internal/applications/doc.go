// Package applications runs staff applications: a guild configures a list of
// questions, members answer them one by one in a private conversation, and
// the finished response is posted for reviewers.
//
// After submission the applicant sees the application's settings message,
// which is TagScript with {settings}, {guild}, {server} and {responses}
// available. An empty result resets the message to DefaultSettingsMessage.
//
// Example usage:
//
//	flow := applications.NewFlow(store, interpreter, catalog, publisher, logger)
//	result, err := flow.Run(ctx, guildID, "staff", applicant, guildAdapter, asker)
//	if errors.Is(err, applications.ErrCancelled) {
//	    return
//	}
package applications
