// Package discord is the Discord frontend for tags and applications.
//
// Tags are run from chat with the command prefix:
//
//	!tag add rules {embed(title):Rules}{embed(description):Be nice.}
//	!rules
//
// Invocations are seeded with author, user, member, target, channel, server
// and guild adapters built from discordgo types. The bot honours the
// delete, silent and redirect actions, checks require and blacklist gates,
// and dispatches {command} requests as if the invoker had typed them. Commands
// requested by a tag cannot invoke other tags.
//
// Management commands need the Manage Server permission; global tags are
// limited to the configured owners. "apply <name>" walks the member
// through an application in direct messages and posts the response to the
// application's channel.
package discord
