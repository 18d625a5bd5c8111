package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/aescanero/dago-node-tags/internal/tags"
)

const tagUsage = "Usage: `tag [global] <add|edit|append|remove|alias|unalias|info|raw|list|search|usage|run|process|backup|restore> ...`"

// tagCommand handles "tag <sub> ..." and "tag global <sub> ..."
func (b *Bot) tagCommand(ctx context.Context, req *request, line string) {
	scope := req.guildID
	global := false

	sub, rest := split(line)
	if strings.EqualFold(sub, "global") {
		if !b.isOwner(req) {
			b.reply(req, "Only bot owners can manage global tags.")
			return
		}
		scope, global = "", true
		sub, rest = split(rest)
	} else if req.guildID == "" {
		b.reply(req, "Tags can only be managed in a server.")
		return
	}

	sub = strings.ToLower(sub)
	switch sub {
	case "add", "create", "+", "edit", "e", "append", "remove", "delete", "-",
		"alias", "unalias", "backup", "restore":
		if !global && !b.canManage(req) {
			b.reply(req, "You need the Manage Server permission to do that.")
			return
		}
	}

	switch sub {
	case "add", "create", "+":
		name, script := split(rest)
		b.respond(req, sub, func() (string, error) {
			return b.tags.Create(ctx, tags.CreateRequest{
				GuildID:   scope,
				Name:      name,
				TagScript: script,
				AuthorID:  req.author.ID,
			})
		})
	case "edit", "e":
		name, script := split(rest)
		b.respond(req, sub, func() (string, error) { return b.tags.Edit(ctx, scope, name, script) })
	case "append":
		name, script := split(rest)
		b.respond(req, sub, func() (string, error) { return b.tags.Append(ctx, scope, name, script) })
	case "remove", "delete", "-":
		name, _ := split(rest)
		b.respond(req, sub, func() (string, error) { return b.tags.Remove(ctx, scope, name) })
	case "alias":
		name, alias := split(rest)
		b.respond(req, sub, func() (string, error) { return b.tags.AddAlias(ctx, scope, name, alias) })
	case "unalias":
		name, alias := split(rest)
		b.respond(req, sub, func() (string, error) { return b.tags.RemoveAlias(ctx, scope, name, alias) })
	case "info":
		tag, err := b.tags.Get(ctx, scope, rest)
		if err != nil {
			b.replyError(req, sub, err)
			return
		}
		b.reply(req, b.tags.InfoMessage(tag))
	case "raw":
		tag, err := b.tags.Get(ctx, scope, rest)
		if err != nil {
			b.replyError(req, sub, err)
			return
		}
		b.reply(req, escapeMarkdown(tag.TagScript))
	case "list":
		list, err := b.tags.List(ctx, scope)
		if err != nil {
			b.replyError(req, sub, err)
			return
		}
		b.reply(req, b.tags.ListMessage(list, global))
	case "search":
		found, err := b.tags.Search(ctx, scope, rest)
		if err != nil {
			b.replyError(req, sub, err)
			return
		}
		b.reply(req, b.tags.SearchMessage(found, rest))
	case "usage", "stats":
		list, err := b.tags.Usage(ctx, scope)
		if err != nil {
			b.replyError(req, sub, err)
			return
		}
		b.reply(req, b.tags.UsageMessage(list, global))
	case "run", "execute", "process":
		b.run(ctx, req, rest, sub != "process")
	case "backup":
		b.backup(ctx, req, scope)
	case "restore":
		b.restore(ctx, req, scope)
	default:
		b.reply(req, tagUsage)
	}
}

// respond replies with the result of a tag management call
func (b *Bot) respond(req *request, action string, fn func() (string, error)) {
	msg, err := fn()
	if err != nil {
		b.replyError(req, action, err)
		return
	}
	b.reply(req, msg)
}

// run processes TagScript without storing it, optionally followed by a
// report of what it did
func (b *Bot) run(ctx context.Context, req *request, script string, report bool) {
	channel, guild := b.lookup(req)

	member := req.member
	if member == nil {
		member = &discordgo.Member{User: req.author}
	}
	result, err := b.tags.Run(ctx, script, Seed(member, channel, guild))
	if err != nil {
		b.replyError(req, "run", err)
		return
	}

	b.deliverOutput(ctx, req, result.Output)
	if report {
		b.reply(req, b.tags.ReportMessage(result))
	}
}

// backup uploads every tag of scope as a JSON file
func (b *Bot) backup(ctx context.Context, req *request, scope string) {
	data, err := b.tags.Backup(ctx, scope)
	if err != nil {
		b.replyError(req, "backup", err)
		return
	}

	name := "tags-global.json"
	if scope != "" {
		name = fmt.Sprintf("tags-%s.json", scope)
	}
	b.send(req.channelID, &discordgo.MessageSend{
		Content: "Tag backup",
		Files:   []*discordgo.File{file(name, data)},
	})
}

// restore replaces every tag of scope with the attached backup file
func (b *Bot) restore(ctx context.Context, req *request, scope string) {
	if len(req.attachments) == 0 {
		b.reply(req, "Attach a backup file to restore.")
		return
	}

	data, err := b.fetch(ctx, req.attachments[0].URL)
	if err != nil {
		b.replyError(req, "restore", err)
		return
	}
	b.respond(req, "restore", func() (string, error) { return b.tags.Restore(ctx, scope, data) })
}

// escapeMarkdown keeps raw TagScript from being rendered as formatting
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		"*", `\*`,
		"_", `\_`,
		"~", `\~`,
		"`", "\\`",
		"|", `\|`,
		">", `\>`,
	)
	return replacer.Replace(s)
}
