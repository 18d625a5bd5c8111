package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
	"github.com/aescanero/dago-node-tags/internal/tags"
)

// EmbedFromAction converts an embed built by a tag
func EmbedFromAction(e *tagscript.Embed) *discordgo.MessageEmbed {
	if e.Empty() {
		return nil
	}

	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		Color:       e.Color,
		Timestamp:   e.Timestamp,
	}
	if e.Footer != nil {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer.Text, IconURL: e.Footer.IconURL}
	}
	if e.Image != nil {
		embed.Image = &discordgo.MessageEmbedImage{URL: e.Image.URL}
	}
	if e.Thumbnail != nil {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail.URL}
	}
	if e.Author != nil {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: e.Author.Name, URL: e.Author.URL, IconURL: e.Author.IconURL}
	}
	for _, f := range e.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	return embed
}

// MessageSend converts tag output into a message. Tags may ping users and
// roles but never @everyone or @here.
func MessageSend(out *tags.Output) *discordgo.MessageSend {
	msg := &discordgo.MessageSend{
		Content: out.Content,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{
				discordgo.AllowedMentionTypeUsers,
				discordgo.AllowedMentionTypeRoles,
			},
		},
	}
	if embed := EmbedFromAction(out.Embed); embed != nil {
		msg.Embeds = []*discordgo.MessageEmbed{embed}
	}
	return msg
}

// Invoker describes member in channel for tag gating. roles resolves the
// member's role IDs to names and may be nil.
func Invoker(member *discordgo.Member, channel *discordgo.Channel, roles []*discordgo.Role) tags.Invoker {
	invoker := tags.Invoker{}
	if member != nil {
		if member.User != nil {
			invoker.UserID = member.User.ID
		}
		invoker.RoleIDs = append(invoker.RoleIDs, member.Roles...)
	}
	if channel != nil {
		invoker.ChannelID = channel.ID
		invoker.ChannelName = channel.Name
	}

	held := make(map[string]bool, len(invoker.RoleIDs))
	for _, id := range invoker.RoleIDs {
		held[id] = true
	}
	for _, role := range roles {
		if held[role.ID] {
			invoker.RoleNames = append(invoker.RoleNames, role.Name)
		}
	}
	return invoker
}

// splitMessage breaks text into chunks that fit a message, preferring line
// boundaries
func splitMessage(text string, limit int) []string {
	var chunks []string
	for len([]rune(text)) > limit {
		runes := []rune(text)
		cut := limit
		if idx := strings.LastIndex(string(runes[:limit]), "\n"); idx > 0 {
			cut = len([]rune(string(runes[:limit])[:idx]))
		}
		chunks = append(chunks, string(runes[:cut]))
		text = strings.TrimPrefix(string(runes[cut:]), "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
