package discord

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"

	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
)

const timeLayout = "2006-01-02 15:04:05"

// created returns the creation time encoded in a snowflake ID
func created(id string) (time.Time, bool) {
	t, err := discordgo.SnowflakeTimestamp(id)
	if err != nil || id == "" {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func addTimes(attrs map[string]string, prefix string, t time.Time) {
	attrs[prefix+"_at"] = t.Format(timeLayout)
	attrs[prefix] = humanize.Time(t)
}

// NewUserAdapter exposes a user as {user}, {user(id)}, {user(mention)} and
// friends. The default attribute is the display name.
func NewUserAdapter(u *discordgo.User) *tagscript.AttributeAdapter {
	attrs := userAttributes(u)
	return tagscript.NewAttributeAdapter(attrs, "name")
}

func userAttributes(u *discordgo.User) map[string]string {
	display := u.GlobalName
	if display == "" {
		display = u.Username
	}

	attrs := map[string]string{
		"id":           u.ID,
		"name":         u.Username,
		"nick":         display,
		"display_name": display,
		"global_name":  u.GlobalName,
		"mention":      "<@" + u.ID + ">",
		"avatar":       u.AvatarURL(""),
		"bot":          strconv.FormatBool(u.Bot),
	}
	if t, ok := created(u.ID); ok {
		addTimes(attrs, "created", t)
	}
	return attrs
}

// NewMemberAdapter exposes a guild member. It adds the nickname, join date
// and role IDs to the user attributes.
func NewMemberAdapter(m *discordgo.Member) *tagscript.AttributeAdapter {
	user := m.User
	if user == nil {
		user = &discordgo.User{}
	}

	attrs := userAttributes(user)
	if m.Nick != "" {
		attrs["nick"] = m.Nick
		attrs["display_name"] = m.Nick
	}
	if !m.JoinedAt.IsZero() {
		addTimes(attrs, "joined", m.JoinedAt.UTC())
	}
	attrs["roleids"] = strings.Join(m.Roles, " ")

	return tagscript.NewAttributeAdapter(attrs, "name")
}

// NewGuildAdapter exposes a guild as {server} and {guild}
func NewGuildAdapter(g *discordgo.Guild) *tagscript.AttributeAdapter {
	attrs := map[string]string{
		"id":           g.ID,
		"name":         g.Name,
		"icon":         g.IconURL(""),
		"member_count": humanize.Comma(int64(g.MemberCount)),
		"members":      strconv.Itoa(g.MemberCount),
		"owner_id":     g.OwnerID,
		"description":  g.Description,
	}
	if t, ok := created(g.ID); ok {
		addTimes(attrs, "created", t)
	}
	return tagscript.NewAttributeAdapter(attrs, "name")
}

// NewChannelAdapter exposes a channel as {channel}
func NewChannelAdapter(c *discordgo.Channel) *tagscript.AttributeAdapter {
	attrs := map[string]string{
		"id":       c.ID,
		"name":     c.Name,
		"mention":  "<#" + c.ID + ">",
		"topic":    c.Topic,
		"nsfw":     strconv.FormatBool(c.NSFW),
		"position": strconv.Itoa(c.Position),
	}
	if t, ok := created(c.ID); ok {
		addTimes(attrs, "created", t)
	}
	return tagscript.NewAttributeAdapter(attrs, "name")
}

// Seed builds the adapters available to a tag invoked by member in channel
func Seed(member *discordgo.Member, channel *discordgo.Channel, guild *discordgo.Guild) map[string]tagscript.Adapter {
	seed := make(map[string]tagscript.Adapter, 7)
	if member != nil {
		author := NewMemberAdapter(member)
		seed["author"] = author
		seed["user"] = author
		seed["member"] = author
		seed["target"] = author
	}
	if channel != nil {
		seed["channel"] = NewChannelAdapter(channel)
	}
	if guild != nil {
		server := NewGuildAdapter(guild)
		seed["server"] = server
		seed["guild"] = server
	}
	return seed
}
