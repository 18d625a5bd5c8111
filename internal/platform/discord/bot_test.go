package discord

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-tags/internal/applications"
	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
	"github.com/aescanero/dago-node-tags/internal/eval/template"
	"github.com/aescanero/dago-node-tags/internal/tags"
)

const (
	guildID = "200"
	userID  = "u1"
)

type testBot struct {
	bot      *Bot
	session  *fakeSession
	service  *tags.Service
	appStore *applications.MemoryStore
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()

	interpreter, err := tagscript.NewInterpreter(tagscript.DefaultBlocks(nil))
	require.NoError(t, err)
	catalog := template.NewCatalog(template.NewEngine())

	session := newFakeSession()
	service := tags.NewService(tags.NewMemoryStore(), interpreter, catalog, tags.DefaultLimits(), zap.NewNop())
	appStore := applications.NewMemoryStore()
	flow := applications.NewFlow(appStore, interpreter, catalog, NewPublisher(session, nil), nil)

	bot := NewBot(session, Config{Prefix: "!", Owners: []string{"owner"}}, service,
		applications.NewManager(appStore, nil), flow, zap.NewNop())
	t.Cleanup(func() { _ = bot.Stop() })

	return &testBot{bot: bot, session: session, service: service, appStore: appStore}
}

func (tb *testBot) say(author, content string, roles ...string) {
	tb.bot.handleMessage(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		GuildID:   guildID,
		ChannelID: "100",
		Content:   content,
		Author:    &discordgo.User{ID: author, Username: "kim"},
		Member:    &discordgo.Member{Roles: roles},
	}})
}

func (tb *testBot) create(t *testing.T, scope, name, script string) {
	t.Helper()
	_, err := tb.service.Create(context.Background(), tags.CreateRequest{
		GuildID:   scope,
		Name:      name,
		TagScript: script,
		AuthorID:  "owner",
	})
	require.NoError(t, err)
}

func TestTagAddRequiresPermission(t *testing.T) {
	tb := newTestBot(t)

	tb.say(userID, "!tag add hi Hello there")
	assert.Equal(t, []string{"You need the Manage Server permission to do that."}, tb.session.contents())

	tb.session.reset()
	tb.session.perms[userID] = discordgo.PermissionManageServer
	tb.say(userID, "!tag add hi Hello there")
	assert.Equal(t, []string{"Tag `hi` added."}, tb.session.contents())

	tb.session.reset()
	tb.say(userID, "!tag add hi again")
	assert.Equal(t, []string{"`hi` is already a registered tag."}, tb.session.contents())
}

func TestInvokeTag(t *testing.T) {
	tb := newTestBot(t)
	tb.create(t, guildID, "greet", "Hi {author(nick)} in {channel} of {server}! {args}")

	tb.say(userID, "!greet how are you")

	msgs := tb.session.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "100", msgs[0].channelID)
	assert.Equal(t, "Hi kim in general of Test Guild! how are you", msgs[0].msg.Content)
	assert.NotContains(t, msgs[0].msg.AllowedMentions.Parse, discordgo.AllowedMentionTypeEveryone)

	tag, err := tb.service.Get(context.Background(), guildID, "greet")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tag.Uses)
}

func TestInvokeIgnoresUnknownTagsAndBots(t *testing.T) {
	tb := newTestBot(t)
	tb.create(t, guildID, "ping", "pong")

	tb.say(userID, "!nothing here")
	tb.say(userID, "ping without prefix")
	tb.bot.handleMessage(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: guildID, ChannelID: "100", Content: "!ping",
		Author: &discordgo.User{ID: "b", Bot: true},
	}})

	assert.Empty(t, tb.session.messages())
}

func TestInvokeAppliesGates(t *testing.T) {
	tb := newTestBot(t)
	tb.session.roles = []*discordgo.Role{{ID: "r1", Name: "Mod"}}
	tb.create(t, guildID, "secret", "{require(Mod):Mods only.}the secret")
	tb.create(t, guildID, "public", "{blacklist(general)}hello")

	tb.say(userID, "!secret")
	tb.say(userID, "!secret", "r1")
	tb.say(userID, "!public")

	assert.Equal(t, []string{"Mods only.", "the secret"}, tb.session.contents())
}

func TestInvokeDeleteAndRedirect(t *testing.T) {
	tb := newTestBot(t)
	tb.create(t, guildID, "psst", "{delete}{redirect(dm)}psst")
	tb.create(t, guildID, "answer", "{redirect(reply)}{embed(title):Answer}")
	tb.create(t, guildID, "elsewhere", "{redirect(<#555>)}moved")

	tb.say(userID, "!psst")
	tb.say(userID, "!answer")
	tb.say(userID, "!elsewhere")

	assert.Equal(t, []string{"m1"}, tb.session.deleted)

	msgs := tb.session.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "dm-"+userID, msgs[0].channelID)
	assert.Equal(t, "psst", msgs[0].msg.Content)

	assert.Equal(t, "100", msgs[1].channelID)
	require.NotNil(t, msgs[1].msg.Reference)
	assert.Equal(t, "m1", msgs[1].msg.Reference.MessageID)
	require.Len(t, msgs[1].msg.Embeds, 1)
	assert.Equal(t, "Answer", msgs[1].msg.Embeds[0].Title)

	assert.Equal(t, "555", msgs[2].channelID)
}

func TestRedirectStaysInGuild(t *testing.T) {
	tb := newTestBot(t)
	tb.create(t, guildID, "foreign", "{redirect(<#777>)}leak")
	tb.create(t, guildID, "missing", "{redirect(<#888>)}lost")

	tb.say(userID, "!foreign")
	tb.say(userID, "!missing")

	msgs := tb.session.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "100", msgs[0].channelID)
	assert.Equal(t, "leak", msgs[0].msg.Content)
	assert.Equal(t, "100", msgs[1].channelID)
	assert.Equal(t, "lost", msgs[1].msg.Content)
}

func TestTagCommandsRunAsInvoker(t *testing.T) {
	tb := newTestBot(t)
	tb.create(t, guildID, "lister", "{c:tag list}")
	tb.create(t, guildID, "quiet", "{silent}{c:tag list}")
	tb.create(t, guildID, "nested", "{c:lister}")

	tb.say(userID, "!lister")
	contents := tb.session.contents()
	require.Len(t, contents, 1)
	assert.Contains(t, contents[0], "`lister`")
	assert.Contains(t, contents[0], "3 tags")

	tb.session.reset()
	tb.say(userID, "!quiet")
	tb.say(userID, "!nested")
	assert.Empty(t, tb.session.messages())
}

func TestGlobalTagsAreOwnerOnly(t *testing.T) {
	tb := newTestBot(t)
	tb.session.perms[userID] = discordgo.PermissionAdministrator

	tb.say(userID, "!tag global add motd Welcome")
	tb.say("owner", "!tag global add motd Welcome")
	tb.say(userID, "!motd")

	assert.Equal(t, []string{
		"Only bot owners can manage global tags.",
		"Tag `motd` added.",
		"Welcome",
	}, tb.session.contents())
}

func TestTagInfoCommands(t *testing.T) {
	tb := newTestBot(t)
	tb.create(t, guildID, "fmt", "*bold* {args}")

	tb.say(userID, "!tag raw fmt")
	tb.say(userID, "!tag search fm")
	tb.say(userID, "!tag raw missing")
	tb.say(userID, "!tag bogus")

	contents := tb.session.contents()
	require.Len(t, contents, 4)
	assert.Equal(t, `\*bold\* {args}`, contents[0])
	assert.Contains(t, contents[1], "`fmt`")
	assert.Equal(t, `Tag "missing" not found.`, contents[2])
	assert.Equal(t, tagUsage, contents[3])
}

func TestTagRunReportsExecution(t *testing.T) {
	tb := newTestBot(t)

	tb.say(userID, "!tag run {embed(title):T}hello")
	tb.say(userID, "!tag process plain")

	msgs := tb.session.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "hello", msgs[0].msg.Content)
	require.Len(t, msgs[0].msg.Embeds, 1)
	assert.Equal(t, "T", msgs[0].msg.Embeds[0].Title)
	assert.Contains(t, msgs[1].msg.Content, "Executed in")
	assert.Equal(t, "plain", msgs[2].msg.Content)
}

func TestTagBackupUploadsFile(t *testing.T) {
	tb := newTestBot(t)
	tb.session.perms[userID] = discordgo.PermissionManageServer
	tb.create(t, guildID, "a", "x")

	tb.say(userID, "!tag backup")
	tb.say(userID, "!tag restore")

	msgs := tb.session.messages()
	require.Len(t, msgs, 2)
	require.Len(t, msgs[0].msg.Files, 1)
	assert.Equal(t, "tags-200.json", msgs[0].msg.Files[0].Name)
	assert.Equal(t, "Attach a backup file to restore.", msgs[1].msg.Content)
}

func TestApplicationOverDirectMessages(t *testing.T) {
	tb := newTestBot(t)
	tb.session.perms[userID] = discordgo.PermissionManageServer

	tb.say(userID, "!apps create staff Staff application")
	tb.say(userID, "!apps question staff boolean Are you 18?")
	tb.say(userID, "!apps question staff choices optional Pick a team | red | blue")
	tb.say(userID, "!apps set staff channel <#555>")
	tb.say(userID, "!apps set staff thread true")

	contents := tb.session.contents()
	require.Len(t, contents, 5)
	assert.True(t, strings.HasPrefix(contents[0], "Application `staff` created."))
	assert.Equal(t, "Updated thread of `staff`.", contents[4])

	answers := []string{"yes", "2"}
	tb.session.onSend = func(channelID string, msg *discordgo.MessageSend) {
		if channelID != "dm-"+userID || len(msg.Embeds) == 0 || msg.Embeds[0].Footer == nil || len(answers) == 0 {
			return
		}
		reply := answers[0]
		answers = answers[1:]
		tb.bot.handleMessage(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
			ChannelID: channelID,
			Content:   reply,
			Author:    &discordgo.User{ID: userID, Username: "kim"},
		}})
	}

	tb.session.reset()
	tb.say(userID, "!apply staff")

	require.Eventually(t, func() bool {
		app, err := tb.appStore.GetApplication(context.Background(), guildID, "staff")
		return err == nil && len(app.Responses) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, tb.bot.Stop())

	app, err := tb.appStore.GetApplication(context.Background(), guildID, "staff")
	require.NoError(t, err)
	require.Len(t, app.Responses[0].Answers, 2)
	assert.Equal(t, "Yes", app.Responses[0].Answers[0].Answer)
	assert.Equal(t, "blue", app.Responses[0].Answers[1].Answer)

	var summary, confirmation bool
	for _, m := range tb.session.messages() {
		if m.channelID == "555" && len(m.msg.Embeds) == 1 {
			summary = true
		}
		if m.channelID == "dm-"+userID && len(m.msg.Embeds) == 1 && m.msg.Embeds[0].Title == "Application Submitted" {
			confirmation = true
		}
	}
	assert.True(t, summary)
	assert.True(t, confirmation)
	assert.Len(t, tb.session.threads, 1)
}

func TestApplyUnknownApplication(t *testing.T) {
	tb := newTestBot(t)

	tb.say(userID, "!apply nothing")
	require.NoError(t, tb.bot.Stop())

	assert.Contains(t, tb.session.contents(), `Application "nothing" not found.`)
}

func TestParseQuestion(t *testing.T) {
	name, q, err := parseQuestion("staff choices optional Pick one | a | | b ")
	require.NoError(t, err)
	assert.Equal(t, "staff", name)
	assert.Equal(t, applications.Question{
		Text:     "Pick one",
		Type:     applications.QuestionChoices,
		Choices:  []string{"a", "b"},
		Required: false,
	}, q)

	_, q, err = parseQuestion("staff TEXT Why?")
	require.NoError(t, err)
	assert.True(t, q.Required)
	assert.Equal(t, applications.QuestionText, q.Type)

	_, _, err = parseQuestion("staff essay Why?")
	assert.Error(t, err)
}
