package tags

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
	"github.com/aescanero/dago-node-tags/internal/eval/template"
)

const guild = "guild-1"

func newTestService(t *testing.T, limits Limits) (*Service, *MemoryStore) {
	t.Helper()

	interpreter, err := tagscript.NewInterpreter(tagscript.DefaultBlocks(nil))
	require.NoError(t, err)

	store := NewMemoryStore()
	service := NewService(store, interpreter, template.NewCatalog(template.NewEngine()), limits, zap.NewNop())
	service.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return service, store
}

func mustCreate(t *testing.T, s *Service, guildID, name, script string) {
	t.Helper()
	_, err := s.Create(context.Background(), CreateRequest{GuildID: guildID, Name: name, TagScript: script, AuthorID: "7"})
	require.NoError(t, err)
}

func TestCreateAndGet(t *testing.T) {
	s, _ := newTestService(t, DefaultLimits())
	ctx := context.Background()

	msg, err := s.Create(ctx, CreateRequest{GuildID: guild, Name: "Hello", TagScript: "Hi {args}", AuthorID: "7"})
	require.NoError(t, err)
	assert.Equal(t, "Tag `hello` added.", msg)

	tag, err := s.Get(ctx, guild, "HELLO")
	require.NoError(t, err)
	assert.Equal(t, "hello", tag.Name)
	assert.Equal(t, "7", tag.AuthorID)
	assert.Equal(t, guild, tag.GuildID)
	assert.False(t, tag.Global())
}

func TestCreateRejectsDuplicateUnlessOverwrite(t *testing.T) {
	s, _ := newTestService(t, DefaultLimits())
	ctx := context.Background()
	mustCreate(t, s, guild, "rules", "one")

	_, err := s.Create(ctx, CreateRequest{GuildID: guild, Name: "rules", TagScript: "two"})
	var feedback *FeedbackError
	require.ErrorAs(t, err, &feedback)
	assert.Equal(t, "`rules` is already a registered tag.", feedback.Message)

	msg, err := s.Create(ctx, CreateRequest{GuildID: guild, Name: "rules", TagScript: "two", Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, "Tag `rules` edited.", msg)

	tag, err := s.Get(ctx, guild, "rules")
	require.NoError(t, err)
	assert.Equal(t, "two", tag.TagScript)
}

func TestCreateValidatesName(t *testing.T) {
	s, _ := newTestService(t, DefaultLimits())

	for _, name := range []string{"", "two words", strings.Repeat("x", MaxNameLength+1)} {
		_, err := s.Create(context.Background(), CreateRequest{GuildID: guild, Name: name, TagScript: "x"})
		var feedback *FeedbackError
		assert.ErrorAs(t, err, &feedback, "name %q", name)
	}
}

func TestCreateEnforcesCharacterLimit(t *testing.T) {
	s, _ := newTestService(t, DefaultLimits())

	_, err := s.Create(context.Background(), CreateRequest{GuildID: guild, Name: "long", TagScript: strings.Repeat("a", 12345)})
	var limit *CharacterLimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, "TagScript cannot be longer than 10,000 (**12,345**).", err.Error())
	assert.Equal(t, err.Error(), s.UserMessage(err))
}

func TestCreateEnforcesTagCount(t *testing.T) {
	limits := DefaultLimits()
	limits.GuildTags = 2
	limits.GlobalTags = 1
	s, _ := newTestService(t, limits)
	ctx := context.Background()

	mustCreate(t, s, guild, "a", "x")
	mustCreate(t, s, guild, "b", "x")
	_, err := s.Create(ctx, CreateRequest{GuildID: guild, Name: "c", TagScript: "x"})
	require.Error(t, err)
	assert.Equal(t, "This server has reached the limit of **2** tags.", s.UserMessage(err))

	mustCreate(t, s, "", "g", "x")
	_, err = s.Create(ctx, CreateRequest{Name: "h", TagScript: "x"})
	assert.Equal(t, "You have reached the limit of **1** global tags.", s.UserMessage(err))

	_, err = s.Create(ctx, CreateRequest{GuildID: guild, Name: "a", TagScript: "y", Overwrite: true})
	assert.NoError(t, err)
}

func TestGetFallsBackToGlobal(t *testing.T) {
	s, _ := newTestService(t, DefaultLimits())
	ctx := context.Background()
	mustCreate(t, s, "", "faq", "global faq")
	mustCreate(t, s, guild, "local", "local tag")

	tag, err := s.Get(ctx, guild, "faq")
	require.NoError(t, err)
	assert.True(t, tag.Global())

	mustCreate(t, s, guild, "faq", "guild faq")
	tag, err = s.Get(ctx, guild, "faq")
	require.NoError(t, err)
	assert.Equal(t, "guild faq", tag.TagScript)

	_, err = s.Get(ctx, "", "local")
	assert.ErrorIs(t, err, ErrTagNotFound)
	assert.Equal(t, `Tag "local" not found.`, s.UserMessage(err))
}

func TestEditAppendRemove(t *testing.T) {
	s, store := newTestService(t, DefaultLimits())
	ctx := context.Background()
	mustCreate(t, s, guild, "note", "first")

	_, err := s.Edit(ctx, guild, "note", "second")
	require.NoError(t, err)

	msg, err := s.Append(ctx, guild, "note", "third")
	require.NoError(t, err)
	assert.Equal(t, "Appended to tag `note`.", msg)

	tag, err := s.Get(ctx, guild, "note")
	require.NoError(t, err)
	assert.Equal(t, "second\nthird", tag.TagScript)

	_, err = s.AddAlias(ctx, guild, "note", "n")
	require.NoError(t, err)

	msg, err = s.Remove(ctx, guild, "n")
	require.NoError(t, err)
	assert.Equal(t, "Tag `note` deleted.", msg)

	_, err = store.ResolveAlias(ctx, guild, "n")
	assert.ErrorIs(t, err, ErrTagNotFound)
	_, err = s.Edit(ctx, guild, "note", "x")
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestEditCannotTouchGlobalFromGuild(t *testing.T) {
	s, _ := newTestService(t, DefaultLimits())
	mustCreate(t, s, "", "faq", "global")

	_, err := s.Edit(context.Background(), guild, "faq", "hijacked")
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestAppendRespectsLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.TagScript = 10
	s, _ := newTestService(t, limits)
	mustCreate(t, s, guild, "t", "12345")

	_, err := s.Append(context.Background(), guild, "t", "67890")
	var limit *CharacterLimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, 11, limit.Length)
}

func TestAliases(t *testing.T) {
	s, _ := newTestService(t, DefaultLimits())
	ctx := context.Background()
	mustCreate(t, s, guild, "rules", "Be nice")
	mustCreate(t, s, guild, "faq", "Read")

	msg, err := s.AddAlias(ctx, guild, "rules", "R")
	require.NoError(t, err)
	assert.Equal(t, "`r` has been added as an alias to tag `rules`.", msg)

	tag, err := s.Get(ctx, guild, "r")
	require.NoError(t, err)
	assert.Equal(t, "rules", tag.Name)
	assert.Equal(t, []string{"r"}, tag.Aliases)

	_, err = s.AddAlias(ctx, guild, "faq", "r")
	assert.Equal(t, "`r` is already used by tag `rules`.", s.UserMessage(err))
	_, err = s.AddAlias(ctx, guild, "faq", "rules")
	assert.Error(t, err)

	_, err = s.RemoveAlias(ctx, guild, "faq", "r")
	assert.Equal(t, "`r` is not a valid alias for tag `faq`.", s.UserMessage(err))

	_, err = s.RemoveAlias(ctx, guild, "rules", "r")
	require.NoError(t, err)
	_, err = s.Get(ctx, guild, "r")
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestListSearchUsage(t *testing.T) {
	s, store := newTestService(t, DefaultLimits())
	ctx := context.Background()
	mustCreate(t, s, guild, "support", "x")
	mustCreate(t, s, guild, "rules", "x")
	mustCreate(t, s, guild, "suggest", "x")
	_, err := s.AddAlias(ctx, guild, "rules", "serverrules")
	require.NoError(t, err)

	list, err := s.List(ctx, guild)
	require.NoError(t, err)
	assert.Equal(t, []string{"rules", "suggest", "support"}, names(list))

	found, err := s.Search(ctx, guild, "sup")
	require.NoError(t, err)
	assert.Equal(t, "support", found[0].Name)

	found, err = s.Search(ctx, guild, "srvr")
	require.NoError(t, err)
	assert.Equal(t, []string{"rules"}, names(found))

	found, err = s.Search(ctx, guild, "zzz")
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, "There are no close matches for 'zzz'.", s.SearchMessage(found, "zzz"))

	for i := 0; i < 3; i++ {
		_, err := store.IncrementUses(ctx, guild, "suggest")
		require.NoError(t, err)
	}
	_, err = store.IncrementUses(ctx, guild, "support")
	require.NoError(t, err)

	usage, err := s.Usage(ctx, guild)
	require.NoError(t, err)
	assert.Equal(t, []string{"suggest", "support", "rules"}, names(usage))
	assert.Equal(t, "suggest: 3 uses\nsupport: 1 use\nrules: 0 uses\n", s.UsageMessage(usage, false))
}

func TestListMessage(t *testing.T) {
	s, _ := newTestService(t, DefaultLimits())

	assert.Equal(t, "There are no stored tags on this server.", s.ListMessage(nil, false))
	assert.Equal(t, "There are no global tags.", s.ListMessage(nil, true))
	assert.Equal(t, "`a` (b)\n1 tag", s.ListMessage([]*Tag{{Name: "a", Aliases: []string{"b"}}}, false))
}

func TestInfoMessage(t *testing.T) {
	s, _ := newTestService(t, DefaultLimits())

	info := s.InfoMessage(&Tag{
		Name:      "rules",
		AuthorID:  "7",
		TagScript: "hello",
		Uses:      1200,
		Aliases:   []string{"r"},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	assert.Contains(t, info, "**rules**")
	assert.Contains(t, info, "Uses: **1,200**")
	assert.Contains(t, info, "Length: **5**")
	assert.Contains(t, info, "Aliases: r")
	assert.Contains(t, info, "2024-01-02 03:04 UTC")
}

func TestBackupRestore(t *testing.T) {
	s, _ := newTestService(t, DefaultLimits())
	ctx := context.Background()
	mustCreate(t, s, guild, "keep", "kept")
	_, err := s.AddAlias(ctx, guild, "keep", "k")
	require.NoError(t, err)

	data, err := s.Backup(ctx, guild)
	require.NoError(t, err)

	var backup Backup
	require.NoError(t, json.Unmarshal(data, &backup))
	assert.Equal(t, guild, backup.GuildID)
	require.Len(t, backup.Tags, 1)

	mustCreate(t, s, guild, "extra", "dropped on restore")

	msg, err := s.Restore(ctx, guild, data)
	require.NoError(t, err)
	assert.Equal(t, "Backup restored! 1 tag loaded.", msg)

	list, err := s.List(ctx, guild)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, names(list))

	tag, err := s.Get(ctx, guild, "k")
	require.NoError(t, err)
	assert.Equal(t, "kept", tag.TagScript)
}

func TestRestoreIntoOtherGuild(t *testing.T) {
	s, _ := newTestService(t, DefaultLimits())
	ctx := context.Background()

	data := []byte(`{"tags":[{"name":"Moved","tagscript":"hi","guild_id":"elsewhere","aliases":["M","moved"]}]}`)
	_, err := s.Restore(ctx, "target", data)
	require.NoError(t, err)

	tag, err := s.Get(ctx, "target", "m")
	require.NoError(t, err)
	assert.Equal(t, "target", tag.GuildID)
	assert.Equal(t, []string{"m"}, tag.Aliases)
}

func TestRestoreRejectsBadInput(t *testing.T) {
	s, _ := newTestService(t, DefaultLimits())
	ctx := context.Background()

	var feedback *FeedbackError
	_, err := s.Restore(ctx, guild, []byte("not json"))
	assert.ErrorAs(t, err, &feedback)

	_, err = s.Restore(ctx, guild, []byte(`{"tags":[{"name":"a"},{"name":"A"}]}`))
	assert.ErrorAs(t, err, &feedback)
}

func TestInvoke(t *testing.T) {
	s, store := newTestService(t, DefaultLimits())
	ctx := context.Background()
	mustCreate(t, s, guild, "greet", "{embed(title):Hi {args(1)}}{c:ping}Hello {user}, args={args}")

	out, err := s.Invoke(ctx, InvokeRequest{
		GuildID: guild,
		Name:    "GREET",
		Args:    "kim and co",
		Seed:    map[string]tagscript.Adapter{"user": tagscript.NewStringAdapter("sam")},
	})
	require.NoError(t, err)
	assert.Equal(t, "greet", out.Tag)
	assert.Equal(t, "Hello sam, args=kim and co", out.Content)
	assert.Equal(t, "Hi kim", out.Embed.Title)
	assert.Equal(t, []string{"ping"}, out.Commands)

	tag, err := store.GetTag(ctx, guild, "greet")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tag.Uses)

	_, err = s.Invoke(ctx, InvokeRequest{GuildID: guild, Name: "missing"})
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestInvokeTruncatesBody(t *testing.T) {
	limits := DefaultLimits()
	limits.Body = 5
	s, _ := newTestService(t, limits)
	mustCreate(t, s, guild, "long", "日本語テキスト")

	out, err := s.Invoke(context.Background(), InvokeRequest{GuildID: guild, Name: "long"})
	require.NoError(t, err)
	assert.Equal(t, "日本語テキ", out.Content)
}

func TestRun(t *testing.T) {
	s, _ := newTestService(t, DefaultLimits())

	report, err := s.Run(context.Background(), "{assign(x):1}{embed(title):{x}}{args}", map[string]tagscript.Adapter{
		"args": tagscript.NewStringAdapter("a"),
	})
	require.NoError(t, err)
	assert.Equal(t, "a", report.Output.Content)
	assert.Equal(t, []string{"embed"}, report.Actions)
	assert.Equal(t, []Variable{{Name: "args", Type: "StringAdapter"}, {Name: "x", Type: "StringAdapter"}}, report.Variables)

	summary := s.ReportMessage(report)
	assert.Contains(t, summary, "Executed in **")
	assert.Contains(t, summary, "`x`: StringAdapter")

	_, err = s.Run(context.Background(), strings.Repeat("a", 10001), nil)
	assert.Error(t, err)
}

func TestUserMessageHidesInternalErrors(t *testing.T) {
	s, _ := newTestService(t, DefaultLimits())

	assert.Equal(t, "", s.UserMessage(nil))
	assert.Equal(t, "", s.UserMessage(assert.AnError))
	assert.Equal(t, "nope", s.UserMessage(&FeedbackError{Message: "nope"}))
}

func names(tags []*Tag) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tag.Name)
	}
	return out
}
