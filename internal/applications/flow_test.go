package applications

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
	"github.com/aescanero/dago-node-tags/internal/eval/template"
)

type reply struct {
	text string
	err  error
	wait bool
}

type fakeAsker struct {
	mu       sync.Mutex
	replies  []reply
	prompts  []*tagscript.Embed
	messages []string
}

func (a *fakeAsker) Ask(ctx context.Context, prompt *tagscript.Embed, _ Question) (string, error) {
	a.mu.Lock()
	a.prompts = append(a.prompts, prompt)
	r := a.replies[0]
	a.replies = a.replies[1:]
	a.mu.Unlock()

	if r.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.text, r.err
}

func (a *fakeAsker) Notify(_ context.Context, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
	return nil
}

type fakePublisher struct {
	summaries []*tagscript.Embed
}

func (p *fakePublisher) Publish(_ context.Context, _ *Application, _ *Response, summary *tagscript.Embed) error {
	p.summaries = append(p.summaries, summary)
	return nil
}

const guildID = "g1"

func newTestFlow(t *testing.T, app *Application) (*Flow, *MemoryStore, *fakePublisher) {
	t.Helper()

	interpreter, err := tagscript.NewInterpreter(tagscript.DefaultBlocks(nil))
	require.NoError(t, err)

	store := NewMemoryStore()
	if app != nil {
		require.NoError(t, store.PutApplication(context.Background(), app))
	}

	publisher := &fakePublisher{}
	flow := NewFlow(store, interpreter, template.NewCatalog(template.NewEngine()), publisher, zap.NewNop())
	flow.newID = func() string { return "resp-1" }
	flow.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return flow, store, publisher
}

func staffApp(message string) *Application {
	return &Application{
		Name:        "staff",
		Description: "Staff application",
		GuildID:     guildID,
		Questions: []Question{
			{Text: "Why do you want to join?", Type: QuestionText, Required: true},
			{Text: "Favourite colour?", Type: QuestionChoices, Choices: []string{"Red", "Blue"}},
			{Text: "Are you over 18?", Type: QuestionBoolean},
			{Text: "Anything else?", Type: QuestionText},
		},
		Settings: Settings{Channel: "99", Color: 0x00ff00, Message: message},
	}
}

func guildAdapter() tagscript.Adapter {
	return tagscript.NewAttributeAdapter(map[string]string{"name": "Test Server", "id": guildID}, "name")
}

func TestFlowRun(t *testing.T) {
	flow, store, publisher := newTestFlow(t, staffApp("Thanks! {settings(name)} has {responses} response(s) in {server}."))
	asker := &fakeAsker{replies: []reply{
		{text: "  I like helping  "},
		{text: "2"},
		{text: "yes"},
		{err: ErrSkipped},
	}}

	result, err := flow.Run(context.Background(), guildID, "STAFF", Applicant{UserID: "42", Username: "kim"}, guildAdapter(), asker)
	require.NoError(t, err)

	assert.Equal(t, "resp-1", result.Response.ID)
	assert.Equal(t, []Answer{
		{Question: "Why do you want to join?", Type: QuestionText, Answer: "I like helping"},
		{Question: "Favourite colour?", Type: QuestionChoices, Answer: "Blue"},
		{Question: "Are you over 18?", Type: QuestionBoolean, Answer: "Yes"},
		{Question: "Anything else?", Type: QuestionText, Answer: "Skipped"},
	}, result.Response.Answers)

	require.Len(t, publisher.summaries, 1)
	summary := publisher.summaries[0]
	assert.Equal(t, "Response", summary.Title)
	assert.Equal(t, 0x00ff00, summary.Color)
	assert.Contains(t, summary.Description, "**Response ID**: resp-1")
	require.Len(t, summary.Fields, 4)
	assert.Equal(t, "Question 2", summary.Fields[1].Name)
	assert.Equal(t, "- **Favourite colour?**\n- Blue", summary.Fields[1].Value)

	assert.Equal(t, "Thanks! staff has 1 response(s) in Test Server.", result.Confirmation.Content)

	stored, err := store.GetApplication(context.Background(), guildID, "staff")
	require.NoError(t, err)
	require.Len(t, stored.Responses, 1)
	assert.Equal(t, "42", stored.Responses[0].UserID)

	require.Len(t, asker.prompts, 4)
	assert.Equal(t, "Staff application", asker.prompts[0].Title)
	assert.Contains(t, asker.prompts[1].Description, "- Red\n- Blue")
	assert.Contains(t, asker.messages[0], "1. Why do you want to join?")
	assert.Contains(t, asker.messages[len(asker.messages)-1], "Application successfully submitted!")
}

func TestFlowFallsBackToDefaultMessage(t *testing.T) {
	flow, store, _ := newTestFlow(t, staffApp("{assign(x):nothing}"))
	app, err := store.GetApplication(context.Background(), guildID, "staff")
	require.NoError(t, err)
	app.Questions = app.Questions[:1]
	require.NoError(t, store.PutApplication(context.Background(), app))

	asker := &fakeAsker{replies: []reply{{text: "because"}}}
	result, err := flow.Run(context.Background(), guildID, "staff", Applicant{UserID: "42"}, guildAdapter(), asker)
	require.NoError(t, err)

	require.NotNil(t, result.Confirmation.Embed)
	assert.Equal(t, "Application Submitted", result.Confirmation.Embed.Title)
	assert.Contains(t, result.Confirmation.Embed.Description, "**staff**")
	assert.Contains(t, result.Confirmation.Embed.Description, "Test Server")
	assert.Equal(t, 0x00ff00, result.Confirmation.Embed.Color)
	assert.Equal(t, "Response #1", result.Confirmation.Embed.Footer.Text)

	stored, err := store.GetApplication(context.Background(), guildID, "staff")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettingsMessage, stored.Settings.Message)
}

func TestFlowCancel(t *testing.T) {
	flow, store, publisher := newTestFlow(t, staffApp(""))
	asker := &fakeAsker{replies: []reply{{err: ErrCancelled}}}

	_, err := flow.Run(context.Background(), guildID, "staff", Applicant{UserID: "42"}, nil, asker)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, publisher.summaries)
	assert.Equal(t, "Application cancelled!", asker.messages[len(asker.messages)-1])

	stored, err := store.GetApplication(context.Background(), guildID, "staff")
	require.NoError(t, err)
	assert.Empty(t, stored.Responses)
}

func TestFlowTimeout(t *testing.T) {
	flow, _, _ := newTestFlow(t, staffApp(""))
	flow.TextTimeout = 10 * time.Millisecond
	asker := &fakeAsker{replies: []reply{{wait: true}}}

	_, err := flow.Run(context.Background(), guildID, "staff", Applicant{UserID: "42"}, nil, asker)
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, "Application timed out while waiting for your response.", asker.messages[len(asker.messages)-1])
}

func TestFlowRequiredQuestionCannotBeSkipped(t *testing.T) {
	flow, _, _ := newTestFlow(t, staffApp(""))
	asker := &fakeAsker{replies: []reply{{err: ErrSkipped}, {err: ErrSkipped}, {err: ErrSkipped}}}

	_, err := flow.Run(context.Background(), guildID, "staff", Applicant{UserID: "42"}, nil, asker)
	assert.ErrorIs(t, err, ErrInvalidAnswer)
	assert.Contains(t, asker.messages, "This question is required and cannot be skipped.")
}

func TestFlowRetriesInvalidChoice(t *testing.T) {
	flow, _, _ := newTestFlow(t, staffApp("done"))
	asker := &fakeAsker{replies: []reply{
		{text: "reason"},
		{text: "green"},
		{text: "red"},
		{text: "maybe"},
		{text: "no"},
		{text: "nothing"},
	}}

	result, err := flow.Run(context.Background(), guildID, "staff", Applicant{UserID: "42"}, nil, asker)
	require.NoError(t, err)
	assert.Equal(t, "Red", result.Response.Answers[1].Answer)
	assert.Equal(t, "No", result.Response.Answers[2].Answer)
	assert.Equal(t, "done", result.Confirmation.Content)
	assert.Contains(t, asker.messages, "I could not understand that answer, please try again.")
}

func TestFlowErrors(t *testing.T) {
	flow, store, _ := newTestFlow(t, nil)

	_, err := flow.Run(context.Background(), guildID, "missing", Applicant{}, nil, &fakeAsker{})
	assert.ErrorIs(t, err, ErrApplicationNotFound)

	require.NoError(t, store.PutApplication(context.Background(), &Application{Name: "empty", GuildID: guildID}))
	_, err = flow.Run(context.Background(), guildID, "empty", Applicant{}, nil, &fakeAsker{})
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestAnswerEchoIsTruncated(t *testing.T) {
	app := staffApp("ok")
	app.Questions = app.Questions[:1]
	flow, _, _ := newTestFlow(t, app)

	asker := &fakeAsker{replies: []reply{{text: strings.Repeat("x", 3000)}}}
	result, err := flow.Run(context.Background(), guildID, "staff", Applicant{UserID: "42"}, nil, asker)
	require.NoError(t, err)

	assert.Len(t, result.Response.Answers[0].Answer, 3000)
	assert.Contains(t, asker.messages[1], strings.Repeat("x", maxAnswerEcho)+"\n```")
	assert.NotContains(t, asker.messages[1], strings.Repeat("x", maxAnswerEcho+1))
}

func TestSettingsAdapter(t *testing.T) {
	adapter := NewSettingsAdapter(staffApp(""))

	color, ok := adapter.Attribute("color")
	require.True(t, ok)
	assert.Equal(t, "#00ff00", color)

	name, ok := adapter.Resolve(tagscript.Verb{Declaration: "settings"})
	require.True(t, ok)
	assert.Equal(t, "staff", name)
}

func TestFlowTruncatesConfirmation(t *testing.T) {
	flow, _, _ := newTestFlow(t, staffApp(strings.Repeat("ab", 1500)))
	asker := &fakeAsker{replies: []reply{
		{text: "because"},
		{text: "Red"},
		{text: "no"},
		{err: ErrSkipped},
	}}

	result, err := flow.Run(context.Background(), guildID, "staff", Applicant{UserID: "42", Username: "kim"}, guildAdapter(), asker)
	require.NoError(t, err)
	assert.Len(t, result.Confirmation.Content, 2000)

	flow.BodyLimit = 10
	asker.replies = []reply{{text: "because"}, {text: "Red"}, {text: "no"}, {err: ErrSkipped}}
	result, err = flow.Run(context.Background(), guildID, "staff", Applicant{UserID: "43", Username: "lee"}, guildAdapter(), asker)
	require.NoError(t, err)
	assert.Equal(t, "ababababab", result.Confirmation.Content)
}
