package applications

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
	"github.com/aescanero/dago-node-tags/internal/eval/template"
	"github.com/aescanero/dago-node-tags/internal/tags"
)

// Default per question timeouts
const (
	DefaultTextTimeout    = 300 * time.Second
	DefaultChoicesTimeout = 180 * time.Second
	DefaultBooleanTimeout = 120 * time.Second
)

// maxAttempts bounds how often a question is re-asked after an unusable answer
const maxAttempts = 3

// maxAnswerEcho is how much of an answer is echoed back to the applicant
const maxAnswerEcho = 1950

// Applicant identifies the user filling in an application
type Applicant struct {
	UserID   string
	Username string
}

// Asker is the conversation with the applicant, usually a direct message
// channel
type Asker interface {
	// Ask shows prompt and waits for the reply to q. It returns ErrCancelled
	// or ErrSkipped when the applicant says so, and ctx.Err() on timeout.
	Ask(ctx context.Context, prompt *tagscript.Embed, q Question) (string, error)
	// Notify sends a plain message to the applicant
	Notify(ctx context.Context, message string) error
}

// Publisher hands a finished response to the reviewers
type Publisher interface {
	Publish(ctx context.Context, app *Application, resp *Response, summary *tagscript.Embed) error
}

// Result is the outcome of a completed application
type Result struct {
	Response     *Response
	Summary      *tagscript.Embed
	Confirmation *tags.Output
}

// Flow walks an applicant through an application's questions
type Flow struct {
	store       Store
	interpreter *tagscript.Interpreter
	catalog     *template.Catalog
	publisher   Publisher
	logger      *zap.Logger

	TextTimeout    time.Duration
	ChoicesTimeout time.Duration
	BooleanTimeout time.Duration
	// BodyLimit truncates the rendered confirmation message
	BodyLimit int

	now   func() time.Time
	newID func() string
}

// NewFlow creates a new application flow
func NewFlow(
	store Store,
	interpreter *tagscript.Interpreter,
	catalog *template.Catalog,
	publisher Publisher,
	logger *zap.Logger,
) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Flow{
		store:          store,
		interpreter:    interpreter,
		catalog:        catalog,
		publisher:      publisher,
		logger:         logger,
		TextTimeout:    DefaultTextTimeout,
		ChoicesTimeout: DefaultChoicesTimeout,
		BooleanTimeout: DefaultBooleanTimeout,
		BodyLimit:      tags.DefaultLimits().Body,
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
	}
}

// Run asks every question of the named application, publishes the response
// and renders the confirmation message. guild backs the {guild} and
// {server} variables of the settings message.
func (f *Flow) Run(
	ctx context.Context,
	guildID, name string,
	applicant Applicant,
	guild tagscript.Adapter,
	asker Asker,
) (*Result, error) {
	app, err := f.store.GetApplication(ctx, guildID, name)
	if err != nil {
		return nil, err
	}
	if len(app.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	if err := asker.Notify(ctx, f.render(template.MsgAppQuestions, map[string]interface{}{
		"questions": questionList(app.Questions),
	})); err != nil {
		return nil, fmt.Errorf("failed to reach applicant: %w", err)
	}

	resp := &Response{
		ID:     f.newID(),
		UserID: applicant.UserID,
	}

	for idx, q := range app.Questions {
		if q.Type == QuestionChoices && len(q.Choices) == 0 {
			continue
		}

		answer, err := f.ask(ctx, app, idx, q, asker)
		if err != nil {
			f.abort(ctx, asker, err)
			return nil, err
		}
		resp.Answers = append(resp.Answers, Answer{Question: q.Text, Type: q.Type, Answer: answer})

		echo := answer
		if r := []rune(answer); len(r) > maxAnswerEcho {
			echo = string(r[:maxAnswerEcho])
		}
		if err := asker.Notify(ctx, f.render(template.MsgAppAnswer, map[string]interface{}{
			"number": idx + 1,
			"answer": echo,
		})); err != nil {
			return nil, fmt.Errorf("failed to reach applicant: %w", err)
		}
	}
	resp.SubmittedAt = f.now().UTC()

	summary := f.summary(app, applicant, resp)
	if err := f.publisher.Publish(ctx, app, resp, summary); err != nil {
		return nil, fmt.Errorf("failed to publish response: %w", err)
	}

	count, err := f.store.AddResponse(ctx, guildID, app.Name, *resp)
	if err != nil {
		return nil, fmt.Errorf("failed to store response: %w", err)
	}

	confirmation, err := f.confirmation(ctx, app, guild, count)
	if err != nil {
		return nil, err
	}

	if err := asker.Notify(ctx, f.render(template.MsgAppSubmitted, map[string]interface{}{"id": resp.ID})); err != nil {
		f.logger.Warn("failed to confirm submission", zap.String("response_id", resp.ID), zap.Error(err))
	}

	f.logger.Info("application submitted",
		zap.String("guild_id", guildID),
		zap.String("application", app.Name),
		zap.String("user_id", applicant.UserID),
		zap.String("response_id", resp.ID),
	)

	return &Result{Response: resp, Summary: summary, Confirmation: confirmation}, nil
}

// ask asks one question until it gets a usable answer
func (f *Flow) ask(ctx context.Context, app *Application, idx int, q Question, asker Asker) (string, error) {
	prompt := &tagscript.Embed{
		Title:       app.Description,
		Description: f.render(template.MsgAppQuestion, map[string]interface{}{"number": idx + 1, "text": q.Text, "choices": q.Choices}),
		Color:       app.Settings.Color,
		Footer:      &tagscript.EmbedFooter{Text: footer(q)},
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		qctx, cancel := context.WithTimeout(ctx, f.timeout(q.Type))
		raw, err := asker.Ask(qctx, prompt, q)
		timedOut := errors.Is(qctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		switch {
		case errors.Is(err, ErrSkipped):
			if !q.Required {
				return "Skipped", nil
			}
			f.notify(ctx, asker, template.MsgAppRequiredEmpty)
			continue
		case err != nil && timedOut:
			return "", ErrTimedOut
		case err != nil:
			return "", err
		}

		if answer, ok := normalize(q, raw); ok {
			return answer, nil
		}
		f.notify(ctx, asker, template.MsgAppInvalidAnswer)
	}
	return "", ErrInvalidAnswer
}

func (f *Flow) timeout(t QuestionType) time.Duration {
	switch t {
	case QuestionBoolean:
		return f.BooleanTimeout
	case QuestionChoices:
		return f.ChoicesTimeout
	default:
		return f.TextTimeout
	}
}

func footer(q Question) string {
	if q.Required {
		return `Reply "cancel" to cancel the submission`
	}
	return `Reply "cancel" to cancel the submission or "skip" to skip this question`
}

// normalize maps a raw reply onto the answer recorded for q
func normalize(q Question, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	switch q.Type {
	case QuestionBoolean:
		switch strings.ToLower(raw) {
		case "yes", "y", "true", "1", "✔", "✔️":
			return "Yes", true
		case "no", "n", "false", "0", "✖", "✖️":
			return "No", true
		}
		return "", false
	case QuestionChoices:
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= len(q.Choices) {
			return q.Choices[n-1], true
		}
		for _, choice := range q.Choices {
			if strings.EqualFold(raw, choice) {
				return choice, true
			}
		}
		return "", false
	default:
		return raw, true
	}
}

// abort tells the applicant why the application stopped
func (f *Flow) abort(ctx context.Context, asker Asker, err error) {
	switch {
	case errors.Is(err, ErrCancelled):
		f.notify(ctx, asker, template.MsgAppCancelled)
	case errors.Is(err, ErrTimedOut):
		f.notify(ctx, asker, template.MsgAppTimedOut)
	}
}

func (f *Flow) notify(ctx context.Context, asker Asker, name string) {
	if err := asker.Notify(ctx, f.render(name, nil)); err != nil {
		f.logger.Debug("failed to notify applicant", zap.String("message", name), zap.Error(err))
	}
}

func (f *Flow) render(name string, data map[string]interface{}) string {
	msg, err := f.catalog.Render(name, data)
	if err != nil {
		f.logger.Error("failed to render message", zap.String("message", name), zap.Error(err))
		return name
	}
	return msg
}

// summary builds the embed posted for reviewers
func (f *Flow) summary(app *Application, applicant Applicant, resp *Response) *tagscript.Embed {
	embed := &tagscript.Embed{
		Title: "Response",
		Description: f.render(template.MsgAppSummary, map[string]interface{}{
			"name":        Key(app.Name),
			"description": app.Description,
			"user":        applicant.UserID,
			"username":    applicant.Username,
			"id":          resp.ID,
		}),
		Color:     app.Settings.Color,
		Timestamp: resp.SubmittedAt.Format(time.RFC3339),
		Author:    &tagscript.EmbedAuthor{Name: applicant.Username},
	}

	for idx, answer := range resp.Answers {
		if idx == tagscript.MaxEmbedFields {
			break
		}
		embed.Fields = append(embed.Fields, tagscript.EmbedField{
			Name:  fmt.Sprintf("Question %d", idx+1),
			Value: fmt.Sprintf("- **%s**\n- %s", answer.Question, answer.Answer),
		})
	}
	return embed
}

// confirmation renders the settings message, resetting it to the default
// when it produces nothing
func (f *Flow) confirmation(ctx context.Context, app *Application, guild tagscript.Adapter, responses int) (*tags.Output, error) {
	seed := map[string]tagscript.Adapter{
		"settings":  NewSettingsAdapter(app),
		"responses": tagscript.NewIntAdapter(responses),
	}
	if guild != nil {
		seed["guild"] = guild
		seed["server"] = guild
	}

	out := tags.NewOutput(f.interpreter.Process(app.Settings.Message, seed), f.BodyLimit)
	if out.HasMessage() {
		return out, nil
	}

	app.Settings.Message = DefaultSettingsMessage
	current, err := f.store.GetApplication(ctx, app.GuildID, app.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to reload application: %w", err)
	}
	current.Settings.Message = DefaultSettingsMessage
	if err := f.store.PutApplication(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to reset settings message: %w", err)
	}

	return tags.NewOutput(f.interpreter.Process(DefaultSettingsMessage, seed), f.BodyLimit), nil
}

func questionList(questions []Question) []map[string]interface{} {
	list := make([]map[string]interface{}, 0, len(questions))
	for idx, q := range questions {
		list = append(list, map[string]interface{}{"number": idx + 1, "text": q.Text})
	}
	return list
}
