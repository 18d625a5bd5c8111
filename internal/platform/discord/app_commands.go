package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-tags/internal/applications"
	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
	"github.com/aescanero/dago-node-tags/internal/eval/template"
)

const appsUsage = "Usage: `apps <create|delete|list|question|unquestion|set> ...`"

// threadArchiveMinutes is how long idle response threads stay open
const threadArchiveMinutes = 1440

// appsCommand handles application management
func (b *Bot) appsCommand(ctx context.Context, req *request, line string) {
	if req.guildID == "" {
		b.reply(req, "Applications can only be managed in a server.")
		return
	}
	if !b.canManage(req) {
		b.reply(req, "You need the Manage Server permission to do that.")
		return
	}

	sub, rest := split(line)
	switch strings.ToLower(sub) {
	case "create", "add":
		name, description := split(rest)
		app, err := b.apps.Create(ctx, req.guildID, name, description)
		if err != nil {
			b.replyAppError(req, name, err)
			return
		}
		b.reply(req, fmt.Sprintf("Application `%s` created. Add questions with `%sapps question %s <text|choices|boolean> <question>`.",
			app.Name, b.config.Prefix, app.Name))
	case "delete", "remove":
		name, _ := split(rest)
		if err := b.apps.Delete(ctx, req.guildID, name); err != nil {
			b.replyAppError(req, name, err)
			return
		}
		b.reply(req, fmt.Sprintf("Application `%s` deleted.", applications.Key(name)))
	case "list":
		list, err := b.apps.List(ctx, req.guildID)
		if err != nil {
			b.replyAppError(req, "", err)
			return
		}
		b.reply(req, listApplications(list))
	case "question":
		name, q, err := parseQuestion(rest)
		if err == nil {
			err = b.apps.AddQuestion(ctx, req.guildID, name, q)
		}
		if err != nil {
			b.replyAppError(req, name, err)
			return
		}
		b.reply(req, fmt.Sprintf("Question added to `%s`.", applications.Key(name)))
	case "unquestion":
		name, number := split(rest)
		n, err := strconv.Atoi(number)
		if err == nil {
			err = b.apps.RemoveQuestion(ctx, req.guildID, name, n)
		}
		if err != nil {
			b.replyAppError(req, name, err)
			return
		}
		b.reply(req, fmt.Sprintf("Question %d removed from `%s`.", n, applications.Key(name)))
	case "set":
		name, rest := split(rest)
		setting, value := split(rest)
		if err := b.apps.EditSetting(ctx, req.guildID, name, setting, value); err != nil {
			b.replyAppError(req, name, err)
			return
		}
		b.reply(req, fmt.Sprintf("Updated %s of `%s`.", strings.ToLower(setting), applications.Key(name)))
	default:
		b.reply(req, appsUsage)
	}
}

// parseQuestion reads "<name> <type> [optional] <text>[ | choice | choice]"
func parseQuestion(line string) (string, applications.Question, error) {
	name, rest := split(line)
	kind, rest := split(rest)

	t, err := applications.ParseQuestionType(kind)
	if err != nil {
		return name, applications.Question{}, err
	}

	q := applications.Question{Type: t, Required: true}
	if first, after := split(rest); strings.EqualFold(first, "optional") {
		q.Required = false
		rest = after
	}

	parts := strings.Split(rest, "|")
	q.Text = strings.TrimSpace(parts[0])
	for _, choice := range parts[1:] {
		if choice = strings.TrimSpace(choice); choice != "" {
			q.Choices = append(q.Choices, choice)
		}
	}
	return name, q, nil
}

func listApplications(list []*applications.Application) string {
	if len(list) == 0 {
		return "There are no applications on this server."
	}

	var sb strings.Builder
	sb.WriteString("**Applications**")
	for _, app := range list {
		fmt.Fprintf(&sb, "\n`%s` - %d questions, %d responses", app.Name, len(app.Questions), len(app.Responses))
	}
	return sb.String()
}

func (b *Bot) replyAppError(req *request, name string, err error) {
	switch {
	case errors.Is(err, applications.ErrApplicationNotFound):
		b.reply(req, b.render(template.MsgAppNotFound, map[string]interface{}{"name": applications.Key(name)}))
	case errors.Is(err, applications.ErrNoQuestions):
		b.reply(req, b.render(template.MsgAppNoQuestions, map[string]interface{}{"name": applications.Key(name)}))
	case errors.Is(err, applications.ErrApplicationExists):
		b.reply(req, fmt.Sprintf("An application named `%s` already exists.", applications.Key(name)))
	default:
		b.reply(req, err.Error())
	}
}

func (b *Bot) render(name string, data map[string]interface{}) string {
	msg, err := b.tags.Catalog().Render(name, data)
	if err != nil {
		b.logger.Error("failed to render message", zap.String("message", name), zap.Error(err))
		return name
	}
	return msg
}

// apply starts an application over direct messages. The flow runs in the
// background; one application per user at a time.
func (b *Bot) apply(req *request, name string) {
	if b.flow == nil || req.guildID == "" {
		return
	}
	name, _ = split(name)

	b.mu.Lock()
	if b.applying[req.author.ID] {
		b.mu.Unlock()
		b.reply(req, "You already have an application in progress.")
		return
	}
	b.applying[req.author.ID] = true
	b.mu.Unlock()

	dm, err := b.session.UserChannelCreate(req.author.ID)
	if err != nil {
		b.finishApply(req.author.ID)
		b.reply(req, "I could not send you a direct message.")
		return
	}

	var guild tagscript.Adapter
	if g, err := b.session.Guild(req.guildID); err == nil {
		guild = NewGuildAdapter(g)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.finishApply(req.author.ID)

		asker := &dmAsker{bot: b, channelID: dm.ID}
		result, err := b.flow.Run(b.ctx, req.guildID, name, applications.Applicant{
			UserID:   req.author.ID,
			Username: req.author.Username,
		}, guild, asker)
		if err != nil {
			switch {
			case errors.Is(err, applications.ErrApplicationNotFound), errors.Is(err, applications.ErrNoQuestions):
				b.replyAppError(req, name, err)
			case errors.Is(err, applications.ErrCancelled), errors.Is(err, applications.ErrTimedOut),
				errors.Is(err, applications.ErrInvalidAnswer), errors.Is(err, context.Canceled):
			default:
				b.logger.Error("application failed",
					zap.String("guild_id", req.guildID),
					zap.String("application", name),
					zap.Error(err),
				)
			}
			return
		}

		if result.Confirmation != nil && result.Confirmation.HasMessage() {
			b.send(dm.ID, MessageSend(result.Confirmation))
		}
	}()
}

func (b *Bot) finishApply(userID string) {
	b.mu.Lock()
	delete(b.applying, userID)
	b.mu.Unlock()
}

// deliver hands a direct message to a waiting question, reporting whether
// one was waiting
func (b *Bot) deliver(channelID, content string) bool {
	b.mu.Lock()
	ch, ok := b.waiters[channelID]
	b.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case ch <- content:
	default:
	}
	return true
}

// dmAsker asks application questions in a direct message channel
type dmAsker struct {
	bot       *Bot
	channelID string
}

// Ask sends the prompt and waits for the next message in the channel
func (a *dmAsker) Ask(ctx context.Context, prompt *tagscript.Embed, q applications.Question) (string, error) {
	replies := make(chan string, 1)

	a.bot.mu.Lock()
	a.bot.waiters[a.channelID] = replies
	a.bot.mu.Unlock()
	defer func() {
		a.bot.mu.Lock()
		delete(a.bot.waiters, a.channelID)
		a.bot.mu.Unlock()
	}()

	if _, err := a.bot.session.ChannelMessageSendComplex(a.channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{EmbedFromAction(prompt)},
	}); err != nil {
		return "", fmt.Errorf("failed to send question: %w", err)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case reply := <-replies:
		switch strings.ToLower(strings.TrimSpace(reply)) {
		case "cancel":
			return "", applications.ErrCancelled
		case "skip":
			return "", applications.ErrSkipped
		}
		return reply, nil
	}
}

// Notify sends a plain message
func (a *dmAsker) Notify(_ context.Context, message string) error {
	for _, chunk := range splitMessage(message, messageLimit) {
		if _, err := a.bot.session.ChannelMessageSendComplex(a.channelID, &discordgo.MessageSend{Content: chunk}); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

// Publisher posts application responses to the configured channel
type Publisher struct {
	session Session
	logger  *zap.Logger
}

// NewPublisher creates a new response publisher
func NewPublisher(session Session, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{session: session, logger: logger}
}

// Publish sends the summary embed and opens a thread on it when the
// application asks for one. Applications without a channel are only stored.
func (p *Publisher) Publish(_ context.Context, app *applications.Application, resp *applications.Response, summary *tagscript.Embed) error {
	if app.Settings.Channel == "" {
		p.logger.Debug("application has no response channel", zap.String("application", app.Name))
		return nil
	}

	msg, err := p.session.ChannelMessageSendComplex(app.Settings.Channel, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{EmbedFromAction(summary)},
	})
	if err != nil {
		return fmt.Errorf("failed to post response: %w", err)
	}

	if app.Settings.Thread {
		name := fmt.Sprintf("%s response %s", app.Name, resp.ID)
		if r := []rune(name); len(r) > 100 {
			name = string(r[:100])
		}
		if _, err := p.session.MessageThreadStart(app.Settings.Channel, msg.ID, name, threadArchiveMinutes); err != nil {
			p.logger.Warn("failed to start response thread",
				zap.String("application", app.Name),
				zap.Error(err),
			)
		}
	}
	return nil
}
