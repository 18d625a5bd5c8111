package applications

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrApplicationExists is returned when creating a name already in use
var ErrApplicationExists = errors.New("application already exists")

// Manager configures applications
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager creates a new application manager
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger}
}

// Create adds an empty application with the default settings message
func (m *Manager) Create(ctx context.Context, guildID, name, description string) (*Application, error) {
	key := Key(name)
	if key == "" || strings.ContainsAny(key, " \t\n") {
		return nil, fmt.Errorf("invalid application name %q", name)
	}

	_, err := m.store.GetApplication(ctx, guildID, key)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrApplicationExists, key)
	case !errors.Is(err, ErrApplicationNotFound):
		return nil, err
	}

	app := &Application{
		Name:        key,
		Description: description,
		GuildID:     guildID,
		Settings:    Settings{Message: DefaultSettingsMessage},
	}
	if err := m.store.PutApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to store application: %w", err)
	}

	m.logger.Info("application created", zap.String("guild_id", guildID), zap.String("application", key))
	return app, nil
}

// Delete removes an application and its responses
func (m *Manager) Delete(ctx context.Context, guildID, name string) error {
	return m.store.DeleteApplication(ctx, guildID, name)
}

// List returns the applications of a guild
func (m *Manager) List(ctx context.Context, guildID string) ([]*Application, error) {
	return m.store.ListApplications(ctx, guildID)
}

// ParseQuestionType accepts text, choices or boolean in any case
func ParseQuestionType(s string) (QuestionType, error) {
	switch t := QuestionType(strings.ToLower(strings.TrimSpace(s))); t {
	case QuestionText, QuestionChoices, QuestionBoolean:
		return t, nil
	default:
		return "", fmt.Errorf("unknown question type %q", s)
	}
}

// AddQuestion appends a question to an application
func (m *Manager) AddQuestion(ctx context.Context, guildID, name string, q Question) error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return fmt.Errorf("question text is required")
	}
	if q.Type == QuestionChoices && len(q.Choices) == 0 {
		return fmt.Errorf("choices questions need at least one choice")
	}

	app, err := m.store.GetApplication(ctx, guildID, name)
	if err != nil {
		return err
	}
	app.Questions = append(app.Questions, q)
	return m.store.PutApplication(ctx, app)
}

// RemoveQuestion deletes the question at the 1-based position n
func (m *Manager) RemoveQuestion(ctx context.Context, guildID, name string, n int) error {
	app, err := m.store.GetApplication(ctx, guildID, name)
	if err != nil {
		return err
	}
	if n < 1 || n > len(app.Questions) {
		return fmt.Errorf("question %d does not exist", n)
	}
	app.Questions = append(app.Questions[:n-1], app.Questions[n:]...)
	return m.store.PutApplication(ctx, app)
}

// EditSetting changes one setting: channel, color, message or thread
func (m *Manager) EditSetting(ctx context.Context, guildID, name, setting, value string) error {
	app, err := m.store.GetApplication(ctx, guildID, name)
	if err != nil {
		return err
	}

	value = strings.TrimSpace(value)
	switch strings.ToLower(setting) {
	case "channel":
		value = strings.TrimSuffix(strings.TrimPrefix(value, "<#"), ">")
		if _, err := strconv.ParseUint(value, 10, 64); err != nil {
			return fmt.Errorf("invalid channel %q", value)
		}
		app.Settings.Channel = value
	case "color", "colour":
		v := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(value), "#"), "0x")
		color, err := strconv.ParseInt(v, 16, 32)
		if err != nil || color < 0 || color > 0xffffff {
			return fmt.Errorf("invalid color %q", value)
		}
		app.Settings.Color = int(color)
	case "message":
		app.Settings.Message = value
	case "thread":
		thread, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid thread flag %q", value)
		}
		app.Settings.Thread = thread
	default:
		return fmt.Errorf("unknown setting %q", setting)
	}

	return m.store.PutApplication(ctx, app)
}
