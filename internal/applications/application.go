package applications

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
)

// QuestionType selects how a question is asked and answered
type QuestionType string

const (
	QuestionText    QuestionType = "text"
	QuestionChoices QuestionType = "choices"
	QuestionBoolean QuestionType = "boolean"
)

// DefaultSettingsMessage is the confirmation shown to applicants when the
// configured message renders to nothing
const DefaultSettingsMessage = "{embed(title):Application Submitted}" +
	"{embed(description):Thank you for applying to **{settings(name)}**! " +
	"Your response has been sent to the staff of {server(name)}.}" +
	"{embed(color):{settings(color)}}" +
	"{embed(footer):Response #{responses}}"

var (
	// ErrApplicationNotFound is returned for unknown application names
	ErrApplicationNotFound = errors.New("application not found")
	// ErrNoQuestions is returned when applying to an application without questions
	ErrNoQuestions = errors.New("application has no questions")
	// ErrCancelled is returned by an Asker when the applicant cancels
	ErrCancelled = errors.New("application cancelled")
	// ErrSkipped is returned by an Asker when the applicant skips a question
	ErrSkipped = errors.New("question skipped")
	// ErrTimedOut is returned when the applicant does not answer in time
	ErrTimedOut = errors.New("application timed out")
	// ErrInvalidAnswer is returned when an answer cannot be understood
	ErrInvalidAnswer = errors.New("invalid answer")
)

// Question is one step of an application
type Question struct {
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Choices  []string     `json:"choices,omitempty"`
	Required bool         `json:"required"`
}

// Answer records what the applicant replied to a question
type Answer struct {
	Question string       `json:"question"`
	Type     QuestionType `json:"type"`
	Answer   string       `json:"answer"`
}

// Response is one submitted application
type Response struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Answers     []Answer  `json:"answers"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Settings controls where responses go and what applicants see afterwards
type Settings struct {
	Channel string `json:"channel"`
	Color   int    `json:"color"`
	Message string `json:"message"`
	Thread  bool   `json:"thread"`
}

// Application is a questionnaire configured for a guild
type Application struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	GuildID     string     `json:"guild_id"`
	Questions   []Question `json:"questions"`
	Settings    Settings   `json:"settings"`
	Responses   []Response `json:"responses,omitempty"`
}

// NewSettingsAdapter exposes application settings to TagScript as
// {settings(name)}, {settings(channel)}, {settings(color)} and
// {settings(thread)}
func NewSettingsAdapter(app *Application) *tagscript.AttributeAdapter {
	return tagscript.NewAttributeAdapter(map[string]string{
		"name":        app.Name,
		"description": app.Description,
		"channel":     app.Settings.Channel,
		"color":       fmt.Sprintf("#%06x", app.Settings.Color),
		"thread":      strconv.FormatBool(app.Settings.Thread),
		"questions":   strconv.Itoa(len(app.Questions)),
	}, "name")
}

// Store persists applications per guild. Names are case-folded.
type Store interface {
	GetApplication(ctx context.Context, guildID, name string) (*Application, error)
	PutApplication(ctx context.Context, app *Application) error
	DeleteApplication(ctx context.Context, guildID, name string) error
	ListApplications(ctx context.Context, guildID string) ([]*Application, error)
	// AddResponse appends a response and returns the new response count
	AddResponse(ctx context.Context, guildID, name string, resp Response) (int, error)
}

// Key is the storage key of an application name
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
