package tags

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// MaxNameLength is the longest tag or alias name accepted, in runes
const MaxNameLength = 32

// ErrTagNotFound is returned when no tag or alias matches a name
var ErrTagNotFound = errors.New("tag not found")

// Tag is a stored TagScript snippet. An empty GuildID marks a global tag.
type Tag struct {
	Name      string    `json:"name"`
	TagScript string    `json:"tagscript"`
	GuildID   string    `json:"guild_id,omitempty"`
	AuthorID  string    `json:"author_id,omitempty"`
	Aliases   []string  `json:"aliases,omitempty"`
	Uses      int64     `json:"uses"`
	CreatedAt time.Time `json:"created_at"`
}

// Global reports whether the tag is available in every guild
func (t *Tag) Global() bool {
	return t.GuildID == ""
}

// Kind is the user facing noun for the tag
func (t *Tag) Kind() string {
	if t.Global() {
		return "global tag"
	}
	return "tag"
}

// HasAlias reports whether alias belongs to the tag
func (t *Tag) HasAlias(alias string) bool {
	for _, a := range t.Aliases {
		if a == alias {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the tag
func (t *Tag) Clone() *Tag {
	c := *t
	c.Aliases = append([]string(nil), t.Aliases...)
	return &c
}

// Store persists tags per scope. The scope is a guild ID, or "" for global
// tags. Implementations return ErrTagNotFound for missing tags and aliases.
type Store interface {
	GetTag(ctx context.Context, scope, name string) (*Tag, error)
	PutTag(ctx context.Context, tag *Tag) error
	DeleteTag(ctx context.Context, scope, name string) error
	ListTags(ctx context.Context, scope string) ([]*Tag, error)
	ResolveAlias(ctx context.Context, scope, alias string) (string, error)
	PutAlias(ctx context.Context, scope, alias, name string) error
	DeleteAlias(ctx context.Context, scope, alias string) error
	IncrementUses(ctx context.Context, scope, name string) (int64, error)
	ReplaceScope(ctx context.Context, scope string, tags []*Tag) error
}

// NotFoundError reports the name that did not match any tag. It matches
// ErrTagNotFound with errors.Is.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", ErrTagNotFound, e.Name)
}

// Is makes errors.Is(err, ErrTagNotFound) hold
func (e *NotFoundError) Is(target error) bool {
	return target == ErrTagNotFound
}

// FeedbackError carries a message meant for the user who issued a command
type FeedbackError struct {
	Message string
}

func (e *FeedbackError) Error() string {
	return e.Message
}

// CharacterLimitError is returned for TagScript over the length limit
type CharacterLimitError struct {
	Limit  int
	Length int
}

func (e *CharacterLimitError) Error() string {
	return fmt.Sprintf("TagScript cannot be longer than %s (**%s**).",
		humanize.Comma(int64(e.Limit)), humanize.Comma(int64(e.Length)))
}

// NormalizeName case-folds a tag or alias name and checks it is usable
func NormalizeName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case name == "":
		return "", &FeedbackError{Message: "Tag names cannot be empty."}
	case strings.ContainsFunc(name, unicode.IsSpace):
		return "", &FeedbackError{Message: "Tag names cannot contain whitespace."}
	case utf8.RuneCountInString(name) > MaxNameLength:
		return "", &FeedbackError{Message: fmt.Sprintf("Tag names cannot be longer than %d characters.", MaxNameLength)}
	}
	return name, nil
}
