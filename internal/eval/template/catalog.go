package template

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Message names understood by the default catalog
const (
	MsgTagCreated       = "tag.created"
	MsgTagEdited        = "tag.edited"
	MsgTagAppended      = "tag.appended"
	MsgTagRemoved       = "tag.removed"
	MsgTagExists        = "tag.exists"
	MsgTagNotFound      = "tag.not_found"
	MsgTagLimitGuild    = "tag.limit.guild"
	MsgTagLimitGlobal   = "tag.limit.global"
	MsgTagInfo          = "tag.info"
	MsgTagList          = "tag.list"
	MsgTagUsage         = "tag.usage"
	MsgNoTags           = "tag.none"
	MsgNoMatches        = "tag.search.none"
	MsgAliasAdded       = "alias.added"
	MsgAliasRemoved     = "alias.removed"
	MsgAliasTaken       = "alias.taken"
	MsgAliasMissing     = "alias.missing"
	MsgBackupRestored   = "backup.restored"
	MsgRunReport        = "run.report"
	MsgAppQuestions     = "application.questions"
	MsgAppQuestion      = "application.question"
	MsgAppAnswer        = "application.answer"
	MsgAppInvalidAnswer = "application.invalid_answer"
	MsgAppSummary       = "application.summary"
	MsgAppSubmitted     = "application.submitted"
	MsgAppCancelled     = "application.cancelled"
	MsgAppTimedOut      = "application.timeout"
	MsgAppNotFound      = "application.not_found"
	MsgAppNoQuestions   = "application.no_questions"
	MsgAppRequiredEmpty = "application.required"
)

// ErrUnknownMessage is returned when rendering a name the catalog does not hold
var ErrUnknownMessage = errors.New("unknown message")

// defaultMessages are rendered with triple-stash so user content is not HTML
// escaped
var defaultMessages = map[string]string{
	MsgTagCreated:     "Tag `{{{name}}}` added.",
	MsgTagEdited:      "Tag `{{{name}}}` edited.",
	MsgTagAppended:    "Appended to tag `{{{name}}}`.",
	MsgTagRemoved:     "Tag `{{{name}}}` deleted.",
	MsgTagExists:      "`{{{name}}}` is already a registered {{{kind}}}.",
	MsgTagNotFound:    "Tag \"{{{name}}}\" not found.",
	MsgTagLimitGuild:  "This server has reached the limit of **{{comma limit}}** tags.",
	MsgTagLimitGlobal: "You have reached the limit of **{{comma limit}}** global tags.",
	MsgTagInfo: "**{{{name}}}**\n" +
		"Author: <@{{{author}}}>\n" +
		"Uses: **{{comma uses}}**\n" +
		"Length: **{{comma length}}**\n" +
		"{{#if aliases}}Aliases: {{{join aliases \", \"}}}\n{{/if}}" +
		"Created: {{{created}}}",
	MsgTagList:        "{{#each tags}}`{{{name}}}`{{#if aliases}} ({{{join aliases \", \"}}}){{/if}}\n{{/each}}{{len tags}} {{plural (len tags) \"tag\" \"tags\"}}",
	MsgTagUsage:       "{{#each tags}}{{{name}}}: {{comma uses}} {{plural uses \"use\" \"uses\"}}\n{{/each}}",
	MsgNoTags:         "{{#if global}}There are no global tags.{{else}}There are no stored tags on this server.{{/if}}",
	MsgNoMatches:      "There are no close matches for '{{{keyword}}}'.",
	MsgAliasAdded:     "`{{{alias}}}` has been added as an alias to tag `{{{name}}}`.",
	MsgAliasRemoved:   "`{{{alias}}}` has been removed as an alias from tag `{{{name}}}`.",
	MsgAliasTaken:     "`{{{alias}}}` is already used by tag `{{{owner}}}`.",
	MsgAliasMissing:   "`{{{alias}}}` is not a valid alias for tag `{{{name}}}`.",
	MsgBackupRestored: "Backup restored! {{comma count}} {{plural count \"tag\" \"tags\"}} loaded.",
	MsgRunReport: "Executed in **{{{elapsed}}}** ms\n" +
		"{{#if actions}}Actions: {{{join actions \", \"}}}\n{{/if}}" +
		"{{#each variables}}`{{{name}}}`: {{{type}}}\n{{/each}}",
	MsgAppQuestions: "**__Questions__**\n\n{{#each questions}}{{{number}}}. {{{text}}}\n{{/each}}",
	MsgAppQuestion:      "**__Question {{number}}__**\n{{{text}}}{{#each choices}}\n- {{{this}}}{{/each}}",
	MsgAppAnswer:        "Your answer for question no. **{{number}}** is -\n```\n{{{answer}}}\n```",
	MsgAppInvalidAnswer: "I could not understand that answer, please try again.",
	MsgAppSummary: "**Name**: {{{name}}}\n" +
		"**Description**: {{{description}}}\n" +
		"**User:** <@{{{user}}}> [`@{{{username}}} ({{{user}}})`]\n" +
		"**Response ID**: {{{id}}}",
	MsgAppSubmitted:     "Application successfully submitted!\n\n**Response ID**: `{{{id}}}`",
	MsgAppCancelled:     "Application cancelled!",
	MsgAppTimedOut:      "Application timed out while waiting for your response.",
	MsgAppNotFound:      "Application \"{{{name}}}\" not found.",
	MsgAppNoQuestions:   "There are no questions configured for this application!",
	MsgAppRequiredEmpty: "This question is required and cannot be skipped.",
}

// Catalog holds named message templates rendered through the Engine
type Catalog struct {
	engine   *Engine
	messages map[string]string
	mu       sync.RWMutex
}

// NewCatalog creates a catalog with the default messages
func NewCatalog(engine *Engine) *Catalog {
	messages := make(map[string]string, len(defaultMessages))
	for name, tmpl := range defaultMessages {
		messages[name] = tmpl
	}
	return &Catalog{engine: engine, messages: messages}
}

// Override replaces the template of a message after validating it
func (c *Catalog) Override(name, tmpl string) error {
	if err := c.engine.ValidateTemplate(tmpl); err != nil {
		return fmt.Errorf("invalid template for %s: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[name] = tmpl
	return nil
}

// Render renders the named message with data
func (c *Catalog) Render(name string, data interface{}) (string, error) {
	c.mu.RLock()
	tmpl, ok := c.messages[name]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownMessage, name)
	}

	return c.engine.Render(tmpl, data)
}

// Names returns the message names in sorted order
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.messages))
	for name := range c.messages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadYAML applies overrides from a YAML mapping of message name to
// template. Unknown names are rejected.
func (c *Catalog) LoadYAML(data []byte) error {
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse message overrides: %w", err)
	}

	for name, tmpl := range overrides {
		c.mu.RLock()
		_, ok := c.messages[name]
		c.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMessage, name)
		}
		if err := c.Override(name, tmpl); err != nil {
			return err
		}
	}
	return nil
}
