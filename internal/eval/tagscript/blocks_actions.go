package tagscript

import (
	"fmt"
	"strings"
)

// Action names understood by hosts
const (
	ActionEmbed     = "embed"
	ActionCommand   = "command"
	ActionRequire   = "require"
	ActionBlacklist = "blacklist"
	ActionDelete    = "delete"
	ActionSilent    = "silent"
	ActionTarget    = "target"
)

// MaxCommands is how many commands a single template may request
const MaxCommands = 3

// Gate is the value of the require and blacklist actions
type Gate struct {
	Items    []string `json:"items" yaml:"items"`
	Response string   `json:"response,omitempty" yaml:"response,omitempty"`
}

// CommandBlock asks the host to run another bot command: {command:ping}
type CommandBlock struct{ eager }

// NewCommandBlock creates a new command block
func NewCommandBlock() *CommandBlock {
	return &CommandBlock{}
}

// Names returns the accepted declarations
func (b *CommandBlock) Names() []string {
	return []string{"c", "com", "command"}
}

// Process appends the payload to the command action
func (b *CommandBlock) Process(ctx *Context, v Verb) Result {
	command := strings.TrimSpace(v.PayloadValue())
	if command == "" {
		return Reject()
	}

	var commands []string
	if existing, ok := ctx.Action(ActionCommand); ok {
		commands, _ = existing.([]string)
	}
	if len(commands) >= MaxCommands {
		return Output(fmt.Sprintf("`COMMAND LIMIT REACHED (%d)`", MaxCommands))
	}

	updated := make([]string, len(commands), len(commands)+1)
	copy(updated, commands)
	return SetAction(ActionCommand, append(updated, command))
}

// EmbedBlock builds the embed action. Occurrences accumulate into one embed:
//
//	{embed(title):Rules}
//	{embed(field):Rule 1|Be nice|false}
//	{embed({"title":"Rules","color":16711680})}
type EmbedBlock struct{ eager }

// NewEmbedBlock creates a new embed block
func NewEmbedBlock() *EmbedBlock {
	return &EmbedBlock{}
}

// Names returns the accepted declarations
func (b *EmbedBlock) Names() []string {
	return []string{"embed"}
}

// Process updates the embed action
func (b *EmbedBlock) Process(ctx *Context, v Verb) Result {
	embed := &Embed{}
	if existing, ok := ctx.Action(ActionEmbed); ok {
		if e, ok := existing.(*Embed); ok {
			embed = e
		}
	}

	param := strings.TrimSpace(v.ParamValue())
	switch {
	case v.Parameter == nil || param == "":
		return SetAction(ActionEmbed, embed)
	case strings.HasPrefix(param, "{") && strings.HasSuffix(param, "}"):
		parsed, err := parseEmbedJSON(param)
		if err != nil {
			return Output(fmt.Sprintf("Embed Parse Error: %v", err))
		}
		return SetAction(ActionEmbed, parsed)
	}

	if v.Payload == nil {
		return Reject()
	}
	if err := embed.set(param, *v.Payload); err != nil {
		return Reject()
	}
	return SetAction(ActionEmbed, embed)
}

// RequireBlock restricts a tag to the listed roles or channels:
// {require(Moderator,#staff):You cannot use this tag.}
type RequireBlock struct{ eager }

// NewRequireBlock creates a new require block
func NewRequireBlock() *RequireBlock {
	return &RequireBlock{}
}

// Names returns the accepted declarations
func (b *RequireBlock) Names() []string {
	return []string{"require", "whitelist"}
}

// Process sets the require action
func (b *RequireBlock) Process(ctx *Context, v Verb) Result {
	gate, ok := parseGate(v)
	if !ok {
		return Reject()
	}
	return SetAction(ActionRequire, gate)
}

// BlacklistBlock forbids a tag for the listed roles or channels
type BlacklistBlock struct{ eager }

// NewBlacklistBlock creates a new blacklist block
func NewBlacklistBlock() *BlacklistBlock {
	return &BlacklistBlock{}
}

// Names returns the accepted declarations
func (b *BlacklistBlock) Names() []string {
	return []string{"blacklist"}
}

// Process sets the blacklist action
func (b *BlacklistBlock) Process(ctx *Context, v Verb) Result {
	gate, ok := parseGate(v)
	if !ok {
		return Reject()
	}
	return SetAction(ActionBlacklist, gate)
}

func parseGate(v Verb) (*Gate, bool) {
	if v.Parameter == nil {
		return nil, false
	}

	var items []string
	for _, item := range strings.Split(*v.Parameter, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil, false
	}

	return &Gate{Items: items, Response: strings.TrimSpace(v.PayloadValue())}, true
}

// DeleteBlock asks the host to delete the invoking message: {delete} or
// {delete(condition)}
type DeleteBlock struct{ eager }

// NewDeleteBlock creates a new delete block
func NewDeleteBlock() *DeleteBlock {
	return &DeleteBlock{}
}

// Names returns the accepted declarations
func (b *DeleteBlock) Names() []string {
	return []string{"delete", "del"}
}

// Process sets the delete action when the optional condition holds
func (b *DeleteBlock) Process(ctx *Context, v Verb) Result {
	if v.Parameter != nil {
		ok, valid := EvaluateCondition(*v.Parameter)
		if !valid {
			return Reject()
		}
		if !ok {
			return Output("")
		}
	}
	return SetAction(ActionDelete, true)
}

// SilentBlock suppresses the output of commands run through {command}
type SilentBlock struct{ eager }

// NewSilentBlock creates a new silent block
func NewSilentBlock() *SilentBlock {
	return &SilentBlock{}
}

// Names returns the accepted declarations
func (b *SilentBlock) Names() []string {
	return []string{"silent", "silence"}
}

// Process sets the silent action
func (b *SilentBlock) Process(ctx *Context, v Verb) Result {
	return SetAction(ActionSilent, true)
}

// RedirectBlock routes the response: {redirect(dm)}, {redirect(reply)} or
// {redirect(<channel id or mention>)}
type RedirectBlock struct{ eager }

// NewRedirectBlock creates a new redirect block
func NewRedirectBlock() *RedirectBlock {
	return &RedirectBlock{}
}

// Names returns the accepted declarations
func (b *RedirectBlock) Names() []string {
	return []string{"redirect"}
}

// Process sets the target action
func (b *RedirectBlock) Process(ctx *Context, v Verb) Result {
	target := strings.TrimSpace(v.ParamValue())
	if target == "" {
		return Reject()
	}

	switch lower := strings.ToLower(target); lower {
	case "dm", "reply":
		return SetAction(ActionTarget, lower)
	}

	target = strings.TrimSuffix(strings.TrimPrefix(target, "<#"), ">")
	for _, r := range target {
		if r < '0' || r > '9' {
			return Reject()
		}
	}
	return SetAction(ActionTarget, target)
}
