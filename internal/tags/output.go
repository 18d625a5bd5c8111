package tags

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
)

// Output is a processed tag, ready to be delivered by a frontend
type Output struct {
	Tag       string           `json:"tag,omitempty" yaml:"tag,omitempty"`
	Content   string           `json:"content,omitempty" yaml:"content,omitempty"`
	Embed     *tagscript.Embed `json:"embed,omitempty" yaml:"embed,omitempty"`
	Commands  []string         `json:"commands,omitempty" yaml:"commands,omitempty"`
	Require   *tagscript.Gate  `json:"require,omitempty" yaml:"require,omitempty"`
	Blacklist *tagscript.Gate  `json:"blacklist,omitempty" yaml:"blacklist,omitempty"`
	Delete    bool             `json:"delete,omitempty" yaml:"delete,omitempty"`
	Silent    bool             `json:"silent,omitempty" yaml:"silent,omitempty"`
	Target    string           `json:"target,omitempty" yaml:"target,omitempty"`
}

// HasMessage reports whether there is anything to send
func (o *Output) HasMessage() bool {
	return o.Content != "" || (o.Embed != nil && !o.Embed.Empty())
}

// NewOutput converts an interpreter response, truncating the body to
// bodyLimit runes
func NewOutput(resp *tagscript.Response, bodyLimit int) *Output {
	out := &Output{Content: truncate(resp.Body, bodyLimit)}

	for name, value := range resp.Actions {
		switch name {
		case tagscript.ActionEmbed:
			out.Embed, _ = value.(*tagscript.Embed)
		case tagscript.ActionCommand:
			out.Commands, _ = value.([]string)
		case tagscript.ActionRequire:
			out.Require, _ = value.(*tagscript.Gate)
		case tagscript.ActionBlacklist:
			out.Blacklist, _ = value.(*tagscript.Gate)
		case tagscript.ActionDelete:
			out.Delete, _ = value.(bool)
		case tagscript.ActionSilent:
			out.Silent, _ = value.(bool)
		case tagscript.ActionTarget:
			out.Target, _ = value.(string)
		}
	}
	return out
}

// ActionNames returns the action names present in resp, sorted
func ActionNames(resp *tagscript.Response) []string {
	names := make([]string, 0, len(resp.Actions))
	for name := range resp.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}

	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// Invoker describes who triggered a tag and where
type Invoker struct {
	UserID      string
	ChannelID   string
	ChannelName string
	RoleIDs     []string
	RoleNames   []string
}

func (i Invoker) matches(item string) bool {
	item = strings.TrimSpace(item)
	for _, prefix := range []string{"<@&", "<@!", "<@", "<#"} {
		if strings.HasPrefix(item, prefix) && strings.HasSuffix(item, ">") {
			item = item[len(prefix) : len(item)-1]
			break
		}
	}
	if item == "" {
		return false
	}

	if item == i.UserID || item == i.ChannelID || strings.EqualFold(item, i.ChannelName) {
		return true
	}
	for _, id := range i.RoleIDs {
		if item == id {
			return true
		}
	}
	for _, name := range i.RoleNames {
		if strings.EqualFold(item, name) {
			return true
		}
	}
	return false
}

// Check applies the require and blacklist gates of an output. When the
// invoker is not allowed it returns false and the gate's response, which
// may be empty.
func Check(out *Output, invoker Invoker) (bool, string) {
	if g := out.Require; g != nil {
		allowed := false
		for _, item := range g.Items {
			if invoker.matches(item) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, g.Response
		}
	}

	if g := out.Blacklist; g != nil {
		for _, item := range g.Items {
			if invoker.matches(item) {
				return false, g.Response
			}
		}
	}

	return true, ""
}
