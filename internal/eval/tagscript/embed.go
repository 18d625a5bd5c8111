package tagscript

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Embed limits enforced while accumulating
const (
	MaxEmbedFields = 25
)

// Embed is the structured value of the "embed" action
type Embed struct {
	Title       string       `json:"title,omitempty" yaml:"title,omitempty"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	URL         string       `json:"url,omitempty" yaml:"url,omitempty"`
	Color       int          `json:"color,omitempty" yaml:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty" yaml:"footer,omitempty"`
	Image       *EmbedMedia  `json:"image,omitempty" yaml:"image,omitempty"`
	Thumbnail   *EmbedMedia  `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty" yaml:"author,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// EmbedFooter is the footer line of an embed
type EmbedFooter struct {
	Text    string `json:"text" yaml:"text"`
	IconURL string `json:"icon_url,omitempty" yaml:"icon_url,omitempty"`
}

// EmbedMedia is an image or thumbnail reference
type EmbedMedia struct {
	URL string `json:"url" yaml:"url"`
}

// EmbedAuthor is the author line of an embed
type EmbedAuthor struct {
	Name    string `json:"name" yaml:"name"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty" yaml:"icon_url,omitempty"`
}

// EmbedField is a name/value pair of an embed
type EmbedField struct {
	Name   string `json:"name" yaml:"name"`
	Value  string `json:"value" yaml:"value"`
	Inline bool   `json:"inline,omitempty" yaml:"inline,omitempty"`
}

// Empty reports whether the embed carries no content
func (e *Embed) Empty() bool {
	return e == nil || (e.Title == "" && e.Description == "" && e.URL == "" &&
		e.Footer == nil && e.Image == nil && e.Thumbnail == nil && e.Author == nil &&
		len(e.Fields) == 0)
}

// set applies one {embed(attribute):value} expression
func (e *Embed) set(attribute, value string) error {
	value = strings.TrimSpace(value)

	switch strings.ToLower(strings.TrimSpace(attribute)) {
	case "title":
		e.Title = value
	case "description":
		e.Description = value
	case "url":
		e.URL = value
	case "color", "colour":
		color, err := parseColor(value)
		if err != nil {
			return err
		}
		e.Color = color
	case "timestamp":
		e.Timestamp = value
	case "footer":
		text, icon, _ := strings.Cut(value, "|")
		e.Footer = &EmbedFooter{Text: strings.TrimSpace(text), IconURL: strings.TrimSpace(icon)}
	case "image":
		e.Image = &EmbedMedia{URL: value}
	case "thumbnail":
		e.Thumbnail = &EmbedMedia{URL: value}
	case "author":
		parts := strings.SplitN(value, "|", 3)
		author := &EmbedAuthor{Name: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			author.URL = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			author.IconURL = strings.TrimSpace(parts[2])
		}
		e.Author = author
	case "field":
		field, err := parseField(value)
		if err != nil {
			return err
		}
		if len(e.Fields) >= MaxEmbedFields {
			return fmt.Errorf("embed cannot have more than %d fields", MaxEmbedFields)
		}
		e.Fields = append(e.Fields, field)
	default:
		return fmt.Errorf("unknown embed attribute %q", attribute)
	}

	return nil
}

// parseEmbedJSON decodes the {embed(<json>)} form
func parseEmbedJSON(raw string) (*Embed, error) {
	var embed Embed
	if err := json.Unmarshal([]byte(raw), &embed); err != nil {
		return nil, fmt.Errorf("failed to parse embed json: %w", err)
	}
	if len(embed.Fields) > MaxEmbedFields {
		embed.Fields = embed.Fields[:MaxEmbedFields]
	}
	return &embed, nil
}

// parseField parses "name|value|inline"
func parseField(value string) (EmbedField, error) {
	parts := strings.SplitN(value, "|", 3)
	if len(parts) < 2 {
		return EmbedField{}, fmt.Errorf("embed field requires name|value")
	}

	field := EmbedField{
		Name:  strings.TrimSpace(parts[0]),
		Value: strings.TrimSpace(parts[1]),
	}
	if len(parts) == 3 {
		switch strings.ToLower(strings.TrimSpace(parts[2])) {
		case "true", "inline", "yes":
			field.Inline = true
		}
	}
	return field, nil
}

// parseColor accepts #rrggbb, 0xrrggbb, rrggbb or a decimal value
func parseColor(value string) (int, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	base := 16
	switch {
	case strings.HasPrefix(v, "#"):
		v = v[1:]
	case strings.HasPrefix(v, "0x"):
		v = v[2:]
	default:
		if _, err := strconv.Atoi(v); err == nil && len(v) != 6 {
			base = 10
		}
	}

	color, err := strconv.ParseInt(v, base, 32)
	if err != nil || color < 0 || color > 0xFFFFFF {
		return 0, fmt.Errorf("invalid color %q", value)
	}
	return int(color), nil
}
