package tags

import (
	"fmt"
	"unicode/utf8"

	"github.com/aescanero/dago-node-tags/internal/eval/template"
)

// InfoMessage describes a tag
func (s *Service) InfoMessage(tag *Tag) string {
	return s.message(template.MsgTagInfo, map[string]interface{}{
		"name":    tag.Name,
		"author":  tag.AuthorID,
		"uses":    tag.Uses,
		"length":  utf8.RuneCountInString(tag.TagScript),
		"aliases": tag.Aliases,
		"created": tag.CreatedAt.Format("2006-01-02 15:04 MST"),
	})
}

// ListMessage lists tag names and aliases
func (s *Service) ListMessage(tags []*Tag, global bool) string {
	if len(tags) == 0 {
		return s.message(template.MsgNoTags, map[string]interface{}{"global": global})
	}
	return s.message(template.MsgTagList, map[string]interface{}{"tags": tagData(tags)})
}

// SearchMessage lists search results for keyword
func (s *Service) SearchMessage(tags []*Tag, keyword string) string {
	if len(tags) == 0 {
		return s.message(template.MsgNoMatches, map[string]interface{}{"keyword": keyword})
	}
	return s.message(template.MsgTagList, map[string]interface{}{"tags": tagData(tags)})
}

// UsageMessage lists tags with their use counts
func (s *Service) UsageMessage(tags []*Tag, global bool) string {
	if len(tags) == 0 {
		return s.message(template.MsgNoTags, map[string]interface{}{"global": global})
	}
	return s.message(template.MsgTagUsage, map[string]interface{}{"tags": tagData(tags)})
}

// ReportMessage summarizes a run for the author of the TagScript
func (s *Service) ReportMessage(report *RunReport) string {
	variables := make([]map[string]interface{}, 0, len(report.Variables))
	for _, v := range report.Variables {
		variables = append(variables, map[string]interface{}{"name": v.Name, "type": v.Type})
	}

	return s.message(template.MsgRunReport, map[string]interface{}{
		"elapsed":   fmt.Sprintf("%.3f", float64(report.Elapsed.Microseconds())/1000),
		"actions":   report.Actions,
		"variables": variables,
	})
}

func tagData(tags []*Tag) []map[string]interface{} {
	data := make([]map[string]interface{}, 0, len(tags))
	for _, tag := range tags {
		data = append(data, map[string]interface{}{
			"name":    tag.Name,
			"aliases": tag.Aliases,
			"uses":    tag.Uses,
		})
	}
	return data
}
