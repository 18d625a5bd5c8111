package tags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-tags/internal/eval/tagscript"
	"github.com/aescanero/dago-node-tags/internal/eval/template"
)

// Limits bounds what users may store and what a tag may send. Tag count
// limits of zero or less disable the check.
type Limits struct {
	TagScript  int
	Body       int
	GuildTags  int
	GlobalTags int
}

// DefaultLimits returns the stock limits
func DefaultLimits() Limits {
	return Limits{
		TagScript:  10000,
		Body:       2000,
		GuildTags:  250,
		GlobalTags: 250,
	}
}

// Service manages tags and runs them through the interpreter
type Service struct {
	store       Store
	interpreter *tagscript.Interpreter
	catalog     *template.Catalog
	limits      Limits
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new tag service
func NewService(
	store Store,
	interpreter *tagscript.Interpreter,
	catalog *template.Catalog,
	limits Limits,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		store:       store,
		interpreter: interpreter,
		catalog:     catalog,
		limits:      limits,
		logger:      logger,
		now:         time.Now,
	}
}

// Limits returns the configured limits
func (s *Service) Limits() Limits {
	return s.limits
}

// Catalog returns the message catalog used for feedback
func (s *Service) Catalog() *template.Catalog {
	return s.catalog
}

// message renders a catalog message. Rendering failures are logged and the
// message name is returned so the caller still has something to show.
func (s *Service) message(name string, data map[string]interface{}) string {
	msg, err := s.catalog.Render(name, data)
	if err != nil {
		s.logger.Error("failed to render message",
			zap.String("message", name),
			zap.Error(err),
		)
		return name
	}
	return msg
}

// UserMessage turns an error returned by the service into text for the user.
// It returns "" for internal errors that should not be shown.
func (s *Service) UserMessage(err error) string {
	var feedback *FeedbackError
	var limit *CharacterLimitError
	var missing *NotFoundError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &feedback):
		return feedback.Message
	case errors.As(err, &limit):
		return limit.Error()
	case errors.As(err, &missing):
		return s.message(template.MsgTagNotFound, map[string]interface{}{"name": missing.Name})
	default:
		return ""
	}
}

// ValidateTagScript checks the TagScript length limit
func (s *Service) ValidateTagScript(script string) error {
	length := utf8.RuneCountInString(script)
	if length > s.limits.TagScript {
		return &CharacterLimitError{Limit: s.limits.TagScript, Length: length}
	}
	return nil
}

// lookup finds a tag by name or alias within one scope
func (s *Service) lookup(ctx context.Context, scope, name string) (*Tag, error) {
	tag, err := s.store.GetTag(ctx, scope, name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, ErrTagNotFound) {
		return nil, fmt.Errorf("failed to load tag: %w", err)
	}

	target, err := s.store.ResolveAlias(ctx, scope, name)
	if err != nil {
		if errors.Is(err, ErrTagNotFound) {
			return nil, &NotFoundError{Name: name}
		}
		return nil, fmt.Errorf("failed to resolve alias: %w", err)
	}

	tag, err = s.store.GetTag(ctx, scope, target)
	if err != nil {
		if errors.Is(err, ErrTagNotFound) {
			return nil, &NotFoundError{Name: name}
		}
		return nil, fmt.Errorf("failed to load tag: %w", err)
	}
	return tag, nil
}

// Get finds a tag by name or alias, in the guild first and then among the
// global tags
func (s *Service) Get(ctx context.Context, guildID, name string) (*Tag, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	if guildID != "" {
		tag, err := s.lookup(ctx, guildID, name)
		if err == nil || !errors.Is(err, ErrTagNotFound) {
			return tag, err
		}
	}
	return s.lookup(ctx, "", name)
}

// CreateRequest describes a new tag
type CreateRequest struct {
	GuildID   string
	Name      string
	TagScript string
	AuthorID  string
	// Overwrite replaces the TagScript of an existing tag with the same name
	Overwrite bool
}

// Create stores a new tag and returns the confirmation message
func (s *Service) Create(ctx context.Context, req CreateRequest) (string, error) {
	name, err := NormalizeName(req.Name)
	if err != nil {
		return "", err
	}
	if err := s.ValidateTagScript(req.TagScript); err != nil {
		return "", err
	}

	existing, err := s.lookup(ctx, req.GuildID, name)
	switch {
	case err == nil:
		if !req.Overwrite {
			return "", &FeedbackError{Message: s.message(template.MsgTagExists, map[string]interface{}{
				"name": name,
				"kind": existing.Kind(),
			})}
		}
		return s.Edit(ctx, req.GuildID, existing.Name, req.TagScript)
	case !errors.Is(err, ErrTagNotFound):
		return "", err
	}

	if err := s.checkCount(ctx, req.GuildID); err != nil {
		return "", err
	}

	tag := &Tag{
		Name:      name,
		TagScript: req.TagScript,
		GuildID:   req.GuildID,
		AuthorID:  req.AuthorID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.PutTag(ctx, tag); err != nil {
		return "", fmt.Errorf("failed to store tag: %w", err)
	}

	s.logger.Info("tag created",
		zap.String("guild_id", req.GuildID),
		zap.String("tag", name),
		zap.String("author_id", req.AuthorID),
	)
	return s.message(template.MsgTagCreated, map[string]interface{}{"name": name}), nil
}

// checkCount enforces the per scope tag limit
func (s *Service) checkCount(ctx context.Context, scope string) error {
	limit, msg := s.limits.GuildTags, template.MsgTagLimitGuild
	if scope == "" {
		limit, msg = s.limits.GlobalTags, template.MsgTagLimitGlobal
	}
	if limit <= 0 {
		return nil
	}

	existing, err := s.store.ListTags(ctx, scope)
	if err != nil {
		return fmt.Errorf("failed to list tags: %w", err)
	}
	if len(existing) >= limit {
		return &FeedbackError{Message: s.message(msg, map[string]interface{}{"limit": limit})}
	}
	return nil
}

// Edit replaces the TagScript of a tag
func (s *Service) Edit(ctx context.Context, guildID, name, script string) (string, error) {
	if err := s.ValidateTagScript(script); err != nil {
		return "", err
	}

	tag, err := s.scoped(ctx, guildID, name)
	if err != nil {
		return "", err
	}

	tag.TagScript = script
	if err := s.store.PutTag(ctx, tag); err != nil {
		return "", fmt.Errorf("failed to store tag: %w", err)
	}
	return s.message(template.MsgTagEdited, map[string]interface{}{"name": tag.Name}), nil
}

// Append adds script on a new line at the end of a tag
func (s *Service) Append(ctx context.Context, guildID, name, script string) (string, error) {
	tag, err := s.scoped(ctx, guildID, name)
	if err != nil {
		return "", err
	}

	combined := tag.TagScript + "\n" + script
	if err := s.ValidateTagScript(combined); err != nil {
		return "", err
	}

	tag.TagScript = combined
	if err := s.store.PutTag(ctx, tag); err != nil {
		return "", fmt.Errorf("failed to store tag: %w", err)
	}
	return s.message(template.MsgTagAppended, map[string]interface{}{"name": tag.Name}), nil
}

// Remove deletes a tag and its aliases
func (s *Service) Remove(ctx context.Context, guildID, name string) (string, error) {
	tag, err := s.scoped(ctx, guildID, name)
	if err != nil {
		return "", err
	}

	for _, alias := range tag.Aliases {
		if err := s.store.DeleteAlias(ctx, guildID, alias); err != nil {
			return "", fmt.Errorf("failed to delete alias: %w", err)
		}
	}
	if err := s.store.DeleteTag(ctx, guildID, tag.Name); err != nil {
		return "", fmt.Errorf("failed to delete tag: %w", err)
	}

	s.logger.Info("tag removed",
		zap.String("guild_id", guildID),
		zap.String("tag", tag.Name),
	)
	return s.message(template.MsgTagRemoved, map[string]interface{}{"name": tag.Name}), nil
}

// AddAlias makes alias resolve to the named tag
func (s *Service) AddAlias(ctx context.Context, guildID, name, alias string) (string, error) {
	tag, err := s.scoped(ctx, guildID, name)
	if err != nil {
		return "", err
	}
	alias, err = NormalizeName(alias)
	if err != nil {
		return "", err
	}

	owner, err := s.lookup(ctx, guildID, alias)
	switch {
	case err == nil:
		return "", &FeedbackError{Message: s.message(template.MsgAliasTaken, map[string]interface{}{
			"alias": alias,
			"owner": owner.Name,
		})}
	case !errors.Is(err, ErrTagNotFound):
		return "", err
	}

	tag.Aliases = append(tag.Aliases, alias)
	if err := s.store.PutTag(ctx, tag); err != nil {
		return "", fmt.Errorf("failed to store tag: %w", err)
	}
	if err := s.store.PutAlias(ctx, guildID, alias, tag.Name); err != nil {
		return "", fmt.Errorf("failed to store alias: %w", err)
	}
	return s.message(template.MsgAliasAdded, map[string]interface{}{"alias": alias, "name": tag.Name}), nil
}

// RemoveAlias detaches alias from the named tag
func (s *Service) RemoveAlias(ctx context.Context, guildID, name, alias string) (string, error) {
	tag, err := s.scoped(ctx, guildID, name)
	if err != nil {
		return "", err
	}
	alias = strings.ToLower(strings.TrimSpace(alias))

	if !tag.HasAlias(alias) {
		return "", &FeedbackError{Message: s.message(template.MsgAliasMissing, map[string]interface{}{
			"alias": alias,
			"name":  tag.Name,
		})}
	}

	kept := tag.Aliases[:0]
	for _, a := range tag.Aliases {
		if a != alias {
			kept = append(kept, a)
		}
	}
	tag.Aliases = kept

	if err := s.store.PutTag(ctx, tag); err != nil {
		return "", fmt.Errorf("failed to store tag: %w", err)
	}
	if err := s.store.DeleteAlias(ctx, guildID, alias); err != nil {
		return "", fmt.Errorf("failed to delete alias: %w", err)
	}
	return s.message(template.MsgAliasRemoved, map[string]interface{}{"alias": alias, "name": tag.Name}), nil
}

// scoped finds a tag for modification; global tags are not editable from a
// guild
func (s *Service) scoped(ctx context.Context, guildID, name string) (*Tag, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	return s.lookup(ctx, guildID, name)
}

// List returns the tags of a guild, or the global tags for "", by name
func (s *Service) List(ctx context.Context, guildID string) ([]*Tag, error) {
	tags, err := s.store.ListTags(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

// Search ranks the tags of a scope whose name or alias fuzzily matches
// keyword, closest first
func (s *Service) Search(ctx context.Context, guildID, keyword string) ([]*Tag, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}

	tags, err := s.List(ctx, guildID)
	if err != nil {
		return nil, err
	}

	var candidates []string
	owners := make(map[string]*Tag)
	for _, tag := range tags {
		candidates = append(candidates, tag.Name)
		owners[tag.Name] = tag
		for _, alias := range tag.Aliases {
			candidates = append(candidates, alias)
			owners[alias] = tag
		}
	}

	ranks := fuzzy.RankFindFold(keyword, candidates)
	sort.Stable(ranks)

	seen := make(map[string]bool)
	var matches []*Tag
	for _, rank := range ranks {
		tag := owners[rank.Target]
		if seen[tag.Name] {
			continue
		}
		seen[tag.Name] = true
		matches = append(matches, tag)
	}
	return matches, nil
}

// Usage returns the tags of a scope by use count, most used first
func (s *Service) Usage(ctx context.Context, guildID string) ([]*Tag, error) {
	tags, err := s.List(ctx, guildID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].Uses > tags[j].Uses })
	return tags, nil
}

// Backup is the portable form of a scope's tags
type Backup struct {
	GuildID   string    `json:"guild_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Tags      []*Tag    `json:"tags"`
}

// Backup exports every tag of a scope as indented JSON
func (s *Service) Backup(ctx context.Context, guildID string) ([]byte, error) {
	tags, err := s.List(ctx, guildID)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(Backup{
		GuildID:   guildID,
		CreatedAt: s.now().UTC(),
		Tags:      tags,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backup: %w", err)
	}
	return data, nil
}

// Restore replaces every tag of a scope with the contents of a backup.
// Tags missing from the backup are deleted.
func (s *Service) Restore(ctx context.Context, guildID string, data []byte) (string, error) {
	var backup Backup
	if err := json.Unmarshal(data, &backup); err != nil {
		return "", &FeedbackError{Message: fmt.Sprintf("Invalid backup file: %v", err)}
	}

	seen := make(map[string]bool)
	tags := make([]*Tag, 0, len(backup.Tags))
	for _, tag := range backup.Tags {
		if tag == nil {
			continue
		}
		name, err := NormalizeName(tag.Name)
		if err != nil {
			return "", err
		}
		if seen[name] {
			return "", &FeedbackError{Message: fmt.Sprintf("Backup contains `%s` more than once.", name)}
		}
		seen[name] = true

		if err := s.ValidateTagScript(tag.TagScript); err != nil {
			return "", err
		}

		tag.Name = name
		tag.GuildID = guildID
		tags = append(tags, tag)
	}

	for _, tag := range tags {
		aliases := tag.Aliases[:0]
		for _, alias := range tag.Aliases {
			alias, err := NormalizeName(alias)
			if err != nil || seen[alias] {
				continue
			}
			seen[alias] = true
			aliases = append(aliases, alias)
		}
		tag.Aliases = aliases
	}

	if err := s.store.ReplaceScope(ctx, guildID, tags); err != nil {
		return "", fmt.Errorf("failed to restore backup: %w", err)
	}

	s.logger.Info("backup restored",
		zap.String("guild_id", guildID),
		zap.Int("tags", len(tags)),
	)
	return s.message(template.MsgBackupRestored, map[string]interface{}{"count": len(tags)}), nil
}

// Process runs TagScript and converts the result into an Output
func (s *Service) Process(script string, seed map[string]tagscript.Adapter) (*Output, *tagscript.Response) {
	resp := s.interpreter.Process(script, seed)
	return NewOutput(resp, s.limits.Body), resp
}

// Variable names an adapter seen during a run and its type
type Variable struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// RunReport is the debugging view of an ad hoc TagScript run
type RunReport struct {
	Output    *Output       `json:"output" yaml:"output"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
	Actions   []string      `json:"actions,omitempty" yaml:"actions,omitempty"`
	Variables []Variable    `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Run processes TagScript without storing it
func (s *Service) Run(ctx context.Context, script string, seed map[string]tagscript.Adapter) (*RunReport, error) {
	if err := s.ValidateTagScript(script); err != nil {
		return nil, err
	}

	start := time.Now()
	out, resp := s.Process(script, seed)
	elapsed := time.Since(start)

	report := &RunReport{
		Output:  out,
		Elapsed: elapsed,
		Actions: ActionNames(resp),
	}
	for name, adapter := range resp.Variables {
		report.Variables = append(report.Variables, Variable{Name: name, Type: adapterType(adapter)})
	}
	sort.Slice(report.Variables, func(i, j int) bool { return report.Variables[i].Name < report.Variables[j].Name })

	return report, nil
}

// adapterType is the bare type name of an adapter, e.g. StringAdapter
func adapterType(adapter tagscript.Adapter) string {
	name := fmt.Sprintf("%T", adapter)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// InvokeRequest describes a tag invocation
type InvokeRequest struct {
	GuildID string
	Name    string
	Args    string
	// Seed holds frontend adapters such as author, channel and server
	Seed map[string]tagscript.Adapter
}

// Invoke runs a stored tag with args and counts the use
func (s *Service) Invoke(ctx context.Context, req InvokeRequest) (*Output, error) {
	tag, err := s.Get(ctx, req.GuildID, req.Name)
	if err != nil {
		return nil, err
	}

	seed := make(map[string]tagscript.Adapter, len(req.Seed)+1)
	for name, adapter := range req.Seed {
		seed[name] = adapter
	}
	seed["args"] = tagscript.NewStringAdapter(req.Args)

	out, _ := s.Process(tag.TagScript, seed)
	out.Tag = tag.Name

	if _, err := s.store.IncrementUses(ctx, tag.GuildID, tag.Name); err != nil {
		s.logger.Warn("failed to count tag use",
			zap.String("tag", tag.Name),
			zap.Error(err),
		)
	}

	s.logger.Debug("tag invoked",
		zap.String("guild_id", req.GuildID),
		zap.String("tag", tag.Name),
		zap.Bool("global", tag.Global()),
	)
	return out, nil
}
