package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-tags/internal/applications"
	"github.com/aescanero/dago-node-tags/internal/tags"
)

// globalScope names the key space of global tags
const globalScope = "global"

// maxTxRetries bounds optimistic transaction retries
const maxTxRetries = 5

// Redis stores tags and applications in Redis hashes:
//
//	<prefix>:<scope>            tag name -> tag JSON
//	<prefix>:<scope>:aliases    alias -> tag name
//	<prefix>:<scope>:uses       tag name -> use counter
//	<prefix>:apps:<guild>       application name -> application JSON
//
// The scope is the guild ID, or "global" for global tags.
type Redis struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedis creates a new Redis store
func NewRedis(client *redis.Client, prefix string, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (r *Redis) tagsKey(scope string) string {
	if scope == "" {
		scope = globalScope
	}
	return r.prefix + ":" + scope
}

func (r *Redis) aliasKey(scope string) string {
	return r.tagsKey(scope) + ":aliases"
}

func (r *Redis) usesKey(scope string) string {
	return r.tagsKey(scope) + ":uses"
}

func (r *Redis) appsKey(guildID string) string {
	return r.prefix + ":apps:" + guildID
}

// GetTag loads a tag and its use counter
func (r *Redis) GetTag(ctx context.Context, scope, name string) (*tags.Tag, error) {
	data, err := r.client.HGet(ctx, r.tagsKey(scope), name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", tags.ErrTagNotFound, name)
		}
		return nil, fmt.Errorf("failed to load tag: %w", err)
	}

	var tag tags.Tag
	if err := json.Unmarshal([]byte(data), &tag); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tag: %w", err)
	}

	uses, err := r.client.HGet(ctx, r.usesKey(scope), name).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load tag uses: %w", err)
	}
	tag.Uses = uses

	return &tag, nil
}

// PutTag stores a tag. The use counter is kept separately and not
// overwritten.
func (r *Redis) PutTag(ctx context.Context, tag *tags.Tag) error {
	data, err := json.Marshal(tag)
	if err != nil {
		return fmt.Errorf("failed to marshal tag: %w", err)
	}

	if err := r.client.HSet(ctx, r.tagsKey(tag.GuildID), tag.Name, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to store tag: %w", err)
	}
	return nil
}

// DeleteTag removes a tag and its use counter
func (r *Redis) DeleteTag(ctx context.Context, scope, name string) error {
	removed, err := r.client.HDel(ctx, r.tagsKey(scope), name).Result()
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", tags.ErrTagNotFound, name)
	}

	if err := r.client.HDel(ctx, r.usesKey(scope), name).Err(); err != nil {
		return fmt.Errorf("failed to delete tag uses: %w", err)
	}
	return nil
}

// ListTags loads every tag of a scope sorted by name
func (r *Redis) ListTags(ctx context.Context, scope string) ([]*tags.Tag, error) {
	raw, err := r.client.HGetAll(ctx, r.tagsKey(scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	uses, err := r.client.HGetAll(ctx, r.usesKey(scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tag uses: %w", err)
	}

	list := make([]*tags.Tag, 0, len(raw))
	for name, data := range raw {
		var tag tags.Tag
		if err := json.Unmarshal([]byte(data), &tag); err != nil {
			r.logger.Warn("skipping unreadable tag",
				zap.String("scope", scope),
				zap.String("tag", name),
				zap.Error(err),
			)
			continue
		}
		tag.Uses, _ = strconv.ParseInt(uses[name], 10, 64)
		list = append(list, &tag)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// ResolveAlias returns the tag name an alias points to
func (r *Redis) ResolveAlias(ctx context.Context, scope, alias string) (string, error) {
	name, err := r.client.HGet(ctx, r.aliasKey(scope), alias).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: %s", tags.ErrTagNotFound, alias)
		}
		return "", fmt.Errorf("failed to resolve alias: %w", err)
	}
	return name, nil
}

// PutAlias points alias at the named tag
func (r *Redis) PutAlias(ctx context.Context, scope, alias, name string) error {
	if err := r.client.HSet(ctx, r.aliasKey(scope), alias, name).Err(); err != nil {
		return fmt.Errorf("failed to store alias: %w", err)
	}
	return nil
}

// DeleteAlias removes an alias
func (r *Redis) DeleteAlias(ctx context.Context, scope, alias string) error {
	if err := r.client.HDel(ctx, r.aliasKey(scope), alias).Err(); err != nil {
		return fmt.Errorf("failed to delete alias: %w", err)
	}
	return nil
}

// IncrementUses atomically bumps the use counter of an existing tag
func (r *Redis) IncrementUses(ctx context.Context, scope, name string) (int64, error) {
	exists, err := r.client.HExists(ctx, r.tagsKey(scope), name).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to check tag: %w", err)
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s", tags.ErrTagNotFound, name)
	}

	uses, err := r.client.HIncrBy(ctx, r.usesKey(scope), name, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment uses: %w", err)
	}
	return uses, nil
}

// ReplaceScope atomically swaps every tag, alias and counter of a scope
func (r *Redis) ReplaceScope(ctx context.Context, scope string, list []*tags.Tag) error {
	tagValues := make(map[string]interface{}, len(list))
	aliasValues := make(map[string]interface{})
	useValues := make(map[string]interface{}, len(list))
	for _, tag := range list {
		data, err := json.Marshal(tag)
		if err != nil {
			return fmt.Errorf("failed to marshal tag: %w", err)
		}
		tagValues[tag.Name] = string(data)
		useValues[tag.Name] = tag.Uses
		for _, alias := range tag.Aliases {
			aliasValues[alias] = tag.Name
		}
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.tagsKey(scope), r.aliasKey(scope), r.usesKey(scope))
		if len(tagValues) > 0 {
			pipe.HSet(ctx, r.tagsKey(scope), tagValues)
			pipe.HSet(ctx, r.usesKey(scope), useValues)
		}
		if len(aliasValues) > 0 {
			pipe.HSet(ctx, r.aliasKey(scope), aliasValues)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace tags: %w", err)
	}

	r.logger.Info("replaced tag scope",
		zap.String("scope", scope),
		zap.Int("tags", len(list)),
	)
	return nil
}

// GetApplication loads an application
func (r *Redis) GetApplication(ctx context.Context, guildID, name string) (*applications.Application, error) {
	data, err := r.client.HGet(ctx, r.appsKey(guildID), applications.Key(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", applications.ErrApplicationNotFound, name)
		}
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	return decodeApplication(data)
}

// PutApplication stores an application
func (r *Redis) PutApplication(ctx context.Context, app *applications.Application) error {
	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("failed to marshal application: %w", err)
	}

	if err := r.client.HSet(ctx, r.appsKey(app.GuildID), applications.Key(app.Name), string(data)).Err(); err != nil {
		return fmt.Errorf("failed to store application: %w", err)
	}
	return nil
}

// DeleteApplication removes an application
func (r *Redis) DeleteApplication(ctx context.Context, guildID, name string) error {
	removed, err := r.client.HDel(ctx, r.appsKey(guildID), applications.Key(name)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", applications.ErrApplicationNotFound, name)
	}
	return nil
}

// ListApplications loads every application of a guild sorted by name
func (r *Redis) ListApplications(ctx context.Context, guildID string) ([]*applications.Application, error) {
	raw, err := r.client.HGetAll(ctx, r.appsKey(guildID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}

	list := make([]*applications.Application, 0, len(raw))
	for _, data := range raw {
		app, err := decodeApplication(data)
		if err != nil {
			return nil, err
		}
		list = append(list, app)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// AddResponse appends a response with an optimistic transaction so that
// concurrent submissions are not lost
func (r *Redis) AddResponse(ctx context.Context, guildID, name string, resp applications.Response) (int, error) {
	key := r.appsKey(guildID)
	field := applications.Key(name)

	var count int
	txf := func(tx *redis.Tx) error {
		data, err := tx.HGet(ctx, key, field).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", applications.ErrApplicationNotFound, name)
			}
			return err
		}

		app, err := decodeApplication(data)
		if err != nil {
			return err
		}
		app.Responses = append(app.Responses, resp)
		count = len(app.Responses)

		updated, err := json.Marshal(app)
		if err != nil {
			return fmt.Errorf("failed to marshal application: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, string(updated))
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to add response: %w", err)
		}
		return count, nil
	}
	return 0, fmt.Errorf("failed to add response: too much contention on %s", key)
}

func decodeApplication(data string) (*applications.Application, error) {
	var app applications.Application
	if err := json.Unmarshal([]byte(data), &app); err != nil {
		return nil, fmt.Errorf("failed to unmarshal application: %w", err)
	}
	return &app, nil
}
