package tags

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store, used by the CLI and in tests
type MemoryStore struct {
	mu      sync.RWMutex
	tags    map[string]map[string]*Tag
	aliases map[string]map[string]string
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tags:    make(map[string]map[string]*Tag),
		aliases: make(map[string]map[string]string),
	}
}

// GetTag returns a copy of the named tag
func (m *MemoryStore) GetTag(_ context.Context, scope, name string) (*Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tag, ok := m.tags[scope][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	return tag.Clone(), nil
}

// PutTag stores a copy of tag in its scope
func (m *MemoryStore) PutTag(_ context.Context, tag *Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scope := m.tags[tag.GuildID]
	if scope == nil {
		scope = make(map[string]*Tag)
		m.tags[tag.GuildID] = scope
	}
	scope[tag.Name] = tag.Clone()
	return nil
}

// DeleteTag removes the named tag
func (m *MemoryStore) DeleteTag(_ context.Context, scope, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tags[scope][name]; !ok {
		return fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	delete(m.tags[scope], name)
	return nil
}

// ListTags returns copies of every tag in scope sorted by name
func (m *MemoryStore) ListTags(_ context.Context, scope string) ([]*Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tags := make([]*Tag, 0, len(m.tags[scope]))
	for _, tag := range m.tags[scope] {
		tags = append(tags, tag.Clone())
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

// ResolveAlias returns the tag name an alias points to
func (m *MemoryStore) ResolveAlias(_ context.Context, scope, alias string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, ok := m.aliases[scope][alias]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTagNotFound, alias)
	}
	return name, nil
}

// PutAlias points alias at the named tag
func (m *MemoryStore) PutAlias(_ context.Context, scope, alias, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := m.aliases[scope]
	if index == nil {
		index = make(map[string]string)
		m.aliases[scope] = index
	}
	index[alias] = name
	return nil
}

// DeleteAlias removes an alias
func (m *MemoryStore) DeleteAlias(_ context.Context, scope, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.aliases[scope], alias)
	return nil
}

// IncrementUses bumps the use counter of a tag
func (m *MemoryStore) IncrementUses(_ context.Context, scope, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tag, ok := m.tags[scope][name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	tag.Uses++
	return tag.Uses, nil
}

// ReplaceScope drops every tag and alias in scope and stores tags instead
func (m *MemoryStore) ReplaceScope(_ context.Context, scope string, tags []*Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byName := make(map[string]*Tag, len(tags))
	index := make(map[string]string)
	for _, tag := range tags {
		byName[tag.Name] = tag.Clone()
		for _, alias := range tag.Aliases {
			index[alias] = tag.Name
		}
	}
	m.tags[scope] = byName
	m.aliases[scope] = index
	return nil
}
