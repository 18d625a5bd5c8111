package applications

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for tests and the CLI
type MemoryStore struct {
	mu   sync.RWMutex
	apps map[string]map[string][]byte
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{apps: make(map[string]map[string][]byte)}
}

// GetApplication returns a copy of the named application
func (m *MemoryStore) GetApplication(_ context.Context, guildID, name string) (*Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.apps[guildID][Key(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrApplicationNotFound, name)
	}
	return decode(data)
}

// PutApplication stores a copy of app
func (m *MemoryStore) PutApplication(_ context.Context, app *Application) error {
	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("failed to marshal application: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	guild := m.apps[app.GuildID]
	if guild == nil {
		guild = make(map[string][]byte)
		m.apps[app.GuildID] = guild
	}
	guild[Key(app.Name)] = data
	return nil
}

// DeleteApplication removes the named application
func (m *MemoryStore) DeleteApplication(_ context.Context, guildID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.apps[guildID][Key(name)]; !ok {
		return fmt.Errorf("%w: %s", ErrApplicationNotFound, name)
	}
	delete(m.apps[guildID], Key(name))
	return nil
}

// ListApplications returns the applications of a guild sorted by name
func (m *MemoryStore) ListApplications(_ context.Context, guildID string) ([]*Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	apps := make([]*Application, 0, len(m.apps[guildID]))
	for _, data := range m.apps[guildID] {
		app, err := decode(data)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps, nil
}

// AddResponse appends resp to the named application
func (m *MemoryStore) AddResponse(_ context.Context, guildID, name string, resp Response) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.apps[guildID][Key(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrApplicationNotFound, name)
	}
	app, err := decode(data)
	if err != nil {
		return 0, err
	}

	app.Responses = append(app.Responses, resp)
	data, err = json.Marshal(app)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal application: %w", err)
	}
	m.apps[guildID][Key(name)] = data
	return len(app.Responses), nil
}

func decode(data []byte) (*Application, error) {
	var app Application
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("failed to unmarshal application: %w", err)
	}
	return &app, nil
}
