package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/solarledger/solarledger/pkg/types"
)

// Memory keeps sessions and presets in process memory. Everything is lost on
// restart.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]types.Session
	presets  map[string]types.Preset
}

// NewMemory returns an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]types.Session),
		presets:  make(map[string]types.Preset),
	}
}

var _ Database = (*Memory)(nil)

func (m *Memory) GetSession(ctx context.Context, account string) (types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[account]
	if !ok {
		return types.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, account)
	}
	return s, nil
}

func (m *Memory) SetSession(ctx context.Context, session types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.Account] = session
	return nil
}

func (m *Memory) ListPresets(ctx context.Context) ([]types.Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Preset, 0, len(m.presets))
	for _, p := range m.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetPreset(ctx context.Context, id string) (types.Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.presets[id]
	if !ok {
		return types.Preset{}, fmt.Errorf("%w: %s", ErrPresetNotFound, id)
	}
	return p, nil
}

func (m *Memory) UpsertPreset(ctx context.Context, preset types.Preset) error {
	if err := preset.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if preset.UpdatedAt.IsZero() {
		preset.UpdatedAt = time.Now().UTC()
	}
	m.presets[preset.ID] = preset
	return nil
}

func (m *Memory) DeletePreset(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.presets[id]; !ok {
		return fmt.Errorf("%w: %s", ErrPresetNotFound, id)
	}
	delete(m.presets, id)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
