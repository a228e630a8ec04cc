package storagemock

import (
	"context"

	"github.com/solarledger/solarledger/pkg/storage"
	"github.com/solarledger/solarledger/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetSession(ctx context.Context, account string) (types.Session, error) {
	args := m.Called(ctx, account)
	if len(args) > 0 {
		return args.Get(0).(types.Session), args.Error(1)
	}
	return types.Session{}, storage.ErrSessionNotFound
}

func (m *MockDatabase) SetSession(ctx context.Context, session types.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockDatabase) ListPresets(ctx context.Context) ([]types.Preset, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).([]types.Preset), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetPreset(ctx context.Context, id string) (types.Preset, error) {
	args := m.Called(ctx, id)
	if len(args) > 0 {
		return args.Get(0).(types.Preset), args.Error(1)
	}
	return types.Preset{}, storage.ErrPresetNotFound
}

func (m *MockDatabase) UpsertPreset(ctx context.Context, preset types.Preset) error {
	args := m.Called(ctx, preset)
	return args.Error(0)
}

func (m *MockDatabase) DeletePreset(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
