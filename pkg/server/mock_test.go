package server

import (
	"context"
	"time"

	"github.com/solarledger/solarledger/pkg/inverter"
	"github.com/solarledger/solarledger/pkg/storage"
	"github.com/solarledger/solarledger/pkg/types"
	"github.com/stretchr/testify/mock"
)

type mockInverter struct {
	mock.Mock
}

var _ inverter.Client = (*mockInverter)(nil)

func (m *mockInverter) Login(ctx context.Context) (types.Session, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Session), args.Error(1)
}

func (m *mockInverter) MinuteData(ctx context.Context, q types.MinuteQuery) ([]types.RawRow, error) {
	args := m.Called(ctx, q)
	if rows, ok := args.Get(0).([]types.RawRow); ok {
		return rows, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInverter) Realtime(ctx context.Context, devices, points []string) ([]types.RealtimeDevice, error) {
	args := m.Called(ctx, devices, points)
	if d, ok := args.Get(0).([]types.RealtimeDevice); ok {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInverter) History(ctx context.Context, q types.HistoryQuery) ([]types.RawRow, error) {
	args := m.Called(ctx, q)
	if rows, ok := args.Get(0).([]types.RawRow); ok {
		return rows, args.Error(1)
	}
	return nil, args.Error(1)
}

// fixedNow is the clock used by every test server.
var fixedNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(inv inverter.Client, db storage.Database) *Server {
	if db == nil {
		db = storage.NewMemory()
	}
	return &Server{
		inverter:        inv,
		storage:         db,
		listenAddr:      ":8080",
		serverName:      "solarledger-test",
		defaultDevice:   "1234_1_1_1",
		productionPoint: "p2",
		realtimePoints:  []string{"p24", "p2"},
		streamInterval:  20 * time.Millisecond,
		closedCacheTTL:  24 * time.Hour,
		now:             func() time.Time { return fixedNow },
	}
}
