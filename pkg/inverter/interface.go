// Package inverter talks to the solar inverter cloud API.
package inverter

import (
	"context"
	"errors"

	"github.com/solarledger/solarledger/pkg/types"
)

// ErrTokenExpired is returned when the upstream rejects the session token and
// a fresh login did not help.
var ErrTokenExpired = errors.New("inverter token expired")

// Client fetches telemetry from the inverter cloud.
type Client interface {
	// Login forces a fresh upstream login and returns the new session.
	Login(ctx context.Context) (types.Session, error)

	// MinuteData returns minute-level rows for one device point.
	MinuteData(ctx context.Context, q types.MinuteQuery) ([]types.RawRow, error)

	// Realtime returns the latest values of points for each device.
	Realtime(ctx context.Context, devices, points []string) ([]types.RealtimeDevice, error)

	// History returns day, month or year rows for one device point.
	History(ctx context.Context, q types.HistoryQuery) ([]types.RawRow, error)
}

// SessionStore persists the upstream session between restarts.
type SessionStore interface {
	GetSession(ctx context.Context, account string) (types.Session, error)
	SetSession(ctx context.Context, session types.Session) error
}
