package types

import "time"

// Session is an upstream login session. The token lets us skip the login
// round trip after a restart.
type Session struct {
	Account   string    `json:"account"`
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}

// MinuteQuery selects minute-level rows for a single device point.
type MinuteQuery struct {
	Device string
	Point  string
	// Start and End use the YYYYMMDDHHmmss layout.
	Start    string
	End      string
	Interval int
}

// HistoryQuery selects day, month or year rows for a single device point.
// Start and End use the granularity's timestamp layout and are inclusive.
type HistoryQuery struct {
	Device      string
	Point       string
	Granularity Granularity
	Start       string
	End         string
}

// RealtimeDevice is the latest snapshot of one device's data points.
type RealtimeDevice struct {
	Device     string            `json:"device"`
	DeviceName string            `json:"deviceName"`
	DeviceSN   string            `json:"deviceSN"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
	Points     map[string]string `json:"points"`
}

// Overview combines the live device snapshot with this month's production.
type Overview struct {
	Realtime   []RealtimeDevice `json:"realtime"`
	Production ProductionReport `json:"production"`
}
