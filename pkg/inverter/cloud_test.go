package inverter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/solarledger/solarledger/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpstream struct {
	t      *testing.T
	logins atomic.Int32
	token  string
	// handlers keyed by endpoint name, called after token validation
	handlers map[string]func(body map[string]any) (string, any)
}

func newFakeUpstream(t *testing.T) (*fakeUpstream, *httptest.Server) {
	f := &fakeUpstream{
		t:        t,
		token:    "tok-1",
		handlers: map[string]func(map[string]any) (string, any){},
	}
	ts := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(ts.Close)
	return f, ts
}

func (f *fakeUpstream) reply(w http.ResponseWriter, code, msg string, data any) {
	json.NewEncoder(w).Encode(map[string]any{
		"result_code": code,
		"result_msg":  msg,
		"result_data": data,
	})
}

func (f *fakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "POST", r.Method)
	assert.Equal(f.t, "access", r.Header.Get("x-access-key"))
	assert.Equal(f.t, "application/json", r.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
	assert.Equal(f.t, "app", body["appkey"])

	name := strings.TrimPrefix(r.URL.Path, "/openapi/")
	if name == endpointLogin {
		f.logins.Add(1)
		if body["user_account"] != "user@example.com" || body["user_password"] != "secret" {
			f.reply(w, "E912", "bad credentials", nil)
			return
		}
		f.reply(w, codeSuccess, "success", map[string]any{"token": f.token, "user_id": 4242})
		return
	}

	if body["token"] != f.token {
		f.reply(w, codeTokenExpired, "token expired", nil)
		return
	}
	h, ok := f.handlers[name]
	if !ok {
		http.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
		return
	}
	code, data := h(body)
	f.reply(w, code, "msg from upstream", data)
}

func newTestCloud(ts *httptest.Server) *Cloud {
	return &Cloud{
		client:    ts.Client(),
		baseURL:   ts.URL,
		appKey:    "app",
		accessKey: "access",
		account:   "user@example.com",
		password:  "secret",
	}
}

type memStore struct {
	session types.Session
	saved   int
}

func (m *memStore) GetSession(ctx context.Context, account string) (types.Session, error) {
	if m.session.Token == "" || m.session.Account != account {
		return types.Session{}, errors.New("not found")
	}
	return m.session, nil
}

func (m *memStore) SetSession(ctx context.Context, session types.Session) error {
	m.session = session
	m.saved++
	return nil
}

func TestCloudLogin(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f, ts := newFakeUpstream(t)
		c := newTestCloud(ts)

		sess, err := c.Login(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", sess.Token)
		assert.Equal(t, "4242", sess.UserID)
		assert.Equal(t, "user@example.com", sess.Account)
		assert.False(t, sess.CreatedAt.IsZero())
		assert.Equal(t, int32(1), f.logins.Load())
	})

	t.Run("Rejected", func(t *testing.T) {
		_, ts := newFakeUpstream(t)
		c := newTestCloud(ts)
		c.password = "wrong"

		_, err := c.Login(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad credentials")
	})

	t.Run("Missing Credentials", func(t *testing.T) {
		_, ts := newFakeUpstream(t)
		c := newTestCloud(ts)
		c.account = ""

		_, err := c.Login(context.Background())
		assert.ErrorContains(t, err, "missing account")
	})

	t.Run("Persists Session", func(t *testing.T) {
		_, ts := newFakeUpstream(t)
		c := newTestCloud(ts)
		store := &memStore{}
		c.SetSessionStore(store)

		_, err := c.Login(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, store.saved)
		assert.Equal(t, "tok-1", store.session.Token)
	})
}

func TestCloudHistory(t *testing.T) {
	f, ts := newFakeUpstream(t)
	f.handlers[endpointHistory] = func(body map[string]any) (string, any) {
		assert.Equal(t, []any{"1234_1_1_1"}, body["ps_key_list"])
		assert.Equal(t, "p2", body["points"])
		assert.Equal(t, "3", body["data_type"])
		assert.Equal(t, "202412", body["start_time"])
		assert.Equal(t, "202502", body["end_time"])
		assert.Equal(t, "1", body["query_type"])
		return codeSuccess, map[string]any{
			"1234_1_1_1": map[string]any{
				"p2": []map[string]any{
					{"time_stamp": "202412", "p2": "150000"},
					{"time_stamp": "202501", "p2": 190000},
					{"time_stamp": "202502", "p2": "260000"},
				},
			},
		}
	}
	c := newTestCloud(ts)

	t.Run("Parses Rows", func(t *testing.T) {
		rows, err := c.History(context.Background(), types.HistoryQuery{
			Device:      "1234_1_1_1",
			Point:       "p2",
			Granularity: types.GranularityMonth,
			Start:       "202412",
			End:         "202502",
		})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "202501", rows[1]["time_stamp"])
		assert.Equal(t, "190000", rows[1]["p2"])
	})

	t.Run("Bad Range", func(t *testing.T) {
		_, err := c.History(context.Background(), types.HistoryQuery{
			Device:      "1234_1_1_1",
			Point:       "p2",
			Granularity: types.GranularityMonth,
			Start:       "20241201",
			End:         "202502",
		})
		assert.ErrorContains(t, err, "invalid start")
	})

	t.Run("Bad Granularity", func(t *testing.T) {
		_, err := c.History(context.Background(), types.HistoryQuery{
			Device:      "1234_1_1_1",
			Point:       "p2",
			Granularity: "week",
			Start:       "2024",
			End:         "2025",
		})
		assert.ErrorContains(t, err, "unknown granularity")
	})

	assert.Equal(t, int32(1), f.logins.Load())
}

func TestCloudTokenRefresh(t *testing.T) {
	t.Run("Relogin Once On Expiry", func(t *testing.T) {
		f, ts := newFakeUpstream(t)
		f.handlers[endpointMinute] = func(body map[string]any) (string, any) {
			return codeSuccess, map[string]any{
				"dev": []map[string]any{{"time_stamp": "20250101120000", "p24": "512"}},
			}
		}
		c := newTestCloud(ts)
		c.token = "stale"

		rows, err := c.MinuteData(context.Background(), types.MinuteQuery{Device: "dev", Point: "p24", Start: "20250101000000", End: "20250101235959"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "512", rows[0]["p24"])
		assert.Equal(t, int32(1), f.logins.Load())
		assert.Equal(t, "tok-1", c.token)
	})

	t.Run("Gives Up After Second Expiry", func(t *testing.T) {
		f, ts := newFakeUpstream(t)
		f.handlers[endpointMinute] = func(body map[string]any) (string, any) {
			return codeTokenExpired, nil
		}
		c := newTestCloud(ts)

		_, err := c.MinuteData(context.Background(), types.MinuteQuery{Device: "dev", Point: "p24"})
		assert.ErrorIs(t, err, ErrTokenExpired)
		assert.Equal(t, int32(2), f.logins.Load())
	})

	t.Run("Restores Stored Session", func(t *testing.T) {
		f, ts := newFakeUpstream(t)
		f.handlers[endpointMinute] = func(body map[string]any) (string, any) {
			return codeSuccess, map[string]any{"dev": []map[string]any{}}
		}
		c := newTestCloud(ts)
		store := &memStore{session: types.Session{Account: "user@example.com", Token: "tok-1"}}
		c.SetSessionStore(store)

		rows, err := c.MinuteData(context.Background(), types.MinuteQuery{Device: "dev", Point: "p24"})
		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.Equal(t, int32(0), f.logins.Load())
		assert.Equal(t, 0, store.saved)
	})

	t.Run("Stale Stored Session Replaced", func(t *testing.T) {
		f, ts := newFakeUpstream(t)
		f.handlers[endpointMinute] = func(body map[string]any) (string, any) {
			return codeSuccess, map[string]any{"dev": []map[string]any{}}
		}
		c := newTestCloud(ts)
		store := &memStore{session: types.Session{Account: "user@example.com", Token: "old"}}
		c.SetSessionStore(store)

		_, err := c.MinuteData(context.Background(), types.MinuteQuery{Device: "dev", Point: "p24"})
		require.NoError(t, err)
		assert.Equal(t, int32(1), f.logins.Load())
		assert.Equal(t, "tok-1", store.session.Token)
	})
}

func TestCloudErrors(t *testing.T) {
	t.Run("Error Envelope", func(t *testing.T) {
		f, ts := newFakeUpstream(t)
		f.handlers[endpointRealtime] = func(body map[string]any) (string, any) {
			return "E00100", nil
		}
		c := newTestCloud(ts)

		_, err := c.Realtime(context.Background(), []string{"dev"}, []string{"p24"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "msg from upstream")
		assert.Contains(t, err.Error(), "E00100")
	})

	t.Run("HTTP Status", func(t *testing.T) {
		_, ts := newFakeUpstream(t)
		c := newTestCloud(ts)
		c.token = "tok-1"

		_, err := c.MinuteData(context.Background(), types.MinuteQuery{Device: "dev", Point: "p24"})
		assert.ErrorContains(t, err, "status 404")
	})

	t.Run("Garbage Body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		}))
		defer ts.Close()
		c := newTestCloud(ts)

		_, err := c.Login(context.Background())
		assert.ErrorContains(t, err, "failed to decode")
	})
}

func TestCloudRealtime(t *testing.T) {
	f, ts := newFakeUpstream(t)
	f.handlers[endpointRealtime] = func(body map[string]any) (string, any) {
		assert.Equal(t, []any{"dev-a", "dev-b"}, body["ps_key_list"])
		assert.Equal(t, []any{"p24", "p2"}, body["point_id_list"])
		return codeSuccess, map[string]any{
			"device_point_list": []map[string]any{
				{"ps_key": "dev-a", "device_name": "Roof", "device_sn": "SN1", "device_time": 20250101120000, "points": map[string]any{"p24": 1200.5, "p2": "987654"}},
				{"ps_key": "dev-b", "device_name": "Barn", "device_sn": "SN2"},
			},
		}
	}
	c := newTestCloud(ts)

	devices, err := c.Realtime(context.Background(), []string{"dev-a", "dev-b"}, []string{"p24", "p2"})
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "dev-a", devices[0].Device)
	assert.Equal(t, "Roof", devices[0].DeviceName)
	assert.Equal(t, "20250101120000", devices[0].UpdatedAt)
	assert.Equal(t, "1200.5", devices[0].Points["p24"])
	assert.Equal(t, "987654", devices[0].Points["p2"])
	assert.NotNil(t, devices[1].Points)

	_, err = c.Realtime(context.Background(), nil, []string{"p24"})
	assert.ErrorContains(t, err, "missing device")
}
