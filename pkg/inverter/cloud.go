package inverter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/solarledger/solarledger/pkg/log"
	"github.com/solarledger/solarledger/pkg/metrics"
	"github.com/solarledger/solarledger/pkg/types"
)

const (
	endpointLogin    = "login"
	endpointMinute   = "getDevicePointMinuteDataList"
	endpointRealtime = "getDeviceRealTimeData"
	endpointHistory  = "getDevicePointsDayMonthYearDataList"

	codeSuccess      = "1"
	codeTokenExpired = "E00003"
)

// Cloud implements Client against the inverter cloud's openapi endpoints.
// It logs in with static credentials and keeps the token until the upstream
// reports it expired.
type Cloud struct {
	client    *http.Client
	baseURL   string
	appKey    string
	accessKey string
	account   string
	password  string

	mu       sync.Mutex
	token    string
	userID   string
	store    SessionStore
	restored bool
	expired  bool
}

var _ Client = (*Cloud)(nil)

// SetSessionStore sets where the session token is restored from and saved to.
func (c *Cloud) SetSessionStore(store SessionStore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
	c.restored = false
}

// Login forces a fresh upstream login.
func (c *Cloud) Login(ctx context.Context) (types.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx, "forced")
}

// ensureLogin returns the current token, restoring it from the session store
// or logging in when there is none.
func (c *Cloud) ensureLogin(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}

	if c.store != nil && !c.restored {
		c.restored = true
		sess, err := c.store.GetSession(ctx, c.account)
		if err != nil {
			log.Ctx(ctx).DebugContext(ctx, "no stored inverter session", slog.Any("error", err))
		} else if sess.Token != "" {
			log.Ctx(ctx).DebugContext(ctx, "restored inverter session from storage", slog.String("account", sess.Account))
			c.token = sess.Token
			c.userID = sess.UserID
			return c.token, nil
		}
	}

	reason := "startup"
	if c.expired {
		reason = "expired"
	}
	sess, err := c.loginLocked(ctx, reason)
	if err != nil {
		return "", fmt.Errorf("failed to login: %w", err)
	}
	return sess.Token, nil
}

// invalidate drops token if it is still the current one so concurrent
// requests that saw the same expiry only log in once.
func (c *Cloud) invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
		c.expired = true
	}
}

type loginResult struct {
	Token  string     `json:"token"`
	UserID flexString `json:"user_id"`
}

func (c *Cloud) loginLocked(ctx context.Context, reason string) (types.Session, error) {
	if c.account == "" {
		return types.Session{}, errors.New("missing account")
	}
	if c.password == "" {
		return types.Session{}, errors.New("missing password")
	}

	resp, err := c.post(ctx, endpointLogin, map[string]any{
		"appkey":        c.appKey,
		"user_account":  c.account,
		"user_password": c.password,
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "inverter login failed", slog.Any("error", err))
		return types.Session{}, fmt.Errorf("login failed: %w", err)
	}
	if err := resp.err(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "inverter login rejected", slog.Any("error", err))
		return types.Session{}, fmt.Errorf("login failed: %w", err)
	}

	var res loginResult
	if err := json.Unmarshal(resp.ResultData, &res); err != nil {
		return types.Session{}, fmt.Errorf("failed to decode login result: %w", err)
	}
	if res.Token == "" {
		return types.Session{}, errors.New("login failed: empty token")
	}
	metrics.IncLogin(reason)
	log.Ctx(ctx).InfoContext(ctx, "inverter login success", slog.String("account", c.account), slog.String("reason", reason))

	c.token = res.Token
	c.userID = string(res.UserID)
	c.expired = false
	sess := types.Session{
		Account:   c.account,
		UserID:    c.userID,
		Token:     c.token,
		CreatedAt: time.Now().UTC(),
	}

	if c.store != nil {
		if err := c.store.SetSession(ctx, sess); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to persist inverter session", slog.Any("error", err))
		}
	}
	return sess, nil
}

type cloudResponse struct {
	ResultCode string          `json:"result_code"`
	ResultMsg  string          `json:"result_msg"`
	ResultData json.RawMessage `json:"result_data"`
}

func (r cloudResponse) err() error {
	if r.ResultCode == codeSuccess {
		return nil
	}
	if r.ResultCode == codeTokenExpired {
		return ErrTokenExpired
	}
	if r.ResultMsg == "" {
		return fmt.Errorf("inverter api unknown error (code %s)", r.ResultCode)
	}
	return fmt.Errorf("inverter api error: %s (code %s)", r.ResultMsg, r.ResultCode)
}

func (c *Cloud) newPostJSONRequest(ctx context.Context, endpoint string, data any) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, "openapi", endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-access-key", c.accessKey)
	return req, nil
}

// post sends a single request and decodes the envelope without looking at
// the result code.
func (c *Cloud) post(ctx context.Context, endpoint string, body map[string]any) (resp cloudResponse, err error) {
	start := time.Now()
	defer func() {
		result := err
		if result == nil && resp.ResultCode != codeTokenExpired {
			result = resp.err()
		}
		metrics.ObserveUpstream(endpoint, result, time.Since(start))
	}()

	req, err := c.newPostJSONRequest(ctx, endpoint, body)
	if err != nil {
		return cloudResponse{}, err
	}
	httpResp, err := c.client.Do(req)
	if err != nil {
		return cloudResponse{}, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return cloudResponse{}, fmt.Errorf("status %d", httpResp.StatusCode)
	}

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return cloudResponse{}, err
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode inverter response", slog.Any("error", err), slog.String("body", string(raw)))
		return cloudResponse{}, fmt.Errorf("failed to decode inverter response: %w", err)
	}
	return resp, nil
}

// doRequest posts params to endpoint with the current token and decodes
// result_data into dest. An expired token triggers one re-login and retry.
func (c *Cloud) doRequest(ctx context.Context, endpoint string, params map[string]any, dest any) error {
	for i := 0; i < 2; i++ {
		token, err := c.ensureLogin(ctx)
		if err != nil {
			return err
		}

		body := make(map[string]any, len(params)+2)
		maps.Copy(body, params)
		body["appkey"] = c.appKey
		body["token"] = token

		resp, err := c.post(ctx, endpoint, body)
		if err != nil {
			return err
		}
		if resp.ResultCode == codeTokenExpired {
			log.Ctx(ctx).DebugContext(ctx, "inverter token expired", slog.String("endpoint", endpoint), slog.String("message", resp.ResultMsg))
			c.invalidate(token)
			continue
		}
		if err := resp.err(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "inverter api error", slog.String("endpoint", endpoint), slog.Any("error", err))
			return err
		}

		if dest != nil {
			if err := json.Unmarshal(resp.ResultData, dest); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to decode inverter result", slog.String("endpoint", endpoint), slog.Any("error", err))
				return fmt.Errorf("failed to decode %s result: %w", endpoint, err)
			}
		}
		return nil
	}
	return ErrTokenExpired
}

// MinuteData returns minute-level rows for q.Device.
func (c *Cloud) MinuteData(ctx context.Context, q types.MinuteQuery) ([]types.RawRow, error) {
	if q.Device == "" {
		return nil, errors.New("missing device")
	}
	if q.Point == "" {
		return nil, errors.New("missing point")
	}
	interval := q.Interval
	if interval <= 0 {
		interval = 5
	}

	var res map[string][]types.RawRow
	err := c.doRequest(ctx, endpointMinute, map[string]any{
		"ps_key":           q.Device,
		"points":           q.Point,
		"start_time_stamp": q.Start,
		"end_time_stamp":   q.End,
		"minute_interval":  interval,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", endpointMinute, err)
	}
	rows := res[q.Device]
	if rows == nil {
		rows = []types.RawRow{}
	}
	return rows, nil
}

type realtimeResult struct {
	DevicePointList []struct {
		PsKey      flexString   `json:"ps_key"`
		DeviceName string       `json:"device_name"`
		DeviceSN   string       `json:"device_sn"`
		DeviceTime flexString   `json:"device_time"`
		Points     types.RawRow `json:"points"`
	} `json:"device_point_list"`
}

// Realtime returns the latest point values for each of devices.
func (c *Cloud) Realtime(ctx context.Context, devices, points []string) ([]types.RealtimeDevice, error) {
	if len(devices) == 0 {
		return nil, errors.New("missing device")
	}
	if len(points) == 0 {
		return nil, errors.New("missing points")
	}

	var res realtimeResult
	err := c.doRequest(ctx, endpointRealtime, map[string]any{
		"ps_key_list":   devices,
		"point_id_list": points,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", endpointRealtime, err)
	}

	out := make([]types.RealtimeDevice, 0, len(res.DevicePointList))
	for _, d := range res.DevicePointList {
		pts := map[string]string(d.Points)
		if pts == nil {
			pts = map[string]string{}
		}
		out = append(out, types.RealtimeDevice{
			Device:     string(d.PsKey),
			DeviceName: d.DeviceName,
			DeviceSN:   d.DeviceSN,
			UpdatedAt:  string(d.DeviceTime),
			Points:     pts,
		})
	}
	return out, nil
}

// History returns the rows of q.Point for q.Device between q.Start and q.End
// inclusive.
func (c *Cloud) History(ctx context.Context, q types.HistoryQuery) ([]types.RawRow, error) {
	if q.Device == "" {
		return nil, errors.New("missing device")
	}
	if q.Point == "" {
		return nil, errors.New("missing point")
	}
	g, err := types.ParseGranularity(string(q.Granularity))
	if err != nil {
		return nil, err
	}
	if _, err := g.Parse(q.Start); err != nil {
		return nil, fmt.Errorf("invalid start: %w", err)
	}
	if _, err := g.Parse(q.End); err != nil {
		return nil, fmt.Errorf("invalid end: %w", err)
	}

	var res map[string]map[string][]types.RawRow
	err = c.doRequest(ctx, endpointHistory, map[string]any{
		"ps_key_list": []string{q.Device},
		"points":      q.Point,
		"data_type":   g.DataType(),
		"start_time":  q.Start,
		"end_time":    q.End,
		"query_type":  "1",
		"data_point":  q.Point,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", endpointHistory, err)
	}
	rows := res[q.Device][q.Point]
	if rows == nil {
		rows = []types.RawRow{}
	}
	return rows, nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("expected string or number, got %s", strings.TrimSpace(string(b)))
	}
	*f = flexString(b)
	return nil
}
