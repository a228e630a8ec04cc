package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/solarledger/solarledger/pkg/log"
	"github.com/solarledger/solarledger/pkg/types"
)

const minuteLayout = "20060102150405"

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.inverter.Login(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "upstream login failed", slog.Any("error", err))
		writeJSONError(w, "upstream login failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, struct {
		UserID string `json:"userId"`
	}{UserID: sess.UserID})
}

func (s *Server) device(r *http.Request) (string, error) {
	device := r.URL.Query().Get("device")
	if device == "" {
		device = s.defaultDevice
	}
	if device == "" {
		return "", fmt.Errorf("device is required")
	}
	return device, nil
}

func (s *Server) point(r *http.Request) string {
	if p := r.URL.Query().Get("point"); p != "" {
		return p
	}
	return s.productionPoint
}

func (s *Server) points(r *http.Request) []string {
	if p := splitList(r.URL.Query().Get("points")); len(p) > 0 {
		return p
	}
	return s.realtimePoints
}

func parseMinuteQuery(r *http.Request) (types.MinuteQuery, error) {
	q := r.URL.Query()
	mq := types.MinuteQuery{
		Start: q.Get("start"),
		End:   q.Get("end"),
	}
	start, err := time.Parse(minuteLayout, mq.Start)
	if err != nil {
		return mq, fmt.Errorf("invalid start time %q: expected YYYYMMDDHHmmss", mq.Start)
	}
	end, err := time.Parse(minuteLayout, mq.End)
	if err != nil {
		return mq, fmt.Errorf("invalid end time %q: expected YYYYMMDDHHmmss", mq.End)
	}
	if end.Before(start) {
		return mq, fmt.Errorf("start time must be before end time")
	}
	if end.Sub(start) > 3*24*time.Hour {
		return mq, fmt.Errorf("time range cannot exceed 3 days")
	}
	if v := q.Get("interval"); v != "" {
		mq.Interval, err = strconv.Atoi(v)
		if err != nil || mq.Interval <= 0 {
			return mq, fmt.Errorf("invalid interval %q", v)
		}
	}
	return mq, nil
}

func (s *Server) handleMinute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mq, err := parseMinuteQuery(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	mq.Device, err = s.device(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	mq.Point = s.point(r)

	rows, err := s.inverter.MinuteData(ctx, mq)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get minute data", slog.String("device", mq.Device), slog.Any("error", err))
		writeJSONError(w, "failed to get minute data", http.StatusBadGateway)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	device, err := s.device(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	points := s.points(r)
	if len(points) == 0 {
		writeJSONError(w, "points is required", http.StatusBadRequest)
		return
	}

	devices, err := s.inverter.Realtime(ctx, splitList(device), points)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get realtime data", slog.String("device", device), slog.Any("error", err))
		writeJSONError(w, "failed to get realtime data", http.StatusBadGateway)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, devices)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pq, err := s.parseProductionQuery(r)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	rows, err := s.inverter.History(ctx, types.HistoryQuery{
		Device:      pq.device,
		Point:       pq.point,
		Granularity: pq.granularity,
		Start:       pq.start,
		End:         pq.end,
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get history", slog.String("device", pq.device), slog.Any("error", err))
		writeJSONError(w, "failed to get history", http.StatusBadGateway)
		return
	}
	s.setCacheControl(w, pq)
	writeJSON(w, rows)
}
