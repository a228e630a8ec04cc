package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/solarledger/solarledger/pkg/log"
	"github.com/solarledger/solarledger/pkg/metrics"
	"github.com/solarledger/solarledger/pkg/types"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamMinimum    = time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamMessage is one frame of the real-time stream.
type streamMessage struct {
	Type    string                 `json:"type"`
	Devices []types.RealtimeDevice `json:"devices,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Time    time.Time              `json:"time"`
}

// handleRealtimeStream upgrades to a websocket and pushes real-time device
// data every interval until the client goes away or the server shuts down.
func (s *Server) handleRealtimeStream(w http.ResponseWriter, r *http.Request) {
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
	interval := s.streamInterval
	if v := r.URL.Query().Get("interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < streamMinimum {
			writeJSONError(w, "invalid interval: must be a duration of at least 1s", http.StatusBadRequest)
			return
		}
		interval = d
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		log.Ctx(r.Context()).WarnContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()
	defer metrics.StreamOpened()()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.readStream(ctx, cancel, conn)

	devices := splitList(device)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	pinger := time.NewTicker(streamPingPeriod)
	defer pinger.Stop()

	log.Ctx(ctx).DebugContext(ctx, "realtime stream opened", slog.String("device", device), slog.Duration("interval", interval))
	for {
		if !s.pushRealtime(ctx, conn, devices, points) {
			return
		}
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(streamWriteWait))
			return
		case <-pinger.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-ticker.C:
		}
	}
}

// pushRealtime sends one frame and reports whether the stream should go on.
// Upstream failures are sent to the client rather than closing the stream.
func (s *Server) pushRealtime(ctx context.Context, conn *websocket.Conn, devices, points []string) bool {
	msg := streamMessage{Type: "realtime", Time: s.now().UTC()}
	data, err := s.inverter.Realtime(ctx, devices, points)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.Ctx(ctx).WarnContext(ctx, "realtime stream upstream error", slog.Any("error", err))
		msg.Type = "error"
		msg.Error = "failed to get realtime data"
	} else {
		msg.Devices = data
	}

	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		log.Ctx(ctx).DebugContext(ctx, "realtime stream write failed", slog.Any("error", err))
		return false
	}
	return true
}

// readStream drains client frames so control messages are handled and
// cancels the stream once the client disconnects.
func (s *Server) readStream(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Ctx(ctx).DebugContext(ctx, "realtime stream read error", slog.Any("error", err))
			}
			return
		}
	}
}
