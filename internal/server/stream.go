package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/signal"
	"github.com/kubilitics/kubilitics-vitals/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// defaultDevOrigins are accepted when no origins are configured.
var defaultDevOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// newUpgrader builds a WebSocket upgrader that accepts the allowed origins.
// ["*"] accepts any origin; requests without an Origin header are accepted.
func newUpgrader(allowed []string) websocket.Upgrader {
	if len(allowed) == 0 {
		allowed = defaultDevOrigins
	}
	wildcard := false
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		set[strings.ToLower(o)] = struct{}{}
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || wildcard {
				return true
			}
			_, ok := set[strings.ToLower(origin)]
			return ok
		},
	}
}

// handleStream pushes a freshly generated and analysed report on every tick.
// The seed advances by one per tick starting at the requested seed.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req := GenerateRequest{}
	days, err := queryInt(r, "days", s.cfg.Generator.Days)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	spd, err := queryInt(r, "samples_per_day", s.cfg.Generator.SamplesPerDay)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	seed, err := queryInt64(r, "seed", s.cfg.Generator.Seed)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	req.Days, req.SamplesPerDay, req.Seed = &days, &spd, &seed
	opts, err := s.generateOptions(req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if s.streamCtx.Err() != nil {
		respondErrorWithCode(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, "server is shutting down")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.streamCtx, cancel)
	defer stop()

	s.logger.Info("Stream client connected",
		zap.String("remote", r.RemoteAddr),
		zap.Int64("seed", opts.Seed),
		zap.Duration("interval", s.streamInterval),
	)

	// The read loop only services control frames and notices disconnects.
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("Stream read error", zap.Error(err))
				}
				return
			}
			metrics.WebSocketMessagesTotal.WithLabelValues("in").Inc()
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	tick := 0
	baseSeed := opts.Seed
	send := func() bool {
		opts.Seed = baseSeed + int64(tick)
		if err := s.writeFrame(conn, s.streamFrame(ctx, tick, opts)); err != nil {
			s.logger.Debug("Stream write failed", zap.Error(err))
			return false
		}
		tick++
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			if s.streamCtx.Err() != nil {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				s.logger.Info("Stream closed for shutdown", zap.String("remote", r.RemoteAddr), zap.Int("ticks", tick))
				return
			}
			s.logger.Info("Stream client disconnected", zap.String("remote", r.RemoteAddr), zap.Int("ticks", tick))
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}

// streamFrame generates and analyses one dataset. Failures become error frames.
func (s *Server) streamFrame(ctx context.Context, tick int, opts signal.Options) StreamMessage {
	msg := StreamMessage{Type: StreamTypeReport, Tick: tick, Seed: opts.Seed, Timestamp: time.Now().UTC()}
	release, err := s.acquireAnalysis(ctx)
	if err != nil {
		msg.Type = StreamTypeError
		msg.Error = err.Error()
		return msg
	}
	defer release()

	ds, err := s.engine.GenerateWith(ctx, opts)
	if err == nil {
		var res *analytics.Result
		if res, err = s.engine.Run(ctx, ds); err == nil {
			msg.Report = res.Report
			return msg
		}
	}
	s.logger.Warn("Stream analysis failed", zap.Int("tick", tick), zap.Error(err))
	msg.Type = StreamTypeError
	msg.Error = err.Error()
	return msg
}

func (s *Server) writeFrame(conn *websocket.Conn, msg StreamMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	metrics.WebSocketMessagesTotal.WithLabelValues("out").Inc()
	return nil
}
