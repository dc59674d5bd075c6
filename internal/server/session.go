package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/adred-codev/ratefeed/internal/limits"
	"github.com/adred-codev/ratefeed/internal/monitoring"
	"github.com/adred-codev/ratefeed/internal/rates"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Ping period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size accepted from the peer.
	maxFrameSize = 512

	// Outbound queue depth per session.
	sendQueueSize = 256
)

// session is one WebSocket peer. The reader goroutine parses and dispatches
// inbound frames; writePump serializes all writes to the connection. Live
// points arrive through deliver, which runs on notifier workers.
type session struct {
	id      string
	conn    *websocket.Conn
	service RateService
	limiter *limits.FrameLimiter
	logger  zerolog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, service RateService, limiter *limits.FrameLimiter, logger zerolog.Logger) *session {
	id := conn.RemoteAddr().String()
	return &session{
		id:      id,
		conn:    conn,
		service: service,
		limiter: limiter,
		logger:  logger.With().Str("peer", id).Logger(),
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
	}
}

// close tears the session down once: the subscription goes first so no new
// deliveries are enqueued, then the pumps are released.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.service.Unsubscribe(s.id)
		close(s.done)
		s.conn.Close()
	})
}

// readPump reads frames until the peer disconnects or errors. Malformed and
// unknown frames are logged and skipped; the connection survives them.
func (s *session) readPump() {
	defer s.close()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read failed")
			}
			return
		}
		monitoring.IncrementFramesReceived()

		if !s.limiter.Allow() {
			monitoring.IncrementRateLimitedFrames()
			s.logger.Warn().Msg("Inbound frame rate limited")
			continue
		}

		s.handleFrame(data)
	}
}

// writePump owns all writes to the connection, interleaving queued frames
// with keepalive pings.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn().Err(err).Msg("WebSocket write failed")
				return
			}
			monitoring.IncrementFramesSent()

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Warn().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}

func (s *session) handleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.logger.Warn().Err(err).Msg("Malformed frame")
		return
	}

	switch frame.Action {
	case actionAssets:
		s.handleAssets()
	case actionSubscribe:
		s.handleSubscribe(frame.Message)
	default:
		s.logger.Warn().Str("action", frame.Action).Msg("Unknown action")
	}
}

func (s *session) handleAssets() {
	data, err := encodeAssetsFrame(s.service.Symbols())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode assets frame")
		return
	}
	s.enqueue(data)
}

// handleSubscribe installs the live subscription only after the history
// frame is queued, so a client always sees history before the first point.
func (s *session) handleSubscribe(raw json.RawMessage) {
	var msg subscribeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Warn().Err(err).Msg("Malformed subscribe message")
		return
	}

	if !s.service.Available(msg.AssetID) {
		s.logger.Warn().Int("asset_id", msg.AssetID).Msg("Subscribe to unknown asset ignored")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	points, err := s.service.History(ctx, msg.AssetID)
	if err != nil {
		s.logger.Error().Err(err).Int("asset_id", msg.AssetID).Msg("History read failed")
		return
	}

	data, err := encodeHistoryFrame(points)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode history frame")
		return
	}
	s.enqueue(data)

	s.service.Subscribe(s.id, s.deliver, msg.AssetID)
}

// deliver runs on a notifier worker. It blocks on the send queue up to the
// worker deadline, so a persistently slow peer surfaces as pool timeouts
// instead of stalling the feed.
func (s *session) deliver(ctx context.Context, point rates.Point) {
	data, err := encodePointFrame(point)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode point frame")
		return
	}

	select {
	case s.send <- data:
	case <-s.done:
	case <-ctx.Done():
		s.logger.Warn().Msg("Point delivery timed out, peer too slow")
	}
}

// enqueue queues a control reply without blocking the reader. A full queue
// means the peer is not draining; the reply is dropped.
func (s *session) enqueue(data []byte) {
	select {
	case s.send <- data:
	case <-s.done:
	default:
		s.logger.Warn().Msg("Send queue full, dropping frame")
	}
}
