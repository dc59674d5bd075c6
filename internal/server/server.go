package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/adred-codev/ratefeed/internal/config"
	"github.com/adred-codev/ratefeed/internal/limits"
	"github.com/adred-codev/ratefeed/internal/monitoring"
	"github.com/adred-codev/ratefeed/internal/rates"
	"github.com/adred-codev/ratefeed/internal/symbols"
)

// RateService is the slice of the rate service the connection layer needs.
// Satisfied by *rates.Service.
type RateService interface {
	Subscribe(subscriberID string, deliver rates.DeliverFunc, assetID int)
	Unsubscribe(subscriberID string)
	History(ctx context.Context, assetID int) ([]rates.Point, error)
	Symbols() []symbols.Symbol
	Available(assetID int) bool
	SubscriberCount() int
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The feed is public read-only data; any origin may connect.
		return true
	},
}

// Server exposes the WebSocket feed plus health and metrics endpoints, and
// tracks live sessions for graceful drain.
type Server struct {
	cfg     *config.Config
	service RateService
	logger  zerolog.Logger

	httpServer *http.Server

	startedAt time.Time

	mu       sync.Mutex
	sessions map[string]*session
	draining bool

	wg sync.WaitGroup
}

func New(cfg *config.Config, service RateService, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		service:   service,
		logger:    logger.With().Str("component", "server").Logger(),
		startedAt: time.Now(),
		sessions:  make(map[string]*session),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", monitoring.HandleMetrics)

	s.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: mux,
	}
	return s
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes live sessions and waits for
// their pumps, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	s.logger.Info().Int("sessions", len(open)).Msg("Draining sessions")
	for _, sess := range open {
		sess.close()
	}

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warn().Msg("Session drain timed out")
	}

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	limiter := limits.NewFrameLimiter(s.cfg.FrameRateLimit, s.cfg.FrameRateBurst)
	sess := newSession(conn, s.service, limiter, s.logger)

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		sess.close()
		return
	}
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	monitoring.IncrementConnections()
	s.logger.Info().Str("peer", sess.id).Msg("Peer connected")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.writePump()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.readPump()

		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()

		monitoring.DecrementConnections()
		s.logger.Info().Str("peer", sess.id).Msg("Peer disconnected")
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	connections := len(s.sessions)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().Unix(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"connections":    connections,
		"subscribers":    s.service.SubscriberCount(),
	})
}
