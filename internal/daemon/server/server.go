// Package server provides the control API of the tdm daemon.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Unidata/tds-sub001/errors"
	"github.com/Unidata/tds-sub001/internal/daemon/coordinator"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Server manages the daemon's HTTP server over a Unix socket.
type Server struct {
	logger   *logrus.Entry
	mu       sync.Mutex
	server   *http.Server
	coord    *coordinator.Coordinator
	upgrader websocket.Upgrader
}

// New creates a new Server instance.
func New(coord *coordinator.Coordinator, logger *logrus.Entry) *Server {
	return &Server{
		logger: logger,
		coord:  coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Only local processes can reach the socket.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/state", s.handleGetState)
	mux.HandleFunc("/api/targets", s.handleGetTargets)
	mux.HandleFunc("/api/config", s.handleGetConfig)
	mux.Handle("/api/trigger", s.coord.Signer().Middleware(s.logger, http.HandlerFunc(s.handleTrigger)))
	mux.HandleFunc("/api/stream", s.handleStream)

	return mux
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	srv := &http.Server{
		Handler: h2c.NewHandler(s.Handler(), &http2.Server{}),
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.WithField("socket", socketPath).Info("Daemon listening")
	err = srv.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// State assembles the current daemon state.
func (s *Server) State() models.DaemonState {
	state := s.coord.Store().Get()
	state.PID = os.Getpid()
	state.Workers = s.coord.Executor().Workers()
	state.InFlight = s.coord.Executor().InFlight()
	state.Queued = s.coord.Executor().Queued()

	busy := make(map[string]bool)
	for _, l := range s.coord.Listeners() {
		busy[l.Name] = l.InUse
	}
	for i := range state.Collections {
		state.Collections[i].Busy = busy[state.Collections[i].Name]
	}
	return state
}

// handleGetState returns the complete daemon state as JSON.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.State())
}

func (s *Server) handleGetTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Registry().Infos())
}

// handleGetConfig returns the running configuration with secrets masked.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Config().Redacted())
}

// handleTrigger accepts an update request from a signed local caller.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	collection := q.Get("collection")
	if collection == "" {
		http.Error(w, "missing collection", http.StatusBadRequest)
		return
	}

	var ut models.UpdateType
	if raw := q.Get("trigger"); raw != "" {
		parsed, err := models.ParseUpdateType(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ut = parsed
	}

	accepted, err := s.coord.Trigger(collection, ut)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errors.ErrCodeUnknownCollection) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, models.TriggerResponse{
		Collection: collection,
		UpdateType: ut,
		Accepted:   accepted,
	})
}

// handleStream upgrades to a websocket and pushes one JSON StateUpdate per
// message until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Subscribe first so nothing published after the handshake is missed.
	st := s.coord.Store()
	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("Stream upgrade failed")
		return
	}
	defer conn.Close()

	s.logger.Debug("Stream client connected")

	// Reader goroutine notices the client closing the connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			s.logger.Debug("Stream client disconnected")
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case update, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(update); err != nil {
				s.logger.WithError(err).Debug("Stream write failed")
				return
			}
		}
	}
}
