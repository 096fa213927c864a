// Package server exposes the workflow over WebSocket plus a small set of
// status endpoints. Each connection gets its own session; closing the
// connection removes the session and unwinds any in-flight run.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"taskpilot/internal/bridge"
	"taskpilot/internal/session"
)

//go:embed index.html
var indexPage []byte

// Server handles the WebSocket chat endpoint and status routes.
type Server struct {
	manager    *session.Manager
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	bridgeOpts bridge.Options
}

// New builds a server around an existing session registry.
func New(manager *session.Manager, logger *zap.Logger, opts bridge.Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The bundled page is the only intended client; cross-origin
			// browser use is fine for a local tool.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		bridgeOpts: opts,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/sessions", s.handleSessions)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexPage)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":          "ok",
		"active_sessions": s.manager.Count(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"sessions": s.manager.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleWS owns one connection for its whole life. Messages are processed
// strictly one at a time; the session registry enforces the same rule for
// any other path into the session.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sess := s.manager.Create()
	defer s.manager.Remove(sess.ID)

	log := s.logger.With(zap.String("session_id", sess.ID))
	log.Info("websocket connected", zap.String("remote", r.RemoteAddr))
	defer log.Info("websocket disconnected")

	// Connection-scoped context: closing the socket unwinds any run still
	// in flight so nothing leaks.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := writeWire(conn, newWireMessage(TypeSessionCreated, map[string]any{"session_id": sess.ID})); err != nil {
		return
	}

	for {
		msg, err := readClientMessage(conn)
		if err != nil {
			if errors.Is(err, errMalformedMessage) {
				if werr := writeWire(conn, newWireMessage(TypeError, map[string]any{"message": "invalid message format"})); werr != nil {
					return
				}
				continue
			}
			return
		}
		if msg.SessionID != "" && msg.SessionID != sess.ID {
			if err := writeWire(conn, newWireMessage(TypeError, map[string]any{"message": "invalid session"})); err != nil {
				return
			}
			continue
		}
		input := msg.Message
		if input == "" {
			if err := writeWire(conn, newWireMessage(TypeError, map[string]any{"message": "empty message"})); err != nil {
				return
			}
			continue
		}

		if err := writeWire(conn, newWireMessage(TypeUserEcho, map[string]any{"message": input})); err != nil {
			return
		}

		if !sess.TryAcquire() {
			if err := writeWire(conn, newWireMessage(TypeError, map[string]any{"message": "a request is already being processed for this session"})); err != nil {
				return
			}
			continue
		}

		err = s.streamRun(ctx, conn, sess, input)
		sess.Release()
		if err != nil {
			return
		}
	}
}

// streamRun relays one engine run to the socket. A write failure means the
// client is gone; the context cancellation in the caller's defer drains the
// bridge.
func (s *Server) streamRun(ctx context.Context, conn *websocket.Conn, sess *session.Session, input string) error {
	events := bridge.Run(ctx, sess.Engine(), input, s.bridgeOpts)
	for ev := range events {
		if err := writeWire(conn, eventToWire(ev)); err != nil {
			return err
		}
	}
	return nil
}

// errMalformedMessage marks inbound frames that are not valid JSON; the
// connection survives, only the frame is rejected.
var errMalformedMessage = errors.New("malformed client message")

func readClientMessage(conn *websocket.Conn) (clientMessage, error) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return clientMessage{}, err
	}
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return clientMessage{}, errMalformedMessage
	}
	msg.Message = strings.TrimSpace(msg.Message)
	return msg, nil
}

func writeWire(conn *websocket.Conn, msg wireMessage) error {
	return conn.WriteJSON(msg)
}
