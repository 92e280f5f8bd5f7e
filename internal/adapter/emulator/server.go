package emulator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"nhooyr.io/websocket"

	"chessprobe/internal/adapter/codec"
)

// Server exposes a Board over the firmware's HTTP endpoints, plus an
// /events WebSocket that streams every emitted envelope.
type Server struct {
	board     *Board
	logger    *slog.Logger
	addr      string
	httpSrv   *http.Server
	listener  net.Listener
	boundAddr string
	port      int
}

// NewServer creates an emulator server for board on addr.
func NewServer(board *Board, addr string, logger *slog.Logger) *Server {
	return &Server{board: board, addr: addr, logger: logger}
}

// Handler returns the HTTP routes. It is exported for httptest.
func (s *Server) Handler() http.Handler {
	// /events stays outside the serialized set: it is held open for the
	// lifetime of the stream.
	one := &serialized{}
	mux := http.NewServeMux()
	mux.Handle("POST /message", one.wrap(s.handleMessage))
	mux.Handle("GET /ping", one.wrap(s.handlePing))
	mux.Handle("GET /status", one.wrap(s.handleStatus))
	mux.Handle("GET /game", one.wrap(s.handleGame))
	mux.HandleFunc("GET /events", s.handleEvents)
	return logRequests(s.logger, mux)
}

// Listen binds the listening socket so BoundAddr is known before serving.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("emulator listen: %w", err)
	}
	s.listener = listener
	s.boundAddr = listener.Addr().String()
	if _, p, err := net.SplitHostPort(s.boundAddr); err == nil {
		s.port, _ = strconv.Atoi(p)
	}
	s.httpSrv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	return nil
}

// Start serves until ctx is cancelled, binding first if Listen was not called.
func (s *Server) Start(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.logger.Info("emulator started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("emulator serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual address the server bound to. Only valid after Listen or Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil || len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No message body"})
		return
	}
	s.board.Handle(body)
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, s.board.StatusText(s.port))
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	env, err := s.board.GameEnvelope()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	raw, err := codec.Marshal(env)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// handleEvents streams emitted envelopes to one WebSocket client until it
// disconnects. Slow clients drop envelopes rather than stall the board.
// The board subscription is registered before the handshake completes, so a
// client that has finished dialing sees every envelope emitted afterwards.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sendCh := make(chan []byte, 64)
	cancel := s.board.Subscribe(func(raw []byte) {
		select {
		case sendCh <- raw:
		default:
			s.logger.Warn("emulator: dropped event for slow client")
		}
	})
	defer cancel()

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	// CloseRead discards inbound frames and cancels ctx when the client goes away.
	ctx := ws.CloseRead(r.Context())
	s.logger.Info("events client connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("events client disconnected", "remote", r.RemoteAddr)
			return
		case raw := <-sendCh:
			if err := ws.Write(ctx, websocket.MessageText, raw); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
