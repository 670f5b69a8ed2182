package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/caresearch/medrank/internal/corpus"
	"github.com/caresearch/medrank/internal/telemetry"
	"github.com/caresearch/medrank/pkg/ranker"
)

// Handler serves the daemon's rank and status methods.
type Handler interface {
	Rank(ctx context.Context, req ranker.Request) (*ranker.Response, error)
	Status() StatusResult
}

// RankHandler answers rank requests from a resident ranker and corpus.
// Metrics is optional; without it requests_served reads zero.
type RankHandler struct {
	Service  *ranker.Ranker
	Provider *corpus.Provider
	Metrics  *telemetry.Metrics
}

// Rank delegates to the resident ranking facade.
func (h *RankHandler) Rank(ctx context.Context, req ranker.Request) (*ranker.Response, error) {
	return h.Service.RankShortlist(ctx, req)
}

// Status reports the resident state. The server fills in process
// fields.
func (h *RankHandler) Status() StatusResult {
	var st StatusResult
	if h.Provider != nil {
		c := h.Provider.Corpus()
		st.CorpusSize = c.Len()
		st.CorpusPath = c.Path()
	}
	if h.Service != nil {
		st.IntentCacheLen = h.Service.IntentCacheLen()
	}
	if h.Metrics != nil {
		st.RequestsServed = h.Metrics.Snapshot().TotalRequests
	}
	return st
}

// Server listens on a unix socket and serves JSON-RPC requests.
type Server struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger
	pidfile *PIDFile

	listener net.Listener
	started  time.Time

	mu       sync.Mutex
	stopping bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer creates a daemon server for the given config and handler.
func NewServer(cfg Config, handler Handler) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("daemon config: %w", err)
	}
	if handler == nil {
		return nil, fmt.Errorf("daemon handler cannot be nil")
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  slog.Default(),
		pidfile: NewPIDFile(cfg.PIDPath),
		stopCh:  make(chan struct{}),
	}, nil
}

// SetLogger replaces the server logger. Call before ListenAndServe.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// ListenAndServe binds the socket, writes the pid file, and blocks
// until the context is cancelled or a shutdown request arrives.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.cfg.EnsureDir(); err != nil {
		return err
	}
	if s.pidfile.IsRunning() {
		pid, _ := s.pidfile.Read()
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	// A previous daemon that died uncleanly leaves the socket behind.
	_ = os.Remove(s.cfg.SocketPath)

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.SocketPath, err)
	}
	if err := s.pidfile.Write(); err != nil {
		_ = listener.Close()
		_ = os.Remove(s.cfg.SocketPath)
		return err
	}
	s.listener = listener
	s.started = time.Now()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.cfg.SocketPath)
		_ = s.pidfile.Remove()
	}()

	s.logger.Info("daemon listening",
		slog.String("socket", s.cfg.SocketPath),
		slog.Int("pid", os.Getpid()))

	go func() {
		select {
		case <-ctx.Done():
		case <-s.stopCh:
		}
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			stopping := s.stopping
			s.mu.Unlock()
			if stopping {
				break
			}
			s.logger.Error("accept failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
		s.logger.Warn("shutdown grace elapsed with connections still open")
	}

	return ctx.Err()
}

// handleConnection serves one request per connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
		s.logger.Warn("set connection deadline", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "parse request"))
		return
	}

	resp, stop := s.handleRequest(ctx, req)
	_ = encoder.Encode(resp)
	if stop {
		s.stop()
	}
}

// handleRequest dispatches one request. The second return value asks
// the server to stop after the response is written.
func (s *Server) handleRequest(ctx context.Context, req Request) (Response, bool) {
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true}), false

	case MethodStatus:
		return NewSuccessResponse(req.ID, s.status()), false

	case MethodRank:
		return s.handleRank(ctx, req), false

	case MethodShutdown:
		s.logger.Info("shutdown requested over socket")
		return NewSuccessResponse(req.ID, ShutdownResult{Stopping: true}), true

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method)), false
	}
}

// handleRank decodes the rank params and runs them through the handler.
func (s *Server) handleRank(ctx context.Context, req Request) Response {
	paramsData, err := json.Marshal(req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "encode params")
	}
	var params ranker.Request
	if err := json.Unmarshal(paramsData, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "decode params")
	}

	resp, err := s.handler.Rank(ctx, params)
	if err != nil {
		s.logger.Warn("rank request failed",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()))
		return Response{JSONRPC: "2.0", Error: errorFrom(err), ID: req.ID}
	}
	return NewSuccessResponse(req.ID, resp)
}

// status merges handler state with the server's process fields.
func (s *Server) status() StatusResult {
	st := s.handler.Status()
	st.Running = true
	st.PID = os.Getpid()
	st.Uptime = time.Since(s.started).Round(time.Second).String()
	return st
}

// stop asks the serve loop to exit. Safe to call more than once.
func (s *Server) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Close stops the server without waiting for the serve loop to return.
func (s *Server) Close() error {
	s.stop()
	return nil
}
