package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caresearch/medrank/internal/corpus"
	rankerr "github.com/caresearch/medrank/internal/errors"
	"github.com/caresearch/medrank/internal/progressive"
	"github.com/caresearch/medrank/internal/rank"
	"github.com/caresearch/medrank/pkg/ranker"
)

// serverTestConfig builds a config with unique /tmp paths, short enough
// for unix sockets.
func serverTestConfig(t *testing.T) Config {
	t.Helper()
	stamp := time.Now().UnixNano()
	cfg := Config{
		SocketPath:    filepath.Join("/tmp", fmt.Sprintf("medrank-server-test-%d.sock", stamp)),
		PIDPath:       filepath.Join("/tmp", fmt.Sprintf("medrank-server-test-%d.pid", stamp)),
		Timeout:       5 * time.Second,
		ShutdownGrace: 2 * time.Second,
	}
	t.Cleanup(func() {
		os.Remove(cfg.SocketPath)
		os.Remove(cfg.PIDPath)
	})
	return cfg
}

// stubHandler serves canned responses without a real ranker behind it.
type stubHandler struct {
	rankFn func(ctx context.Context, req ranker.Request) (*ranker.Response, error)
	status StatusResult
}

func (h *stubHandler) Rank(ctx context.Context, req ranker.Request) (*ranker.Response, error) {
	if h.rankFn != nil {
		return h.rankFn(ctx, req)
	}
	return &ranker.Response{}, nil
}

func (h *stubHandler) Status() StatusResult { return h.status }

func cannedResponse() *ranker.Response {
	return &ranker.Response{
		Shortlist: []*progressive.Candidate{
			{
				ScoredResult: &rank.ScoredResult{
					Practitioner: &corpus.Practitioner{ID: "ep-1", Name: "Emma Hart"},
					Rank:         1,
					Score:        0.92,
				},
			},
		},
		Diagnostics: ranker.Diagnostics{RequestID: "d-1", Variant: "two-stage", CandidatesRanked: 1},
	}
}

// startServer runs srv in the background and waits for the socket.
func startServer(t *testing.T, srv *Server, ctx context.Context) chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	return errCh
}

// roundTrip sends one raw request over the socket and decodes the
// response.
func roundTrip(t *testing.T, socketPath string, req Request) Response {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, json.NewEncoder(conn).Encode(req))

	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	return resp
}

func TestNewServer(t *testing.T) {
	cfg := serverTestConfig(t)

	srv, err := NewServer(cfg, &stubHandler{})
	require.NoError(t, err)
	assert.NotNil(t, srv)

	_, err = NewServer(cfg, nil)
	require.Error(t, err)

	_, err = NewServer(Config{}, &stubHandler{})
	require.Error(t, err)
}

func TestServer_ListenAndServe(t *testing.T) {
	cfg := serverTestConfig(t)
	srv, err := NewServer(cfg, &stubHandler{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startServer(t, srv, ctx)

	// Socket and pid file are in place while running
	_, err = os.Stat(cfg.SocketPath)
	require.NoError(t, err)
	pid, err := NewPIDFile(cfg.PIDPath).Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_AlreadyRunning(t *testing.T) {
	cfg := serverTestConfig(t)

	// A pid file naming a live process blocks a second daemon
	require.NoError(t, NewPIDFile(cfg.PIDPath).Write())

	srv, err := NewServer(cfg, &stubHandler{})
	require.NoError(t, err)

	err = srv.ListenAndServe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestServer_ReplacesStaleState(t *testing.T) {
	cfg := serverTestConfig(t)

	// Leftovers from a daemon that died uncleanly
	require.NoError(t, os.WriteFile(cfg.SocketPath, []byte("stale"), 0o644))
	require.NoError(t, os.WriteFile(cfg.PIDPath, []byte("4194304"), 0o644))

	srv, err := NewServer(cfg, &stubHandler{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startServer(t, srv, ctx)

	resp := roundTrip(t, cfg.SocketPath, Request{JSONRPC: "2.0", Method: MethodPing, ID: "t-1"})
	assert.Nil(t, resp.Error)

	cancel()
	<-errCh
}

func TestServer_HandlePing(t *testing.T) {
	cfg := serverTestConfig(t)
	srv, err := NewServer(cfg, &stubHandler{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startServer(t, srv, ctx)

	resp := roundTrip(t, cfg.SocketPath, Request{JSONRPC: "2.0", Method: MethodPing, ID: "t-1"})

	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, "t-1", resp.ID)
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var pong PingResult
	require.NoError(t, json.Unmarshal(data, &pong))
	assert.True(t, pong.Pong)
}

func TestServer_HandleUnknownMethod(t *testing.T) {
	cfg := serverTestConfig(t)
	srv, err := NewServer(cfg, &stubHandler{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startServer(t, srv, ctx)

	resp := roundTrip(t, cfg.SocketPath, Request{JSONRPC: "2.0", Method: "unknownMethod", ID: "t-2"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestServer_HandleStatus(t *testing.T) {
	cfg := serverTestConfig(t)
	handler := &stubHandler{status: StatusResult{CorpusSize: 4, IntentCacheLen: 2}}
	srv, err := NewServer(cfg, handler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startServer(t, srv, ctx)

	resp := roundTrip(t, cfg.SocketPath, Request{JSONRPC: "2.0", Method: MethodStatus, ID: "t-3"})
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var status StatusResult
	require.NoError(t, json.Unmarshal(data, &status))

	// Handler state plus the server's process fields
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, 4, status.CorpusSize)
	assert.Equal(t, 2, status.IntentCacheLen)
	assert.NotEmpty(t, status.Uptime)
}

func TestServer_HandleRank(t *testing.T) {
	cfg := serverTestConfig(t)

	gotQuery := make(chan string, 1)
	handler := &stubHandler{
		rankFn: func(ctx context.Context, req ranker.Request) (*ranker.Response, error) {
			gotQuery <- req.Query
			return cannedResponse(), nil
		},
	}
	srv, err := NewServer(cfg, handler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startServer(t, srv, ctx)

	resp := roundTrip(t, cfg.SocketPath, Request{
		JSONRPC: "2.0",
		Method:  MethodRank,
		Params:  ranker.Request{Query: "knee pain specialist"},
		ID:      "t-4",
	})
	require.Nil(t, resp.Error)
	assert.Equal(t, "knee pain specialist", <-gotQuery)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var out ranker.Response
	require.NoError(t, json.Unmarshal(data, &out))

	require.Len(t, out.Shortlist, 1)
	assert.Equal(t, "ep-1", out.Shortlist[0].Practitioner.ID)
	assert.Equal(t, 1, out.Shortlist[0].Rank)
	assert.Equal(t, "two-stage", out.Diagnostics.Variant)
}

func TestServer_HandleRank_ValidationError(t *testing.T) {
	cfg := serverTestConfig(t)
	handler := &stubHandler{
		rankFn: func(ctx context.Context, req ranker.Request) (*ranker.Response, error) {
			return nil, rankerr.New(rankerr.ErrCodeQueryEmpty, "query cannot be empty", nil)
		},
	}
	srv, err := NewServer(cfg, handler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startServer(t, srv, ctx)

	resp := roundTrip(t, cfg.SocketPath, Request{JSONRPC: "2.0", Method: MethodRank, ID: "t-5"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
	require.NotNil(t, resp.Error.Data)
	assert.Equal(t, rankerr.ErrCodeQueryEmpty, resp.Error.Data.Code)
}

func TestServer_HandleRank_InternalError(t *testing.T) {
	cfg := serverTestConfig(t)
	handler := &stubHandler{
		rankFn: func(ctx context.Context, req ranker.Request) (*ranker.Response, error) {
			return nil, fmt.Errorf("corpus unavailable")
		},
	}
	srv, err := NewServer(cfg, handler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startServer(t, srv, ctx)

	resp := roundTrip(t, cfg.SocketPath, Request{JSONRPC: "2.0", Method: MethodRank, ID: "t-6"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRankFailed, resp.Error.Code)
	assert.Equal(t, "corpus unavailable", resp.Error.Message)
}

func TestServer_ParseError(t *testing.T) {
	cfg := serverTestConfig(t)
	srv, err := NewServer(cfg, &stubHandler{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startServer(t, srv, ctx)

	conn, err := net.Dial("unix", cfg.SocketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("this is not json\n"))
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParseError, resp.Error.Code)
}

func TestServer_ShutdownMethod(t *testing.T) {
	cfg := serverTestConfig(t)
	srv, err := NewServer(cfg, &stubHandler{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startServer(t, srv, ctx)

	resp := roundTrip(t, cfg.SocketPath, Request{JSONRPC: "2.0", Method: MethodShutdown, ID: "t-7"})
	require.Nil(t, resp.Error)

	// A socket shutdown is a clean exit, not a cancellation
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after shutdown request")
	}

	_, err = os.Stat(cfg.SocketPath)
	assert.True(t, os.IsNotExist(err), "socket should be cleaned up")
	_, err = os.Stat(cfg.PIDPath)
	assert.True(t, os.IsNotExist(err), "pid file should be cleaned up")
}

func TestServer_Close(t *testing.T) {
	cfg := serverTestConfig(t)
	srv, err := NewServer(cfg, &stubHandler{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startServer(t, srv, ctx)

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after Close")
	}
}

func TestServer_ConcurrentConnections(t *testing.T) {
	cfg := serverTestConfig(t)
	srv, err := NewServer(cfg, &stubHandler{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startServer(t, srv, ctx)

	const numClients = 5
	done := make(chan bool, numClients)

	for i := 0; i < numClients; i++ {
		go func(id int) {
			conn, err := net.Dial("unix", cfg.SocketPath)
			if err != nil {
				done <- false
				return
			}
			defer conn.Close()

			req := Request{
				JSONRPC: "2.0",
				Method:  MethodPing,
				ID:      fmt.Sprintf("client-%d", id),
			}
			if err := json.NewEncoder(conn).Encode(req); err != nil {
				done <- false
				return
			}

			var resp Response
			if err := json.NewDecoder(conn).Decode(&resp); err != nil {
				done <- false
				return
			}
			done <- resp.Error == nil
		}(i)
	}

	successCount := 0
	for i := 0; i < numClients; i++ {
		if <-done {
			successCount++
		}
	}
	assert.Equal(t, numClients, successCount, "all clients should succeed")
}
