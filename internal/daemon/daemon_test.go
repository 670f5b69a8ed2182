package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caresearch/medrank/internal/corpus"
	rankerr "github.com/caresearch/medrank/internal/errors"
	"github.com/caresearch/medrank/internal/filters"
	"github.com/caresearch/medrank/internal/llm"
	"github.com/caresearch/medrank/internal/telemetry"
	"github.com/caresearch/medrank/pkg/ranker"
)

// =============================================================================
// End-to-end: real ranker behind the socket
// =============================================================================

// daemonTestConfig creates a configuration with unique /tmp paths.
func daemonTestConfig(t *testing.T) Config {
	t.Helper()
	stamp := time.Now().UnixNano()
	cfg := Config{
		SocketPath:    filepath.Join("/tmp", fmt.Sprintf("medrank-daemon-test-%d.sock", stamp)),
		PIDPath:       filepath.Join("/tmp", fmt.Sprintf("medrank-daemon-test-%d.pid", stamp)),
		Timeout:       10 * time.Second,
		ShutdownGrace: 2 * time.Second,
	}
	t.Cleanup(func() {
		os.Remove(cfg.SocketPath)
		os.Remove(cfg.PIDPath)
	})
	return cfg
}

// daemonProvider loads a three-practitioner cardiology corpus.
func daemonProvider(t *testing.T) (*corpus.Provider, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "practitioners.json")
	data := `[
		{"id": "ep-1", "name": "Emma Hart", "title": "Dr", "specialty": "Cardiology",
		 "subspecialties": ["Electrophysiology"],
		 "clinical_expertise": "Procedures: Catheter Ablation; Conditions: Supraventricular Tachycardia (SVT)",
		 "procedure_groups": [{"name": "Catheter Ablation", "admission_count": 80}]},
		{"id": "ic-1", "name": "Ivan Cole", "title": "Dr", "specialty": "Cardiology",
		 "clinical_expertise": "Procedures: Coronary Angiography; Conditions: Coronary Artery Disease",
		 "procedure_groups": [{"name": "Coronary Angiography", "admission_count": 200}]},
		{"id": "gc-1", "name": "Grace Lin", "title": "Dr", "specialty": "Cardiology",
		 "about": "General cardiology clinic for adults."}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	c, err := corpus.Load(path)
	require.NoError(t, err)
	return corpus.NewProvider(c), path
}

// daemonScriptedClient answers the three understanding prompts for an
// SVT ablation query.
func daemonScriptedClient() *llm.ScriptedClient {
	return llm.NewScriptedClient(`{}`).
		Respond("summarize a patient's conversation", `{
			"symptoms": ["palpitations"],
			"preferences": [],
			"urgency": "soon",
			"inferred_specialty": "Cardiology",
			"summary": "Patient wants an SVT ablation."
		}`).
		Respond("classify a patient's free-text request", `{
			"goal": "procedure_intervention",
			"specificity": "named_procedure",
			"confidence": 0.95,
			"expansion_terms": ["arrhythmia"],
			"negative_terms": ["interventional cardiology"],
			"anchor_phrases": ["SVT ablation"],
			"safe_lane_terms": ["palpitations"],
			"likely_subspecialties": [{"name": "Electrophysiology", "confidence": 0.9}]
		}`).
		Respond("clinical retrieval signals", `{
			"primary_intent": "procedure_request",
			"expansion_terms": ["electrophysiology", "catheter ablation"],
			"negative_terms": ["coronary angiography"],
			"likely_subspecialties": [{"name": "Electrophysiology", "confidence": 0.85}]
		}`)
}

// startDaemon wires a real ranker behind a server and returns a
// connected client plus the serve error channel.
func startDaemon(t *testing.T) (*Client, chan error, string) {
	t.Helper()
	cfg := daemonTestConfig(t)
	provider, corpusPath := daemonProvider(t)

	metrics := telemetry.New(nil)
	t.Cleanup(func() { metrics.Close() })

	svc, err := ranker.New(provider, daemonScriptedClient(), ranker.WithMetrics(metrics))
	require.NoError(t, err)

	srv, err := NewServer(cfg, &RankHandler{
		Service:  svc,
		Provider: provider,
		Metrics:  metrics,
	})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(context.Background())
	}()
	time.Sleep(100 * time.Millisecond)

	t.Cleanup(func() { srv.Close() })

	return NewClient(cfg), errCh, corpusPath
}

func TestDaemon_EndToEnd(t *testing.T) {
	client, errCh, corpusPath := startDaemon(t)
	ctx := context.Background()

	require.True(t, client.IsRunning())
	require.NoError(t, client.Ping(ctx))

	// Rank over the socket
	resp, err := client.Rank(ctx, ranker.Request{
		Query:   "I need SVT ablation",
		Filters: filters.Criteria{Specialty: "Cardiology"},
	})
	require.NoError(t, err)

	ids := make([]string, len(resp.Shortlist))
	for i, c := range resp.Shortlist {
		ids[i] = c.Practitioner.ID
	}
	assert.Equal(t, []string{"ep-1", "gc-1", "ic-1"}, ids)
	assert.Equal(t, 1, resp.Shortlist[0].Rank)
	require.NotNil(t, resp.SessionContext)
	assert.Equal(t, "I need SVT ablation", resp.SessionContext.QPatient)
	assert.NotEmpty(t, resp.Diagnostics.RequestID)

	// Status reflects the resident corpus and the request just served
	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, 3, status.CorpusSize)
	assert.Equal(t, corpusPath, status.CorpusPath)
	assert.Equal(t, 1, status.IntentCacheLen)
	assert.Equal(t, int64(1), status.RequestsServed)

	// Shutdown over the socket is a clean exit
	require.NoError(t, client.Shutdown(ctx))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop after shutdown")
	}
	assert.False(t, client.IsRunning())
}

func TestDaemon_RejectsInvalidRequestOverWire(t *testing.T) {
	client, _, _ := startDaemon(t)

	_, err := client.Rank(context.Background(), ranker.Request{Query: "   "})
	require.Error(t, err)

	var werr *Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, ErrCodeInvalidParams, werr.Code)
	require.NotNil(t, werr.Data)
	assert.Equal(t, rankerr.ErrCodeQueryEmpty, werr.Data.Code)
}

func TestDaemon_WarmCacheAcrossCalls(t *testing.T) {
	// The point of the daemon: the second identical request hits the
	// resident understanding cache instead of the LLM.
	client, _, _ := startDaemon(t)
	ctx := context.Background()

	req := ranker.Request{
		Query:   "I need SVT ablation",
		Filters: filters.Criteria{Specialty: "Cardiology"},
	}

	first, err := client.Rank(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Diagnostics.Intent.CacheHit)

	second, err := client.Rank(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Diagnostics.Intent.CacheHit)

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.IntentCacheLen)
	assert.Equal(t, int64(2), status.RequestsServed)
}
