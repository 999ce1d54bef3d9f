package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/go-wordpiece/internal/config"
	"github.com/example/go-wordpiece/internal/metrics"
	"github.com/example/go-wordpiece/internal/tokenizer"
)

// --- New & WithShutdownTimeout ---

func TestNew_DefaultShutdownTimeout(t *testing.T) {
	cfg := config.DefaultConfig()

	s := New(cfg, nil)
	if s == nil {
		t.Fatal("New() returned nil")
	}

	if s.shutdownTimeout != 30*time.Second {
		t.Errorf("shutdownTimeout = %v; want 30s", s.shutdownTimeout)
	}
}

func TestNew_ShutdownTimeoutFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ShutdownTimeout = 3 * time.Second

	if got := New(cfg, nil).shutdownTimeout; got != 3*time.Second {
		t.Errorf("shutdownTimeout = %v; want 3s", got)
	}
}

func TestWithShutdownTimeout(t *testing.T) {
	cfg := config.DefaultConfig()

	s := New(cfg, nil).WithShutdownTimeout(5 * time.Second)
	if s.shutdownTimeout != 5*time.Second {
		t.Errorf("shutdownTimeout = %v; want 5s", s.shutdownTimeout)
	}
}

func TestWithShutdownTimeout_Chaining(t *testing.T) {
	cfg := config.DefaultConfig()
	s := New(cfg, nil)
	returned := s.WithShutdownTimeout(10 * time.Second)
	// Must return the same *Server for chaining.
	if returned != s {
		t.Error("WithShutdownTimeout should return the same *Server")
	}
}

func TestServerWithLogger(t *testing.T) {
	l := slog.New(slog.DiscardHandler)

	s := New(config.DefaultConfig(), nil).WithLogger(l)
	if s.log != l {
		t.Error("WithLogger did not replace the logger")
	}
}

// --- segmenter ---

func TestSegmenter_CacheDisabledReturnsWordPiece(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.CacheSize = 0
	loaded := loadTestArtifact(t)

	seg, stop := New(cfg, loaded).segmenter()
	defer stop()

	if seg != Segmenter(loaded.Tokenizer) {
		t.Errorf("segmenter = %T; want the loaded *tokenizer.WordPiece", seg)
	}
}

func TestSegmenter_CacheEnabledWrapsAndReportsStats(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.CacheSize = 8
	cfg.Server.CacheTTL = time.Minute

	seg, stop := New(cfg, loadTestArtifact(t)).segmenter()

	cached, ok := seg.(*tokenizer.Cached)
	if !ok {
		stop()
		t.Fatalf("segmenter = %T; want *tokenizer.Cached", seg)
	}

	cached.Tokenize("lowest lowest newer")
	if cached.Len() != 2 {
		t.Errorf("cache entries = %d; want 2", cached.Len())
	}

	metrics.Register()
	if n := testCacheEntries(t); n != 2 {
		t.Errorf("cache entries gauge = %v; want 2", n)
	}

	stop()
}

func testCacheEntries(t *testing.T) float64 {
	t.Helper()

	families, err := metrics.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() == "wordpiece_cache_entries" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}

	t.Fatal("wordpiece_cache_entries not gathered")
	return 0
}

// --- ProbeHTTP ---

func TestProbeHTTP_Success(t *testing.T) {
	// Start a test HTTP server that returns 200 /health.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	// ProbeHTTP uses "http://" prefix + addr, so strip the scheme.
	addr := srv.Listener.Addr().String()

	err := ProbeHTTP(context.Background(), addr)
	if err != nil {
		t.Errorf("ProbeHTTP(%q) = %v; want nil", addr, err)
	}
}

func TestProbeHTTP_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	addr := srv.Listener.Addr().String()

	err := ProbeHTTP(context.Background(), addr)
	if err == nil {
		t.Error("ProbeHTTP() = nil; want error for non-200 response")
	}
}

func TestProbeHTTP_ConnectionRefused(t *testing.T) {
	err := ProbeHTTP(context.Background(), "127.0.0.1:1")
	if err == nil {
		t.Error("ProbeHTTP() = nil; want error for unreachable host")
	}
}

func TestProbeHTTP_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := ProbeHTTP(ctx, srv.Listener.Addr().String()); err == nil {
		t.Error("ProbeHTTP() = nil; want error for cancelled context")
	}
}

// --- Start: invalid inputs ---

func TestStart_NoVocabulary(t *testing.T) {
	s := New(config.DefaultConfig(), nil)

	err := s.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no vocabulary") {
		t.Errorf("Start() = %v; want no vocabulary error", err)
	}
}

func TestStart_InvalidServerConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Workers = 0
	cfg.Server.MaxTextBytes = -1
	s := New(cfg, loadTestArtifact(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	err := s.Start(ctx)
	if err == nil {
		t.Fatal("Start() = nil; want error for invalid server config")
	}
	for _, want := range []string{"server.workers", "server.max_text_bytes"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Start() error %q does not mention %s", err, want)
		}
	}
}

// --- NewVocabInfo ---

func TestNewVocabInfo(t *testing.T) {
	loaded := loadTestArtifact(t)

	info := NewVocabInfo(loaded)
	if info.Size != 6 {
		t.Errorf("Size = %d; want 6", info.Size)
	}
	if info.UnkToken != "[UNK]" || info.ContinuationPrefix != "##" {
		t.Errorf("info = %+v", info)
	}
	if info.Normalization != "lowercase" {
		t.Errorf("Normalization = %q; want lowercase", info.Normalization)
	}
	if len(info.Fingerprint) != 16 {
		t.Errorf("Fingerprint = %q; want 16 hex digits", info.Fingerprint)
	}
}

// --- Functional options ---

func TestOptions_WithMaxTextBytes(t *testing.T) {
	opts := defaultOptions()
	WithMaxTextBytes(1024)(&opts)

	if opts.maxTextBytes != 1024 {
		t.Errorf("maxTextBytes = %d; want 1024", opts.maxTextBytes)
	}
}

func TestOptions_WithWorkers(t *testing.T) {
	opts := defaultOptions()
	WithWorkers(8)(&opts)

	if opts.workers != 8 {
		t.Errorf("workers = %d; want 8", opts.workers)
	}
}

func TestOptions_WithRequestTimeout(t *testing.T) {
	opts := defaultOptions()
	WithRequestTimeout(90 * time.Second)(&opts)

	if opts.requestTimeout != 90*time.Second {
		t.Errorf("requestTimeout = %v; want 90s", opts.requestTimeout)
	}
}

func TestOptions_WithLogger(t *testing.T) {
	l := slog.New(slog.DiscardHandler)

	opts := defaultOptions()
	WithLogger(l)(&opts)

	if opts.logger != l {
		t.Error("WithLogger did not set the logger")
	}
}
