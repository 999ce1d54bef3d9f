package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/go-wordpiece/internal/config"
	"github.com/example/go-wordpiece/internal/metrics"
	"github.com/example/go-wordpiece/internal/model"
	"github.com/example/go-wordpiece/internal/text"
	"github.com/example/go-wordpiece/internal/tokenizer"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Segmenter is the tokenizer surface the handler needs.
type Segmenter interface {
	tokenizer.Tokenizer
	IDs(tokens []string) ([]int32, error)
}

// VocabInfo describes the served vocabulary for GET /vocab.
type VocabInfo struct {
	Size               int    `json:"size"`
	Fingerprint        string `json:"fingerprint"`
	UnkToken           string `json:"unk_token"`
	ContinuationPrefix string `json:"continuation_prefix"`
	Normalization      string `json:"normalization"`
}

// NewVocabInfo summarizes a loaded artifact.
func NewVocabInfo(l *model.Loaded) VocabInfo {
	return VocabInfo{
		Size:               l.Vocabulary.Len(),
		Fingerprint:        l.Manifest.Vocabulary.Fingerprint,
		UnkToken:           l.Manifest.Tokenizer.UnkToken,
		ContinuationPrefix: l.Manifest.Tokenizer.ContinuationPrefix,
		Normalization:      l.Manifest.Policy.String(),
	}
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes:   64 << 10,
		workers:        4,
		requestTimeout: 10 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /tokenize.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent tokenization calls.
// Zero disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	seg  Segmenter
	info VocabInfo
	opts options
	sem  chan struct{} // semaphore for worker pool
	log  *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /vocab, /metrics,
// POST /tokenize and POST /decode.
func NewHandler(seg Segmenter, info VocabInfo, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	metrics.Register()

	h := &handler{
		seg:  seg,
		info: info,
		opts: opts,
		log:  opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/vocab", h.handleVocab)
	mux.HandleFunc("/tokenize", h.handleTokenize)
	mux.HandleFunc("/decode", h.handleDecode)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return h.withRequestID(mux)
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

type ctxKey struct{}

// withRequestID tags every request with an id, logs its outcome and records
// request metrics.
func (h *handler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		log := h.log.With(slog.String("request_id", id))
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, log))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		metrics.RecordRequest(r.URL.Path, rec.status, elapsed)
		log.DebugContext(r.Context(), "request complete",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int64("duration_us", elapsed.Microseconds()),
		)
	})
}

func (h *handler) logger(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return h.log
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *handler) handleVocab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.info)
}

type tokenizeRequest struct {
	Text string `json:"text"`
}

type tokenizeResponse struct {
	Tokens  []string `json:"tokens"`
	IDs     []int32  `json:"ids"`
	Unknown int      `json:"unknown"`
}

type decodeRequest struct {
	IDs []int32 `json:"ids"`
}

type decodeResponse struct {
	Text string `json:"text"`
}

func (h *handler) handleTokenize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req tokenizeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	input, err := text.Normalize(req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, "text field is required")
		return
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	log := h.logger(r)

	resp, err := h.run(r, func() (any, error) {
		tokens := h.seg.Tokenize(input)
		ids, err := h.seg.IDs(tokens)
		if err != nil {
			return nil, err
		}
		unknown := 0
		for _, tok := range tokens {
			if tok == h.info.UnkToken {
				unknown++
			}
		}
		return tokenizeResponse{Tokens: tokens, IDs: ids, Unknown: unknown}, nil
	})
	if err != nil {
		h.writeRunError(w, r, log, "tokenize", len(req.Text), err)
		return
	}

	out := resp.(tokenizeResponse)
	metrics.RecordTokens(len(out.Tokens), out.Unknown)
	log.InfoContext(r.Context(), "tokenize complete",
		slog.Int("text_len", len(req.Text)),
		slog.Int("tokens", len(out.Tokens)),
		slog.Int("unknown", out.Unknown),
	)

	writeJSON(w, http.StatusOK, out)
}

func (h *handler) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req decodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if len(req.IDs) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("ids exceed maximum count of %d", h.opts.maxTextBytes))
		return
	}

	log := h.logger(r)

	resp, err := h.run(r, func() (any, error) {
		s, err := h.seg.Decode(req.IDs)
		if err != nil {
			return nil, badRequest{err}
		}
		return decodeResponse{Text: s}, nil
	})
	if err != nil {
		h.writeRunError(w, r, log, "decode", len(req.IDs), err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// badRequest marks errors caused by the client's input.
type badRequest struct{ error }

func (b badRequest) Unwrap() error { return b.error }

// run executes fn on a worker slot under the request timeout. The slot is
// held until fn returns, even when the request has already timed out.
func (h *handler) run(r *http.Request, fn func() (any, error)) (any, error) {
	release := func() {}

	// Acquire a worker slot, honouring context cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			return nil, r.Context().Err()
		}
		release = func() { <-h.sem }
	}
	defer metrics.IncInflight()()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer release()
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		return res.v, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *handler) writeRunError(w http.ResponseWriter, r *http.Request, log *slog.Logger, op string, size int, err error) {
	var br badRequest
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		log.WarnContext(r.Context(), op+" timed out",
			slog.Int("size", size),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusGatewayTimeout, op+" timed out")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
	case errors.As(err, &br):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tokenizer.ErrUnknownTokenMissing):
		log.ErrorContext(r.Context(), op+" failed",
			slog.Int("size", size),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.ErrorContext(r.Context(), op+" failed",
			slog.Int("size", size),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server lifecycle
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	loaded          *model.Loaded
	log             *slog.Logger
	shutdownTimeout time.Duration
}

func New(cfg config.Config, loaded *model.Loaded) *Server {
	return &Server{
		cfg:             cfg,
		loaded:          loaded,
		log:             slog.Default(),
		shutdownTimeout: cfg.Server.ShutdownTimeout,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger overrides the logger, slog.Default() by default.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.log = l
	return s
}

// segmenter wraps the loaded tokenizer in the word cache when enabled. The
// returned stop function ends the cache expiration loop.
func (s *Server) segmenter() (Segmenter, func()) {
	wp := s.loaded.Tokenizer
	if s.cfg.Server.CacheSize <= 0 {
		metrics.SetCacheSource(nil)
		return wp, func() {}
	}

	cached := tokenizer.NewCached(wp, uint64(s.cfg.Server.CacheSize), s.cfg.Server.CacheTTL) //nolint:gosec // G115: validated non-negative.
	go cached.Start()
	metrics.SetCacheSource(func() metrics.CacheStats {
		st := cached.Stats()
		return metrics.CacheStats{Hits: st.Hits, Misses: st.Misses, Evictions: st.Evictions, Size: cached.Len()}
	})

	return cached, func() {
		cached.Stop()
		metrics.SetCacheSource(nil)
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s.loaded == nil || s.loaded.Tokenizer == nil {
		return errors.New("no vocabulary loaded")
	}
	if err := s.cfg.ValidateServer(); err != nil {
		return err
	}

	seg, stop := s.segmenter()
	defer stop()

	h := NewHandler(seg, NewVocabInfo(s.loaded),
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithRequestTimeout(s.cfg.Server.RequestTimeout),
		WithLogger(s.log),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.log.Info("server listening",
		slog.String("addr", s.cfg.Server.ListenAddr),
		slog.Int("vocab_size", s.loaded.Vocabulary.Len()),
		slog.Int("workers", s.cfg.Server.Workers),
		slog.Int("cache_size", s.cfg.Server.CacheSize),
	)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks GET /health on addr.
func ProbeHTTP(ctx context.Context, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
