// Package app wires all Cantus subsystems into a running server.
//
// The App struct owns the full lifecycle: New loads the reference curve and
// connects all subsystems, Run serves the HTTP and websocket endpoints, and
// Shutdown tears everything down in order.
//
// For testing, inject a curve or metrics via functional options
// (WithCurve, WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/cantus-audio/cantus/internal/analysis"
	"github.com/cantus-audio/cantus/internal/config"
	"github.com/cantus-audio/cantus/internal/health"
	"github.com/cantus-audio/cantus/internal/observe"
	"github.com/cantus-audio/cantus/internal/refcurve"
	"github.com/cantus-audio/cantus/internal/session"
	"github.com/cantus-audio/cantus/pkg/pitch"
)

// App owns all subsystem lifetimes and serves the analysis endpoints.
type App struct {
	cfg      *config.Config
	curve    *refcurve.Curve
	metrics  *observe.Metrics
	sessions *session.Registry
	sem      *semaphore.Weighted
	handler  http.Handler
	server   *http.Server

	// sessionSeq numbers accepted connections for session IDs.
	sessionSeq atomic.Int64

	// latest is the most recent completed performance summary.
	latestMu sync.RWMutex
	latest   *analysis.Summary

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCurve injects a reference curve instead of loading one from config.
func WithCurve(c *refcurve.Curve) Option {
	return func(a *App) { a.curve = c }
}

// WithMetrics injects a metrics set instead of using the global one.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. It loads the
// reference curve, verifies the estimator configuration, and builds the HTTP
// routing, but does not listen yet; call Run for that.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		sessions: session.NewRegistry(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// Fail fast on a bad estimator configuration rather than on the first
	// connection.
	if _, err := pitch.New(cfg.Pitch.Algorithm, cfg.PitchEstimatorConfig()); err != nil {
		return nil, fmt.Errorf("app: configure estimator: %w", err)
	}

	if err := a.initCurve(ctx); err != nil {
		return nil, fmt.Errorf("app: load reference curve: %w", err)
	}

	workers := cfg.Session.MaxEstimationConcurrency
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	a.sem = semaphore.NewWeighted(int64(workers))

	a.initRoutes()
	return a, nil
}

// initCurve loads the reference curve from the configured source unless one
// was injected.
func (a *App) initCurve(ctx context.Context) error {
	if a.curve != nil {
		return nil
	}

	if a.cfg.Reference.File != "" {
		curve, err := refcurve.LoadFile(a.cfg.Reference.File)
		if err != nil {
			return err
		}
		a.curve = curve
		slog.Info("reference curve loaded",
			"source", "file",
			"path", a.cfg.Reference.File,
			"samples", curve.Len(),
			"duration", curve.Duration(),
		)
		return nil
	}

	pg := a.cfg.Reference.Postgres
	conn, err := pgx.Connect(ctx, pg.DSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	// The curve is read once at startup; the connection is not kept open.
	defer func() {
		if cerr := conn.Close(context.Background()); cerr != nil {
			slog.Warn("postgres close error", "err", cerr)
		}
	}()

	curve, err := refcurve.NewPostgresSource(conn).Load(ctx, pg.SongID)
	if err != nil {
		return err
	}
	a.curve = curve
	slog.Info("reference curve loaded",
		"source", "postgres",
		"song_id", pg.SongID,
		"samples", curve.Len(),
		"duration", curve.Duration(),
	)
	return nil
}

// initRoutes builds the HTTP handler tree.
func (a *App) initRoutes() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", a.handleWS)
	mux.HandleFunc("GET /reference-pitch", a.handleReferencePitch)
	mux.HandleFunc("GET /analysis/latest", a.handleLatestAnalysis)
	mux.Handle("GET /metrics", promhttp.Handler())

	health.New(
		health.Static("reference", nil),
		health.Static("estimator", nil),
	).Register(mux)

	a.handler = observe.Middleware(a.metrics)(mux)
}

// Handler returns the fully wired HTTP handler. Used by tests to serve the
// app without binding a port.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the live session registry.
func (a *App) Sessions() *session.Registry { return a.sessions }

// handleWS upgrades the connection and runs an analysis session on it. The
// handler blocks for the lifetime of the session.
func (a *App) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	id := fmt.Sprintf("sess-%d-%d", time.Now().Unix(), a.sessionSeq.Add(1))

	est, err := pitch.New(a.cfg.Pitch.Algorithm, a.cfg.PitchEstimatorConfig())
	if err != nil {
		slog.Error("estimator construction failed", "session_id", id, "err", err)
		_ = conn.Close(websocket.StatusInternalError, "estimator unavailable")
		return
	}

	proc, err := session.NewProcessor(session.ProcessorConfig{
		Framer:             a.cfg.FramerConfig(),
		Estimator:          est,
		Curve:              a.curve,
		HopLength:          a.cfg.Audio.HopLength,
		Tolerance:          a.cfg.Analysis.ToleranceSeconds,
		Threshold:          a.cfg.Analysis.DeviationThreshold,
		MinSectionDuration: a.cfg.Analysis.MinSectionDuration,
		Sem:                a.sem,
		Metrics:            a.metrics,
	})
	if err != nil {
		slog.Error("processor construction failed", "session_id", id, "err", err)
		_ = conn.Close(websocket.StatusInternalError, "pipeline unavailable")
		return
	}

	sess := session.New(conn, session.Config{
		ID:              id,
		Processor:       proc,
		Encoding:        a.cfg.Audio.Encoding,
		InputSampleRate: a.cfg.Audio.InputSampleRate,
		SampleRate:      a.cfg.Audio.SampleRate,
		IdleTimeout:     a.cfg.Session.IdleTimeout(),
		Metrics:         a.metrics,
		OnComplete:      a.storeSummary,
	})
	if err := a.sessions.Add(sess); err != nil {
		slog.Error("session registration failed", "session_id", id, "err", err)
		_ = conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}
	defer a.sessions.Remove(id)

	if err := sess.Run(r.Context()); err != nil {
		slog.Warn("session ended with error", "session_id", id, "err", err)
	}
}

// handleReferencePitch serves the loaded reference curve as JSON.
func (a *App) handleReferencePitch(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"duration": a.curve.Duration(),
		"samples":  a.curve.Samples(),
	})
}

// handleLatestAnalysis serves the most recently completed performance
// summary, or 404 when no performance has finished yet.
func (a *App) handleLatestAnalysis(w http.ResponseWriter, _ *http.Request) {
	a.latestMu.RLock()
	latest := a.latest
	a.latestMu.RUnlock()

	if latest == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no completed performance yet"})
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

// storeSummary records a completed performance for /analysis/latest.
func (a *App) storeSummary(s analysis.Summary) {
	a.latestMu.Lock()
	a.latest = &s
	a.latestMu.Unlock()
}

// Run serves HTTP until ctx is cancelled or the listener fails. On
// cancellation it returns ctx.Err; call Shutdown to stop the server and
// close the live sessions.
func (a *App) Run(ctx context.Context) error {
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.server.ListenAndServe()
	}()

	slog.Info("server listening",
		"addr", a.cfg.Server.ListenAddr,
		"tls", a.cfg.Server.TLS != nil,
		"mode", a.cfg.Audio.Mode,
		"algorithm", a.cfg.Pitch.Algorithm,
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Shutdown stops the HTTP server, closes all live sessions, and runs the
// remaining closers. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Len())

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}
		a.sessions.CloseAll()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode error", "err", err)
	}
}
