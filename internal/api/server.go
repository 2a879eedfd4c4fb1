package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/ppiankov/tokenatlas/internal/model"
	"github.com/ppiankov/tokenatlas/internal/pipeline"
	"github.com/ppiankov/tokenatlas/internal/store"
	"github.com/ppiankov/tokenatlas/internal/worker"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Server exposes the token catalog over HTTP
type Server struct {
	pipeline *pipeline.Pipeline
	store    *store.Store
	limiter  *worker.Limiter
	config   model.ServerConfig
	logger   zerolog.Logger
	handler  http.Handler
}

// NewServer builds the HTTP surface for an opened pipeline. The logger on
// ctx is attached to every request.
func NewServer(ctx context.Context, p *pipeline.Pipeline, cfg *model.Config) (*Server, error) {
	s := p.Store()
	if s == nil {
		return nil, errors.WithStack(pipeline.ErrNotOpen)
	}

	srv := &Server{
		pipeline: p,
		store:    s,
		limiter:  worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize),
		config:   cfg.Server,
		logger:   *zerolog.Ctx(ctx),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tokens", srv.handleList)
	mux.Handle("POST /tokens", srv.limit(srv.handleCreate))
	mux.Handle("PUT /tokens", srv.limit(srv.handleUpdate))
	mux.Handle("DELETE /tokens", srv.limit(srv.handleDelete))
	mux.HandleFunc("GET /tokens/usage", srv.handleUsage)
	mux.HandleFunc("GET /tokens/dependents", srv.handleDependents)
	mux.Handle("POST /tokens/reload", srv.limit(srv.handleReload))
	mux.HandleFunc("GET /healthz", srv.handleHealth)

	srv.handler = srv.withLogger(mux)
	return srv, nil
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.config.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxConns)
	}

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Int("max_conns", s.config.MaxConns).Msg("serving token catalog")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return errors.WithStack(err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info().Msg("shutting down HTTP server")
		return errors.WithStack(server.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

// ListenAndServe listens on the configured address and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return errors.Errorf("listen %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// withLogger attaches the server logger and records each request at debug level
func (s *Server) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(s.logger.WithContext(r.Context())))
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// limit rejects mutating requests from clients above their rate
func (s *Server) limit(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !s.limiter.Allow(key) {
			s.logger.Warn().Str("client", key).Str("path", r.URL.Path).Msg("rate limited")
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many requests")
			return
		}
		next(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
