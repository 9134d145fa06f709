package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"alarm/live/internal/archive"
	"alarm/live/internal/config"
	"alarm/live/internal/fetcher"
	"alarm/live/internal/live"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Server wires configuration, dependencies and HTTP routing together.
type Server struct {
	cfg         config.Config
	log         zerolog.Logger
	pool        *pgxpool.Pool
	archive     *archive.Store
	refresher   *live.Refresher
	proxyClient *http.Client
	validate    *validator.Validate
	authMw      *AuthMiddleware
	startedAt   time.Time
}

// New builds the scraper client, the optional archive and auth, and the
// refresh loop.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Server, error) {
	client, err := fetcher.New(FetcherOptions(cfg.Source), log)
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	var (
		pool  *pgxpool.Pool
		store *archive.Store
	)
	if cfg.Database.Enabled() {
		pool, err = archive.Open(ctx, cfg.Database, cfg.AppName, log)
		if err != nil {
			return nil, err
		}
		store = archive.New(pool)
	}

	var authMw *AuthMiddleware
	if cfg.Keycloak.Enabled() {
		authMw, err = NewAuthMiddleware(ctx, cfg.Keycloak, log)
		if err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, fmt.Errorf("init auth middleware: %w", err)
		}
	}

	opts := live.Options{
		RegionURL: cfg.Source.RegionURL,
		Interval:  cfg.Refresh.Interval,
		StaleTime: cfg.Refresh.StaleTime,
		Timeout:   cfg.Refresh.Timeout,
		ReadWait:  cfg.Refresh.ReadWait,
	}
	if store != nil {
		opts.Archiver = store
	}

	srv := newServer(cfg, log, live.New(client, opts, log), store, authMw)
	srv.pool = pool
	return srv, nil
}

func newServer(cfg config.Config, log zerolog.Logger, refresher *live.Refresher, store *archive.Store, authMw *AuthMiddleware) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		archive:   store,
		refresher: refresher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		authMw:    authMw,
		startedAt: time.Now().UTC(),
	}
	s.proxyClient = &http.Client{
		Timeout:       cfg.Source.Timeout,
		CheckRedirect: s.checkProxyRedirect,
	}
	return s
}

// FetcherOptions maps the source settings onto the scraper client.
func FetcherOptions(src config.SourceConfig) fetcher.Options {
	return fetcher.Options{
		BaseURL:           src.BaseURL,
		ProxyURL:          src.ProxyURL,
		UserAgent:         src.UserAgent,
		Timeout:           src.Timeout,
		Concurrency:       src.Concurrency,
		RequestsPerSecond: src.RequestsPerSecond,
		MaxBodyBytes:      src.MaxBodyBytes,
	}
}

// Close stops the refresher, then releases database and auth resources. The
// refresher goes first so no fetch archives into a closed pool.
func (s *Server) Close() {
	s.refresher.Close()
	if s.authMw != nil {
		s.authMw.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// Run starts the refresh loop and the HTTP server and blocks until the context
// is cancelled or an unrecoverable error occurs.
func (s *Server) Run(ctx context.Context) error {
	go s.refresher.Run(ctx)

	httpServer := &http.Server{
		Addr:         s.cfg.HTTP.Address,
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  s.cfg.HTTP.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	s.log.Info().Str("addr", s.cfg.HTTP.Address).Msg("http server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
