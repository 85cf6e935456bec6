// Package server is the composition root: it opens the store and the
// revocation backend, builds the services and handlers, and mounts them on
// one chi router.
//
// DEPENDENCY FLOW:
//
//	config.Config → sqlstore.DB ─┬→ IdentityResolver ─→ AuthHandler
//	                             ├→ DeviceService ────→ DeviceHandler
//	                             └→ session.Loader ───→ Authenticator
//	              → Redis (or in-memory) revocation list ┘
//
// Handlers never see the DB and services never see HTTP. Everything is wired
// here so the rest of the tree can be tested piece by piece.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/device-manager/internal/auth"
	"github.com/sakif/device-manager/internal/config"
	"github.com/sakif/device-manager/internal/handler"
	"github.com/sakif/device-manager/internal/metrics"
	"github.com/sakif/device-manager/internal/middleware"
	"github.com/sakif/device-manager/internal/repository/sqlstore"
	"github.com/sakif/device-manager/internal/service"
	"github.com/sakif/device-manager/internal/session"
)

// Server owns the router and every long-lived resource behind it. The DB
// and the Redis client are closed when Start returns, or by Close.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	db      *sqlstore.DB
	redis   *redis.Client // nil when revocation is in-memory
	revoker session.Revoker
	metrics *metrics.Metrics
}

// New connects to the store and the revocation backend and wires all routes.
// A store that cannot be reached is fatal: the server must not take traffic.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := ensureDataDir(cfg.Store); err != nil {
		return nil, err
	}

	db, err := sqlstore.New(ctx, sqlstore.Dialect(cfg.DatabaseDriver), cfg.DatabaseURL,
		sqlstore.WithTimeout(cfg.StoreTimeout))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}

	if err := s.setupRevocation(ctx); err != nil {
		s.Close()
		return nil, err
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// ensureDataDir creates the parent directory of a file-backed SQLite DB.
func ensureDataDir(st config.Store) error {
	if st.DatabaseDriver != string(sqlstore.DialectSQLite) ||
		st.DatabaseURL == ":memory:" || strings.HasPrefix(st.DatabaseURL, "file:") {
		return nil
	}
	dir := filepath.Dir(st.DatabaseURL)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}

// setupRevocation picks the revocation list backend. Redis shares logouts
// across replicas; the in-memory list only covers this process.
func (s *Server) setupRevocation(ctx context.Context) error {
	if s.config.RedisURL == "" {
		s.logger.Warn("REDIS_URL not set, logouts are only remembered by this process")
		s.revoker = session.NewMemoryRevoker()
		return nil
	}

	opts, err := redis.ParseURL(s.config.RedisURL)
	if err != nil {
		return fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("connecting to redis: %w", err)
	}

	s.redis = client
	s.revoker = session.NewRedisRevoker(client)
	return nil
}

// setupRoutes mounts middleware and handlers.
//
// ROUTES:
//
//	GET    /                          → landing page (session optional)
//	GET    /login                     → redirect to Google
//	GET    /login/callback            → finish login, redirect to the dashboard
//	GET    /healthz                   → store liveness
//	GET    /metrics                   → Prometheus exposition
//	GET    /logout                    → end the session          [session]
//	GET    /get-all-devices/{userId}  → list devices             [session]
//	POST   /add-new-device            → create device            [session]
//	DELETE /delete-device/{deviceId}  → delete device            [session]
//	GET    /get-cable-info/{deviceId} → device cable summary     [session]
//
// Middleware runs in the order added: RequestID first so every log line has
// it. The logger and the metrics both wrap Recoverer, so a recovered panic is
// logged and counted as a 500.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	// === Auth plumbing ===
	tokens, err := auth.NewTokenService(s.config.SecretKey, s.config.SessionTTL)
	if err != nil {
		return err
	}
	provider := auth.NewGoogleProvider(auth.GoogleConfig{
		ClientID:     s.config.GoogleClientID,
		ClientSecret: s.config.GoogleClientSecret,
		RedirectURL:  s.config.RedirectURL(),
		DiscoveryURL: s.config.GoogleDiscoveryURL,
		Timeout:      s.config.ProviderTimeout,
	})
	authenticator := auth.NewAuthenticator(tokens, s.revoker, session.NewLoader(s.db), s.logger)

	// === Services and handlers ===
	resolver := service.NewIdentityResolver(s.db, s.metrics, s.logger)
	authHandler, err := handler.NewAuthHandler(provider, resolver, tokens, s.revoker, s.metrics,
		handler.AuthConfig{
			DownstreamURL: s.config.DownstreamURL,
			SecureCookies: s.config.SecureCookies(),
		}, s.logger)
	if err != nil {
		return err
	}

	indexHandler, err := handler.NewIndexHandler(s.logger)
	if err != nil {
		return err
	}

	deviceHandler := handler.NewDeviceHandler(service.NewDeviceService(s.db, s.logger), s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	// === Public routes ===
	s.router.With(authenticator.OptionalSession).Get("/", indexHandler.HandleIndex)
	s.router.Get("/login", authHandler.HandleLogin)
	s.router.Get("/login/callback", authHandler.HandleCallback)
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	// === Session routes ===
	s.router.Group(func(r chi.Router) {
		r.Use(authenticator.RequireSession)

		r.Get("/logout", authHandler.HandleLogout)
		r.Get("/get-all-devices/{userId}", deviceHandler.HandleList)
		r.Post("/add-new-device", deviceHandler.HandleAdd)
		r.Delete("/delete-device/{deviceId}", deviceHandler.HandleDelete)
		r.Get("/get-cable-info/{deviceId}", deviceHandler.HandleCableInfo)
	})

	return nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the DB pool and the Redis client. Safe to call once Start
// has returned; Start calls it itself.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
		s.redis = nil
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	return errors.Join(errs...)
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds before closing the store.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources failed", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.PublicURL),
			slog.String("database", s.config.DatabaseDriver),
			slog.Bool("tls", s.config.TLSEnabled()),
		)
		if s.config.TLSEnabled() {
			serverErrors <- srv.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
			return
		}
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
