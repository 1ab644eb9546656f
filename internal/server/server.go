package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tbledger/apiserver/config"
	"github.com/tbledger/apiserver/internal/db"
	"github.com/tbledger/apiserver/internal/forms"
	"github.com/tbledger/apiserver/internal/handlers"
	"github.com/tbledger/apiserver/internal/logging"
	"github.com/tbledger/apiserver/internal/metrics"
	"github.com/tbledger/apiserver/internal/mq"
	"github.com/tbledger/apiserver/internal/services"
	"github.com/tbledger/apiserver/internal/session"
	"github.com/tbledger/apiserver/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Deps are the collaborators the HTTP handler is built from.
type Deps struct {
	Accounts  *services.AccountService
	Users     *services.UserService
	Sessions  *session.Manager
	Validator *forms.Validator
	Logger    *zap.Logger
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	closers    []io.Closer
	logger     *zap.Logger
}

// New connects to Postgres and the optional Redis and broker backends and
// builds the HTTP server.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	srv := &Server{db: dbConn, logger: logger}

	sessionStore, err := srv.sessionStore(ctx, cfg)
	if err != nil {
		_ = srv.Shutdown(ctx)
		return nil, err
	}

	backend, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = srv.Shutdown(ctx)
		return nil, fmt.Errorf("connect message queue: %w", err)
	}
	var events services.EventPublisher
	if backend != nil {
		srv.closers = append(srv.closers, backend)
		events = mq.NewAccountEvents(backend, cfg.MQ.Channel)
	}

	deps := Deps{
		Accounts: services.NewAccountService(store.NewAccountRepository(dbConn), events, logger),
		Users:    services.NewUserService(store.NewUserRepository(dbConn), cfg.Auth.BcryptCost),
		Sessions: session.NewManager(session.Options{
			Secret:     cfg.Auth.SessionSecret,
			TTL:        cfg.Auth.SessionTTL,
			CookieName: cfg.Auth.CookieName,
			Secure:     cfg.Auth.CookieSecure,
		}, sessionStore),
		Validator: forms.NewValidator(forms.PasswordPolicy{MinLength: cfg.Password.MinLength}),
		Logger:    logger,
	}

	router, err := NewRouter(deps)
	if err != nil {
		_ = srv.Shutdown(ctx)
		return nil, err
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	srv.router = router
	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

// NewRouter composes middleware and routes around deps.
func NewRouter(deps Deps) (*chi.Mux, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pages, err := handlers.NewRenderer(logger)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		middleware.Recoverer,
		metrics.InstrumentHandler,
		middleware.StripSlashes,
		middleware.Timeout(60*time.Second),
	)
	router.NotFound(pages.NotFound)

	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(handlers.LoadIdentity(deps.Sessions, deps.Users, pages, logger))
		handlers.AuthRouter(r, handlers.NewAuthHandler(deps.Users, deps.Sessions, deps.Validator, pages, logger))
		handlers.AccountRouter(r, handlers.NewAccountHandler(deps.Accounts, deps.Validator, pages, logger))
	})

	return router, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops the HTTP server and releases backend connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		errs = append(errs, s.httpServer.Shutdown(ctx))
	}
	for _, closer := range s.closers {
		errs = append(errs, closer.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// sessionStore uses Redis when REDIS_URL is set so revocations survive
// restarts and are shared by replicas.
func (s *Server) sessionStore(ctx context.Context, cfg config.Config) (session.Store, error) {
	if cfg.RedisURL == "" {
		s.logger.Warn("REDIS_URL not set; session revocations are kept in memory")
		return session.NewMemoryStore(), nil
	}

	client, err := session.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	s.closers = append(s.closers, client)
	return session.NewRedisStore(client), nil
}
