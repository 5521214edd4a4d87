package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alagamento-br/apiserver/config"
	"github.com/alagamento-br/apiserver/internal/auth"
	"github.com/alagamento-br/apiserver/internal/db"
	"github.com/alagamento-br/apiserver/internal/handlers"
	"github.com/alagamento-br/apiserver/internal/mq"
	"github.com/alagamento-br/apiserver/internal/observability"
	"github.com/alagamento-br/apiserver/internal/services"
	"github.com/alagamento-br/apiserver/internal/storage"
	"github.com/alagamento-br/apiserver/internal/store"
	"github.com/alagamento-br/apiserver/internal/weather"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const requestTimeout = 60 * time.Second

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
	logger     zerolog.Logger
}

// Services groups the use-cases exposed over HTTP.
type Services struct {
	Auth      *services.AuthService
	Users     *services.UserService
	Incidents *services.IncidentService
	Risk      *services.RiskService
}

// RouterDeps is everything NewRouter needs besides the services.
type RouterDeps struct {
	Config  config.Config
	Tokens  handlers.TokenVerifier
	Objects handlers.ObjectReader
	DB      handlers.Pinger
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// New wires the stores, collaborators and services from cfg.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	tokens, err := auth.NewTokenService(cfg.JWTSecret, nil)
	if err != nil {
		return nil, err
	}
	hasher, err := auth.NewPasswordHasher(cfg.PasswordHasher)
	if err != nil {
		return nil, err
	}
	if cfg.Weather.APIKey == "" {
		logger.Warn().Msg("WEATHER_API_KEY is empty; risk and weather endpoints will fail")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	metrics := observability.NewMetrics()
	userRepo := store.NewUserRepository(dbConn)
	incidentRepo := store.NewIncidentRepository(dbConn)
	events := mq.NewEventPublisher(broker, cfg.MQ.Topic)
	weatherClient := weather.NewClient(cfg.Weather, metrics, logger)

	svc := Services{
		Auth:      services.NewAuthService(userRepo, hasher, tokens),
		Users:     services.NewUserService(userRepo),
		Incidents: services.NewIncidentService(incidentRepo, objects, events, logger),
		Risk:      services.NewRiskService(weatherClient, incidentRepo, metrics),
	}

	router := NewRouter(svc, RouterDeps{
		Config:  cfg,
		Tokens:  tokens,
		Objects: objects,
		DB:      dbConn,
		Metrics: metrics,
		Logger:  logger,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info().
		Str("storage", cfg.Storage.Backend).
		Str("mq", cfg.MQ.Backend).
		Str("password_hasher", cfg.PasswordHasher).
		Msg("server configured")

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		mq:         broker,
		logger:     logger,
	}, nil
}

// NewRouter builds the full HTTP surface.
func NewRouter(svc Services, deps RouterDeps) *chi.Mux {
	guard := handlers.NewGuard(deps.Tokens, deps.Metrics, deps.Logger)
	limiter := NewRateLimiter(deps.Config.RateLimit.RequestsPerSecond, deps.Config.RateLimit.Burst)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(deps.Logger),
		middleware.Recoverer,
		cors(deps.Config.AllowOrigins),
	)
	if deps.Metrics != nil {
		router.Use(instrument(deps.Metrics))
	}
	router.Use(middleware.Timeout(requestTimeout))

	router.Get("/healthz", handlers.Healthz)
	if deps.DB != nil {
		router.Get("/readyz", handlers.Readyz(deps.DB))
	}
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, svc.Auth, svc.Users, guard, limiter.PerIP, deps.Logger)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, svc.Users, guard, deps.Logger)
	})
	router.Route("/incidents", func(r chi.Router) {
		handlers.IncidentRouter(r, svc.Incidents, guard, deps.Config.PublicBaseURL, deps.Logger)
	})
	router.Route("/uploads", func(r chi.Router) {
		handlers.UploadsRouter(r, deps.Objects, deps.Logger)
	})
	handlers.RiskRouter(router, svc.Risk, guard, deps.Logger)

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.mq != nil {
		if cerr := s.mq.Close(); cerr != nil {
			s.logger.Warn().Err(cerr).Msg("failed to close broker")
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
