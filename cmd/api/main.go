package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/flozac77/StreamZilla/internal/api/handler"
	"github.com/flozac77/StreamZilla/internal/api/middleware"
	"github.com/flozac77/StreamZilla/internal/config"
	"github.com/flozac77/StreamZilla/internal/domain/repository"
	"github.com/flozac77/StreamZilla/internal/infrastructure/cache"
	"github.com/flozac77/StreamZilla/internal/infrastructure/postgres"
	"github.com/flozac77/StreamZilla/internal/infrastructure/queue"
	"github.com/flozac77/StreamZilla/internal/infrastructure/twitch"
	"github.com/flozac77/StreamZilla/internal/platform/logging"
	"github.com/flozac77/StreamZilla/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	clock := clockwork.NewRealClock()

	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	if err := postgres.EnsureSchema(ctx, pgClient.Pool()); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("connected to PostgreSQL")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	twitchCfg := twitch.Config{
		ClientID:                cfg.Twitch.ClientID,
		ClientSecret:            cfg.Twitch.ClientSecret,
		RedirectURI:             cfg.Twitch.RedirectURI,
		Scopes:                  cfg.Twitch.ScopeList(),
		APIBaseURL:              cfg.Twitch.APIBaseURL,
		RequestTimeout:          cfg.Twitch.RequestTimeout,
		RateLimitCalls:          cfg.Twitch.RateLimitCalls,
		RateLimitPeriod:         cfg.Twitch.RateLimitPeriod,
		MaxAttempts:             cfg.Twitch.MaxAttempts,
		RateLimitBackoff:        cfg.Twitch.RateLimitBackoff,
		BreakerFailureThreshold: cfg.Twitch.BreakerFailureThreshold,
		BreakerResetTimeout:     cfg.Twitch.BreakerResetTimeout,
		BreakerSuccessThreshold: cfg.Twitch.BreakerSuccessThreshold,
	}
	transport := twitch.NewTransport(twitchCfg, &http.Client{}, clock)
	oauthClient := twitch.NewOAuthClient(twitchCfg, transport)

	tokenRepo := postgres.NewTokenRepository(pgClient.Pool())
	gameRepo := postgres.NewGameRepository(pgClient.Pool())

	tokenMgr := usecase.NewTokenManager(tokenRepo, oauthClient, clock, usecase.TokenManagerConfig{
		RefreshBeforeExpiry: cfg.Token.RefreshBeforeExpiry,
		CacheTTL:            cfg.Token.CacheTTL,
	})
	helixClient := twitch.NewHelixClient(twitchCfg, transport, tokenMgr)

	var recorder repository.GameRecorder = gameRepo
	if cfg.Search.GamePersisting == config.GamePersistingQueue {
		queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer queueClient.Close()
		recorder = usecase.NewQueuedGameRecorder(queueClient)
		logger.Info("connected to RabbitMQ, games are persisted by the worker")
	}

	resolver := usecase.NewGameResolver(helixClient, recorder, clock, usecase.GameResolverConfig{
		MemoTTL: cfg.Search.GameMemoTTL,
	})
	aggregator := usecase.NewVideoAggregator(helixClient)
	searchCache := cache.NewRedisSearchCache(redisClient, clock, cfg.Search.CacheTTL, cfg.Search.CacheBackstop)
	searchSvc := usecase.NewSearchService(resolver, aggregator, searchCache, clock, usecase.SearchServiceConfig{
		DefaultLimit: cfg.Search.DefaultLimit,
	})
	userTokenRepo := postgres.NewUserTokenRepository(pgClient.Pool())
	authSvc := usecase.NewAuthService(oauthClient, oauthClient, userTokenRepo, clock)

	r := setupRouter(logger, cfg, clock, routeHandlers{
		search: handler.NewSearchHandler(searchSvc),
		auth:   handler.NewAuthHandler(authSvc, newSessionStore(cfg.Session)),
		admin:  handler.NewAdminHandler(searchSvc),
		ready:  handler.NewReadinessHandler(map[string]handler.CheckFunc{
			"postgres": pgClient.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

type routeHandlers struct {
	search *handler.SearchHandler
	auth   *handler.AuthHandler
	admin  *handler.AdminHandler
	ready  *handler.ReadinessHandler
}

func setupRouter(logger *slog.Logger, cfg *config.Config, clock clockwork.Clock, h routeHandlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", h.ready.Ready)
	r.Handle("/metrics", promhttp.Handler())

	limiter := middleware.NewIPRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, clock)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter))

		r.Get("/search", h.search.Search)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/url", h.auth.URL)
			r.Get("/callback", h.auth.Callback)
			r.Get("/me", h.auth.Me)
			r.Post("/logout", h.auth.Logout)
			r.Get("/videos", h.auth.Videos)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdminKey(cfg.Admin.APIKey))
			r.Delete("/cache", h.admin.ClearCache)
		})
	})

	return r
}

func newSessionStore(cfg config.SessionConfig) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}
