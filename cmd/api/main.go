package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/wanderhost/browse-api/internal/collection"
	"github.com/wanderhost/browse-api/internal/config"
	"github.com/wanderhost/browse-api/internal/domain/activity"
	"github.com/wanderhost/browse-api/internal/domain/browse"
	"github.com/wanderhost/browse-api/internal/domain/savedsearch"
	"github.com/wanderhost/browse-api/internal/middleware"
	"github.com/wanderhost/browse-api/internal/pkg/activityclient"
	"github.com/wanderhost/browse-api/internal/pkg/database"
	"github.com/wanderhost/browse-api/internal/pkg/jwt"
	"github.com/wanderhost/browse-api/internal/pkg/logger"
	"github.com/wanderhost/browse-api/internal/pkg/metrics"
	"github.com/wanderhost/browse-api/internal/pkg/pagecache"
	pkgresponse "github.com/wanderhost/browse-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("activities_base_url", cfg.ActivitiesBaseURL).
		Msg("Starting Wanderhost browse API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	m := metrics.New()

	// ---------- Activities source ----------
	client := activityclient.NewClient(activityclient.Config{
		BaseURL:   cfg.ActivitiesBaseURL,
		Token:     cfg.ActivitiesToken,
		Timeout:   cfg.ActivitiesTimeout(),
		UserAgent: cfg.UserAgent,
	})
	pages := pagecache.New[activity.Activity](client, rdb,
		pagecache.WithTTL(cfg.PageCacheTTL),
		pagecache.WithRecorder(m),
	)

	// ---------- Sessions ----------
	baseCtx, cancelBase := context.WithCancel(logger.WithContext(context.Background(), &log.Logger))
	defer cancelBase()

	registry := browse.NewRegistry(pages, browse.RegistryConfig{
		IdleTTL:     cfg.SessionIdleTTL,
		MaxSessions: cfg.MaxSessions,
		Tracker:     m,
		StoreOptions: []collection.Option{
			collection.WithPageSize(cfg.PageSize),
			collection.WithDebounce(cfg.FilterDebounce),
			collection.WithObserver(m),
			collection.WithBaseContext(baseCtx),
		},
	})
	janitor := browse.NewJanitor(registry, janitorInterval(cfg.SessionIdleTTL))
	janitor.Start()

	browseHandler := browse.NewHandler(registry, cfg.AllowedOrigins)

	var savedHandler *savedsearch.Handler
	if db != nil {
		repo := savedsearch.NewRepository(db)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare saved_searches table")
		}
		cancel()
		savedHandler = savedsearch.NewHandler(repo, browseHandler)
	}

	r := newRouter(cfg, routerDeps{
		browse:       browseHandler,
		savedSearch:  savedHandler,
		jwt:          jwtService,
		metrics:      m.Handler(),
		sessionCount: registry.Len,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: session streams are long-lived websockets.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	janitor.Stop()
	registry.CloseAll()
	cancelBase()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

type routerDeps struct {
	browse       *browse.Handler
	savedSearch  *savedsearch.Handler
	jwt          *jwt.Service
	metrics      http.Handler
	sessionCount func() int
}

func newRouter(cfg *config.Config, deps routerDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(chimw.Compress(5, "application/json"))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]interface{}{
			"status":   "ok",
			"version":  "1.0.0",
			"sessions": deps.sessionCount(),
		})
	})
	r.Handle("/metrics", deps.metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OptionalTraveler(deps.jwt))

		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		var extra []func(chi.Router)
		if deps.savedSearch != nil {
			extra = append(extra, deps.savedSearch.Register)
		}
		r.Mount("/browse", deps.browse.Routes(extra...))
	})

	return r
}

// janitorInterval sweeps a few times per idle window.
func janitorInterval(idleTTL time.Duration) time.Duration {
	interval := idleTTL / 4
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	return interval
}
