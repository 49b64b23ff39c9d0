package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/wanderhost/browse-api/internal/collection"
	"github.com/wanderhost/browse-api/internal/config"
	"github.com/wanderhost/browse-api/internal/domain/activity"
	"github.com/wanderhost/browse-api/internal/pkg/activityclient"
	"github.com/wanderhost/browse-api/internal/pkg/database"
	"github.com/wanderhost/browse-api/internal/pkg/logger"
	"github.com/wanderhost/browse-api/internal/pkg/pagecache"
)

// pageRefresher is the part of the page cache the warmer drives.
type pageRefresher interface {
	Refresh(ctx context.Context, filters collection.FilterSet, page, pageSize int) (*collection.Page[activity.Activity], error)
	Invalidate(ctx context.Context) (int64, error)
}

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	})

	log.Info().Int("pages", cfg.WarmPages).Dur("interval", cfg.WarmInterval).Msg("Starting cache-warmer")

	if !cfg.WarmerEnabled() {
		log.Warn().Msg("Cache warmer disabled (WARMER_ENABLED=false or no REDIS_URL)")
		return
	}

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	client := activityclient.NewClient(activityclient.Config{
		BaseURL:   cfg.ActivitiesBaseURL,
		Token:     cfg.ActivitiesToken,
		Timeout:   cfg.ActivitiesTimeout(),
		UserAgent: cfg.UserAgent,
	})
	cache := pagecache.New[activity.Activity](client, rdb, pagecache.WithTTL(cfg.PageCacheTTL))

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), &log.Logger))
	defer cancel()

	// Invalidation requests trigger a drop and an immediate re-warm
	invalidate := make(chan struct{}, 1)
	go subscribeInvalidations(ctx, rdb, invalidate)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	run(ctx, cache, cfg.WarmPages, cfg.PageSize, cfg.WarmInterval, invalidate)
	log.Info().Msg("cache-warmer stopped")
}

// run warms on start, on every tick and after every invalidation until ctx ends.
func run(ctx context.Context, cache pageRefresher, pages, pageSize int, interval time.Duration, invalidate <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	warm(ctx, cache, pages, pageSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-invalidate:
			n, err := cache.Invalidate(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Failed to invalidate page cache")
			} else {
				log.Info().Int64("keys", n).Msg("Page cache invalidated")
			}
		case <-ticker.C:
		}

		warm(ctx, cache, pages, pageSize)
	}
}

// warm refreshes the first pages of the unfiltered listing, stopping early
// when the listing has fewer pages or the backend fails.
func warm(ctx context.Context, cache pageRefresher, pages, pageSize int) int {
	start := time.Now()
	warmed := 0
	for page := 1; page <= pages; page++ {
		if ctx.Err() != nil {
			return warmed
		}
		res, err := cache.Refresh(ctx, collection.FilterSet{}, page, pageSize)
		if err != nil {
			log.Warn().Err(err).Int("page", page).Msg("Failed to warm page")
			return warmed
		}
		warmed++
		if page >= res.TotalPages {
			break
		}
	}

	log.Debug().Int("pages", warmed).Dur("duration", time.Since(start)).Msg("Page cache warmed")
	return warmed
}

func subscribeInvalidations(ctx context.Context, rdb *redis.Client, invalidate chan<- struct{}) {
	sub := rdb.Subscribe(ctx, pagecache.InvalidateChannel)
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Channel():
			// non-blocking: one pending invalidation is enough
			select {
			case invalidate <- struct{}{}:
			default:
			}
		}
	}
}
