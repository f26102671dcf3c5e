package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quiz-nexus-service/internal/app"
	"quiz-nexus-service/internal/config"
	"quiz-nexus-service/internal/infra/memory"
	"quiz-nexus-service/internal/infra/postgres"
	infraredis "quiz-nexus-service/internal/infra/redis"
	"quiz-nexus-service/internal/seed"
)

// backend is the set of storage collaborators selected by the config.
type backend struct {
	name     string
	store    app.Store
	cache    app.QuizRepository
	attempts app.AttemptStore
	// listen runs the store's change listener, when it has one.
	listen func(ctx context.Context) error
	close  []func()
}

func (b *backend) Close() {
	for i := len(b.close) - 1; i >= 0; i-- {
		b.close[i]()
	}
}

// openBackend picks Postgres when postgres.url is set and the seeded in-memory store
// otherwise; Redis, when configured, holds attempt progress and the quiz cache.
func openBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (*backend, error) {
	b := &backend{}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := postgres.NewStore(pool, log.Named("postgres"))
		b.name = "postgres"
		b.store = store
		b.listen = store.Listen
		b.close = append(b.close, pool.Close, store.Close)
	} else {
		store := memory.NewStore()
		if cfg.Quiz.Seed {
			store.Seed(seed.DemoQuizzes("system")...)
		}
		b.name = "memory"
		b.store = store
		b.close = append(b.close, store.Close)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			// Attempts fall back to memory-only mode on their own; keep serving.
			log.Warn("redis unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		stateTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)
		b.attempts = infraredis.NewAttemptStore(client, stateTTL)
		b.cache = infraredis.NewQuizRepository(client, b.store, quizTTL, log.Named("quiz_cache"))
		b.close = append(b.close, func() { _ = client.Close() })
	} else {
		b.attempts = memory.NewAttemptStore()
		b.cache = memory.NewQuizRepository(b.store, quizTTL)
	}
	return b, nil
}

// openPostgres connects the Postgres store for one-off commands.
func openPostgres(ctx context.Context, cfg config.Config, log *zap.Logger) (*postgres.Store, func(), error) {
	if cfg.Postgres.URL == "" {
		return nil, nil, fmt.Errorf("postgres url not configured")
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := postgres.NewStore(pool, log)
	return store, func() {
		store.Close()
		pool.Close()
	}, nil
}
