package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/duetkeys/duet/internal/archive"
	"github.com/duetkeys/duet/internal/chat"
	"github.com/duetkeys/duet/internal/corpus"
	"github.com/duetkeys/duet/internal/gateway"
	"github.com/duetkeys/duet/internal/presence"
	"github.com/duetkeys/duet/internal/realtime"
	"github.com/duetkeys/duet/internal/realtime/memkv"
	"github.com/duetkeys/duet/internal/realtime/natskv"
	"github.com/duetkeys/duet/internal/session"
)

// Services holds the wired application.
type Services struct {
	Store   realtime.Store
	Corpus  *corpus.Corpus
	Chat    *chat.App
	Archive *archive.App
	Manager *gateway.Manager
	API     *gateway.API

	db *pgxpool.Pool
}

// natsFeed adapts *nats.Conn to the gateway's chat feed.
type natsFeed struct {
	nc *nats.Conn
}

func (f *natsFeed) Subscribe(subject string, handler func(data []byte)) (func() error, error) {
	sub, err := f.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

// setupRealtime picks the replicated store: JetStream KV when NATS_URL is
// set, otherwise the in-process store for single-node use.
func setupRealtime(ctx context.Context) (realtime.Store, *nats.Conn, error) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		log.Info().Msg("NATS_URL not set, using in-process realtime store")
		return memkv.New(), nil, nil
	}

	cfg := natskv.DefaultConfig()
	cfg.URL = url
	cfg.Bucket = getEnv("NATS_BUCKET", cfg.Bucket)

	store, err := natskv.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect realtime store: %w", err)
	}
	return store, store.Conn(), nil
}

func setupRedis(ctx context.Context) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("redis unreachable, archive cache disabled")
		return nil
	}
	log.Info().Str("addr", addr).Msg("connected to redis")
	return client
}

func setupServices(ctx context.Context, config *Config) (*Services, error) {
	c, err := corpus.Load(getEnv("CORPUS_DIR", config.Corpus.Dir))
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}

	store, nc, err := setupRealtime(ctx)
	if err != nil {
		return nil, err
	}

	// Chat persistence is optional.
	var chatApp *chat.App
	var db *pgxpool.Pool
	if os.Getenv("DB_DISABLED") == "" {
		db, err = setupDatabase(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, chat disabled")
		} else {
			var pub chat.Publisher
			if nc != nil {
				pub = nc
			}
			chatApp = chat.NewApp(chat.NewRepository(db), pub)
		}
	}

	var cache archive.ResultCache
	if client := setupRedis(ctx); client != nil {
		cache = archive.NewRedisCache(client)
	}
	archiveApp := archive.NewApp(c, cache)

	var feed gateway.ChatFeed
	if nc != nil {
		feed = &natsFeed{nc: nc}
	}

	gwCfg := gateway.DefaultConfig()
	gwCfg.Presence = presence.Config{
		Liveness:        config.presenceLiveness(),
		PublishInterval: config.publishInterval(),
	}
	gwCfg.Session = session.Config{Window: config.adoptWindow()}

	manager := gateway.NewManager(store, clockwork.NewRealClock(), chatApp, feed, gwCfg)

	return &Services{
		Store:   store,
		Corpus:  c,
		Chat:    chatApp,
		Archive: archiveApp,
		Manager: manager,
		API:     gateway.NewAPI(manager, chatApp, archiveApp, c),
		db:      db,
	}, nil
}

// Close releases external connections.
func (s *Services) Close() {
	if err := s.Store.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close realtime store")
	}
	if s.db != nil {
		s.db.Close()
	}
}
