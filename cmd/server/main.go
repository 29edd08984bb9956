// Command server 啟動互動計數與 feed 服務
//
// 啟動順序：配置 → 日誌 → 追蹤 → 資料庫遷移 → Redis/PostgreSQL/Neo4j/NATS
// → 監督樹（HTTP、同步 worker、事件消費者）。收到 SIGINT/SIGTERM 後
// 監督樹依序關閉服務，同步 worker 會做最後一次回寫。
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/koopa0/system-design/14-engagement-feed/internal/config"
	"github.com/koopa0/system-design/14-engagement-feed/internal/counter"
	"github.com/koopa0/system-design/14-engagement-feed/internal/events"
	"github.com/koopa0/system-design/14-engagement-feed/internal/feed"
	"github.com/koopa0/system-design/14-engagement-feed/internal/graph"
	"github.com/koopa0/system-design/14-engagement-feed/internal/handler"
	"github.com/koopa0/system-design/14-engagement-feed/internal/storage/migrations"
	"github.com/koopa0/system-design/14-engagement-feed/internal/storage/postgres"
	"github.com/koopa0/system-design/14-engagement-feed/internal/supervisor"
	"github.com/koopa0/system-design/14-engagement-feed/internal/syncer"
	"github.com/koopa0/system-design/14-engagement-feed/pkg/logger"
	"github.com/koopa0/system-design/14-engagement-feed/pkg/tracing"
)

const serviceName = "engagement-feed"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 追蹤
	if cfg.Tracing.Enabled {
		tp, err := tracing.Init(ctx, serviceName, cfg.Env, cfg.Tracing.Endpoint)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Error("tracer shutdown failed", "error", err)
			}
		}()
	}

	// 資料庫遷移
	if err := migrate(cfg.PostgresDSN(), log); err != nil {
		return err
	}

	// PostgreSQL
	pool, err := newPostgresPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Redis
	rdb, err := newRedisClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// Neo4j（未設定時 follow 分頁一律為空）
	var socialGraph feed.SocialGraph = graph.Empty{}
	checks := map[string]handler.Checker{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	if cfg.Neo4j.URI != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URI, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Password, ""))
		if err != nil {
			return fmt.Errorf("create neo4j driver: %w", err)
		}
		defer driver.Close(context.Background())

		g := graph.NewNeo4jGraph(driver)
		if err := g.EnsureSchema(ctx); err != nil {
			log.Warn("neo4j schema setup failed, follow feed may be slow", "error", err)
		}
		socialGraph = g
		checks["neo4j"] = g.Ping
	} else {
		log.Warn("neo4j not configured, follow feed disabled")
	}

	// 組裝
	cache := counter.NewRedisCache(rdb, cfg.Counter.KeyPrefix, cfg.Counter.CacheTTL)
	counterStore := postgres.NewCounterStore(pool)
	listings := postgres.NewListingStore(pool)
	membership := postgres.NewMembershipStore(pool)

	counters := counter.NewService(cache, counterStore, counter.ServiceConfig{
		StoreReadTimeout: cfg.Counter.StoreReadTimeout,
	}, log)

	retriever := feed.NewRetriever(listings, socialGraph, membership, feed.Config{
		HotWindow:       cfg.Feed.HotWindow,
		MaxCandidates:   cfg.Feed.MaxCandidates,
		DefaultPageSize: cfg.Feed.DefaultPageSize,
		MaxPageSize:     cfg.Feed.MaxPageSize,
		DefaultRadiusKm: cfg.Feed.DefaultRadiusKm,
		MaxRadiusKm:     cfg.Feed.MaxRadiusKm,
	}, log)

	worker := syncer.NewWorker(cache, counterStore, syncer.Config{
		Interval:     cfg.Sync.Interval,
		BatchSize:    cfg.Sync.BatchSize,
		FlushTimeout: cfg.Sync.FlushTimeout,
	}, log)

	h := handler.New(counters, retriever, worker, checks, log)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// 監督樹
	tree := supervisor.NewTree(log, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddAPI(supervisor.NewHTTPService(srv, cfg.Server.ShutdownTimeout))
	tree.AddBackground(worker)

	// NATS（可選）
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(serviceName),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Warn("nats disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				log.Info("nats reconnected", "url", c.ConnectedUrl())
			}),
		)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()

		checks["nats"] = func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats status %s", nc.Status())
			}
			return nil
		}

		eventHandler := events.NewHandler(counters, listings, membership, log)
		tree.AddBackground(events.NewConsumer(nc, cfg.NATS.QueueGroup, eventHandler, log))
	} else {
		log.Warn("nats not configured, event ingestion disabled")
	}

	log.Info("starting server",
		"port", cfg.Server.Port,
		"env", cfg.Env,
		"sync_interval", cfg.Sync.Interval,
	)

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			log.Error("service did not stop in time", "service", svc.Name)
		}
	}

	log.Info("server stopped")
	return nil
}

func migrate(dsn string, log *slog.Logger) error {
	m, err := migrations.New(dsn, log)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func newPostgresPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pgConfig, err := pgxpool.ParseConfig(cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pgConfig.MaxConns = cfg.Postgres.MaxConns
	pgConfig.MinConns = cfg.Postgres.MinConns
	pgConfig.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func newRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("instrument redis: %w", err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
