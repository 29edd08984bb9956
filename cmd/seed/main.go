// Command seed 寫入示範資料
//
// 產生一批分散在過去一週、台北市周邊的內容，並為部分內容累積互動計數。
// 預設直接寫入 PostgreSQL 與 Redis；加上 -publish 時改為發送 NATS 事件，
// 由執行中的 server 消費。
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"

	"github.com/koopa0/system-design/14-engagement-feed/internal/config"
	"github.com/koopa0/system-design/14-engagement-feed/internal/counter"
	"github.com/koopa0/system-design/14-engagement-feed/internal/events"
	"github.com/koopa0/system-design/14-engagement-feed/internal/feed"
	"github.com/koopa0/system-design/14-engagement-feed/internal/graph"
	"github.com/koopa0/system-design/14-engagement-feed/internal/storage/migrations"
	"github.com/koopa0/system-design/14-engagement-feed/internal/storage/postgres"
	"github.com/koopa0/system-design/14-engagement-feed/pkg/logger"
	"github.com/koopa0/system-design/14-engagement-feed/pkg/snowflake"
)

// 台北 101
const (
	centerLat = 25.0340
	centerLon = 121.5645
)

var contentTypes = []string{"post", "photo", "video", "article"}

type options struct {
	configPath string
	contents   int
	authors    int
	viewers    int
	node       int64
	publish    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "config.yaml", "path to config file")
	flag.IntVar(&opts.contents, "contents", 200, "number of contents to create")
	flag.IntVar(&opts.authors, "authors", 20, "number of distinct authors")
	flag.IntVar(&opts.viewers, "viewers", 50, "number of viewers generating engagement")
	flag.Int64Var(&opts.node, "node", 1, "snowflake node id")
	flag.BoolVar(&opts.publish, "publish", false, "publish NATS events instead of writing stores directly")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

// seeder 寫入端，直接寫入或經由事件
type seeder interface {
	publish(ctx context.Context, row feed.ContentRow) error
	engage(ctx context.Context, viewerID, contentID int64, field counter.Field) error
}

func run(opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	node, err := snowflake.NewNode(opts.node)
	if err != nil {
		return err
	}

	var s seeder
	if opts.publish {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("engagement-seed"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer func() {
			if err := nc.Flush(); err != nil {
				log.Warn("nats flush failed", "error", err)
			}
			nc.Close()
		}()
		s = &eventSeeder{conn: nc}
	} else {
		m, err := migrations.New(cfg.PostgresDSN(), log)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		if err := m.Up(); err != nil {
			m.Close()
			return fmt.Errorf("run migrations: %w", err)
		}
		m.Close()

		pool, err := pgxpool.New(ctx, cfg.PostgresDSN())
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()

		s = &directSeeder{
			listings:   postgres.NewListingStore(pool),
			membership: postgres.NewMembershipStore(pool),
			cache:      counter.NewRedisCache(rdb, cfg.Counter.KeyPrefix, cfg.Counter.CacheTTL),
		}
	}

	now := time.Now().UTC()
	ids := make([]int64, 0, opts.contents)
	seen := make(map[int64]bool, opts.contents)
	for len(ids) < opts.contents {
		// 分散在過去 7 天；同一毫秒的 ID 相同，重抽
		createdAt := now.Add(-time.Duration(rand.Int64N(int64(7 * 24 * time.Hour)))).Truncate(time.Millisecond)
		id := node.At(createdAt)
		if seen[id] {
			continue
		}
		seen[id] = true

		row := feed.ContentRow{
			ID:         id,
			AuthorID:   int64(1 + rand.IntN(opts.authors)),
			CreatedAt:  createdAt,
			Type:       contentTypes[rand.IntN(len(contentTypes))],
			Visibility: feed.VisibilityPublic,
		}
		if rand.IntN(10) == 0 {
			row.Visibility = feed.VisibilityFollowers
		}
		if rand.IntN(3) > 0 {
			// 約 ±20 公里
			row.Location = &feed.GeoPoint{
				Lat: centerLat + (rand.Float64()-0.5)*0.36,
				Lon: centerLon + (rand.Float64()-0.5)*0.4,
			}
		}

		if err := s.publish(ctx, row); err != nil {
			return err
		}
		ids = append(ids, row.ID)
	}
	log.Info("contents seeded", "count", len(ids))

	// 互動：觀看者 ID 從 10000 起，與作者不重疊
	var engagements int
	for v := range opts.viewers {
		viewerID := int64(10000 + v)
		for _, id := range ids {
			if rand.IntN(4) != 0 {
				continue
			}
			fields := []counter.Field{counter.FieldView}
			if rand.IntN(3) == 0 {
				fields = append(fields, counter.FieldLike)
			}
			if rand.IntN(8) == 0 {
				fields = append(fields, counter.FieldComment)
			}
			if rand.IntN(12) == 0 {
				fields = append(fields, counter.FieldShare)
			}
			if rand.IntN(10) == 0 {
				fields = append(fields, counter.FieldCollect)
			}
			for _, f := range fields {
				if err := s.engage(ctx, viewerID, id, f); err != nil {
					return err
				}
				engagements++
			}
		}
	}
	log.Info("engagement seeded", "events", engagements, "viewers", opts.viewers)

	if cfg.Neo4j.URI != "" {
		if err := seedFollows(ctx, cfg, opts); err != nil {
			return err
		}
		log.Info("follow graph seeded", "viewers", opts.viewers)
	}
	return nil
}

// seedFollows 每位觀看者關注 3 到 8 位作者
func seedFollows(ctx context.Context, cfg *config.Config, opts options) error {
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URI, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Password, ""))
	if err != nil {
		return fmt.Errorf("create neo4j driver: %w", err)
	}
	defer driver.Close(ctx)

	g := graph.NewNeo4jGraph(driver)
	if err := g.EnsureSchema(ctx); err != nil {
		return err
	}
	for v := range opts.viewers {
		viewerID := int64(10000 + v)
		for _, author := range rand.Perm(opts.authors)[:min(opts.authors, 3+rand.IntN(6))] {
			if err := g.Follow(ctx, viewerID, int64(author+1)); err != nil {
				return err
			}
		}
	}
	return nil
}

type directSeeder struct {
	listings   *postgres.ListingStore
	membership *postgres.MembershipStore
	cache      *counter.RedisCache
}

func (s *directSeeder) publish(ctx context.Context, row feed.ContentRow) error {
	return s.listings.Upsert(ctx, row)
}

func (s *directSeeder) engage(ctx context.Context, viewerID, contentID int64, field counter.Field) error {
	changed := true
	var err error
	switch field {
	case counter.FieldLike:
		changed, err = s.membership.SetLiked(ctx, viewerID, contentID, true)
	case counter.FieldCollect:
		changed, err = s.membership.SetCollected(ctx, viewerID, contentID, true)
	}
	if err != nil || !changed {
		return err
	}
	_, err = s.cache.Increment(ctx, contentID, field, 1)
	return err
}

type eventSeeder struct {
	conn *nats.Conn
}

func (s *eventSeeder) publish(ctx context.Context, row feed.ContentRow) error {
	ev := events.PublishedEvent{
		ID:         row.ID,
		AuthorID:   row.AuthorID,
		Type:       row.Type,
		Visibility: string(row.Visibility),
		CreatedAt:  row.CreatedAt,
	}
	if row.Location != nil {
		ev.Lat, ev.Lon = &row.Location.Lat, &row.Location.Lon
	}
	return events.Publish(ctx, s.conn, events.SubjectPublished, ev)
}

func (s *eventSeeder) engage(ctx context.Context, viewerID, contentID int64, field counter.Field) error {
	delta := int64(1)
	return events.Publish(ctx, s.conn, events.SubjectCounter, events.CounterEvent{
		ContentID: contentID,
		ViewerID:  viewerID,
		Field:     string(field),
		Delta:     &delta,
	})
}
