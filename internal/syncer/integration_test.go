package syncer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-engagement-feed/internal/counter"
	"github.com/koopa0/system-design/14-engagement-feed/internal/feed"
	"github.com/koopa0/system-design/14-engagement-feed/internal/storage/postgres"
	"github.com/koopa0/system-design/14-engagement-feed/internal/syncer"
	"github.com/koopa0/system-design/14-engagement-feed/internal/testutils"
)

// 寫後快取的完整路徑：遞增只寫 Redis，同步 worker 回寫 PostgreSQL，
// 快取失效後讀取回源並預熱。
func TestWriteBehind_EndToEnd(t *testing.T) {
	env := testutils.SetupTestEnvironment(t)
	ctx := context.Background()

	cache := counter.NewRedisCache(env.RedisClient, "content:counters:", time.Hour)
	store := postgres.NewCounterStore(env.PostgresPool)
	listings := postgres.NewListingStore(env.PostgresPool)
	svc := counter.NewService(cache, store, counter.ServiceConfig{StoreReadTimeout: time.Second}, env.Logger)
	worker := syncer.NewWorker(cache, store, syncer.Config{BatchSize: 2}, env.Logger)

	const contentID = int64(1001)
	require.NoError(t, listings.Upsert(ctx, feed.ContentRow{
		ID: contentID, AuthorID: 1, Type: "post", CreatedAt: time.Now().Add(-time.Hour),
	}))

	// 並發遞增
	testutils.RunConcurrently(t, 10, 20, func(_, _ int) {
		_, err := svc.Increment(ctx, contentID, counter.FieldLike, 1)
		assert.NoError(t, err)
	})
	_, err := svc.Increment(ctx, contentID, counter.FieldShare, 3)
	require.NoError(t, err)

	// 尚未同步：資料庫沒有這筆
	_, found, err := store.Get(ctx, contentID)
	require.NoError(t, err)
	assert.False(t, found)

	stats, err := worker.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Synced)

	persisted, found, err := store.Get(ctx, contentID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(200), persisted.LikeCount)
	assert.Equal(t, int64(3), persisted.ShareCount)
	require.NotNil(t, persisted.LastSyncedAt)

	// contents 上的反正規化計數同步更新
	rows, err := listings.QueryByRecency(ctx, time.Now().Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(200), rows[0].Counters.LikeCount)

	// 快取記錄了同步時間
	cached, hit, err := cache.Get(ctx, contentID)
	require.NoError(t, err)
	require.True(t, hit)
	require.NotNil(t, cached.LastSyncedAt)

	// 失效後讀取回源並預熱
	require.NoError(t, svc.Invalidate(ctx, contentID))
	got, err := svc.Get(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.LikeCount)

	_, hit, err = cache.Get(ctx, contentID)
	require.NoError(t, err)
	assert.True(t, hit, "miss should warm the cache")
}

func TestWorker_ServeSyncsPeriodically(t *testing.T) {
	env := testutils.SetupTestEnvironment(t)
	ctx := context.Background()

	cache := counter.NewRedisCache(env.RedisClient, "content:counters:", time.Hour)
	store := postgres.NewCounterStore(env.PostgresPool)
	worker := syncer.NewWorker(cache, store, syncer.Config{Interval: 50 * time.Millisecond}, env.Logger)

	for id := int64(1); id <= 5; id++ {
		_, err := cache.Increment(ctx, id, counter.FieldView, id*10)
		require.NoError(t, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- worker.Serve(runCtx) }()

	testutils.WaitForCondition(t, func() bool {
		c, found, err := store.Get(ctx, 5)
		return err == nil && found && c.ViewCount == 50
	}, 5*time.Second, "periodic sync should persist counters")

	// 關閉前的遞增由最後一次回寫帶走
	_, err := cache.Increment(ctx, 5, counter.FieldView, 1)
	require.NoError(t, err)
	cancel()
	<-done

	c, found, err := store.Get(ctx, 5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(51), c.ViewCount)
}
