package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-engagement-feed/internal/counter"
	"github.com/koopa0/system-design/14-engagement-feed/internal/feed"
	"github.com/koopa0/system-design/14-engagement-feed/internal/storage/postgres"
	"github.com/koopa0/system-design/14-engagement-feed/internal/testutils"
)

func TestPostgresStores(t *testing.T) {
	env := testutils.SetupPostgres(t)
	ctx := context.Background()

	counters := postgres.NewCounterStore(env.PostgresPool)
	listings := postgres.NewListingStore(env.PostgresPool)
	membership := postgres.NewMembershipStore(env.PostgresPool)

	t.Run("missing counters are not created", func(t *testing.T) {
		env.TruncatePostgresTables(t)

		got, found, err := counters.Get(ctx, 404)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, counter.Zero(404), got)

		var n int
		require.NoError(t, env.PostgresPool.QueryRow(ctx, "SELECT COUNT(*) FROM content_counters").Scan(&n))
		assert.Zero(t, n)
	})

	t.Run("batch upsert is idempotent and updates contents", func(t *testing.T) {
		env.TruncatePostgresTables(t)

		require.NoError(t, listings.Upsert(ctx, feed.ContentRow{ID: 1, AuthorID: 10, Type: "post"}))

		synced := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
		batch := []counter.Counters{
			{ContentID: 1, ViewCount: 100, LikeCount: 10, CommentCount: 5, ShareCount: 2, CollectCount: 3, LastSyncedAt: &synced},
			{ContentID: 2, LikeCount: 1, LastSyncedAt: &synced},
		}

		require.NoError(t, counters.BatchUpsert(ctx, batch))
		first, _, err := counters.Get(ctx, 1)
		require.NoError(t, err)

		require.NoError(t, counters.BatchUpsert(ctx, batch))
		second, found, err := counters.Get(ctx, 1)
		require.NoError(t, err)
		require.True(t, found)

		assert.Equal(t, first, second)
		assert.Equal(t, int64(10), second.LikeCount)
		require.NotNil(t, second.LastSyncedAt)
		assert.True(t, second.LastSyncedAt.Equal(synced))

		rows, err := listings.QueryByRecency(ctx, time.Now().Add(-time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(10), rows[0].Counters.LikeCount)
		assert.Equal(t, int64(100), rows[0].Counters.ViewCount)
	})

	t.Run("duplicate ids in one batch keep the last snapshot", func(t *testing.T) {
		env.TruncatePostgresTables(t)

		require.NoError(t, counters.BatchUpsert(ctx, []counter.Counters{
			{ContentID: 5, LikeCount: 1},
			{ContentID: 5, LikeCount: 7},
		}))

		got, _, err := counters.Get(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.LikeCount)
	})

	t.Run("author set respects visibility and order", func(t *testing.T) {
		env.TruncatePostgresTables(t)

		base := time.Now().Add(-time.Hour).UTC()
		for i, v := range []feed.Visibility{feed.VisibilityPublic, feed.VisibilityFollowers, feed.VisibilityHidden, feed.VisibilityPublic} {
			require.NoError(t, listings.Upsert(ctx, feed.ContentRow{
				ID:         int64(i + 1),
				AuthorID:   10,
				Type:       "post",
				Visibility: v,
				CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			}))
		}
		require.NoError(t, listings.Upsert(ctx, feed.ContentRow{ID: 9, AuthorID: 99, Type: "post", CreatedAt: base}))

		rows, total, err := listings.QueryByAuthorSet(ctx, []int64{10}, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(4), rows[0].ID)
		assert.Equal(t, int64(2), rows[1].ID)

		rows, _, err = listings.QueryByAuthorSet(ctx, []int64{10}, 2, 2)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(1), rows[0].ID)
	})

	t.Run("recency window and hide", func(t *testing.T) {
		env.TruncatePostgresTables(t)

		now := time.Now().UTC()
		require.NoError(t, listings.Upsert(ctx, feed.ContentRow{ID: 1, AuthorID: 1, Type: "post", CreatedAt: now.Add(-10 * 24 * time.Hour)}))
		require.NoError(t, listings.Upsert(ctx, feed.ContentRow{ID: 2, AuthorID: 1, Type: "post", CreatedAt: now.Add(-time.Hour)}))
		require.NoError(t, listings.Upsert(ctx, feed.ContentRow{ID: 3, AuthorID: 1, Type: "post", CreatedAt: now.Add(-2 * time.Hour)}))

		rows, err := listings.QueryByRecency(ctx, now.Add(-7*24*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(2), rows[0].ID)

		require.NoError(t, listings.Hide(ctx, 2))
		rows, err = listings.QueryByRecency(ctx, now.Add(-7*24*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(3), rows[0].ID)
	})

	t.Run("radius query orders by distance", func(t *testing.T) {
		env.TruncatePostgresTables(t)

		// 台北 101 附近
		points := map[int64]feed.GeoPoint{
			1: {Lat: 25.0340, Lon: 121.5645}, // 0 km
			2: {Lat: 25.0478, Lon: 121.5170}, // 台北車站 約 5 km
			3: {Lat: 24.1477, Lon: 120.6736}, // 台中 約 130 km
		}
		for id, p := range points {
			require.NoError(t, listings.Upsert(ctx, feed.ContentRow{ID: id, AuthorID: 1, Type: "activity", Location: &p}))
		}
		require.NoError(t, listings.Upsert(ctx, feed.ContentRow{ID: 4, AuthorID: 1, Type: "post"}))

		rows, total, err := listings.QueryByRadius(ctx, 25.0340, 121.5645, 10, 1, 20)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(1), rows[0].ID)
		assert.Equal(t, int64(2), rows[1].ID)
		require.NotNil(t, rows[1].DistanceKm)
		assert.InDelta(t, 5.0, *rows[1].DistanceKm, 1.0)
		require.NotNil(t, rows[0].Location)
	})

	t.Run("membership", func(t *testing.T) {
		env.TruncatePostgresTables(t)

		changed, err := membership.SetLiked(ctx, 7, 1, true)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = membership.SetLiked(ctx, 7, 1, true)
		require.NoError(t, err)
		assert.False(t, changed)

		liked, err := membership.HasLiked(ctx, 7, 1)
		require.NoError(t, err)
		assert.True(t, liked)

		collected, err := membership.HasCollected(ctx, 7, 1)
		require.NoError(t, err)
		assert.False(t, collected)

		changed, err = membership.SetLiked(ctx, 7, 1, false)
		require.NoError(t, err)
		assert.True(t, changed)
	})
}
