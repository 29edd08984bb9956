// Package postgres 實現 PostgreSQL 存取層：持久計數、內容列表、成員關係
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/system-design/14-engagement-feed/internal/counter"
)

// CounterStore 持久計數存儲
//
// 系統設計考量：
//
//  1. 冪等寫入：
//     - BatchUpsert 寫入的是快取中的完整快照而非增量
//     - 同一批重放兩次的結果與一次相同，重疊的同步不需要分散式鎖
//
//  2. 單一計數路徑：
//     - contents 表上的計數欄位在同一個交易中更新
//     - 除了同步 worker 之外沒有其他程式寫入這些欄位
//
//  3. 批次：
//     - 以 unnest 陣列一次送出整批，避免逐筆往返
type CounterStore struct {
	pool *pgxpool.Pool
}

// NewCounterStore 建立持久計數存儲
func NewCounterStore(pool *pgxpool.Pool) *CounterStore {
	return &CounterStore{pool: pool}
}

// Get 讀取持久計數，不存在時第二個回傳值為 false
func (s *CounterStore) Get(ctx context.Context, contentID int64) (counter.Counters, bool, error) {
	query := `
		SELECT content_id, view_count, like_count, comment_count, share_count, collect_count, last_synced_at
		FROM content_counters
		WHERE content_id = $1
	`

	var c counter.Counters
	err := s.pool.QueryRow(ctx, query, contentID).Scan(
		&c.ContentID,
		&c.ViewCount,
		&c.LikeCount,
		&c.CommentCount,
		&c.ShareCount,
		&c.CollectCount,
		&c.LastSyncedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return counter.Zero(contentID), false, nil
		}
		return counter.Counters{}, false, fmt.Errorf("select content_counters: %w", err)
	}

	return c, true, nil
}

const upsertCountersSQL = `
	INSERT INTO content_counters (
		content_id, view_count, like_count, comment_count, share_count, collect_count, last_synced_at, updated_at
	)
	SELECT u.id, u.views, u.likes, u.comments, u.shares, u.collects, u.synced_at, NOW()
	FROM unnest($1::bigint[], $2::bigint[], $3::bigint[], $4::bigint[], $5::bigint[], $6::bigint[], $7::timestamptz[])
		AS u(id, views, likes, comments, shares, collects, synced_at)
	ON CONFLICT (content_id) DO UPDATE SET
		view_count     = EXCLUDED.view_count,
		like_count     = EXCLUDED.like_count,
		comment_count  = EXCLUDED.comment_count,
		share_count    = EXCLUDED.share_count,
		collect_count  = EXCLUDED.collect_count,
		last_synced_at = EXCLUDED.last_synced_at,
		updated_at     = NOW()
`

const updateContentsSQL = `
	UPDATE contents AS c SET
		view_count    = u.views,
		like_count    = u.likes,
		comment_count = u.comments,
		share_count   = u.shares,
		collect_count = u.collects,
		updated_at    = NOW()
	FROM unnest($1::bigint[], $2::bigint[], $3::bigint[], $4::bigint[], $5::bigint[], $6::bigint[])
		AS u(id, views, likes, comments, shares, collects)
	WHERE c.id = u.id
`

// BatchUpsert 以快照覆寫一批計數，並同步 contents 上的反正規化欄位
//
// 同一批內重複的 content_id 以最後一筆為準。
func (s *CounterStore) BatchUpsert(ctx context.Context, batch []counter.Counters) error {
	if len(batch) == 0 {
		return nil
	}

	batch = dedupe(batch)

	var (
		n        = len(batch)
		ids      = make([]int64, n)
		views    = make([]int64, n)
		likes    = make([]int64, n)
		comments = make([]int64, n)
		shares   = make([]int64, n)
		collects = make([]int64, n)
		synced   = make([]time.Time, n)
		now      = time.Now().UTC()
	)
	for i, c := range batch {
		ids[i] = c.ContentID
		views[i] = c.ViewCount
		likes[i] = c.LikeCount
		comments[i] = c.CommentCount
		shares[i] = c.ShareCount
		collects[i] = c.CollectCount
		synced[i] = now
		if c.LastSyncedAt != nil {
			synced[i] = *c.LastSyncedAt
		}
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertCountersSQL, ids, views, likes, comments, shares, collects, synced); err != nil {
			return fmt.Errorf("upsert content_counters: %w", err)
		}
		if _, err := tx.Exec(ctx, updateContentsSQL, ids, views, likes, comments, shares, collects); err != nil {
			return fmt.Errorf("update contents counters: %w", err)
		}
		return nil
	})
}

// dedupe 移除重複 ID，保留最後出現的快照並維持原順序
func dedupe(batch []counter.Counters) []counter.Counters {
	last := make(map[int64]int, len(batch))
	for i, c := range batch {
		last[c.ContentID] = i
	}
	if len(last) == len(batch) {
		return batch
	}

	out := make([]counter.Counters, 0, len(last))
	for i, c := range batch {
		if last[c.ContentID] == i {
			out = append(out, c)
		}
	}
	return out
}
