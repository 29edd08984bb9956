package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// 快取 hash 內的欄位名稱
const syncedAtField = "synced_at"

// incrementScript 原子地遞增欄位、歸零負值並刷新 TTL
//
// KEYS[1] = hash key
// ARGV[1] = field, ARGV[2] = delta, ARGV[3] = ttl (ms)
var incrementScript = redis.NewScript(`
	local v = redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
	if v < 0 then
		redis.call('HSET', KEYS[1], ARGV[1], 0)
		v = 0
	end
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
	return v
`)

// warmScript 僅在 key 不存在時寫入完整快照
//
// 回源期間若已有遞增建立了 entry，保留該 entry 不覆蓋。
// ARGV[1..5] = view like comment share collect, ARGV[6] = ttl (ms), ARGV[7] = synced_at
var warmScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 0
	end
	redis.call('HSET', KEYS[1], 'view', ARGV[1], 'like', ARGV[2], 'comment', ARGV[3], 'share', ARGV[4], 'collect', ARGV[5])
	if ARGV[7] ~= '' then
		redis.call('HSET', KEYS[1], 'synced_at', ARGV[7])
	end
	redis.call('PEXPIRE', KEYS[1], ARGV[6])
	return 1
`)

// markSyncedScript 只更新仍存在的 entry，不會重建已過期的 key
var markSyncedScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return 0
	end
	redis.call('HSET', KEYS[1], 'synced_at', ARGV[1])
	return 1
`)

// RedisCache 以 Redis hash 保存每個內容的計數
//
// Key 格式：{prefix}{contentID}，例如 content:counters:42
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache 建立計數快取，ttl 預設 24 小時
//
// ttl 必須為正：PEXPIRE 0 會直接刪除 key。
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Key 內容對應的快取 key
func (c *RedisCache) Key(contentID int64) string {
	return c.prefix + strconv.FormatInt(contentID, 10)
}

// Get 讀取快取快照
//
// 第二個回傳值表示是否命中。
func (c *RedisCache) Get(ctx context.Context, contentID int64) (Counters, bool, error) {
	fields, err := c.client.HGetAll(ctx, c.Key(contentID)).Result()
	if err != nil {
		return Counters{}, false, fmt.Errorf("hgetall: %w", err)
	}
	if len(fields) == 0 {
		return Counters{}, false, nil
	}

	counters, err := parseFields(contentID, fields)
	if err != nil {
		return Counters{}, false, err
	}
	return counters, true, nil
}

// Warm 以持久層快照預熱快取（僅在 key 不存在時）
//
// 回傳是否實際寫入。
func (c *RedisCache) Warm(ctx context.Context, counters Counters) (bool, error) {
	syncedAt := ""
	if counters.LastSyncedAt != nil {
		syncedAt = strconv.FormatInt(counters.LastSyncedAt.UnixMilli(), 10)
	}

	written, err := warmScript.Run(ctx, c.client, []string{c.Key(counters.ContentID)},
		counters.ViewCount,
		counters.LikeCount,
		counters.CommentCount,
		counters.ShareCount,
		counters.CollectCount,
		c.ttl.Milliseconds(),
		syncedAt,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("warm script: %w", err)
	}
	return written == 1, nil
}

// Increment 原子遞增並回傳新值（最小為 0）
func (c *RedisCache) Increment(ctx context.Context, contentID int64, field Field, delta int64) (int64, error) {
	v, err := incrementScript.Run(ctx, c.client, []string{c.Key(contentID)},
		string(field), delta, c.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment script: %w", err)
	}
	return v, nil
}

// Invalidate 刪除快取 entry
func (c *RedisCache) Invalidate(ctx context.Context, contentID int64) error {
	if err := c.client.Del(ctx, c.Key(contentID)).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// Scan 逐批列舉所有存活的 entry
//
// 每批最多 batchSize 個 key，以 pipeline 一次 HGETALL。
// 掃描與讀取之間過期的 key 直接略過；格式錯誤的 entry 以 Entry.Err 回報。
// fn 回傳錯誤時停止掃描並回傳該錯誤。
func (c *RedisCache) Scan(ctx context.Context, batchSize int, fn func([]Entry) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}

	var (
		cursor uint64
		keys   = make([]string, 0, batchSize)
	)

	for {
		page, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", int64(batchSize)).Result()
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		keys = append(keys, page...)

		for len(keys) >= batchSize {
			if err := c.emit(ctx, keys[:batchSize], fn); err != nil {
				return err
			}
			keys = append(keys[:0], keys[batchSize:]...)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(keys) > 0 {
		return c.emit(ctx, keys, fn)
	}
	return nil
}

func (c *RedisCache) emit(ctx context.Context, keys []string, fn func([]Entry) error) error {
	pipe := c.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("pipeline hgetall: %w", err)
	}

	entries := make([]Entry, 0, len(keys))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}

		entry := Entry{Key: keys[i]}
		id, err := strconv.ParseInt(strings.TrimPrefix(keys[i], c.prefix), 10, 64)
		if err != nil || id <= 0 {
			entry.Err = fmt.Errorf("malformed key %q", keys[i])
			entries = append(entries, entry)
			continue
		}
		entry.Counters, entry.Err = parseFields(id, fields)
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil
	}
	return fn(entries)
}

// MarkSynced 為仍存在的 entry 記錄同步時間
func (c *RedisCache) MarkSynced(ctx context.Context, contentIDs []int64, at time.Time) error {
	if len(contentIDs) == 0 {
		return nil
	}

	ms := strconv.FormatInt(at.UnixMilli(), 10)
	pipe := c.client.Pipeline()
	for _, id := range contentIDs {
		markSyncedScript.Eval(ctx, pipe, []string{c.Key(id)}, ms)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// parseFields 將 hash 欄位轉為 Counters
//
// 缺少的計數欄位視為 0；非整數或負數視為格式錯誤。
func parseFields(contentID int64, fields map[string]string) (Counters, error) {
	counters := Zero(contentID)

	for name, raw := range fields {
		if name == syncedAtField {
			ms, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return Counters{}, fmt.Errorf("content %d: malformed %s %q", contentID, name, raw)
			}
			t := time.UnixMilli(ms).UTC()
			counters.LastSyncedAt = &t
			continue
		}

		f := Field(name)
		if !f.Valid() {
			return Counters{}, fmt.Errorf("content %d: unknown field %q", contentID, name)
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return Counters{}, fmt.Errorf("content %d: malformed %s %q", contentID, name, raw)
		}
		counters.Set(f, v)
	}

	return counters, nil
}
