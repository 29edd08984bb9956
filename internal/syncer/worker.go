// Package syncer 週期性地把快取中的計數刷回資料庫
//
// 寫後快取的回寫端：每個週期完整掃描一次存活的快取 entry，
// 以冪等的批次 upsert 寫入資料庫。失敗的批次不另外排隊，
// 快取值永遠不比資料庫舊，下一次完整掃描就是正確的重試。
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/koopa0/system-design/14-engagement-feed/internal/counter"
	"github.com/koopa0/system-design/14-engagement-feed/internal/metrics"
)

// Source 計數快取的掃描端
type Source interface {
	Scan(ctx context.Context, batchSize int, fn func([]counter.Entry) error) error
	MarkSynced(ctx context.Context, contentIDs []int64, at time.Time) error
}

// Sink 持久計數的寫入端
type Sink interface {
	BatchUpsert(ctx context.Context, batch []counter.Counters) error
}

// Config 同步配置
type Config struct {
	Interval     time.Duration // 預設 5 分鐘
	BatchSize    int           // 預設 500
	FlushTimeout time.Duration // 關閉時最後一次同步的逾時，預設 30 秒
}

// Stats 單次同步結果
type Stats struct {
	Synced        int           `json:"synced"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	FailedBatches int           `json:"failed_batches"`
	Duration      time.Duration `json:"duration"`
}

// Worker 同步 worker，實作 suture.Service
//
// 批次寫入是冪等的，定時同步與手動觸發重疊執行是安全的。
// Worker 從不刪除或過期快取 entry。
type Worker struct {
	source Source
	sink   Sink
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewWorker 建立同步 worker
func NewWorker(source Source, sink Sink, cfg Config, logger *slog.Logger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 30 * time.Second
	}

	return &Worker{
		source: source,
		sink:   sink,
		cfg:    cfg,
		logger: logger.With("component", "syncer"),
		now:    time.Now,
	}
}

// SyncOnce 執行一次完整同步
//
// 格式錯誤的 entry 略過並記錄；寫入失敗的批次記錄後繼續下一批。
// 只有掃描本身失敗才回傳錯誤。
func (w *Worker) SyncOnce(ctx context.Context) (Stats, error) {
	start := time.Now()
	syncedAt := w.now().UTC()

	var stats Stats
	err := w.source.Scan(ctx, w.cfg.BatchSize, func(entries []counter.Entry) error {
		batch := make([]counter.Counters, 0, len(entries))
		for _, e := range entries {
			if e.Err != nil {
				stats.Skipped++
				w.logger.WarnContext(ctx, "skipping malformed cache entry",
					"key", e.Key,
					"error", e.Err,
				)
				continue
			}
			c := e.Counters
			c.LastSyncedAt = &syncedAt
			batch = append(batch, c)
		}
		if len(batch) == 0 {
			return nil
		}

		if err := w.sink.BatchUpsert(ctx, batch); err != nil {
			stats.Failed += len(batch)
			stats.FailedBatches++
			w.logger.ErrorContext(ctx, "sync batch failed, will retry next pass",
				"batch_size", len(batch),
				"error", err,
			)
			// 取消時不再嘗試後續批次
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return nil
		}
		stats.Synced += len(batch)

		ids := make([]int64, len(batch))
		for i, c := range batch {
			ids[i] = c.ContentID
		}
		if err := w.source.MarkSynced(ctx, ids, syncedAt); err != nil {
			w.logger.WarnContext(ctx, "mark synced failed", "batch_size", len(ids), "error", err)
		}
		return nil
	})

	stats.Duration = time.Since(start)
	metrics.RecordSyncRun(stats.Duration, stats.Synced, stats.Skipped, stats.Failed, err)

	if err != nil {
		return stats, fmt.Errorf("scan cache: %w", err)
	}

	w.logger.InfoContext(ctx, "sync pass completed",
		"synced", stats.Synced,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", stats.Duration,
	)
	return stats, nil
}

// Serve 依固定間隔執行同步，直到 ctx 取消
//
// 關閉時以獨立的逾時 context 做最後一次同步，把尚未刷回的計數寫入資料庫。
func (w *Worker) Serve(ctx context.Context) error {
	w.logger.Info("sync worker started",
		"interval", w.cfg.Interval,
		"batch_size", w.cfg.BatchSize,
	)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush()
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("sync pass failed", "error", err)
			}
		}
	}
}

func (w *Worker) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushTimeout)
	defer cancel()

	if _, err := w.SyncOnce(ctx); err != nil {
		w.logger.Error("final sync failed", "error", err)
		return
	}
	w.logger.Info("sync worker stopped")
}

// String 實作 fmt.Stringer，供 supervisor 日誌使用
func (w *Worker) String() string {
	return "sync-worker"
}
