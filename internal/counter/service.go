package counter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/koopa0/system-design/14-engagement-feed/internal/metrics"
	apperrors "github.com/koopa0/system-design/14-engagement-feed/pkg/errors"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Cache 計數快取
type Cache interface {
	Get(ctx context.Context, contentID int64) (Counters, bool, error)
	Warm(ctx context.Context, counters Counters) (bool, error)
	Increment(ctx context.Context, contentID int64, field Field, delta int64) (int64, error)
	Invalidate(ctx context.Context, contentID int64) error
}

// Store 持久層計數讀取
type Store interface {
	// Get 第二個回傳值為 false 代表資料庫中沒有這筆計數
	Get(ctx context.Context, contentID int64) (Counters, bool, error)
}

// ServiceConfig 計數服務配置
type ServiceConfig struct {
	StoreReadTimeout time.Duration // 回源讀取逾時，預設 200ms
}

type storeResult struct {
	counters Counters
	found    bool
}

// Service 計數服務
//
// 讀：快取命中直接回傳；未命中回源（短逾時 + 熔斷），成功才預熱快取，
// 失敗回傳全零計數。寫：只遞增快取，從不同步寫資料庫。
type Service struct {
	cache       Cache
	store       Store
	breaker     *gobreaker.CircuitBreaker[storeResult]
	readTimeout time.Duration
	logger      *slog.Logger
}

// NewService 建立計數服務
func NewService(cache Cache, store Store, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.StoreReadTimeout <= 0 {
		cfg.StoreReadTimeout = 200 * time.Millisecond
	}

	s := &Service{
		cache:       cache,
		store:       store,
		readTimeout: cfg.StoreReadTimeout,
		logger:      logger.With("component", "counter"),
	}

	const name = "counter-store"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	s.breaker = gobreaker.NewCircuitBreaker[storeResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 呼叫方取消不算資料庫故障
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return s
}

// Get 取得內容計數
//
// 對合法 ID 不會回傳錯誤：任何依賴失敗都退回全零計數。
func (s *Service) Get(ctx context.Context, contentID int64) (Counters, error) {
	if err := ValidateID(contentID); err != nil {
		return Counters{}, err
	}

	cached, hit, cacheErr := s.cache.Get(ctx, contentID)
	if cacheErr != nil {
		// 快取故障時仍回源，但不預熱
		s.logger.WarnContext(ctx, "counter cache read failed",
			"content_id", contentID,
			"error", cacheErr,
		)
		metrics.CounterStoreFallbacks.WithLabelValues("cache").Inc()
	} else if hit {
		metrics.CounterCacheHits.Inc()
		return cached, nil
	}
	metrics.CounterCacheMisses.Inc()

	res, err := s.readStore(ctx, contentID)
	if err != nil {
		reason := "store"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			reason = "breaker_open"
		}
		metrics.CounterStoreFallbacks.WithLabelValues(reason).Inc()
		s.logger.WarnContext(ctx, "counter store read failed, serving zero counters",
			"content_id", contentID,
			"reason", reason,
			"error", err,
		)
		return Zero(contentID), nil
	}

	counters := res.counters
	if !res.found {
		// 不存在的計數不寫入資料庫，只在快取中以零值出現
		counters = Zero(contentID)
	}
	counters.ContentID = contentID

	if cacheErr == nil {
		if _, err := s.cache.Warm(ctx, counters); err != nil {
			s.logger.WarnContext(ctx, "counter cache warm failed",
				"content_id", contentID,
				"error", err,
			)
		}
	}

	return counters, nil
}

func (s *Service) readStore(ctx context.Context, contentID int64) (storeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	return s.breaker.Execute(func() (storeResult, error) {
		counters, found, err := s.store.Get(ctx, contentID)
		if err != nil {
			return storeResult{}, err
		}
		return storeResult{counters: counters, found: found}, nil
	})
}

// Increment 遞增計數欄位並回傳快取中的新值
//
// delta 可為負數，結果最小為 0。快取不存在時從 0 開始，而非資料庫值。
func (s *Service) Increment(ctx context.Context, contentID int64, field Field, delta int64) (int64, error) {
	if err := ValidateID(contentID); err != nil {
		return 0, err
	}
	if !field.Valid() {
		_, err := ParseField(string(field))
		return 0, err
	}

	v, err := s.cache.Increment(ctx, contentID, field, delta)
	metrics.RecordIncrement(string(field), err)
	if err != nil {
		s.logger.ErrorContext(ctx, "counter increment failed",
			"content_id", contentID,
			"field", field,
			"delta", delta,
			"error", err,
		)
		return 0, apperrors.ErrCacheUnavailable.WithCause(err)
	}

	return v, nil
}

// Invalidate 內容下架時移除快取 entry
func (s *Service) Invalidate(ctx context.Context, contentID int64) error {
	if err := ValidateID(contentID); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, contentID); err != nil {
		return apperrors.ErrCacheUnavailable.WithCause(err)
	}
	s.logger.InfoContext(ctx, "counter cache invalidated", "content_id", contentID)
	return nil
}

// BreakerState 熔斷器目前狀態；狀態變化同時寫入 circuit breaker 指標
func (s *Service) BreakerState() gobreaker.State {
	return s.breaker.State()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
