package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/koopa0/system-design/14-engagement-feed/internal/metrics"
	"github.com/koopa0/system-design/14-engagement-feed/internal/ranking"
	apperrors "github.com/koopa0/system-design/14-engagement-feed/pkg/errors"
)

// 每處理多少個候選檢查一次取消
const cancelCheckEvery = 256

// 成員查詢的並發上限
const membershipConcurrency = 8

// Config feed 配置
type Config struct {
	HotWindow       time.Duration
	MaxCandidates   int
	DefaultPageSize int
	MaxPageSize     int
	DefaultRadiusKm float64
	MaxRadiusKm     float64
}

func (c *Config) setDefaults() {
	if c.HotWindow <= 0 {
		c.HotWindow = 7 * 24 * time.Hour
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 5000
	}
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = 20
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = 100
	}
	if c.DefaultRadiusKm <= 0 {
		c.DefaultRadiusKm = 10
	}
	if c.MaxRadiusKm <= 0 {
		c.MaxRadiusKm = 100
	}
}

// Retriever 無狀態的 feed 組裝器，可並發使用
type Retriever struct {
	listings   ListingStore
	graph      SocialGraph
	membership Membership
	cfg        Config
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewRetriever 建立 feed 組裝器
func NewRetriever(listings ListingStore, graph SocialGraph, membership Membership, cfg Config, logger *slog.Logger) *Retriever {
	cfg.setDefaults()
	return &Retriever{
		listings:   listings,
		graph:      graph,
		membership: membership,
		cfg:        cfg,
		logger:     logger.With("component", "feed"),
		tracer:     otel.Tracer("engagement-feed/feed"),
		now:        time.Now,
	}
}

// Feed 依分頁類型組裝一頁 feed
func (r *Retriever) Feed(ctx context.Context, req Request) (page *Page, err error) {
	start := time.Now()
	label := string(req.Tab)
	if _, perr := ParseTab(label); perr != nil {
		label = "unknown"
	}
	defer func() {
		metrics.RecordFeed(label, time.Since(start), err)
	}()

	if err := r.normalize(&req); err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "feed."+string(req.Tab), trace.WithAttributes(
		attribute.String("feed.tab", string(req.Tab)),
		attribute.Int("feed.page", req.Page),
		attribute.Int("feed.page_size", req.PageSize),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	switch req.Tab {
	case TabFollow:
		page, err = r.follow(ctx, req)
	case TabHot:
		page, err = r.hot(ctx, req)
	case TabLocal:
		page, err = r.local(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	r.attachFlags(ctx, req.ViewerID, page.Items)
	span.SetAttributes(attribute.Int("feed.items", len(page.Items)), attribute.Int("feed.total", page.Total))

	return page, nil
}

func (r *Retriever) normalize(req *Request) error {
	if _, err := ParseTab(string(req.Tab)); err != nil {
		return err
	}
	if req.Page < 0 || req.PageSize < 0 {
		return apperrors.Invalid("page and page_size must not be negative")
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = r.cfg.DefaultPageSize
	}
	req.PageSize = min(req.PageSize, r.cfg.MaxPageSize)
	// page*pageSize 必須能以 int 表示
	if req.Page > math.MaxInt/req.PageSize {
		return apperrors.Invalid("page %d out of range", req.Page)
	}

	if req.Tab == TabLocal {
		if req.Lat == nil || req.Lon == nil {
			return apperrors.ErrMissingLocation
		}
		if *req.Lat < -90 || *req.Lat > 90 || *req.Lon < -180 || *req.Lon > 180 {
			return apperrors.Invalid("coordinates out of range: lat=%g lon=%g", *req.Lat, *req.Lon)
		}
		if req.RadiusKm < 0 {
			return apperrors.Invalid("radius_km must not be negative")
		}
		if req.RadiusKm == 0 {
			req.RadiusKm = r.cfg.DefaultRadiusKm
		}
		req.RadiusKm = min(req.RadiusKm, r.cfg.MaxRadiusKm)
	}
	return nil
}

// follow 關注作者的內容，新到舊
//
// 社交關係查詢失敗時回傳空頁，不視為錯誤。
func (r *Retriever) follow(ctx context.Context, req Request) (*Page, error) {
	if req.ViewerID <= 0 {
		return nil, apperrors.ErrViewerRequired
	}

	authorIDs, err := r.graph.FollowedAuthorIDs(ctx, req.ViewerID)
	if err != nil {
		r.logger.WarnContext(ctx, "social graph lookup failed, serving empty follow feed",
			"viewer_id", req.ViewerID,
			"error", err,
		)
		return emptyPage(), nil
	}
	if len(authorIDs) == 0 {
		return emptyPage(), nil
	}

	rows, total, err := r.listings.QueryByAuthorSet(ctx, authorIDs, req.Page, req.PageSize)
	if err != nil {
		return nil, apperrors.ErrListingUnavailable.WithCause(fmt.Errorf("query by author set: %w", err))
	}

	return &Page{
		Items:   toItems(rows),
		Total:   total,
		HasMore: hasMore(total, req.Page, req.PageSize),
	}, nil
}

type scoredRow struct {
	key ranking.Scored
	row ContentRow
}

// hot 時間窗內的公開內容依熱門分數排序後分頁
//
// 排序在記憶體中進行，候選數以 MaxCandidates 為上限。
// 取消只在計分迴圈中檢查，排序開始後一定完成整頁。
func (r *Retriever) hot(ctx context.Context, req Request) (*Page, error) {
	now := r.now()

	rows, err := r.listings.QueryByRecency(ctx, now.Add(-r.cfg.HotWindow), r.cfg.MaxCandidates)
	if err != nil {
		return nil, apperrors.ErrListingUnavailable.WithCause(fmt.Errorf("query by recency: %w", err))
	}
	metrics.HotCandidates.Observe(float64(len(rows)))

	scored := make([]scoredRow, 0, len(rows))
	for i, row := range rows {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		scored = append(scored, scoredRow{
			key: ranking.Scored{
				ID:    row.ID,
				Score: ranking.Score(row.Counters, ranking.AgeHours(row.CreatedAt, now)),
			},
			row: row,
		})
	}

	slices.SortStableFunc(scored, func(a, b scoredRow) int {
		return ranking.Compare(a.key, b.key)
	})

	window, more := paginate(scored, req.Page, req.PageSize)
	items := make([]Item, len(window))
	for i, s := range window {
		score := s.key.Score
		items[i] = Item{ContentRow: s.row, Score: &score}
	}

	return &Page{
		Items:   items,
		Total:   len(scored),
		HasMore: more,
	}, nil
}

// local 半徑內的公開內容，由近到遠，不重新排序
func (r *Retriever) local(ctx context.Context, req Request) (*Page, error) {
	rows, total, err := r.listings.QueryByRadius(ctx, *req.Lat, *req.Lon, req.RadiusKm, req.Page, req.PageSize)
	if err != nil {
		return nil, apperrors.ErrListingUnavailable.WithCause(fmt.Errorf("query by radius: %w", err))
	}

	return &Page{
		Items:   toItems(rows),
		Total:   total,
		HasMore: hasMore(total, req.Page, req.PageSize),
	}, nil
}

// attachFlags 為每筆內容查詢觀看者的按讚/收藏狀態
//
// 匿名觀看者不查詢；查詢失敗的旗標保持 false。
func (r *Retriever) attachFlags(ctx context.Context, viewerID int64, items []Item) {
	if viewerID <= 0 || len(items) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(membershipConcurrency)

	for i := range items {
		item := &items[i]
		g.Go(func() error {
			liked, err := r.membership.HasLiked(gctx, viewerID, item.ID)
			if err != nil {
				metrics.MembershipFailures.WithLabelValues("like").Inc()
				r.logger.WarnContext(ctx, "like lookup failed", "content_id", item.ID, "error", err)
			}
			item.IsLiked = liked && err == nil

			collected, err := r.membership.HasCollected(gctx, viewerID, item.ID)
			if err != nil {
				metrics.MembershipFailures.WithLabelValues("collect").Inc()
				r.logger.WarnContext(ctx, "collect lookup failed", "content_id", item.ID, "error", err)
			}
			item.IsCollected = collected && err == nil
			return nil
		})
	}
	_ = g.Wait()
}

func toItems(rows []ContentRow) []Item {
	items := make([]Item, len(rows))
	for i, row := range rows {
		items[i] = Item{ContentRow: row}
	}
	return items
}
