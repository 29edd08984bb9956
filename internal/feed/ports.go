package feed

import (
	"context"
	"time"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// ListingStore 內容列表查詢
type ListingStore interface {
	// QueryByAuthorSet 指定作者群的內容，新到舊分頁，回傳該頁與總筆數
	QueryByAuthorSet(ctx context.Context, authorIDs []int64, page, pageSize int) ([]ContentRow, int, error)
	// QueryByRecency since 之後建立的公開內容，新到舊，最多 limit 筆
	QueryByRecency(ctx context.Context, since time.Time, limit int) ([]ContentRow, error)
	// QueryByRadius 半徑內的公開內容，由近到遠分頁，回傳該頁與總筆數
	QueryByRadius(ctx context.Context, lat, lon, radiusKm float64, page, pageSize int) ([]ContentRow, int, error)
}

// SocialGraph 社交關係
type SocialGraph interface {
	FollowedAuthorIDs(ctx context.Context, viewerID int64) ([]int64, error)
}

// Membership 觀看者對內容的按讚/收藏關係
type Membership interface {
	HasLiked(ctx context.Context, viewerID, contentID int64) (bool, error)
	HasCollected(ctx context.Context, viewerID, contentID int64) (bool, error)
}
