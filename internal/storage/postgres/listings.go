package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/system-design/14-engagement-feed/internal/feed"
)

const contentColumns = `
	id, author_id, type_tag, visibility, latitude, longitude,
	view_count, like_count, comment_count, share_count, collect_count, created_at
`

// 地球平均半徑（公里）
const earthRadiusKm = 6371.0

// haversineSQL 計算 contents 與 ($1, $2) 的大圓距離（公里）
const haversineSQL = `
	2 * 6371.0 * ASIN(SQRT(
		POWER(SIN(RADIANS(latitude - $1::float8) / 2), 2) +
		COS(RADIANS($1::float8)) * COS(RADIANS(latitude)) *
		POWER(SIN(RADIANS(longitude - $2::float8) / 2), 2)
	))
`

// ListingStore 內容列表存取
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore 建立內容列表存取
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// QueryByAuthorSet 作者群的公開與限粉絲內容，新到舊
func (s *ListingStore) QueryByAuthorSet(ctx context.Context, authorIDs []int64, page, pageSize int) ([]feed.ContentRow, int, error) {
	const where = `author_id = ANY($1::bigint[]) AND visibility IN ('public', 'followers')`

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contents WHERE `+where, authorIDs).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count by author set: %w", err)
	}
	if total == 0 {
		return []feed.ContentRow{}, 0, nil
	}

	query := `SELECT ` + contentColumns + `, NULL::float8 FROM contents WHERE ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, authorIDs, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, 0, fmt.Errorf("query by author set: %w", err)
	}

	items, err := collectRows(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("scan by author set: %w", err)
	}
	return items, total, nil
}

// QueryByRecency since 之後的公開內容，新到舊，最多 limit 筆
func (s *ListingStore) QueryByRecency(ctx context.Context, since time.Time, limit int) ([]feed.ContentRow, error) {
	query := `SELECT ` + contentColumns + `, NULL::float8 FROM contents
		WHERE visibility = 'public' AND created_at >= $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query by recency: %w", err)
	}

	items, err := collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("scan by recency: %w", err)
	}
	return items, nil
}

// QueryByRadius 半徑內的公開內容，由近到遠
//
// 先以經緯度外框過濾（可用索引），再以 haversine 精算距離。
func (s *ListingStore) QueryByRadius(ctx context.Context, lat, lon, radiusKm float64, page, pageSize int) ([]feed.ContentRow, int, error) {
	minLat, maxLat, minLon, maxLon := boundingBox(lat, lon, radiusKm)

	nearby := `
		WITH nearby AS (
			SELECT ` + contentColumns + `, ` + haversineSQL + ` AS distance_km
			FROM contents
			WHERE visibility = 'public'
				AND latitude IS NOT NULL AND longitude IS NOT NULL
				AND latitude BETWEEN $4 AND $5
				AND longitude BETWEEN $6 AND $7
		)`
	args := []any{lat, lon, radiusKm, minLat, maxLat, minLon, maxLon}

	var total int
	countSQL := nearby + ` SELECT COUNT(*) FROM nearby WHERE distance_km <= $3::float8`
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count by radius: %w", err)
	}
	if total == 0 {
		return []feed.ContentRow{}, 0, nil
	}

	query := nearby + ` SELECT * FROM nearby
		WHERE distance_km <= $3::float8
		ORDER BY distance_km ASC, id DESC
		LIMIT $8 OFFSET $9`

	rows, err := s.pool.Query(ctx, query, append(args, pageSize, offset(page, pageSize))...)
	if err != nil {
		return nil, 0, fmt.Errorf("query by radius: %w", err)
	}

	items, err := collectRows(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("scan by radius: %w", err)
	}
	return items, total, nil
}

// Upsert 新增或更新內容的列表資料，不覆寫計數欄位
func (s *ListingStore) Upsert(ctx context.Context, row feed.ContentRow) error {
	query := `
		INSERT INTO contents (id, author_id, type_tag, visibility, latitude, longitude, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			author_id  = EXCLUDED.author_id,
			type_tag   = EXCLUDED.type_tag,
			visibility = EXCLUDED.visibility,
			latitude   = EXCLUDED.latitude,
			longitude  = EXCLUDED.longitude,
			updated_at = NOW()
	`

	var lat, lon *float64
	if row.Location != nil {
		lat, lon = &row.Location.Lat, &row.Location.Lon
	}
	visibility := row.Visibility
	if visibility == "" {
		visibility = feed.VisibilityPublic
	}
	createdAt := row.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := s.pool.Exec(ctx, query,
		row.ID, row.AuthorID, row.Type, string(visibility), lat, lon, createdAt,
	); err != nil {
		return fmt.Errorf("upsert content %d: %w", row.ID, err)
	}
	return nil
}

// Hide 將內容設為隱藏，不再出現在任何 feed
func (s *ListingStore) Hide(ctx context.Context, contentID int64) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE contents SET visibility = 'hidden', updated_at = NOW() WHERE id = $1`, contentID,
	); err != nil {
		return fmt.Errorf("hide content %d: %w", contentID, err)
	}
	return nil
}

// Ping 檢查連線
func (s *ListingStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func offset(page, pageSize int) int {
	if page < 1 || pageSize < 1 {
		return 0
	}
	if page-1 > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return (page - 1) * pageSize
}

// boundingBox 半徑對應的經緯度外框
func boundingBox(lat, lon, radiusKm float64) (minLat, maxLat, minLon, maxLon float64) {
	const kmPerDegree = earthRadiusKm * math.Pi / 180

	dLat := radiusKm / kmPerDegree
	minLat, maxLat = max(lat-dLat, -90), min(lat+dLat, 90)

	// 接近極點時經度外框退化為整圈
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 1e-6 || maxLat >= 90 || minLat <= -90 {
		return minLat, maxLat, -180, 180
	}
	dLon := radiusKm / (kmPerDegree * cosLat)
	if dLon >= 180 {
		return minLat, maxLat, -180, 180
	}
	minLon, maxLon = lon-dLon, lon+dLon
	if minLon < -180 || maxLon > 180 {
		// 跨越換日線時不以經度過濾
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, minLon, maxLon
}

// collectRows 掃描內容列，最後一欄為距離（可能為 NULL）
func collectRows(rows pgx.Rows) ([]feed.ContentRow, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (feed.ContentRow, error) {
		var (
			r          feed.ContentRow
			visibility string
			lat, lon   *float64
		)
		err := row.Scan(
			&r.ID,
			&r.AuthorID,
			&r.Type,
			&visibility,
			&lat,
			&lon,
			&r.Counters.ViewCount,
			&r.Counters.LikeCount,
			&r.Counters.CommentCount,
			&r.Counters.ShareCount,
			&r.Counters.CollectCount,
			&r.CreatedAt,
			&r.DistanceKm,
		)
		if err != nil {
			return r, err
		}
		r.Visibility = feed.Visibility(visibility)
		r.Counters.ContentID = r.ID
		if lat != nil && lon != nil {
			r.Location = &feed.GeoPoint{Lat: *lat, Lon: *lon}
		}
		return r, nil
	})
}
