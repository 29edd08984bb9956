package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MembershipStore 觀看者與內容的按讚/收藏關係
//
// 只回答「有沒有」，計數一律走計數服務。
type MembershipStore struct {
	pool *pgxpool.Pool
}

// NewMembershipStore 建立成員關係存取
func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

// HasLiked 觀看者是否按讚過該內容
func (s *MembershipStore) HasLiked(ctx context.Context, viewerID, contentID int64) (bool, error) {
	return s.exists(ctx, "content_likes", viewerID, contentID)
}

// HasCollected 觀看者是否收藏過該內容
func (s *MembershipStore) HasCollected(ctx context.Context, viewerID, contentID int64) (bool, error) {
	return s.exists(ctx, "content_collects", viewerID, contentID)
}

// SetLiked 新增或移除按讚關係，回傳關係是否實際改變
func (s *MembershipStore) SetLiked(ctx context.Context, viewerID, contentID int64, liked bool) (bool, error) {
	return s.set(ctx, "content_likes", viewerID, contentID, liked)
}

// SetCollected 新增或移除收藏關係，回傳關係是否實際改變
func (s *MembershipStore) SetCollected(ctx context.Context, viewerID, contentID int64, collected bool) (bool, error) {
	return s.set(ctx, "content_collects", viewerID, contentID, collected)
}

func (s *MembershipStore) exists(ctx context.Context, table string, viewerID, contentID int64) (bool, error) {
	var ok bool
	query := `SELECT EXISTS (SELECT 1 FROM ` + table + ` WHERE user_id = $1 AND content_id = $2)`
	if err := s.pool.QueryRow(ctx, query, viewerID, contentID).Scan(&ok); err != nil {
		return false, fmt.Errorf("lookup %s: %w", table, err)
	}
	return ok, nil
}

func (s *MembershipStore) set(ctx context.Context, table string, viewerID, contentID int64, on bool) (bool, error) {
	query := `INSERT INTO ` + table + ` (user_id, content_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if !on {
		query = `DELETE FROM ` + table + ` WHERE user_id = $1 AND content_id = $2`
	}

	tag, err := s.pool.Exec(ctx, query, viewerID, contentID)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", table, err)
	}
	return tag.RowsAffected() == 1, nil
}
