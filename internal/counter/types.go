// Package counter 實現內容互動計數：Redis 寫後快取 + PostgreSQL 持久層
//
// 寫入只落在快取（HINCRBY），由同步 worker 週期性刷回資料庫。
// 讀取優先命中快取，未命中時回源並在成功時預熱快取。
//
// 一致性：計數在一個同步週期內最終一致。需要強一致的呼叫方
// 應直接讀取持久層，HTTP API 不提供這條路徑。
package counter

import (
	"fmt"
	"time"

	apperrors "github.com/koopa0/system-design/14-engagement-feed/pkg/errors"
)

// Field 計數欄位
type Field string

const (
	FieldView    Field = "view"
	FieldLike    Field = "like"
	FieldComment Field = "comment"
	FieldShare   Field = "share"
	FieldCollect Field = "collect"
)

// Fields 全部計數欄位，順序固定
var Fields = []Field{FieldView, FieldLike, FieldComment, FieldShare, FieldCollect}

// ParseField 解析欄位名稱，未知名稱回傳 INVALID_INPUT
func ParseField(name string) (Field, error) {
	f := Field(name)
	if !f.Valid() {
		return "", apperrors.ErrUnknownField.WithDetails(fmt.Sprintf("field %q", name))
	}
	return f, nil
}

// Valid 是否為已知欄位
func (f Field) Valid() bool {
	switch f {
	case FieldView, FieldLike, FieldComment, FieldShare, FieldCollect:
		return true
	}
	return false
}

// Counters 單一內容的五項計數
type Counters struct {
	ContentID    int64      `json:"content_id"`
	ViewCount    int64      `json:"view_count"`
	LikeCount    int64      `json:"like_count"`
	CommentCount int64      `json:"comment_count"`
	ShareCount   int64      `json:"share_count"`
	CollectCount int64      `json:"collect_count"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// Zero 回傳指定內容的全零計數
func Zero(contentID int64) Counters {
	return Counters{ContentID: contentID}
}

// Value 取得欄位值
func (c Counters) Value(f Field) int64 {
	switch f {
	case FieldView:
		return c.ViewCount
	case FieldLike:
		return c.LikeCount
	case FieldComment:
		return c.CommentCount
	case FieldShare:
		return c.ShareCount
	case FieldCollect:
		return c.CollectCount
	}
	return 0
}

// Set 設定欄位值，負數視為 0
func (c *Counters) Set(f Field, v int64) {
	if v < 0 {
		v = 0
	}
	switch f {
	case FieldView:
		c.ViewCount = v
	case FieldLike:
		c.LikeCount = v
	case FieldComment:
		c.CommentCount = v
	case FieldShare:
		c.ShareCount = v
	case FieldCollect:
		c.CollectCount = v
	}
}

// Entry 掃描快取時的一筆結果
//
// Err 非 nil 代表該筆資料格式錯誤，Counters 不可用。
type Entry struct {
	Key      string
	Counters Counters
	Err      error
}

// ValidateID 檢查內容 ID
func ValidateID(contentID int64) error {
	if contentID <= 0 {
		return apperrors.ErrInvalidContentID.WithDetails(fmt.Sprintf("id %d", contentID))
	}
	return nil
}
