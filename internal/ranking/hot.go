// Package ranking 計算熱門分數
//
//	score = (like×1 + comment×2 + share×3 + collect×2) × 0.5^(ageHours/24)
//
// 分享與留言代表較強的互動意圖，權重高於按讚；半衰期 24 小時的衰減
// 讓新內容略佔優勢但沒有硬性截止。瀏覽數不計入分數。
package ranking

import (
	"math"
	"time"

	"github.com/koopa0/system-design/14-engagement-feed/internal/counter"
)

// 權重與半衰期
const (
	LikeWeight    = 1
	CommentWeight = 2
	ShareWeight   = 3
	CollectWeight = 2

	HalfLifeHours = 24.0
)

// BaseScore 未衰減的互動分數
func BaseScore(c counter.Counters) float64 {
	return float64(c.LikeCount*LikeWeight +
		c.CommentCount*CommentWeight +
		c.ShareCount*ShareWeight +
		c.CollectCount*CollectWeight)
}

// Decay 年齡對應的衰減係數，負年齡視為 0
func Decay(ageHours float64) float64 {
	if ageHours < 0 {
		ageHours = 0
	}
	return math.Exp2(-ageHours / HalfLifeHours)
}

// Score 熱門分數
func Score(c counter.Counters, ageHours float64) float64 {
	return BaseScore(c) * Decay(ageHours)
}

// AgeHours 內容在 now 時的年齡（小時）
func AgeHours(createdAt, now time.Time) float64 {
	return now.Sub(createdAt).Hours()
}

// Scored 已計分的內容
type Scored struct {
	ID    int64
	Score float64
}

// Compare 排序比較：分數高者在前，同分時 ID 大（較新）者在前
//
// 可直接用於 slices.SortStableFunc。
func Compare(a, b Scored) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}
