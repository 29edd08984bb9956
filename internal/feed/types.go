// Package feed 組裝三種 feed 分頁：follow、hot、local
package feed

import (
	"time"

	"github.com/koopa0/system-design/14-engagement-feed/internal/counter"
	apperrors "github.com/koopa0/system-design/14-engagement-feed/pkg/errors"
)

// Tab feed 分頁類型
type Tab string

const (
	TabFollow Tab = "follow"
	TabHot    Tab = "hot"
	TabLocal  Tab = "local"
)

// ParseTab 解析分頁名稱
func ParseTab(s string) (Tab, error) {
	switch t := Tab(s); t {
	case TabFollow, TabHot, TabLocal:
		return t, nil
	}
	return "", apperrors.ErrUnknownTab.WithDetails("tab " + s)
}

// Visibility 內容可見範圍
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
	VisibilityHidden    Visibility = "hidden"
)

// Valid 是否為已知的可見範圍
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityFollowers, VisibilityHidden:
		return true
	}
	return false
}

// GeoPoint 經緯度
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ContentRow 內容列表的反正規化記錄
//
// Counters 只由同步 worker 更新，是計數的唯讀副本。
type ContentRow struct {
	ID         int64            `json:"id"`
	AuthorID   int64            `json:"author_id"`
	CreatedAt  time.Time        `json:"created_at"`
	Type       string           `json:"type"`
	Location   *GeoPoint        `json:"location,omitempty"`
	Counters   counter.Counters `json:"counters"`
	Visibility Visibility       `json:"visibility"`
	DistanceKm *float64         `json:"distance_km,omitempty"`
}

// Item feed 中的一筆內容
type Item struct {
	ContentRow
	IsLiked     bool     `json:"is_liked"`
	IsCollected bool     `json:"is_collected"`
	Score       *float64 `json:"score,omitempty"`
}

// Page 一頁 feed
type Page struct {
	Items   []Item `json:"items"`
	Total   int    `json:"total"`
	HasMore bool   `json:"has_more"`
}

// Request feed 請求
//
// ViewerID 為 0 代表匿名。Lat/Lon 僅 local 分頁需要。
type Request struct {
	Tab      Tab
	ViewerID int64
	Page     int
	PageSize int
	Lat      *float64
	Lon      *float64
	RadiusKm float64
}

func emptyPage() *Page {
	return &Page{Items: []Item{}}
}
