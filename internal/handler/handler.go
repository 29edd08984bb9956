// Package handler 實現 HTTP API
//
// 路由：
//   - GET    /api/v1/feed?tab=follow|hot|local&page=&page_size=&lat=&lon=&radius_km=
//   - GET    /api/v1/contents/{id}/counters
//   - POST   /api/v1/contents/{id}/counters/{field}   {"delta": n}
//   - DELETE /api/v1/contents/{id}/counters
//   - POST   /api/v1/admin/sync
//   - GET    /health、/ready、/metrics
//
// 觀看者身分由 X-Viewer-ID header 帶入，驗證由上游閘道負責。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/koopa0/system-design/14-engagement-feed/internal/counter"
	"github.com/koopa0/system-design/14-engagement-feed/internal/feed"
	"github.com/koopa0/system-design/14-engagement-feed/internal/syncer"
	apperrors "github.com/koopa0/system-design/14-engagement-feed/pkg/errors"
)

// ViewerHeader 觀看者 ID 的 header
const ViewerHeader = "X-Viewer-ID"

// 就緒檢查逾時
const readyTimeout = 2 * time.Second

// CounterService 計數讀寫
type CounterService interface {
	Get(ctx context.Context, contentID int64) (counter.Counters, error)
	Increment(ctx context.Context, contentID int64, field counter.Field, delta int64) (int64, error)
	Invalidate(ctx context.Context, contentID int64) error
}

// FeedService feed 組裝
type FeedService interface {
	Feed(ctx context.Context, req feed.Request) (*feed.Page, error)
}

// Syncer 手動觸發同步
type Syncer interface {
	SyncOnce(ctx context.Context) (syncer.Stats, error)
}

// Checker 就緒檢查
type Checker func(ctx context.Context) error

// Handler HTTP 處理器
type Handler struct {
	counters CounterService
	feeds    FeedService
	syncer   Syncer
	checks   map[string]Checker
	validate *validator.Validate
	logger   *slog.Logger
}

// New 建立 HTTP 處理器，checks 為 /ready 的依賴檢查（名稱 → 檢查函式）
func New(counters CounterService, feeds FeedService, syncer Syncer, checks map[string]Checker, logger *slog.Logger) *Handler {
	return &Handler{
		counters: counters,
		feeds:    feeds,
		syncer:   syncer,
		checks:   checks,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "http"),
	}
}

// Routes 設置路由
//
// 中間件鏈：request id → recoverer → metrics/日誌 → 業務處理
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(h.observe)

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.viewer)

		r.Get("/feed", h.feed)

		r.Route("/contents/{id}/counters", func(r chi.Router) {
			r.Get("/", h.getCounters)
			r.Delete("/", h.invalidate)
			r.Post("/{field}", h.increment)
		})

		r.Post("/admin/sync", h.sync)
	})

	return r
}

// incrementRequest delta 省略時為 1；明確的 0 只刷新 TTL 並回傳目前值
type incrementRequest struct {
	Delta *int64 `json:"delta"`
}

// feedQuery feed 查詢參數的格式檢查，語意上的預設與上限由 Retriever 處理
type feedQuery struct {
	Page     int      `validate:"gte=0"`
	PageSize int      `validate:"gte=0"`
	Lat      *float64 `validate:"omitnil,gte=-90,lte=90"`
	Lon      *float64 `validate:"omitnil,gte=-180,lte=180"`
	RadiusKm float64  `validate:"gte=0"`
}

type incrementResponse struct {
	ContentID int64  `json:"content_id"`
	Field     string `json:"field"`
	Value     int64  `json:"value"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// feed 取得一頁 feed
func (h *Handler) feed(w http.ResponseWriter, r *http.Request) {
	req, err := parseFeedRequest(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.validate.Struct(feedQuery{
		Page:     req.Page,
		PageSize: req.PageSize,
		Lat:      req.Lat,
		Lon:      req.Lon,
		RadiusKm: req.RadiusKm,
	}); err != nil {
		h.respondError(w, r, apperrors.Invalid("invalid feed query").WithDetails(err.Error()))
		return
	}

	page, err := h.feeds.Feed(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, page, http.StatusOK)
}

// getCounters 讀取單一內容的計數
func (h *Handler) getCounters(w http.ResponseWriter, r *http.Request) {
	id, err := contentID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	c, err := h.counters.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, c, http.StatusOK)
}

// increment 遞增單一計數，body 可省略（delta 預設 1）
func (h *Handler) increment(w http.ResponseWriter, r *http.Request) {
	id, err := contentID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	field, err := counter.ParseField(chi.URLParam(r, "field"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var req incrementRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, r, apperrors.Invalid("invalid request body"))
			return
		}
	}
	delta := int64(1)
	if req.Delta != nil {
		delta = *req.Delta
	}

	value, err := h.counters.Increment(r.Context(), id, field, delta)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, incrementResponse{ContentID: id, Field: string(field), Value: value}, http.StatusOK)
}

// invalidate 移除快取中的計數，下次讀取回源
func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	id, err := contentID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.counters.Invalidate(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sync 立即執行一次同步
func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	stats, err := h.syncer.SyncOnce(r.Context())
	if err != nil {
		h.respondError(w, r, apperrors.Unavailable(err, "sync failed"))
		return
	}
	h.respondJSON(w, stats, http.StatusOK)
}

// health 存活檢查
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// ready 就緒檢查，任一依賴失敗回 503
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	h.respondJSON(w, map[string]any{
		"ready":        status == http.StatusOK,
		"dependencies": results,
	}, status)
}

// parseFeedRequest 解析 feed 查詢參數，範圍檢查交給 feed 套件
func parseFeedRequest(r *http.Request) (feed.Request, error) {
	q := r.URL.Query()

	req := feed.Request{
		Tab:      feed.Tab(q.Get("tab")),
		ViewerID: viewerID(r.Context()),
	}

	var err error
	if req.Page, err = intParam(q.Get("page")); err != nil {
		return req, apperrors.Invalid("page must be an integer")
	}
	if req.PageSize, err = intParam(q.Get("page_size")); err != nil {
		return req, apperrors.Invalid("page_size must be an integer")
	}
	if req.Lat, err = floatParam(q.Get("lat")); err != nil {
		return req, apperrors.Invalid("lat must be a number")
	}
	if req.Lon, err = floatParam(q.Get("lon")); err != nil {
		return req, apperrors.Invalid("lon must be a number")
	}
	if radius, err := floatParam(q.Get("radius_km")); err != nil {
		return req, apperrors.Invalid("radius_km must be a number")
	} else if radius != nil {
		req.RadiusKm = *radius
	}
	return req, nil
}

func contentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.ErrInvalidContentID
	}
	return id, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func floatParam(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// === 回應工具 ===

func (h *Handler) respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("encode json failed", "error", err)
	}
}

// respondError 依錯誤碼決定狀態碼
//
// INVALID_INPUT → 400、NOT_FOUND → 404、SERVICE_UNAVAILABLE → 503，其餘 500。
// 500 不回傳內部錯誤細節。
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.Code(err)

	var status int
	switch code {
	case apperrors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeUnavailable:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	resp := errorResponse{Code: code, Message: "internal server error"}
	var appErr *apperrors.AppError
	if status != http.StatusInternalServerError && errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Details = appErr.Details
	}

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}

	h.respondJSON(w, resp, status)
}

