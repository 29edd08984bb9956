package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/koopa0/system-design/14-engagement-feed/internal/metrics"
	apperrors "github.com/koopa0/system-design/14-engagement-feed/pkg/errors"
	"github.com/koopa0/system-design/14-engagement-feed/pkg/logger"
)

// RequestIDHeader 請求 ID 的 header
const RequestIDHeader = "X-Request-ID"

type viewerKey struct{}

// viewerID 請求 context 中的觀看者 ID，匿名為 0
func viewerID(ctx context.Context) int64 {
	id, _ := ctx.Value(viewerKey{}).(int64)
	return id
}

// requestID 沿用上游的 X-Request-ID，沒有時產生 UUID
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// viewer 解析 X-Viewer-ID，格式錯誤回 400
func (h *Handler) viewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(ViewerHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.respondError(w, r, apperrors.Invalid("invalid %s header", ViewerHeader))
			return
		}

		ctx := context.WithValue(r.Context(), viewerKey{}, id)
		ctx = logger.WithViewerID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// observe 記錄請求日誌與 Prometheus 指標
//
// 指標以路由樣板（/api/v1/contents/{id}/counters）為標籤，避免高基數。
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		if route == "/metrics" || route == "/health" {
			return
		}
		metrics.RecordHTTPRequest(r.Method, route, status, duration)

		h.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", duration,
			"bytes", ww.BytesWritten(),
		)
	})
}
