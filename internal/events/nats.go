// Package events 從 NATS 消費互動與內容事件
//
// 訂閱的主題：
//   - engagement.counter：計數遞增（按讚、留言、分享、收藏、瀏覽）
//   - content.published：新增或更新內容列表
//   - content.removed：隱藏內容並移除計數快取
//
// 格式錯誤的訊息記錄後丟棄，不重送。
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/koopa0/system-design/14-engagement-feed/internal/counter"
	"github.com/koopa0/system-design/14-engagement-feed/internal/feed"
	"github.com/koopa0/system-design/14-engagement-feed/internal/metrics"
)

// 主題
const (
	SubjectCounter   = "engagement.counter"
	SubjectPublished = "content.published"
	SubjectRemoved   = "content.removed"
)

// 單則訊息的處理逾時
const handleTimeout = 5 * time.Second

// 遞增失敗時還原關係的時限，不受原訊息逾時影響
const revertTimeout = 2 * time.Second

// CounterService 計數服務
type CounterService interface {
	Increment(ctx context.Context, contentID int64, field counter.Field, delta int64) (int64, error)
	Invalidate(ctx context.Context, contentID int64) error
}

// ListingWriter 內容列表寫入
type ListingWriter interface {
	Upsert(ctx context.Context, row feed.ContentRow) error
	Hide(ctx context.Context, contentID int64) error
}

// MembershipWriter 按讚/收藏關係寫入，回傳關係是否改變
type MembershipWriter interface {
	SetLiked(ctx context.Context, viewerID, contentID int64, liked bool) (bool, error)
	SetCollected(ctx context.Context, viewerID, contentID int64, collected bool) (bool, error)
}

// CounterEvent 計數事件
//
// Delta 省略時為 1，為 0 時忽略。
// ViewerID 有值且欄位為 like/collect 時，先更新關係，
// 關係沒有改變（重複按讚）就不遞增計數；遞增失敗則還原關係。
type CounterEvent struct {
	ContentID int64  `json:"content_id"`
	ViewerID  int64  `json:"viewer_id,omitempty"`
	Field     string `json:"field"`
	Delta     *int64 `json:"delta,omitempty"`
}

// PublishedEvent 內容發佈事件
type PublishedEvent struct {
	ID         int64     `json:"id"`
	AuthorID   int64     `json:"author_id"`
	Type       string    `json:"type"`
	Visibility string    `json:"visibility,omitempty"`
	Lat        *float64  `json:"lat,omitempty"`
	Lon        *float64  `json:"lon,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RemovedEvent 內容移除事件
type RemovedEvent struct {
	ID int64 `json:"id"`
}

// errBadPayload 訊息格式錯誤
var errBadPayload = errors.New("bad payload")

// Handler 處理單則事件
type Handler struct {
	counters   CounterService
	listings   ListingWriter
	membership MembershipWriter
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewHandler 建立事件處理器，membership 可為 nil
func NewHandler(counters CounterService, listings ListingWriter, membership MembershipWriter, logger *slog.Logger) *Handler {
	return &Handler{
		counters:   counters,
		listings:   listings,
		membership: membership,
		logger:     logger.With("component", "events"),
		tracer:     otel.Tracer("engagement-feed/events"),
	}
}

// Handle 處理一則 NATS 訊息
//
// 從訊息 header 取出追蹤 context，讓處理過程接上發送端的 trace。
func (h *Handler) Handle(msg *nats.Msg) {
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))
	ctx, span := h.tracer.Start(ctx, "consume "+msg.Subject,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination", msg.Subject)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	err := h.dispatch(ctx, msg.Subject, msg.Data)
	metrics.RecordEvent(msg.Subject, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.ErrorContext(ctx, "event dropped",
			"subject", msg.Subject,
			"error", err,
		)
	}
}

func (h *Handler) dispatch(ctx context.Context, subject string, data []byte) error {
	switch subject {
	case SubjectCounter:
		var ev CounterEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("%w: %v", errBadPayload, err)
		}
		return h.onCounter(ctx, ev)

	case SubjectPublished:
		var ev PublishedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("%w: %v", errBadPayload, err)
		}
		return h.onPublished(ctx, ev)

	case SubjectRemoved:
		var ev RemovedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("%w: %v", errBadPayload, err)
		}
		return h.onRemoved(ctx, ev)
	}

	return fmt.Errorf("unknown subject %q", subject)
}

func (h *Handler) onCounter(ctx context.Context, ev CounterEvent) error {
	if err := counter.ValidateID(ev.ContentID); err != nil {
		return err
	}
	field, err := counter.ParseField(ev.Field)
	if err != nil {
		return err
	}
	delta := int64(1)
	if ev.Delta != nil {
		delta = *ev.Delta
	}
	if delta == 0 {
		return nil
	}

	tracked := ev.ViewerID > 0 && h.membership != nil && tracksMembership(field)
	if tracked {
		changed, err := h.setMembership(ctx, ev.ViewerID, ev.ContentID, field, delta > 0)
		if err != nil {
			return err
		}
		if !changed {
			h.logger.DebugContext(ctx, "membership unchanged, counter not incremented",
				"content_id", ev.ContentID,
				"viewer_id", ev.ViewerID,
				"field", field,
			)
			return nil
		}
	}

	if _, err := h.counters.Increment(ctx, ev.ContentID, field, delta); err != nil {
		if tracked {
			// 計數沒動就還原關係，重送時才會再遞增
			h.revertMembership(ctx, ev, field, delta > 0)
		}
		return err
	}
	return nil
}

func tracksMembership(field counter.Field) bool {
	return field == counter.FieldLike || field == counter.FieldCollect
}

func (h *Handler) setMembership(ctx context.Context, viewerID, contentID int64, field counter.Field, on bool) (bool, error) {
	if field == counter.FieldCollect {
		return h.membership.SetCollected(ctx, viewerID, contentID, on)
	}
	return h.membership.SetLiked(ctx, viewerID, contentID, on)
}

func (h *Handler) revertMembership(ctx context.Context, ev CounterEvent, field counter.Field, on bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revertTimeout)
	defer cancel()

	if _, err := h.setMembership(ctx, ev.ViewerID, ev.ContentID, field, !on); err != nil {
		h.logger.ErrorContext(ctx, "membership revert failed",
			"content_id", ev.ContentID,
			"viewer_id", ev.ViewerID,
			"field", field,
			"error", err,
		)
	}
}

func (h *Handler) onPublished(ctx context.Context, ev PublishedEvent) error {
	if ev.ID <= 0 || ev.AuthorID <= 0 || ev.Type == "" {
		return fmt.Errorf("%w: id, author_id and type are required", errBadPayload)
	}

	row := feed.ContentRow{
		ID:         ev.ID,
		AuthorID:   ev.AuthorID,
		Type:       ev.Type,
		CreatedAt:  ev.CreatedAt,
		Visibility: feed.Visibility(ev.Visibility),
	}
	if row.Visibility == "" {
		row.Visibility = feed.VisibilityPublic
	}
	if !row.Visibility.Valid() {
		return fmt.Errorf("%w: visibility %q", errBadPayload, ev.Visibility)
	}
	if ev.Lat != nil && ev.Lon != nil {
		row.Location = &feed.GeoPoint{Lat: *ev.Lat, Lon: *ev.Lon}
	}

	return h.listings.Upsert(ctx, row)
}

func (h *Handler) onRemoved(ctx context.Context, ev RemovedEvent) error {
	if ev.ID <= 0 {
		return fmt.Errorf("%w: id is required", errBadPayload)
	}
	if err := h.listings.Hide(ctx, ev.ID); err != nil {
		return err
	}
	return h.counters.Invalidate(ctx, ev.ID)
}

// Consumer 以 queue group 訂閱所有主題，實作 suture.Service
type Consumer struct {
	conn    *nats.Conn
	queue   string
	handler *Handler
	logger  *slog.Logger
}

// NewConsumer 建立事件消費者
func NewConsumer(conn *nats.Conn, queue string, handler *Handler, logger *slog.Logger) *Consumer {
	return &Consumer{
		conn:    conn,
		queue:   queue,
		handler: handler,
		logger:  logger.With("component", "events"),
	}
}

// Serve 訂閱後阻塞直到 ctx 取消，結束前 drain 所有訂閱
func (c *Consumer) Serve(ctx context.Context) error {
	subjects := []string{SubjectCounter, SubjectPublished, SubjectRemoved}
	subs := make([]*nats.Subscription, 0, len(subjects))

	for _, subject := range subjects {
		sub, err := c.conn.QueueSubscribe(subject, c.queue, c.handler.Handle)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	c.logger.Info("listening for events", "subjects", subjects, "queue", c.queue)

	<-ctx.Done()

	for _, s := range subs {
		if err := s.Drain(); err != nil {
			c.logger.Warn("drain subscription failed", "subject", s.Subject, "error", err)
		}
	}
	return ctx.Err()
}

// String 實作 fmt.Stringer
func (c *Consumer) String() string {
	return "nats-consumer"
}

// Publish 發送事件並注入追蹤 context
func Publish(ctx context.Context, conn *nats.Conn, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if err := conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
