package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-engagement-feed/internal/counter"
	"github.com/koopa0/system-design/14-engagement-feed/internal/feed"
	apperrors "github.com/koopa0/system-design/14-engagement-feed/pkg/errors"
	"github.com/koopa0/system-design/14-engagement-feed/pkg/logger"
)

type increment struct {
	id    int64
	field counter.Field
	delta int64
}

type fakeCounters struct {
	mu          sync.Mutex
	increments  []increment
	invalidated []int64
	err         error
}

func (f *fakeCounters) Increment(_ context.Context, id int64, field counter.Field, delta int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.increments = append(f.increments, increment{id, field, delta})
	return delta, nil
}

func (f *fakeCounters) Invalidate(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, id)
	return nil
}

type fakeListings struct {
	upserts []feed.ContentRow
	hidden  []int64
	hideErr error
}

func (f *fakeListings) Upsert(_ context.Context, row feed.ContentRow) error {
	f.upserts = append(f.upserts, row)
	return nil
}

func (f *fakeListings) Hide(_ context.Context, id int64) error {
	if f.hideErr != nil {
		return f.hideErr
	}
	f.hidden = append(f.hidden, id)
	return nil
}

// fakeMembership 以 map 記錄關係，重複設定回傳 false
type fakeMembership struct {
	liked     map[[2]int64]bool
	collected map[[2]int64]bool
}

func newFakeMembership() *fakeMembership {
	return &fakeMembership{
		liked:     make(map[[2]int64]bool),
		collected: make(map[[2]int64]bool),
	}
}

func (f *fakeMembership) SetLiked(_ context.Context, viewerID, contentID int64, liked bool) (bool, error) {
	return set(f.liked, [2]int64{viewerID, contentID}, liked), nil
}

func (f *fakeMembership) SetCollected(_ context.Context, viewerID, contentID int64, collected bool) (bool, error) {
	return set(f.collected, [2]int64{viewerID, contentID}, collected), nil
}

func set(m map[[2]int64]bool, key [2]int64, on bool) bool {
	if m[key] == on {
		return false
	}
	m[key] = on
	return true
}

func newTestHandler() (*Handler, *fakeCounters, *fakeListings, *fakeMembership) {
	counters := &fakeCounters{}
	listings := &fakeListings{}
	membership := newFakeMembership()
	return NewHandler(counters, listings, membership, logger.Discard()), counters, listings, membership
}

func msg(subject, data string) *nats.Msg {
	return &nats.Msg{Subject: subject, Data: []byte(data), Header: nats.Header{}}
}

func TestHandle_CounterEvent(t *testing.T) {
	h, counters, _, _ := newTestHandler()

	h.Handle(msg(SubjectCounter, `{"content_id":42,"field":"comment","delta":2}`))
	h.Handle(msg(SubjectCounter, `{"content_id":42,"field":"view"}`))

	require.Len(t, counters.increments, 2)
	assert.Equal(t, increment{42, counter.FieldComment, 2}, counters.increments[0])
	assert.Equal(t, increment{42, counter.FieldView, 1}, counters.increments[1], "delta defaults to 1")
}

func TestHandle_DuplicateLikeDoesNotIncrement(t *testing.T) {
	h, counters, _, membership := newTestHandler()

	h.Handle(msg(SubjectCounter, `{"content_id":7,"viewer_id":100,"field":"like","delta":1}`))
	h.Handle(msg(SubjectCounter, `{"content_id":7,"viewer_id":100,"field":"like","delta":1}`))

	require.Len(t, counters.increments, 1)
	assert.True(t, membership.liked[[2]int64{100, 7}])

	// 取消按讚
	h.Handle(msg(SubjectCounter, `{"content_id":7,"viewer_id":100,"field":"like","delta":-1}`))
	require.Len(t, counters.increments, 2)
	assert.Equal(t, int64(-1), counters.increments[1].delta)
	assert.False(t, membership.liked[[2]int64{100, 7}])
}

func TestHandle_CollectTracksMembership(t *testing.T) {
	h, counters, _, membership := newTestHandler()

	h.Handle(msg(SubjectCounter, `{"content_id":9,"viewer_id":5,"field":"collect","delta":1}`))
	h.Handle(msg(SubjectCounter, `{"content_id":9,"viewer_id":5,"field":"share","delta":1}`))
	h.Handle(msg(SubjectCounter, `{"content_id":9,"viewer_id":5,"field":"share","delta":1}`))

	assert.True(t, membership.collected[[2]int64{5, 9}])
	assert.Len(t, counters.increments, 3, "shares are not deduplicated by viewer")
}

func TestHandle_ZeroDeltaIsIgnored(t *testing.T) {
	h, counters, _, membership := newTestHandler()

	h.Handle(msg(SubjectCounter, `{"content_id":7,"field":"view","delta":0}`))
	h.Handle(msg(SubjectCounter, `{"content_id":7,"viewer_id":100,"field":"like","delta":0}`))

	assert.Empty(t, counters.increments)
	assert.Empty(t, membership.liked)
}

func TestHandle_FailedIncrementRevertsMembership(t *testing.T) {
	h, counters, _, membership := newTestHandler()
	counters.err = apperrors.ErrCacheUnavailable
	like := `{"content_id":7,"viewer_id":100,"field":"like","delta":1}`

	err := h.dispatch(context.Background(), SubjectCounter, []byte(like))
	assert.True(t, apperrors.IsUnavailable(err))
	assert.False(t, membership.liked[[2]int64{100, 7}], "like must not stick without the counter")

	// 快取恢復後重送，計數與關係一起生效
	counters.err = nil
	h.Handle(msg(SubjectCounter, like))
	require.Len(t, counters.increments, 1)
	assert.Equal(t, increment{7, counter.FieldLike, 1}, counters.increments[0])
	assert.True(t, membership.liked[[2]int64{100, 7}])
}

func TestHandle_FailedUnlikeRestoresMembership(t *testing.T) {
	h, counters, _, membership := newTestHandler()
	membership.liked[[2]int64{100, 7}] = true
	counters.err = apperrors.ErrCacheUnavailable

	h.Handle(msg(SubjectCounter, `{"content_id":7,"viewer_id":100,"field":"like","delta":-1}`))

	assert.True(t, membership.liked[[2]int64{100, 7}])
	assert.Empty(t, counters.increments)
}

func TestHandle_InvalidContentIDWritesNothing(t *testing.T) {
	h, counters, _, membership := newTestHandler()

	err := h.dispatch(context.Background(), SubjectCounter,
		[]byte(`{"content_id":0,"viewer_id":100,"field":"collect","delta":1}`))
	assert.True(t, apperrors.IsInvalidInput(err))
	assert.Empty(t, membership.collected)
	assert.Empty(t, counters.increments)
}

func TestHandle_BadPayloadsAreDropped(t *testing.T) {
	h, counters, listings, _ := newTestHandler()

	h.Handle(msg(SubjectCounter, `not json`))
	h.Handle(msg(SubjectCounter, `{"content_id":1,"field":"bogus","delta":1}`))
	h.Handle(msg(SubjectPublished, `{"id":1}`))
	h.Handle(msg(SubjectRemoved, `{}`))

	assert.Empty(t, counters.increments)
	assert.Empty(t, listings.upserts)
	assert.Empty(t, listings.hidden)
}

func TestDispatch_Errors(t *testing.T) {
	h, counters, _, _ := newTestHandler()
	ctx := context.Background()

	err := h.dispatch(ctx, SubjectCounter, []byte(`{`))
	assert.ErrorIs(t, err, errBadPayload)

	err = h.dispatch(ctx, SubjectCounter, []byte(`{"content_id":1,"field":"bogus"}`))
	assert.True(t, apperrors.IsInvalidInput(err))

	err = h.dispatch(ctx, SubjectPublished, []byte(`{"id":1,"author_id":2,"type":"post","visibility":"secret"}`))
	assert.ErrorIs(t, err, errBadPayload)

	err = h.dispatch(ctx, "other.subject", []byte(`{}`))
	assert.Error(t, err)

	counters.err = apperrors.ErrCacheUnavailable
	err = h.dispatch(ctx, SubjectCounter, []byte(`{"content_id":1,"field":"view"}`))
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestHandle_Published(t *testing.T) {
	h, _, listings, _ := newTestHandler()

	h.Handle(msg(SubjectPublished,
		`{"id":10,"author_id":3,"type":"video","lat":25.03,"lon":121.56,"created_at":"2026-01-02T03:04:05Z"}`))
	h.Handle(msg(SubjectPublished,
		`{"id":11,"author_id":3,"type":"post","visibility":"followers"}`))

	require.Len(t, listings.upserts, 2)

	first := listings.upserts[0]
	assert.Equal(t, int64(10), first.ID)
	assert.Equal(t, int64(3), first.AuthorID)
	assert.Equal(t, "video", first.Type)
	assert.Equal(t, feed.VisibilityPublic, first.Visibility)
	require.NotNil(t, first.Location)
	assert.InDelta(t, 25.03, first.Location.Lat, 1e-9)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), first.CreatedAt.UTC())

	second := listings.upserts[1]
	assert.Equal(t, feed.VisibilityFollowers, second.Visibility)
	assert.Nil(t, second.Location)
}

func TestHandle_Removed(t *testing.T) {
	h, counters, listings, _ := newTestHandler()

	h.Handle(msg(SubjectRemoved, `{"id":77}`))

	assert.Equal(t, []int64{77}, listings.hidden)
	assert.Equal(t, []int64{77}, counters.invalidated)
}

func TestHandle_RemovedHideFailureKeepsCache(t *testing.T) {
	h, counters, listings, _ := newTestHandler()
	listings.hideErr = errors.New("db down")

	h.Handle(msg(SubjectRemoved, `{"id":77}`))

	assert.Empty(t, counters.invalidated)
}

func TestHandle_WithoutMembershipWriter(t *testing.T) {
	counters := &fakeCounters{}
	h := NewHandler(counters, &fakeListings{}, nil, logger.Discard())

	h.Handle(msg(SubjectCounter, `{"content_id":7,"viewer_id":100,"field":"like"}`))
	h.Handle(msg(SubjectCounter, `{"content_id":7,"viewer_id":100,"field":"like"}`))

	assert.Len(t, counters.increments, 2)
}

func TestConsumer_String(t *testing.T) {
	c := NewConsumer(nil, "engagement", nil, logger.Discard())
	assert.Equal(t, "nats-consumer", c.String())
}
