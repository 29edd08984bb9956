package counter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/koopa0/system-design/14-engagement-feed/internal/counter"
	"github.com/koopa0/system-design/14-engagement-feed/internal/counter/mocks"
	apperrors "github.com/koopa0/system-design/14-engagement-feed/pkg/errors"
	"github.com/koopa0/system-design/14-engagement-feed/pkg/logger"
)

type ServiceSuite struct {
	suite.Suite
	ctx   context.Context
	ctrl  *gomock.Controller
	cache *mocks.MockCache
	store *mocks.MockStore
	svc   *counter.Service
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.cache = mocks.NewMockCache(s.ctrl)
	s.store = mocks.NewMockStore(s.ctrl)
	s.svc = counter.NewService(s.cache, s.store, counter.ServiceConfig{
		StoreReadTimeout: 50 * time.Millisecond,
	}, logger.Discard())
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) TestGet_CacheHit() {
	cached := counter.Counters{ContentID: 7, LikeCount: 3, ViewCount: 100}
	s.cache.EXPECT().Get(gomock.Any(), int64(7)).Return(cached, true, nil)

	got, err := s.svc.Get(s.ctx, 7)
	s.Require().NoError(err)
	s.Equal(cached, got)
}

func (s *ServiceSuite) TestGet_MissLoadsStoreAndWarms() {
	synced := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	durable := counter.Counters{ContentID: 9, CommentCount: 4, LastSyncedAt: &synced}

	gomock.InOrder(
		s.cache.EXPECT().Get(gomock.Any(), int64(9)).Return(counter.Counters{}, false, nil),
		s.store.EXPECT().Get(gomock.Any(), int64(9)).Return(durable, true, nil),
		s.cache.EXPECT().Warm(gomock.Any(), durable).Return(true, nil),
	)

	got, err := s.svc.Get(s.ctx, 9)
	s.Require().NoError(err)
	s.Equal(durable, got)
}

func (s *ServiceSuite) TestGet_MissWithoutDurableRowReturnsZeros() {
	s.cache.EXPECT().Get(gomock.Any(), int64(11)).Return(counter.Counters{}, false, nil)
	s.store.EXPECT().Get(gomock.Any(), int64(11)).Return(counter.Counters{}, false, nil)
	s.cache.EXPECT().Warm(gomock.Any(), counter.Zero(11)).Return(true, nil)

	got, err := s.svc.Get(s.ctx, 11)
	s.Require().NoError(err)
	s.Equal(counter.Zero(11), got)
}

func (s *ServiceSuite) TestGet_StoreFailureServesZerosWithoutWarm() {
	s.cache.EXPECT().Get(gomock.Any(), int64(12)).Return(counter.Counters{}, false, nil)
	s.store.EXPECT().Get(gomock.Any(), int64(12)).Return(counter.Counters{}, false, errors.New("connection refused"))
	s.cache.EXPECT().Warm(gomock.Any(), gomock.Any()).Times(0)

	got, err := s.svc.Get(s.ctx, 12)
	s.Require().NoError(err)
	s.Equal(counter.Zero(12), got)
}

func (s *ServiceSuite) TestGet_StoreTimeoutServesZeros() {
	s.cache.EXPECT().Get(gomock.Any(), int64(13)).Return(counter.Counters{}, false, nil)
	s.store.EXPECT().Get(gomock.Any(), int64(13)).DoAndReturn(
		func(ctx context.Context, _ int64) (counter.Counters, bool, error) {
			<-ctx.Done()
			return counter.Counters{}, false, ctx.Err()
		})

	start := time.Now()
	got, err := s.svc.Get(s.ctx, 13)
	s.Require().NoError(err)
	s.Equal(counter.Zero(13), got)
	s.Less(time.Since(start), time.Second)
}

func (s *ServiceSuite) TestGet_CacheErrorFallsThroughWithoutWarm() {
	durable := counter.Counters{ContentID: 14, ShareCount: 2}
	s.cache.EXPECT().Get(gomock.Any(), int64(14)).Return(counter.Counters{}, false, errors.New("i/o timeout"))
	s.store.EXPECT().Get(gomock.Any(), int64(14)).Return(durable, true, nil)

	got, err := s.svc.Get(s.ctx, 14)
	s.Require().NoError(err)
	s.Equal(durable, got)
}

func (s *ServiceSuite) TestGet_BreakerOpensAfterConsecutiveFailures() {
	s.cache.EXPECT().Get(gomock.Any(), int64(15)).Return(counter.Counters{}, false, nil).Times(8)
	// 熔斷後不再呼叫資料庫
	s.store.EXPECT().Get(gomock.Any(), int64(15)).Return(counter.Counters{}, false, errors.New("down")).Times(5)

	for range 8 {
		got, err := s.svc.Get(s.ctx, 15)
		s.Require().NoError(err)
		s.Equal(counter.Zero(15), got)
	}
	s.Equal("open", s.svc.BreakerState().String())
}

func (s *ServiceSuite) TestGet_InvalidID() {
	_, err := s.svc.Get(s.ctx, 0)
	s.True(apperrors.IsInvalidInput(err))
}

func (s *ServiceSuite) TestIncrement() {
	s.cache.EXPECT().Increment(gomock.Any(), int64(5), counter.FieldLike, int64(3)).Return(int64(8), nil)

	v, err := s.svc.Increment(s.ctx, 5, counter.FieldLike, 3)
	s.Require().NoError(err)
	s.Equal(int64(8), v)
}

func (s *ServiceSuite) TestIncrement_Validation() {
	_, err := s.svc.Increment(s.ctx, 5, counter.Field("bookmark"), 1)
	s.ErrorIs(err, apperrors.ErrUnknownField)

	_, err = s.svc.Increment(s.ctx, -1, counter.FieldLike, 1)
	s.ErrorIs(err, apperrors.ErrInvalidContentID)
}

func (s *ServiceSuite) TestIncrement_CacheUnavailable() {
	s.cache.EXPECT().Increment(gomock.Any(), int64(5), counter.FieldView, int64(1)).Return(int64(0), errors.New("connection reset"))

	_, err := s.svc.Increment(s.ctx, 5, counter.FieldView, 1)
	s.ErrorIs(err, apperrors.ErrCacheUnavailable)
	s.True(apperrors.IsUnavailable(err))
}

func (s *ServiceSuite) TestInvalidate() {
	s.cache.EXPECT().Invalidate(gomock.Any(), int64(21)).Return(nil)
	s.NoError(s.svc.Invalidate(s.ctx, 21))

	s.cache.EXPECT().Invalidate(gomock.Any(), int64(22)).Return(errors.New("down"))
	s.ErrorIs(s.svc.Invalidate(s.ctx, 22), apperrors.ErrCacheUnavailable)
}
