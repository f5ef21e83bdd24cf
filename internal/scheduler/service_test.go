package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Radia-Labs/radia-collectibles/pkg/changestream"
	"github.com/Radia-Labs/radia-collectibles/pkg/jobs"
	"github.com/Radia-Labs/radia-collectibles/pkg/logger"
	"github.com/Radia-Labs/radia-collectibles/pkg/producer"
	"github.com/Radia-Labs/radia-collectibles/pkg/retry"
	"github.com/Radia-Labs/radia-collectibles/pkg/store"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// Mocks
type MockTokenStore struct{ mock.Mock }

func (m *MockTokenStore) Save(ctx context.Context, token bson.Raw) error {
	return m.Called(ctx, token).Error(0)
}
func (m *MockTokenStore) Load(ctx context.Context) (bson.Raw, error) {
	args := m.Called(ctx)
	return args.Get(0).(bson.Raw), args.Error(1)
}

type MockProducer struct{ mock.Mock }

func (m *MockProducer) PublishAsync(ctx context.Context, key, value []byte) <-chan producer.ProduceResult {
	args := m.Called(ctx, key, value)
	return args.Get(0).(<-chan producer.ProduceResult)
}
func (m *MockProducer) Close() error { return m.Called().Error(0) }

type MockWatcher struct{ mock.Mock }

func (m *MockWatcher) Watch(ctx context.Context, token bson.Raw) (<-chan changestream.ConnectionEvent, <-chan error) {
	args := m.Called(ctx, token)
	return args.Get(0).(<-chan changestream.ConnectionEvent), args.Get(1).(<-chan error)
}
func (m *MockWatcher) Close() error { return m.Called().Error(0) }

type MockLister struct{ mock.Mock }

func (m *MockLister) ListIntegrations(ctx context.Context, provider string) ([]store.Integration, error) {
	args := m.Called(ctx, provider)
	return args.Get(0).([]store.Integration), args.Error(1)
}

func okResult() <-chan producer.ProduceResult {
	resChan := make(chan producer.ProduceResult, 1)
	resChan <- producer.ProduceResult{Error: nil}
	close(resChan)
	return resChan
}

func TestStreamCoordinationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	l, _ := logger.New(logger.Config{Level: "error", ServiceName: "test"})

	properties.Property("token is saved only after the job is published", prop.ForAll(
		func(userID string) bool {
			mt := new(MockTokenStore)
			mp := new(MockProducer)
			mw := new(MockWatcher)

			s := NewService(l, nil, mt, mw, mp, nil)
			s.retryOpts = retry.RetryOptions{MaxAttempts: 1, InitialInterval: 1 * time.Microsecond}

			event := changestream.ConnectionEvent{
				UserID:       userID,
				RefreshToken: "refresh",
				ResumeToken:  bson.Raw("token"),
			}

			mp.On("PublishAsync", mock.Anything, []byte(userID), mock.Anything).Return(okResult())
			mt.On("Save", mock.Anything, event.ResumeToken).Return(nil)

			err := s.processEvent(context.Background(), event)

			return err == nil && mt.AssertCalled(t, "Save", mock.Anything, event.ResumeToken)
		},
		gen.Identifier(),
	))

	properties.Property("token save is retried on failure", prop.ForAll(
		func(maxAttempts int) bool {
			if maxAttempts < 2 || maxAttempts > 5 {
				return true
			}
			mt := new(MockTokenStore)
			mp := new(MockProducer)
			mw := new(MockWatcher)

			s := NewService(l, nil, mt, mw, mp, nil)
			s.retryOpts = retry.RetryOptions{
				MaxAttempts:     maxAttempts,
				InitialInterval: 1 * time.Microsecond,
				Multiplier:      1.0,
			}

			event := changestream.ConnectionEvent{
				UserID:       "u1",
				RefreshToken: "refresh",
				ResumeToken:  bson.Raw("token"),
			}

			mp.On("PublishAsync", mock.Anything, mock.Anything, mock.Anything).Return(okResult())
			// Fail Save maxAttempts times
			mt.On("Save", mock.Anything, event.ResumeToken).Return(errors.New("save failed")).Times(maxAttempts)

			err := s.processEvent(context.Background(), event)

			return err != nil && mt.AssertExpectations(t)
		},
		gen.IntRange(2, 5),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestPublishedJobShape(t *testing.T) {
	l, _ := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	mt := new(MockTokenStore)
	mp := new(MockProducer)
	mw := new(MockWatcher)

	s := NewService(l, nil, mt, mw, mp, nil)
	s.retryOpts = retry.RetryOptions{MaxAttempts: 1, InitialInterval: 1 * time.Microsecond}

	var published []byte
	mp.On("PublishAsync", mock.Anything, []byte("u1"), mock.Anything).Run(func(args mock.Arguments) {
		published = args.Get(2).([]byte)
	}).Return(okResult())
	mt.On("Save", mock.Anything, mock.Anything).Return(nil)

	event := changestream.ConnectionEvent{UserID: "u1", RefreshToken: "refresh", ResumeToken: bson.Raw("token")}
	require.NoError(t, s.processEvent(context.Background(), event))

	job, err := jobs.ParseCheckJob(published)
	require.NoError(t, err)
	assert.Equal(t, "u1", job.UserID)
	assert.Equal(t, jobs.WindowAllReturned, job.Policy)
	assert.Equal(t, "connection", job.TriggeredBy)
}

func TestEventWithoutRefreshTokenAdvancesStream(t *testing.T) {
	l, _ := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	mt := new(MockTokenStore)
	mp := new(MockProducer)
	mw := new(MockWatcher)

	s := NewService(l, nil, mt, mw, mp, nil)
	s.retryOpts = retry.RetryOptions{MaxAttempts: 1, InitialInterval: 1 * time.Microsecond}

	mt.On("Save", mock.Anything, mock.Anything).Return(nil)

	event := changestream.ConnectionEvent{UserID: "u1", ResumeToken: bson.Raw("token")}
	require.NoError(t, s.processEvent(context.Background(), event))

	mp.AssertNotCalled(t, "PublishAsync", mock.Anything, mock.Anything, mock.Anything)
	mt.AssertCalled(t, "Save", mock.Anything, event.ResumeToken)
}

func TestDailySweepPublishesOneJobPerAccount(t *testing.T) {
	l, _ := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	mp := new(MockProducer)
	ml := new(MockLister)

	s := NewService(l, ml, nil, nil, mp, nil)
	s.retryOpts = retry.RetryOptions{MaxAttempts: 1, InitialInterval: 1 * time.Microsecond}

	ml.On("ListIntegrations", mock.Anything, "spotify").Return([]store.Integration{
		{UserID: "u1", RefreshToken: "r1"},
		{UserID: "u2", RefreshToken: "r2"},
	}, nil)

	var published [][]byte
	mp.On("PublishAsync", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		published = append(published, args.Get(2).([]byte))
	}).Return(okResult())

	require.NoError(t, s.RunDailySweep(context.Background()))
	require.Len(t, published, 2)

	job, err := jobs.ParseCheckJob(published[0])
	require.NoError(t, err)
	assert.Equal(t, jobs.WindowRecentDay, job.Policy)
	assert.Equal(t, "daily", job.TriggeredBy)
}

func TestDailySweepContinuesPastPublishFailure(t *testing.T) {
	l, _ := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	mp := new(MockProducer)
	ml := new(MockLister)

	s := NewService(l, ml, nil, nil, mp, nil)
	s.retryOpts = retry.RetryOptions{MaxAttempts: 1, InitialInterval: 1 * time.Microsecond}

	ml.On("ListIntegrations", mock.Anything, "spotify").Return([]store.Integration{
		{UserID: "u1", RefreshToken: "r1"},
		{UserID: "u2", RefreshToken: "r2"},
	}, nil)

	failed := make(chan producer.ProduceResult, 1)
	failed <- producer.ProduceResult{Error: errors.New("broker down")}
	close(failed)

	mp.On("PublishAsync", mock.Anything, []byte("u1"), mock.Anything).Return((<-chan producer.ProduceResult)(failed))
	mp.On("PublishAsync", mock.Anything, []byte("u2"), mock.Anything).Return(okResult())

	require.NoError(t, s.RunDailySweep(context.Background()))
	mp.AssertCalled(t, "PublishAsync", mock.Anything, []byte("u2"), mock.Anything)
}

func TestDigestSweep(t *testing.T) {
	l, _ := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	mp := new(MockProducer)
	md := new(MockProducer)
	ml := new(MockLister)

	s := NewService(l, ml, nil, nil, mp, md)
	s.retryOpts = retry.RetryOptions{MaxAttempts: 1, InitialInterval: 1 * time.Microsecond}

	ml.On("ListIntegrations", mock.Anything, "spotify").Return([]store.Integration{
		{UserID: "u1", RefreshToken: "r1"},
	}, nil)

	var published []byte
	md.On("PublishAsync", mock.Anything, []byte("u1"), mock.Anything).Run(func(args mock.Arguments) {
		published = args.Get(2).([]byte)
	}).Return(okResult())

	require.NoError(t, s.RunDigestSweep(context.Background()))
	mp.AssertNotCalled(t, "PublishAsync", mock.Anything, mock.Anything, mock.Anything)

	job, err := jobs.ParseDigestJob(published)
	require.NoError(t, err)
	assert.Equal(t, "u1", job.UserID)
}

func TestStop(t *testing.T) {
	l, _ := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	mp := new(MockProducer)
	mw := new(MockWatcher)

	s := NewService(l, nil, nil, mw, mp, nil)
	mw.On("Close").Return(nil)
	mp.On("Close").Return(nil)

	err := s.Stop(context.Background())
	assert.NoError(t, err)
	mw.AssertCalled(t, "Close")
	mp.AssertCalled(t, "Close")
}
