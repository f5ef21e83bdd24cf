package scheduler

import (
	"context"
	"fmt"

	"github.com/Radia-Labs/radia-collectibles/pkg/changestream"
	"github.com/Radia-Labs/radia-collectibles/pkg/jobs"
	"github.com/Radia-Labs/radia-collectibles/pkg/logger"
	"github.com/Radia-Labs/radia-collectibles/pkg/metrics"
	"github.com/Radia-Labs/radia-collectibles/pkg/producer"
	"github.com/Radia-Labs/radia-collectibles/pkg/retry"
	"github.com/Radia-Labs/radia-collectibles/pkg/store"
	"github.com/Radia-Labs/radia-collectibles/pkg/token"

	"go.uber.org/zap"
)

// IntegrationLister is the store subset the sweeps need.
type IntegrationLister interface {
	ListIntegrations(ctx context.Context, provider string) ([]store.Integration, error)
}

// Service produces check and digest jobs. It runs in one of three modes:
// a change stream loop that reacts to fresh provider connections, a daily
// sweep over every linked account, and a weekly digest sweep.
type Service struct {
	logger         *logger.Logger
	lister         IntegrationLister
	tokenStore     token.TokenStore
	watcher        changestream.Watcher
	checkProducer  producer.Producer
	digestProducer producer.Producer
	retryOpts      retry.RetryOptions
	provider       string
}

// NewService creates a scheduler service. digestProducer may be nil when the
// digest sweep is not used.
func NewService(
	logger *logger.Logger,
	lister IntegrationLister,
	tokenStore token.TokenStore,
	watcher changestream.Watcher,
	checkProducer producer.Producer,
	digestProducer producer.Producer,
) *Service {
	return &Service{
		logger:         logger,
		lister:         lister,
		tokenStore:     tokenStore,
		watcher:        watcher,
		checkProducer:  checkProducer,
		digestProducer: digestProducer,
		retryOpts:      retry.DefaultOptions(),
		provider:       store.ProviderSpotify,
	}
}

// Stop gracefully shuts down the service and its dependencies
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("stopping scheduler service")

	errs := []error{}
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close watcher: %w", err))
		}
	}
	if err := s.checkProducer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}
	if s.digestProducer != nil {
		if err := s.digestProducer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close digest producer: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}

// RunStream watches the user records collection and publishes a full-history
// check job every time someone links a provider account.
func (s *Service) RunStream(ctx context.Context) error {
	s.logger.Info("starting connection stream loop")

	defer func() {
		if err := s.Stop(context.Background()); err != nil {
			s.logger.Error("error during service stop", err)
		}
	}()

	resumeToken, err := s.tokenStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load resume token: %w", err)
	}

	eventChan, errChan := s.watcher.Watch(ctx, resumeToken)

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return nil
			}
			if err := s.processEvent(ctx, event); err != nil {
				s.logger.Error("failed to process connection event", err, zap.String("user_id", event.UserID))
				return err
			}
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("change stream error: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) processEvent(ctx context.Context, event changestream.ConnectionEvent) error {
	metrics.SchedulerTriggerEventsTotal.Inc()

	if event.RefreshToken == "" {
		// Nothing to fetch history with; skip but still advance the token.
		s.logger.Warn("connection event without refresh token", zap.String("user_id", event.UserID))
	} else {
		job := jobs.CheckJob{
			UserID:       event.UserID,
			RefreshToken: event.RefreshToken,
			Policy:       jobs.WindowAllReturned,
			TriggeredBy:  "connection",
		}
		if err := s.publishCheck(ctx, job); err != nil {
			return err
		}
	}

	// Save the resume token only after the job is on the wire, so a crash
	// between the two replays the event instead of dropping it.
	err := retry.Do(ctx, func() error {
		return s.tokenStore.Save(ctx, event.ResumeToken)
	}, s.retryOpts)
	if err != nil {
		return fmt.Errorf("failed to save resume token after retries: %w", err)
	}

	s.logger.Debug("connection event processed", zap.String("user_id", event.UserID))
	return nil
}

// RunDailySweep publishes a last-24-hours check job for every linked account.
func (s *Service) RunDailySweep(ctx context.Context) error {
	integrations, err := s.lister.ListIntegrations(ctx, s.provider)
	if err != nil {
		return fmt.Errorf("list integrations: %w", err)
	}
	s.logger.Info("starting daily sweep", zap.Int("accounts", len(integrations)))

	for _, in := range integrations {
		job := jobs.CheckJob{
			UserID:       in.UserID,
			RefreshToken: in.RefreshToken,
			Policy:       jobs.WindowRecentDay,
			TriggeredBy:  "daily",
		}
		if err := s.publishCheck(ctx, job); err != nil {
			// One unpublishable account should not stall the sweep; the
			// next daily run covers it.
			s.logger.Error("failed to publish check job", err, zap.String("user_id", in.UserID))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// RunDigestSweep publishes a weekly digest job for every linked account.
func (s *Service) RunDigestSweep(ctx context.Context) error {
	if s.digestProducer == nil {
		return fmt.Errorf("digest producer not configured")
	}

	integrations, err := s.lister.ListIntegrations(ctx, s.provider)
	if err != nil {
		return fmt.Errorf("list integrations: %w", err)
	}
	s.logger.Info("starting digest sweep", zap.Int("accounts", len(integrations)))

	for _, in := range integrations {
		data, err := jobs.EncodeDigestJob(jobs.DigestJob{UserID: in.UserID, RefreshToken: in.RefreshToken})
		if err != nil {
			s.logger.Error("failed to encode digest job", err, zap.String("user_id", in.UserID))
			continue
		}
		if err := s.publish(ctx, s.digestProducer, in.UserID, data); err != nil {
			s.logger.Error("failed to publish digest job", err, zap.String("user_id", in.UserID))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (s *Service) publishCheck(ctx context.Context, job jobs.CheckJob) error {
	data, err := jobs.EncodeCheckJob(job)
	if err != nil {
		return fmt.Errorf("encode check job: %w", err)
	}
	return s.publish(ctx, s.checkProducer, job.UserID, data)
}

func (s *Service) publish(ctx context.Context, p producer.Producer, userID string, data []byte) error {
	err := retry.Do(ctx, func() error {
		resultChan := p.PublishAsync(ctx, []byte(userID), data)
		result := <-resultChan
		return result.Error
	}, s.retryOpts)

	if err != nil {
		metrics.SchedulerPublishErrorsTotal.Inc()
		return fmt.Errorf("failed to publish job after retries: %w", err)
	}
	metrics.SchedulerJobsPublishedTotal.Inc()
	return nil
}
