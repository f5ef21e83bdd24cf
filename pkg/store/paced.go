package store

import (
	"context"

	"golang.org/x/time/rate"
)

// PacedStore decorates a Store with a token bucket over mutating calls,
// capping write throughput against a shared-capacity backing store. Reads are
// never paced. A zero writesPerSecond disables pacing entirely.
type PacedStore struct {
	Store
	limiter *rate.Limiter
}

// NewPacedStore wraps inner with a write rate limit.
func NewPacedStore(inner Store, writesPerSecond float64, burst int) *PacedStore {
	var limiter *rate.Limiter
	if writesPerSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(writesPerSecond), burst)
	}
	return &PacedStore{Store: inner, limiter: limiter}
}

func (s *PacedStore) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func (s *PacedStore) PutCollectible(ctx context.Context, c *Collectible) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.Store.PutCollectible(ctx, c)
}

func (s *PacedStore) UpdateCollectible(ctx context.Context, userID string, key Key, fields map[string]interface{}) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.Store.UpdateCollectible(ctx, userID, key, fields)
}

func (s *PacedStore) PutSideRecord(ctx context.Context, userID string, key Key, body map[string]interface{}) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.Store.PutSideRecord(ctx, userID, key, body)
}
