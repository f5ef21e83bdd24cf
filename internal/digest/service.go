package digest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/Radia-Labs/radia-collectibles/pkg/consumer"
	"github.com/Radia-Labs/radia-collectibles/pkg/jobs"
	"github.com/Radia-Labs/radia-collectibles/pkg/logger"
	"github.com/Radia-Labs/radia-collectibles/pkg/mailer"
	"github.com/Radia-Labs/radia-collectibles/pkg/metrics"
	"github.com/Radia-Labs/radia-collectibles/pkg/secrets"
	"github.com/Radia-Labs/radia-collectibles/pkg/spotify"
	"github.com/Radia-Labs/radia-collectibles/pkg/store"
	"github.com/Radia-Labs/radia-collectibles/pkg/threshold"

	"go.uber.org/zap"
)

// SpotifyAPI is the subset of the provider client the digest needs.
type SpotifyAPI interface {
	RefreshAccessToken(ctx context.Context, clientID, clientSecret, refreshToken string) (string, error)
	NewReleases(ctx context.Context, accessToken string, limit int) ([]spotify.Album, error)
}

// Config holds digest settings
type Config struct {
	Provider string
	// WindowDays bounds the summary lookback, normally 7.
	WindowDays        int
	SpotifySecretName string
	EmailEnabled      bool
	// ArtistPageURL prefixes artist links in the email.
	ArtistPageURL string
}

// Service builds and sends weekly progress summaries. One digest job per
// user: count the week's listening, pick the three milestones closest to
// completion and suggest three fresh releases.
type Service struct {
	logger   *logger.Logger
	store    store.Store
	client   SpotifyAPI
	secrets  secrets.Provider
	sender   mailer.Sender
	consumer consumer.Consumer
	cfg      Config
	now      func() time.Time
	pick     func(n int) int
}

// NewService creates a digest service.
func NewService(l *logger.Logger, st store.Store, client SpotifyAPI, sp secrets.Provider, sender mailer.Sender, c consumer.Consumer, cfg Config) *Service {
	if cfg.Provider == "" {
		cfg.Provider = store.ProviderSpotify
	}
	if cfg.WindowDays == 0 {
		cfg.WindowDays = 7
	}
	return &Service{
		logger:   l,
		store:    st,
		client:   client,
		secrets:  sp,
		sender:   sender,
		consumer: c,
		cfg:      cfg,
		now:      time.Now,
		pick:     rand.Intn,
	}
}

// Start begins the digest-job consumption loop
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting digest service")

	msgChan, errChan := s.consumer.Consume(ctx)

	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				return nil
			}
			s.handleMessage(ctx, msg)

		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("consumer error: %w", err)
			}

		case <-ctx.Done():
			return s.Shutdown(context.Background())
		}
	}
}

func (s *Service) handleMessage(ctx context.Context, msg consumer.Message) {
	job, err := jobs.ParseDigestJob(msg.Value)
	if err != nil {
		s.logger.Warn("skipping malformed digest job",
			zap.Error(err),
			zap.Int64("offset", msg.Offset))
		s.commit(ctx, msg)
		return
	}

	if err := s.Run(ctx, job); err != nil {
		s.logger.Error("digest run failed", err,
			zap.String("user_id", job.UserID),
			zap.String("job_id", job.JobID))
		// Transient upstream failures stay uncommitted for redelivery.
		if errors.Is(err, spotify.ErrTransient) {
			return
		}
	}
	s.commit(ctx, msg)
}

func (s *Service) commit(ctx context.Context, msg consumer.Message) {
	if err := s.consumer.Commit(ctx, msg); err != nil {
		s.logger.Error("failed to commit offset", err, zap.Int64("offset", msg.Offset))
	}
}

// Run builds and sends one user's summary.
func (s *Service) Run(ctx context.Context, job jobs.DigestJob) error {
	log := s.logger.ForUser(job.UserID)

	user, err := s.store.GetUser(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("load user profile: %w", err)
	}
	if !s.cfg.EmailEnabled || !user.WantsEmail() || user.Email == "" {
		log.Debug("digest skipped, user not reachable by email")
		return nil
	}

	data, err := s.buildSummary(ctx, log, job)
	if err != nil {
		return err
	}
	metrics.DigestRunsTotal.Inc()

	req, err := mailer.WeeklyProgressEmail(user.Email, *data)
	if err != nil {
		return fmt.Errorf("build weekly email: %w", err)
	}
	if _, err := s.sender.Send(ctx, req); err != nil {
		return fmt.Errorf("send weekly email: %w", err)
	}

	metrics.DigestEmailsSentTotal.Inc()
	log.Info("weekly digest sent",
		zap.Int("artists", data.ArtistCount),
		zap.Int("earned", data.CollectibleCount))
	return nil
}

func (s *Service) buildSummary(ctx context.Context, log *logger.Logger, job jobs.DigestJob) (*mailer.WeeklyData, error) {
	windowStart := s.now().Add(-time.Duration(s.cfg.WindowDays) * 24 * time.Hour).UnixMilli()

	// Accumulators touched this week. A record whose updated still equals
	// created was only seeded, not listened to.
	accumulators, err := s.store.QueryCollectibles(ctx, job.UserID, store.AccumulatorPrefix(s.cfg.Provider), windowStart)
	if err != nil {
		return nil, fmt.Errorf("query accumulators: %w", err)
	}
	artistCount := 0
	for _, c := range accumulators {
		if c.Updated > c.Created {
			artistCount++
		}
	}

	albumCount, err := s.store.CountRecords(ctx, job.UserID, store.KindPrefix(store.KindAlbum), windowStart)
	if err != nil {
		return nil, fmt.Errorf("count albums: %w", err)
	}
	trackCount, err := s.store.CountRecords(ctx, job.UserID, store.KindPrefix(store.KindTrack), windowStart)
	if err != nil {
		return nil, fmt.Errorf("count tracks: %w", err)
	}

	all, err := s.store.QueryCollectibles(ctx, job.UserID, store.CollectiblePrefix(s.cfg.Provider), windowStart)
	if err != nil {
		return nil, fmt.Errorf("query collectibles: %w", err)
	}

	earnedCount := 0
	var inProgress []store.Collectible
	for _, c := range all {
		if c.Earned() {
			earnedCount++
			continue
		}
		if c.Achievement != threshold.StreamedMilliseconds {
			continue
		}
		if _, ok := threshold.NextTier(c.StreamedMilliseconds); ok {
			inProgress = append(inProgress, c)
		}
	}

	sort.Slice(inProgress, func(i, j int) bool {
		fi, _ := threshold.ProgressFraction(inProgress[i].StreamedMilliseconds)
		fj, _ := threshold.ProgressFraction(inProgress[j].StreamedMilliseconds)
		return fi > fj
	})
	if len(inProgress) > 3 {
		inProgress = inProgress[:3]
	}

	var closest []mailer.ProgressItem
	for _, c := range inProgress {
		next, _ := threshold.NextTier(c.StreamedMilliseconds)
		left, _ := threshold.TimeRemaining(c.StreamedMilliseconds)
		closest = append(closest, mailer.ProgressItem{
			Name:     fmt.Sprintf("%s - %s", c.Artist.Name, next.Label),
			TimeLeft: left,
		})
	}

	picks := s.pickReleases(ctx, log, job.RefreshToken)

	return &mailer.WeeklyData{
		ArtistCount:      artistCount,
		AlbumCount:       albumCount,
		TrackCount:       trackCount,
		CollectibleCount: earnedCount,
		CloseToEarning:   closest,
		TopPicks:         picks,
		ArtistPageURL:    s.cfg.ArtistPageURL,
	}, nil
}

// pickReleases suggests up to three distinct new releases. The summary is
// still worth sending without them, so provider failures degrade to none.
func (s *Service) pickReleases(ctx context.Context, log *logger.Logger, refreshToken string) []mailer.ReleasePick {
	bundle, err := s.secrets.Get(ctx, s.cfg.SpotifySecretName)
	if err != nil {
		log.Warn("skipping release picks, no provider credentials", zap.Error(err))
		return nil
	}
	accessToken, err := s.client.RefreshAccessToken(ctx, bundle["SPOTIFY_CLIENT_ID"], bundle["SPOTIFY_CLIENT_SECRET"], refreshToken)
	if err != nil {
		log.Warn("skipping release picks, token refresh failed", zap.Error(err))
		return nil
	}
	albums, err := s.client.NewReleases(ctx, accessToken, 50)
	if err != nil {
		log.Warn("skipping release picks, new releases unavailable", zap.Error(err))
		return nil
	}
	if len(albums) == 0 {
		return nil
	}

	var picks []mailer.ReleasePick
	used := make(map[int]struct{})
	for len(picks) < 3 && len(used) < len(albums) {
		i := s.pick(len(albums))
		if _, ok := used[i]; ok {
			continue
		}
		used[i] = struct{}{}

		album := albums[i]
		if len(album.Artists) == 0 {
			continue
		}
		pick := mailer.ReleasePick{
			ArtistID:   album.Artists[0].ID,
			ArtistName: album.Artists[0].Name,
			AlbumName:  album.Name,
		}
		if len(album.Images) > 0 {
			pick.ImageURL = album.Images[0].URL
		}
		picks = append(picks, pick)
	}
	return picks
}

// Shutdown stops the service gracefully
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down digest service")
	return s.consumer.Close()
}
