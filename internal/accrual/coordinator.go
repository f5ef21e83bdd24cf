package accrual

import (
	"context"
	"fmt"
	"time"

	"github.com/Radia-Labs/radia-collectibles/pkg/directory"
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

// SpotifyAPI is the subset of the provider client the coordinator needs.
type SpotifyAPI interface {
	RefreshAccessToken(ctx context.Context, clientID, clientSecret, refreshToken string) (string, error)
	RecentlyPlayed(ctx context.Context, accessToken string, limit int) ([]spotify.PlayEvent, error)
	GetArtist(ctx context.Context, accessToken, id string) (*spotify.Artist, error)
}

// Config holds coordinator settings
type Config struct {
	Provider string
	// RecentLimit is the history page size requested from the provider.
	RecentLimit int
	// SpotifySecretName names the client credential bundle.
	SpotifySecretName string
	EmailEnabled      bool
}

// Coordinator runs one user's accrual check end to end: refresh the access
// token, fetch recent plays, accrue listening time per artist and create any
// newly earned collectibles. It implements the worker pool's Runner.
//
// Failures before the per-play loop abort the run; failures inside it are
// absorbed per item so one bad artist cannot starve the rest. There are no
// retries in here, the next scheduled run catches up naturally.
type Coordinator struct {
	logger  *logger.Logger
	store   store.Store
	client  SpotifyAPI
	secrets secrets.Provider
	dir     directory.Directory
	sender  mailer.Sender
	cfg     Config
	now     func() time.Time
}

// NewCoordinator creates a Coordinator. dir may be nil when no artist
// directory is configured.
func NewCoordinator(l *logger.Logger, st store.Store, client SpotifyAPI, sp secrets.Provider, dir directory.Directory, sender mailer.Sender, cfg Config) *Coordinator {
	if cfg.Provider == "" {
		cfg.Provider = store.ProviderSpotify
	}
	if cfg.RecentLimit == 0 {
		cfg.RecentLimit = 50
	}
	return &Coordinator{
		logger:  l,
		store:   st,
		client:  client,
		secrets: sp,
		dir:     dir,
		sender:  sender,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Run executes one check job.
func (c *Coordinator) Run(ctx context.Context, job jobs.CheckJob) error {
	log := c.logger.ForUser(job.UserID)

	bundle, err := c.secrets.Get(ctx, c.cfg.SpotifySecretName)
	if err != nil {
		return fmt.Errorf("load provider credentials: %w", err)
	}

	accessToken, err := c.client.RefreshAccessToken(ctx, bundle["SPOTIFY_CLIENT_ID"], bundle["SPOTIFY_CLIENT_SECRET"], job.RefreshToken)
	if err != nil {
		return fmt.Errorf("refresh access token: %w", err)
	}

	plays, err := c.client.RecentlyPlayed(ctx, accessToken, c.cfg.RecentLimit)
	if err != nil {
		return fmt.Errorf("fetch recently played: %w", err)
	}

	user, err := c.store.GetUser(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("load user profile: %w", err)
	}

	window := filterWindow(plays, job.Policy, c.now())
	log.Info("processing play history",
		zap.Int("returned", len(plays)),
		zap.Int("in_window", len(window)),
		zap.String("policy", string(job.Policy)))

	run := &runState{
		user:        user,
		accessToken: accessToken,
		artists:     make(map[string]*spotify.Artist),
		buffer:      directory.NewBuffer(64),
	}

	for _, play := range window {
		metrics.AccrualPlaysProcessedTotal.Inc()
		c.processPlay(ctx, log, job.UserID, run, play)
	}

	c.checkEarlyListens(ctx, log, job.UserID, run, window)
	c.flushDirectory(ctx, log, run)
	c.notify(ctx, log, run)

	return nil
}

// runState accumulates per-run caches and outcomes.
type runState struct {
	user        *store.UserProfile
	accessToken string
	// artists caches provider lookups; one fetch per artist per run.
	artists map[string]*spotify.Artist
	buffer  *directory.Buffer
	// earned collects milestone labels for the notification email.
	earned []string
}

// processPlay records the play's library rows and accrues listening time for
// every credited artist. All failures here are item-level.
func (c *Coordinator) processPlay(ctx context.Context, log *logger.Logger, userID string, run *runState, play spotify.PlayEvent) {
	c.putLibraryRows(ctx, log, userID, play)

	for _, ref := range play.Track.Artists {
		artist, err := c.lookupArtist(ctx, run, ref.ID)
		if err != nil {
			c.itemError(log, "fetch artist", err, zap.String("artist_id", ref.ID))
			continue
		}

		if err := c.putArtistRows(ctx, userID, run, artist); err != nil {
			c.itemError(log, "write artist rows", err, zap.String("artist_id", artist.ID))
		}

		if err := c.accrue(ctx, log, userID, run, artist, play.Track.DurationMs); err != nil {
			c.itemError(log, "accrue listening time", err, zap.String("artist_id", artist.ID))
		}
	}
}

// accrue adds the track duration to the artist's accumulator and creates
// collectibles for any tier the new total crossed.
func (c *Coordinator) accrue(ctx context.Context, log *logger.Logger, userID string, run *runState, artist *spotify.Artist, durationMs int64) error {
	accKey := store.CollectibleKey(c.cfg.Provider, threshold.StreamedMilliseconds, artist.ID)
	current, err := c.store.GetCollectible(ctx, userID, accKey)
	if err != nil {
		return err
	}

	snapshot := artistSnapshot(artist)

	if current == nil {
		// First sighting of this artist: seed the accumulator. Tier checks
		// start from the next play so the creation write stays cheap.
		c.observeWrite(func() {
			err = c.store.PutCollectible(ctx, &store.Collectible{
				UserID:               userID,
				SK:                   accKey.String(),
				Achievement:          threshold.StreamedMilliseconds,
				StreamedMilliseconds: durationMs,
				Artist:               snapshot,
				User:                 run.user.Snapshot(),
			})
		})
		return err
	}

	newTotal := current.StreamedMilliseconds + durationMs
	c.observeWrite(func() {
		err = c.store.UpdateCollectible(ctx, userID, accKey, map[string]interface{}{
			"streamedMilliseconds": newTotal,
		})
	})
	if err != nil {
		return err
	}

	for _, kind := range threshold.TiersCrossed(current.StreamedMilliseconds, newTotal) {
		if err := c.createTier(ctx, log, userID, run, kind, snapshot, newTotal); err != nil {
			c.itemError(log, "create tier collectible", err,
				zap.String("artist_id", artist.ID),
				zap.String("achievement", string(kind)))
		}
	}
	return nil
}

// createTier creates the milestone record for kind exactly once.
func (c *Coordinator) createTier(ctx context.Context, log *logger.Logger, userID string, run *runState, kind threshold.Achievement, artist store.ArtistSnapshot, totalMs int64) error {
	key := store.CollectibleKey(c.cfg.Provider, kind, artist.ID)
	existing, err := c.store.GetCollectible(ctx, userID, key)
	if err != nil {
		return err
	}
	if existing != nil {
		// Already earned on a previous run.
		return nil
	}

	c.observeWrite(func() {
		err = c.store.PutCollectible(ctx, &store.Collectible{
			UserID:               userID,
			SK:                   key.String(),
			Achievement:          kind,
			StreamedMilliseconds: totalMs,
			Status:               store.StatusReadyToMint,
			Artist:               artist,
			User:                 run.user.Snapshot(),
		})
	})
	if err != nil {
		return err
	}

	metrics.AccrualTiersUnlockedTotal.Inc()
	tier, _ := threshold.TierFor(kind)
	log.Info("tier unlocked",
		zap.String("artist", artist.Name),
		zap.String("achievement", string(kind)))
	run.earned = append(run.earned, fmt.Sprintf("%s - %s", artist.Name, tier.Label))

	if c.dir != nil {
		if err := c.dir.MarkCollectible(ctx, artist.ID); err != nil {
			c.itemError(log, "mark directory collectible", err, zap.String("artist_id", artist.ID))
		}
	}
	return nil
}

// checkEarlyListens awards the first-24-hours collectible for tracks played
// within a day of their album release. One record per track's primary artist.
func (c *Coordinator) checkEarlyListens(ctx context.Context, log *logger.Logger, userID string, run *runState, window []spotify.PlayEvent) {
	now := c.now()
	for _, play := range window {
		release, ok := play.Track.Album.ReleaseTime()
		if !ok {
			continue
		}
		age := now.Sub(release)
		if age <= 0 || age >= 24*time.Hour {
			continue
		}
		if len(play.Track.Artists) == 0 {
			continue
		}

		artist, err := c.lookupArtist(ctx, run, play.Track.Artists[0].ID)
		if err != nil {
			c.itemError(log, "fetch artist for early listen", err, zap.String("track_id", play.Track.ID))
			continue
		}

		key := store.CollectibleKey(c.cfg.Provider, threshold.StreamedTrackInFirst24Hours, artist.ID)
		existing, err := c.store.GetCollectible(ctx, userID, key)
		if err != nil {
			c.itemError(log, "check early listen collectible", err, zap.String("artist_id", artist.ID))
			continue
		}
		if existing != nil {
			continue
		}

		c.observeWrite(func() {
			err = c.store.PutCollectible(ctx, &store.Collectible{
				UserID:      userID,
				SK:          key.String(),
				Achievement: threshold.StreamedTrackInFirst24Hours,
				Status:      store.StatusReadyToMint,
				Artist:      artistSnapshot(artist),
				User:        run.user.Snapshot(),
				Track: &store.TrackSnapshot{
					ID:       play.Track.ID,
					Name:     play.Track.Name,
					AlbumID:  play.Track.Album.ID,
					PlayedAt: play.PlayedAt.UnixMilli(),
				},
			})
		})
		if err != nil {
			c.itemError(log, "create early listen collectible", err, zap.String("artist_id", artist.ID))
			continue
		}

		metrics.AccrualTiersUnlockedTotal.Inc()
		log.Info("early listen collectible created",
			zap.String("artist", artist.Name),
			zap.String("track", play.Track.Name))
		run.earned = append(run.earned, fmt.Sprintf("%s - Day One Listener", artist.Name))
	}
}

// putLibraryRows records the album and track of a play in the user's library.
func (c *Coordinator) putLibraryRows(ctx context.Context, log *logger.Logger, userID string, play spotify.PlayEvent) {
	album := play.Track.Album
	if album.ID != "" {
		err := c.store.PutSideRecord(ctx, userID, store.AlbumKey(c.cfg.Provider, album.ID), map[string]interface{}{
			"id":           album.ID,
			"name":         album.Name,
			"release_date": album.ReleaseDate,
		})
		if err != nil {
			c.itemError(log, "write album row", err, zap.String("album_id", album.ID))
		}
	}

	if play.Track.ID != "" {
		err := c.store.PutSideRecord(ctx, userID, store.TrackKey(c.cfg.Provider, play.Track.ID), map[string]interface{}{
			"id":          play.Track.ID,
			"name":        play.Track.Name,
			"duration_ms": play.Track.DurationMs,
			"album_id":    album.ID,
		})
		if err != nil {
			c.itemError(log, "write track row", err, zap.String("track_id", play.Track.ID))
		}
	}
}

// putArtistRows records the artist in the user's library and stages the
// global directory row.
func (c *Coordinator) putArtistRows(ctx context.Context, userID string, run *runState, artist *spotify.Artist) error {
	err := c.store.PutSideRecord(ctx, userID, store.ArtistKey(c.cfg.Provider, artist.ID), map[string]interface{}{
		"id":        artist.ID,
		"name":      artist.Name,
		"genres":    artist.Genres,
		"followers": artist.Followers.Total,
		"image_url": artist.ImageURL(),
	})
	if err != nil {
		return err
	}

	if c.dir != nil {
		run.buffer.Add(directory.ArtistRow{
			ID:        artist.ID,
			Name:      artist.Name,
			Genres:    artist.Genres,
			Followers: artist.Followers.Total,
			ImageURL:  artist.ImageURL(),
			LastSeen:  c.now(),
		})
	}
	return nil
}

func (c *Coordinator) flushDirectory(ctx context.Context, log *logger.Logger, run *runState) {
	if c.dir == nil {
		return
	}
	rows := run.buffer.Flush()
	if len(rows) == 0 {
		return
	}
	if err := c.dir.UpsertBatch(ctx, rows); err != nil {
		c.itemError(log, "flush artist directory", err, zap.Int("rows", len(rows)))
	}
}

// notify sends at most one congratulations email per run.
func (c *Coordinator) notify(ctx context.Context, log *logger.Logger, run *runState) {
	if len(run.earned) == 0 || !c.cfg.EmailEnabled || c.sender == nil {
		return
	}
	if !run.user.WantsEmail() || run.user.Email == "" {
		return
	}

	req, err := mailer.CollectibleEarnedEmail(run.user.Email, dedupe(run.earned))
	if err != nil {
		c.itemError(log, "build earned email", err)
		return
	}
	if _, err := c.sender.Send(ctx, req); err != nil {
		c.itemError(log, "send earned email", err)
		return
	}
	log.Info("earned email sent", zap.Int("milestones", len(run.earned)))
}

func (c *Coordinator) lookupArtist(ctx context.Context, run *runState, id string) (*spotify.Artist, error) {
	if a, ok := run.artists[id]; ok {
		return a, nil
	}
	a, err := c.client.GetArtist(ctx, run.accessToken, id)
	if err != nil {
		return nil, err
	}
	run.artists[id] = a
	return a, nil
}

func (c *Coordinator) itemError(log *logger.Logger, msg string, err error, fields ...zap.Field) {
	metrics.AccrualItemErrorsTotal.Inc()
	log.Error(msg, err, fields...)
}

func (c *Coordinator) observeWrite(write func()) {
	start := time.Now()
	write()
	metrics.AccrualStoreWriteLatency.Observe(time.Since(start).Seconds())
}

// filterWindow applies the job's window policy to the fetched history.
func filterWindow(plays []spotify.PlayEvent, policy jobs.WindowPolicy, now time.Time) []spotify.PlayEvent {
	if policy != jobs.WindowRecentDay {
		return plays
	}
	cutoff := now.Add(-24 * time.Hour)
	var out []spotify.PlayEvent
	for _, p := range plays {
		if p.PlayedAt.After(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

func artistSnapshot(a *spotify.Artist) store.ArtistSnapshot {
	return store.ArtistSnapshot{
		ID:        a.ID,
		Name:      a.Name,
		Genres:    a.Genres,
		ImageURL:  a.ImageURL(),
		Followers: a.Followers.Total,
	}
}

func dedupe(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	var out []string
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
