package digest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Radia-Labs/radia-collectibles/pkg/jobs"
	"github.com/Radia-Labs/radia-collectibles/pkg/logger"
	"github.com/Radia-Labs/radia-collectibles/pkg/mailer"
	"github.com/Radia-Labs/radia-collectibles/pkg/spotify"
	"github.com/Radia-Labs/radia-collectibles/pkg/store"
	"github.com/Radia-Labs/radia-collectibles/pkg/threshold"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore serves canned weekly records.
type fakeStore struct {
	user       *store.UserProfile
	records    []store.Collectible
	albumCount int
	trackCount int
}

func (f *fakeStore) GetCollectible(ctx context.Context, userID string, key store.Key) (*store.Collectible, error) {
	return nil, nil
}
func (f *fakeStore) PutCollectible(ctx context.Context, c *store.Collectible) error { return nil }
func (f *fakeStore) UpdateCollectible(ctx context.Context, userID string, key store.Key, fields map[string]interface{}) error {
	return nil
}
func (f *fakeStore) QueryCollectibles(ctx context.Context, userID, prefix string, updatedAfter int64) ([]store.Collectible, error) {
	var out []store.Collectible
	for _, c := range f.records {
		if strings.HasPrefix(c.SK, prefix) && c.Updated > updatedAfter {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeStore) PutSideRecord(ctx context.Context, userID string, key store.Key, body map[string]interface{}) error {
	return nil
}
func (f *fakeStore) CountRecords(ctx context.Context, userID, prefix string, updatedAfter int64) (int, error) {
	switch {
	case strings.HasPrefix(prefix, "Album"):
		return f.albumCount, nil
	case strings.HasPrefix(prefix, "Track"):
		return f.trackCount, nil
	}
	return 0, nil
}
func (f *fakeStore) GetUser(ctx context.Context, userID string) (*store.UserProfile, error) {
	if f.user == nil {
		return nil, store.ErrNotFound
	}
	cp := *f.user
	return &cp, nil
}
func (f *fakeStore) ListIntegrations(ctx context.Context, provider string) ([]store.Integration, error) {
	return nil, nil
}

type fakeSpotify struct {
	releases    []spotify.Album
	releasesErr error
}

func (f *fakeSpotify) RefreshAccessToken(ctx context.Context, clientID, clientSecret, refreshToken string) (string, error) {
	return "access-token", nil
}
func (f *fakeSpotify) NewReleases(ctx context.Context, accessToken string, limit int) ([]spotify.Album, error) {
	if f.releasesErr != nil {
		return nil, f.releasesErr
	}
	return f.releases, nil
}

type fakeSecrets struct{}

func (fakeSecrets) Get(ctx context.Context, name string) (map[string]string, error) {
	return map[string]string{"SPOTIFY_CLIENT_ID": "id", "SPOTIFY_CLIENT_SECRET": "secret"}, nil
}

type captureSender struct {
	sent []mailer.Request
}

func (s *captureSender) Send(ctx context.Context, req mailer.Request) (string, error) {
	s.sent = append(s.sent, req)
	return "msg-1", nil
}

func accumulator(artistID, artistName string, ms, created, updated int64) store.Collectible {
	return store.Collectible{
		UserID:               "u1",
		SK:                   store.CollectibleKey("spotify", threshold.StreamedMilliseconds, artistID).String(),
		Achievement:          threshold.StreamedMilliseconds,
		StreamedMilliseconds: ms,
		Created:              created,
		Updated:              updated,
		Artist:               store.ArtistSnapshot{ID: artistID, Name: artistName},
	}
}

func earnedTier(artistID string, kind threshold.Achievement, updated int64) store.Collectible {
	return store.Collectible{
		UserID:      "u1",
		SK:          store.CollectibleKey("spotify", kind, artistID).String(),
		Achievement: kind,
		Status:      store.StatusReadyToMint,
		Updated:     updated,
	}
}

func newTestService(t *testing.T, st *fakeStore, client *fakeSpotify, sender *captureSender) *Service {
	t.Helper()
	l, err := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	require.NoError(t, err)

	s := NewService(l, st, client, fakeSecrets{}, sender, nil, Config{
		EmailEnabled:  true,
		ArtistPageURL: "https://beta.radia.world/artist/",
	})
	s.now = func() time.Time { return time.Date(2024, 5, 8, 9, 0, 0, 0, time.UTC) }
	// Deterministic release picks: 0, 1, 2, ...
	next := 0
	s.pick = func(n int) int {
		i := next % n
		next++
		return i
	}
	return s
}

func TestWeeklySummaryEmail(t *testing.T) {
	recent := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC).UnixMilli()
	st := &fakeStore{
		user: &store.UserProfile{ID: "u1", Name: "Fan", Email: "fan@example.com"},
		records: []store.Collectible{
			// 80% toward 5 hours, the closest milestone.
			accumulator("a1", "Artist One", 4*threshold.HourMs, recent-10, recent),
			// 50% toward 1 hour.
			accumulator("a2", "Artist Two", threshold.HourMs/2, recent-10, recent),
			// Seeded this week but never incremented; not counted as listened.
			accumulator("a3", "Artist Three", 100, recent, recent),
			earnedTier("a4", threshold.Streamed01Hour, recent),
			// Past the last tier; nothing left to earn.
			accumulator("a5", "Artist Five", 30*threshold.HourMs, recent-10, recent),
		},
		albumCount: 6,
		trackCount: 31,
	}
	client := &fakeSpotify{
		releases: []spotify.Album{
			{ID: "al1", Name: "Fresh", Artists: []spotify.ArtistRef{{ID: "na1", Name: "New Artist"}}, Images: []spotify.Image{{URL: "https://img/1.jpg"}}},
			{ID: "al2", Name: "Fresher", Artists: []spotify.ArtistRef{{ID: "na2", Name: "Other Artist"}}},
		},
	}
	sender := &captureSender{}
	s := newTestService(t, st, client, sender)

	require.NoError(t, s.Run(context.Background(), jobs.DigestJob{UserID: "u1", RefreshToken: "r1"}))
	require.Len(t, sender.sent, 1)

	html := sender.sent[0].HTML
	// a3 was only seeded this week, so it does not count as listened.
	assert.Contains(t, html, "3 artists, 6 albums and 31 tracks")
	assert.Contains(t, html, "Collectibles earned this week: <b>1</b>")

	// Closest first: 80% beats 50%.
	a1 := strings.Index(html, "Artist One - 5 Hours Listening")
	a2 := strings.Index(html, "Artist Two - 1 Hour Listening")
	require.GreaterOrEqual(t, a1, 0)
	require.GreaterOrEqual(t, a2, 0)
	assert.Less(t, a1, a2)
	assert.Contains(t, html, "01 hours away")
	assert.Contains(t, html, "30 minutes away")
	assert.NotContains(t, html, "Artist Five")

	assert.Contains(t, html, "New Artist")
	assert.Contains(t, html, `href="https://beta.radia.world/artist/na1"`)
}

func TestDigestSkipsOptedOutUser(t *testing.T) {
	optOut := false
	st := &fakeStore{
		user: &store.UserProfile{ID: "u1", Email: "fan@example.com", EmailOptIn: &optOut},
	}
	sender := &captureSender{}
	s := newTestService(t, st, &fakeSpotify{}, sender)

	require.NoError(t, s.Run(context.Background(), jobs.DigestJob{UserID: "u1", RefreshToken: "r1"}))
	assert.Empty(t, sender.sent)
}

func TestDigestSurvivesReleaseFailure(t *testing.T) {
	recent := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC).UnixMilli()
	st := &fakeStore{
		user:    &store.UserProfile{ID: "u1", Email: "fan@example.com"},
		records: []store.Collectible{accumulator("a1", "Artist One", threshold.HourMs/2, recent-10, recent)},
	}
	client := &fakeSpotify{releasesErr: fmt.Errorf("status 500: %w", spotify.ErrTransient)}
	sender := &captureSender{}
	s := newTestService(t, st, client, sender)

	require.NoError(t, s.Run(context.Background(), jobs.DigestJob{UserID: "u1", RefreshToken: "r1"}))
	require.Len(t, sender.sent, 1)
	assert.NotContains(t, sender.sent[0].HTML, "New music picks")
}
