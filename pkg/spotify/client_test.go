package spotify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshAccessToken(t *testing.T) {
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/token", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-abc", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-xyz","token_type":"Bearer"}`))
	}))
	defer auth.Close()

	c := NewClient(WithBaseURLs(auth.URL, auth.URL))
	token, err := c.RefreshAccessToken(context.Background(), "client-id", "client-secret", "refresh-abc")
	require.NoError(t, err)
	assert.Equal(t, "access-xyz", token)
}

func TestRecentlyPlayed(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/me/player/recently-played", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer access-xyz", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{
			"played_at":"2024-05-01T10:00:00.000Z",
			"track":{
				"id":"t1","name":"Song","duration_ms":200000,
				"artists":[{"id":"a1","name":"Artist One"}],
				"album":{"id":"al1","name":"Album","release_date":"2024-04-30","artists":[{"id":"a1","name":"Artist One"}]}
			}
		}]}`))
	}))
	defer api.Close()

	c := NewClient(WithBaseURLs(api.URL, api.URL))
	events, err := c.RecentlyPlayed(context.Background(), "access-xyz", 50)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "t1", e.Track.ID)
	assert.Equal(t, int64(200000), e.Track.DurationMs)
	assert.Equal(t, "a1", e.Track.Artists[0].ID)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), e.PlayedAt)

	release, ok := e.Track.Album.ReleaseTime()
	require.True(t, ok)
	assert.Equal(t, 2024, release.Year())
}

func TestGetArtist(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/artists/a1", r.URL.Path)
		w.Write([]byte(`{"id":"a1","name":"Artist One","genres":["indie"],"followers":{"total":1234},"images":[{"url":"https://img/x.jpg","height":640,"width":640}]}`))
	}))
	defer api.Close()

	c := NewClient(WithBaseURLs(api.URL, api.URL))
	artist, err := c.GetArtist(context.Background(), "tok", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Artist One", artist.Name)
	assert.Equal(t, 1234, artist.Followers.Total)
	assert.Equal(t, "https://img/x.jpg", artist.ImageURL())
}

func TestErrorTaxonomy(t *testing.T) {
	status := http.StatusUnauthorized
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer api.Close()

	c := NewClient(WithBaseURLs(api.URL, api.URL))

	_, err := c.GetArtist(context.Background(), "tok", "a1")
	assert.ErrorIs(t, err, ErrUnauthorized)

	status = http.StatusInternalServerError
	_, err = c.GetArtist(context.Background(), "tok", "a1")
	assert.ErrorIs(t, err, ErrTransient)

	status = http.StatusTooManyRequests
	_, err = c.RecentlyPlayed(context.Background(), "tok", 50)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestNewReleases(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/browse/new-releases", r.URL.Path)
		w.Write([]byte(`{"albums":{"items":[
			{"id":"al1","name":"Fresh","release_date":"2024-05-01","artists":[{"id":"a1","name":"Artist One"}]},
			{"id":"al2","name":"Fresher","release_date":"2024-05","artists":[{"id":"a2","name":"Artist Two"}]}
		]}}`))
	}))
	defer api.Close()

	c := NewClient(WithBaseURLs(api.URL, api.URL))
	albums, err := c.NewReleases(context.Background(), "tok", 50)
	require.NoError(t, err)
	require.Len(t, albums, 2)

	_, ok := albums[0].ReleaseTime()
	assert.True(t, ok)
	_, ok = albums[1].ReleaseTime() // month precision still parses
	assert.True(t, ok)
}

func TestReleaseTimePrecision(t *testing.T) {
	for _, tc := range []struct {
		date string
		ok   bool
	}{
		{"2024-05-01", true},
		{"2024-05", true},
		{"2024", true},
		{"", false},
		{"soon", false},
	} {
		_, ok := Album{ReleaseDate: tc.date}.ReleaseTime()
		assert.Equal(t, tc.ok, ok, "release date %q", tc.date)
	}
}
