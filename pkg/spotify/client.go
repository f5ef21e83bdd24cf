package spotify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ErrUnauthorized is returned on a 401 from the API: the access or refresh
// token is expired or revoked. Not retryable within a run.
var ErrUnauthorized = errors.New("spotify: unauthorized")

// ErrTransient is returned for any other upstream failure. The item is
// skipped and the next scheduled run catches up.
var ErrTransient = errors.New("spotify: transient upstream error")

const (
	defaultAuthURL = "https://accounts.spotify.com"
	defaultAPIURL  = "https://api.spotify.com"
)

// Client is the streaming-provider HTTP client.
type Client struct {
	authURL    string
	apiURL     string
	httpClient *http.Client
}

// Option overrides client defaults.
type Option func(*Client)

// WithBaseURLs points the client at alternate endpoints (used in tests).
func WithBaseURLs(authURL, apiURL string) Option {
	return func(c *Client) {
		c.authURL = strings.TrimSuffix(authURL, "/")
		c.apiURL = strings.TrimSuffix(apiURL, "/")
	}
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a Client with a 30s request timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		authURL:    defaultAuthURL,
		apiURL:     defaultAPIURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RefreshAccessToken exchanges a user's refresh token for a fresh access
// token using the app's client credentials.
func (c *Client) RefreshAccessToken(ctx context.Context, clientID, clientSecret, refreshToken string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("unmarshal token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token: %w", ErrTransient)
	}
	return token.AccessToken, nil
}

// RecentlyPlayed returns the user's recently-played history, newest first.
func (c *Client) RecentlyPlayed(ctx context.Context, accessToken string, limit int) ([]PlayEvent, error) {
	path := "/v1/me/player/recently-played?limit=" + strconv.Itoa(limit)
	body, err := c.get(ctx, accessToken, path)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Items []PlayEvent `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal recently played: %w", err)
	}
	return resp.Items, nil
}

// GetArtist returns the full artist record.
func (c *Client) GetArtist(ctx context.Context, accessToken, id string) (*Artist, error) {
	body, err := c.get(ctx, accessToken, "/v1/artists/"+id)
	if err != nil {
		return nil, err
	}

	var artist Artist
	if err := json.Unmarshal(body, &artist); err != nil {
		return nil, fmt.Errorf("unmarshal artist: %w", err)
	}
	return &artist, nil
}

// NewReleases returns recently released albums.
func (c *Client) NewReleases(ctx context.Context, accessToken string, limit int) ([]Album, error) {
	path := "/v1/browse/new-releases?limit=" + strconv.Itoa(limit)
	body, err := c.get(ctx, accessToken, path)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Albums struct {
			Items []Album `json:"items"`
		} `json:"albums"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal new releases: %w", err)
	}
	return resp.Albums.Items, nil
}

func (c *Client) get(ctx context.Context, accessToken, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", req.Method, req.URL.Path, err, ErrTransient)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %v: %w", err, ErrTransient)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrUnauthorized)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%s %s: status %d: %w", req.Method, req.URL.Path, resp.StatusCode, ErrTransient)
	}
	return body, nil
}
