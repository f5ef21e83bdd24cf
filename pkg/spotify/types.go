package spotify

import "time"

// Image is artwork metadata attached to albums and artists.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// ArtistRef is the lightweight artist credit embedded in tracks and albums.
type ArtistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Album carries the album metadata returned with played tracks and new
// releases. ReleaseDate keeps the API's string form; precision varies.
type Album struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	ReleaseDate          string      `json:"release_date"`
	ReleaseDatePrecision string      `json:"release_date_precision"`
	Artists              []ArtistRef `json:"artists"`
	Images               []Image     `json:"images"`
}

// ReleaseTime parses the release date at whatever precision the API gave.
// ok is false when the field is absent or unparseable.
func (a Album) ReleaseTime() (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, a.ReleaseDate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Track is a playable item with its artist credits and parent album.
type Track struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	DurationMs int64       `json:"duration_ms"`
	Album      Album       `json:"album"`
	Artists    []ArtistRef `json:"artists"`
}

// PlayEvent is one entry of a user's recently-played history.
type PlayEvent struct {
	Track    Track     `json:"track"`
	PlayedAt time.Time `json:"played_at"`
}

// Artist is the full artist record from the artist endpoint.
type Artist struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Genres    []string `json:"genres"`
	Images    []Image  `json:"images"`
	Followers struct {
		Total int `json:"total"`
	} `json:"followers"`
}

// ImageURL returns the first artwork URL, if any.
func (a Artist) ImageURL() string {
	if len(a.Images) == 0 {
		return ""
	}
	return a.Images[0].URL
}
