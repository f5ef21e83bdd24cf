package store

import (
	"github.com/Radia-Labs/radia-collectibles/pkg/threshold"
)

// Status is the lifecycle state of an earned collectible.
type Status string

const (
	// StatusNone marks an accumulator record; it is never mintable itself.
	StatusNone Status = ""
	// StatusReadyToMint marks a tier record eligible for downstream issuance.
	StatusReadyToMint Status = "readyToMint"
	// StatusMinted marks a tier record already issued.
	StatusMinted Status = "minted"
)

// ArtistSnapshot is denormalized artist metadata copied into records at write
// time. Not authoritative; used for notification rendering.
type ArtistSnapshot struct {
	ID        string   `bson:"id" json:"id"`
	Name      string   `bson:"name" json:"name"`
	Genres    []string `bson:"genres,omitempty" json:"genres,omitempty"`
	ImageURL  string   `bson:"image_url,omitempty" json:"image_url,omitempty"`
	Followers int      `bson:"followers,omitempty" json:"followers,omitempty"`
}

// UserSnapshot is the minimal profile copied into collectible records.
type UserSnapshot struct {
	Name         string            `bson:"name" json:"name"`
	ProfileImage string            `bson:"profile_image,omitempty" json:"profile_image,omitempty"`
	VerifierID   string            `bson:"verifier_id,omitempty" json:"verifier_id,omitempty"`
	Addresses    map[string]string `bson:"addresses,omitempty" json:"addresses,omitempty"`
}

// TrackSnapshot is the played track copied into first-24-hours collectibles.
type TrackSnapshot struct {
	ID       string `bson:"id" json:"id"`
	Name     string `bson:"name" json:"name"`
	AlbumID  string `bson:"album_id,omitempty" json:"album_id,omitempty"`
	PlayedAt int64  `bson:"played_at" json:"played_at"`
}

// Collectible is one achievement record for a (user, artist) pair. The
// streamedMilliseconds accumulator is mutable; tier records are append-only
// milestone markers created exactly once.
type Collectible struct {
	UserID               string                `bson:"pk" json:"pk"`
	SK                   string                `bson:"sk" json:"sk"`
	Achievement          threshold.Achievement `bson:"achievement" json:"achievement"`
	StreamedMilliseconds int64                 `bson:"streamedMilliseconds" json:"streamedMilliseconds"`
	Status               Status                `bson:"status,omitempty" json:"status,omitempty"`
	Created              int64                 `bson:"created" json:"created"`
	Updated              int64                 `bson:"updated" json:"updated"`
	Artist               ArtistSnapshot        `bson:"artist" json:"artist"`
	User                 UserSnapshot          `bson:"user" json:"user"`
	Track                *TrackSnapshot        `bson:"track,omitempty" json:"track,omitempty"`
}

// Earned reports whether the record is a completed milestone rather than an
// in-progress accumulator.
func (c *Collectible) Earned() bool {
	return c.Status != StatusNone
}

// UserProfile is the authoritative user record under the Auth sort key.
type UserProfile struct {
	ID           string            `bson:"pk" json:"pk"`
	SK           string            `bson:"sk" json:"sk"`
	Name         string            `bson:"name" json:"name"`
	Email        string            `bson:"email" json:"email"`
	EmailOptIn   *bool             `bson:"emailOptIn,omitempty" json:"emailOptIn,omitempty"`
	ProfileImage string            `bson:"profileImage,omitempty" json:"profileImage,omitempty"`
	VerifierID   string            `bson:"verifierId,omitempty" json:"verifierId,omitempty"`
	Addresses    map[string]string `bson:"addresses,omitempty" json:"addresses,omitempty"`
}

// WantsEmail reports the opt-in state; an unset flag counts as opted in.
func (u *UserProfile) WantsEmail() bool {
	return u.EmailOptIn == nil || *u.EmailOptIn
}

// Snapshot copies the notification-rendering fields of the profile.
func (u *UserProfile) Snapshot() UserSnapshot {
	return UserSnapshot{
		Name:         u.Name,
		ProfileImage: u.ProfileImage,
		VerifierID:   u.VerifierID,
		Addresses:    u.Addresses,
	}
}

// Integration is a user's link to a streaming provider.
type Integration struct {
	UserID       string `bson:"pk" json:"pk"`
	SK           string `bson:"sk" json:"sk"`
	Provider     string `bson:"provider" json:"provider"`
	RefreshToken string `bson:"refresh_token" json:"refresh_token"`
	Updated      int64  `bson:"updated" json:"updated"`
}
