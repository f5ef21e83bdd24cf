package store

import (
	"fmt"
	"strings"

	"github.com/Radia-Labs/radia-collectibles/pkg/threshold"
)

// Kind is the leading segment of a sort key, naming the record family.
type Kind string

const (
	KindCollectible Kind = "Collectible"
	KindArtist      Kind = "Artist"
	KindAlbum       Kind = "Album"
	KindTrack       Kind = "Track"
	KindAuth        Kind = "Auth"
	KindIntegration Kind = "Integration"
)

// ProviderSpotify is the only streaming provider currently wired.
const ProviderSpotify = "spotify"

// Key is a typed composite sort key. Its serialized form is
// "Kind|provider|qualifier|id" with empty segments omitted, matching the
// layout of the user records table.
type Key struct {
	Kind      Kind
	Provider  string
	Qualifier string
	ID        string
}

// String serializes the key. Segments are joined with "|" in declaration
// order; empty segments are skipped.
func (k Key) String() string {
	parts := []string{string(k.Kind)}
	for _, s := range []string{k.Provider, k.Qualifier, k.ID} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "|")
}

// CollectibleKey addresses one achievement record for an artist.
func CollectibleKey(provider string, kind threshold.Achievement, artistID string) Key {
	return Key{Kind: KindCollectible, Provider: provider, Qualifier: string(kind), ID: artistID}
}

// ArtistKey addresses a denormalized artist row in a user's library.
func ArtistKey(provider, artistID string) Key {
	return Key{Kind: KindArtist, Provider: provider, ID: artistID}
}

// AlbumKey addresses a denormalized album row in a user's library.
func AlbumKey(provider, albumID string) Key {
	return Key{Kind: KindAlbum, Provider: provider, ID: albumID}
}

// TrackKey addresses a denormalized track row in a user's library.
func TrackKey(provider, trackID string) Key {
	return Key{Kind: KindTrack, Provider: provider, ID: trackID}
}

// AuthKey addresses a user's profile record.
func AuthKey(userID string) Key {
	return Key{Kind: KindAuth, ID: userID}
}

// IntegrationKey addresses a user's streaming-provider integration record.
func IntegrationKey(provider string) Key {
	return Key{Kind: KindIntegration, Provider: provider}
}

// CollectiblePrefix matches every collectible for a provider.
func CollectiblePrefix(provider string) string {
	return fmt.Sprintf("%s|%s|", KindCollectible, provider)
}

// AccumulatorPrefix matches only streamedMilliseconds accumulator records.
func AccumulatorPrefix(provider string) string {
	return fmt.Sprintf("%s|%s|%s", KindCollectible, provider, threshold.StreamedMilliseconds)
}

// KindPrefix matches every record of a family regardless of provider.
func KindPrefix(kind Kind) string {
	return string(kind) + "|"
}

// ParseKey deserializes and validates a composite key string.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "|")
	if len(parts) < 2 {
		return Key{}, fmt.Errorf("key %q: want at least 2 segments, got %d", s, len(parts))
	}
	for i, p := range parts {
		if p == "" {
			return Key{}, fmt.Errorf("key %q: empty segment at position %d", s, i)
		}
	}

	kind := Kind(parts[0])
	switch kind {
	case KindCollectible:
		if len(parts) != 4 {
			return Key{}, fmt.Errorf("key %q: collectible keys have 4 segments", s)
		}
		return Key{Kind: kind, Provider: parts[1], Qualifier: parts[2], ID: parts[3]}, nil
	case KindArtist, KindAlbum, KindTrack:
		if len(parts) != 3 {
			return Key{}, fmt.Errorf("key %q: %s keys have 3 segments", s, kind)
		}
		return Key{Kind: kind, Provider: parts[1], ID: parts[2]}, nil
	case KindAuth:
		if len(parts) != 2 {
			return Key{}, fmt.Errorf("key %q: auth keys have 2 segments", s)
		}
		return Key{Kind: kind, ID: parts[1]}, nil
	case KindIntegration:
		if len(parts) != 2 {
			return Key{}, fmt.Errorf("key %q: integration keys have 2 segments", s)
		}
		return Key{Kind: kind, Provider: parts[1]}, nil
	default:
		return Key{}, fmt.Errorf("key %q: unknown kind %q", s, parts[0])
	}
}
