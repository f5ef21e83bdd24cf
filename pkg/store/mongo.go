package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned by lookups that require the record to exist.
var ErrNotFound = errors.New("store: record not found")

// Store is the achievement-store contract the services depend on. Point
// lookups for collectibles return (nil, nil) on a miss: a missing accumulator
// is an expected state, not an error.
type Store interface {
	// GetCollectible returns the collectible at key, or nil when absent.
	GetCollectible(ctx context.Context, userID string, key Key) (*Collectible, error)

	// PutCollectible upserts a full collectible record.
	PutCollectible(ctx context.Context, c *Collectible) error

	// UpdateCollectible applies a partial field update to an existing record.
	UpdateCollectible(ctx context.Context, userID string, key Key, fields map[string]interface{}) error

	// QueryCollectibles returns a user's records under a sort-key prefix
	// updated strictly after updatedAfter (epoch milliseconds).
	QueryCollectibles(ctx context.Context, userID string, prefix string, updatedAfter int64) ([]Collectible, error)

	// PutSideRecord upserts a denormalized library row (artist/album/track).
	PutSideRecord(ctx context.Context, userID string, key Key, body map[string]interface{}) error

	// CountRecords counts a user's records under a sort-key prefix updated
	// strictly after updatedAfter.
	CountRecords(ctx context.Context, userID string, prefix string, updatedAfter int64) (int, error)

	// GetUser returns a user profile; a miss is ErrNotFound.
	GetUser(ctx context.Context, userID string) (*UserProfile, error)

	// ListIntegrations returns every user integration for a provider.
	ListIntegrations(ctx context.Context, provider string) ([]Integration, error)
}

// MongoStore implements Store on a single MongoDB collection of pk/sk
// documents, mirroring the original single-table layout.
type MongoStore struct {
	coll *mongo.Collection
	now  func() int64
}

// NewMongoStore creates a MongoStore over the given collection.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{
		coll: coll,
		now:  func() int64 { return time.Now().UnixMilli() },
	}
}

func (s *MongoStore) GetCollectible(ctx context.Context, userID string, key Key) (*Collectible, error) {
	var c Collectible
	err := s.coll.FindOne(ctx, bson.M{"pk": userID, "sk": key.String()}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get collectible %s: %w", key, err)
	}
	return &c, nil
}

func (s *MongoStore) PutCollectible(ctx context.Context, c *Collectible) error {
	now := s.now()
	if c.Created == 0 {
		c.Created = now
	}
	c.Updated = now

	filter := bson.M{"pk": c.UserID, "sk": c.SK}
	_, err := s.coll.ReplaceOne(ctx, filter, c, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put collectible %s: %w", c.SK, err)
	}
	return nil
}

func (s *MongoStore) UpdateCollectible(ctx context.Context, userID string, key Key, fields map[string]interface{}) error {
	set := bson.M{"updated": s.now()}
	for k, v := range fields {
		set[k] = v
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"pk": userID, "sk": key.String()}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update collectible %s: %w", key, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update collectible %s: %w", key, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) QueryCollectibles(ctx context.Context, userID string, prefix string, updatedAfter int64) ([]Collectible, error) {
	cursor, err := s.coll.Find(ctx, prefixFilter(userID, prefix, updatedAfter))
	if err != nil {
		return nil, fmt.Errorf("query collectibles %q: %w", prefix, err)
	}
	defer cursor.Close(ctx)

	var out []Collectible
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode collectibles %q: %w", prefix, err)
	}
	return out, nil
}

func (s *MongoStore) PutSideRecord(ctx context.Context, userID string, key Key, body map[string]interface{}) error {
	now := s.now()
	doc := bson.M{"pk": userID, "sk": key.String(), "created": now, "updated": now}
	for k, v := range body {
		doc[k] = v
	}

	filter := bson.M{"pk": userID, "sk": key.String()}
	_, err := s.coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *MongoStore) CountRecords(ctx context.Context, userID string, prefix string, updatedAfter int64) (int, error) {
	n, err := s.coll.CountDocuments(ctx, prefixFilter(userID, prefix, updatedAfter))
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", prefix, err)
	}
	return int(n), nil
}

func (s *MongoStore) GetUser(ctx context.Context, userID string) (*UserProfile, error) {
	var u UserProfile
	err := s.coll.FindOne(ctx, bson.M{"pk": userID, "sk": AuthKey(userID).String()}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("get user %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &u, nil
}

func (s *MongoStore) ListIntegrations(ctx context.Context, provider string) ([]Integration, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"sk": IntegrationKey(provider).String()})
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Integration
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode integrations: %w", err)
	}
	return out, nil
}

func prefixFilter(userID, prefix string, updatedAfter int64) bson.M {
	filter := bson.M{
		"pk": userID,
		"sk": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(prefix)},
	}
	if updatedAfter > 0 {
		filter["updated"] = bson.M{"$gt": updatedAfter}
	}
	return filter
}
