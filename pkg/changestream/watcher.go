package changestream

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectionEvent is emitted when a user links or relinks a streaming
// provider account. It carries enough to publish a single-user check job.
type ConnectionEvent struct {
	UserID        string              `json:"user_id"`
	Provider      string              `json:"provider"`
	RefreshToken  string              `json:"refresh_token"`
	OperationType string              `json:"operation_type"`
	ClusterTime   primitive.Timestamp `json:"cluster_time"`
	ResumeToken   bson.Raw            `json:"-"`
}

// Watcher monitors the user records collection for provider connections
type Watcher interface {
	// Watch starts monitoring the change stream from the given resume token.
	// Returns a channel of connection events and an error channel.
	Watch(ctx context.Context, resumeToken bson.Raw) (<-chan ConnectionEvent, <-chan error)

	// Close gracefully shuts down the watcher
	Close() error
}

// MongoWatcher implements the Watcher interface for MongoDB
type MongoWatcher struct {
	collection *mongo.Collection
	stream     *mongo.ChangeStream
}

// NewMongoWatcher creates a new MongoWatcher instance
func NewMongoWatcher(coll *mongo.Collection) *MongoWatcher {
	return &MongoWatcher{
		collection: coll,
	}
}

// Watch starts monitoring the change stream. Only inserts, updates and
// replaces of integration records pass the server-side pipeline; everything
// else in the collection (collectibles, accumulators, profiles) is filtered
// before it reaches us.
func (w *MongoWatcher) Watch(ctx context.Context, resumeToken bson.Raw) (<-chan ConnectionEvent, <-chan error) {
	eventChan := make(chan ConnectionEvent)
	errChan := make(chan error, 1)

	go func() {
		defer close(eventChan)
		defer close(errChan)

		opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
		if resumeToken != nil {
			opts.SetResumeAfter(resumeToken)
		}

		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: bson.D{
				{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace"}}}},
				{Key: "fullDocument.sk", Value: bson.D{{Key: "$regex", Value: "^Integration\\|"}}},
			}}},
		}

		stream, err := w.collection.Watch(ctx, pipeline, opts)
		if err != nil {
			errChan <- fmt.Errorf("failed to open change stream: %w", err)
			return
		}
		w.stream = stream
		defer stream.Close(ctx)

		for stream.Next(ctx) {
			var rawEvent bson.Raw
			if err := stream.Decode(&rawEvent); err != nil {
				errChan <- fmt.Errorf("failed to decode change event: %w", err)
				continue
			}

			event, err := parseEvent(rawEvent)
			if err != nil {
				errChan <- fmt.Errorf("failed to parse change event: %w", err)
				continue
			}

			// Attach the actual resume token from the stream
			event.ResumeToken = stream.ResumeToken()

			select {
			case eventChan <- event:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			errChan <- fmt.Errorf("change stream error: %w", err)
		}
	}()

	return eventChan, errChan
}

func parseEvent(raw bson.Raw) (ConnectionEvent, error) {
	var event struct {
		OperationType string              `bson:"operationType"`
		ClusterTime   primitive.Timestamp `bson:"clusterTime"`
		FullDocument  struct {
			PK           string `bson:"pk"`
			SK           string `bson:"sk"`
			RefreshToken string `bson:"refresh_token"`
		} `bson:"fullDocument"`
	}

	if err := bson.Unmarshal(raw, &event); err != nil {
		return ConnectionEvent{}, err
	}

	if event.FullDocument.PK == "" {
		return ConnectionEvent{}, fmt.Errorf("integration event missing user id")
	}

	provider := event.FullDocument.SK
	if i := strings.IndexByte(provider, '|'); i >= 0 {
		provider = provider[i+1:]
	}

	return ConnectionEvent{
		UserID:        event.FullDocument.PK,
		Provider:      provider,
		RefreshToken:  event.FullDocument.RefreshToken,
		OperationType: event.OperationType,
		ClusterTime:   event.ClusterTime,
	}, nil
}

// Close gracefully shuts down the watcher
func (w *MongoWatcher) Close() error {
	if w.stream != nil {
		return w.stream.Close(context.Background())
	}
	return nil
}
