package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound means the named secret does not exist. Setup-phase errors
	// like this abort the run.
	ErrNotFound = errors.New("secrets: not found")
	// ErrInvalidRequest means the backend rejected the lookup.
	ErrInvalidRequest = errors.New("secrets: invalid request")
	// ErrInvalidParameter means the secret name is unusable.
	ErrInvalidParameter = errors.New("secrets: invalid parameter")
)

// Provider resolves a named secret to its key/value bundle.
type Provider interface {
	Get(ctx context.Context, name string) (map[string]string, error)
}

// FileProvider reads secrets from a single JSON file mapping secret names to
// string/string bundles. Suited to local development.
type FileProvider struct {
	path string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) Get(ctx context.Context, name string) (map[string]string, error) {
	if name == "" {
		return nil, ErrInvalidParameter
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("secret file %s: %w", p.path, ErrNotFound)
		}
		return nil, fmt.Errorf("read secret file: %v: %w", err, ErrInvalidRequest)
	}

	var bundles map[string]map[string]string
	if err := json.Unmarshal(data, &bundles); err != nil {
		return nil, fmt.Errorf("parse secret file: %v: %w", err, ErrInvalidRequest)
	}

	bundle, ok := bundles[name]
	if !ok {
		return nil, fmt.Errorf("secret %q: %w", name, ErrNotFound)
	}
	return bundle, nil
}

// RedisProvider reads secrets stored as JSON bundles under a key prefix.
type RedisProvider struct {
	client *redis.Client
	prefix string
}

func NewRedisProvider(client *redis.Client, prefix string) *RedisProvider {
	return &RedisProvider{client: client, prefix: prefix}
}

func (p *RedisProvider) Get(ctx context.Context, name string) (map[string]string, error) {
	if name == "" {
		return nil, ErrInvalidParameter
	}

	data, err := p.client.Get(ctx, p.prefix+name).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("secret %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("redis get secret: %v: %w", err, ErrInvalidRequest)
	}

	var bundle map[string]string
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parse secret %q: %v: %w", name, err, ErrInvalidRequest)
	}
	return bundle, nil
}
