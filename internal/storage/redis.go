package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"anonchat/internal/redis"
)

const stateKey = "anonchat:state"

// RedisBackend keeps the snapshot document under a single key.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(encodeDocument(snap))
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := b.client.Set(ctx, stateKey, data, 0); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

func (b *RedisBackend) Load(ctx context.Context) Snapshot {
	raw, err := b.client.Get(ctx, stateKey)
	if err != nil {
		// Missing key and read failures alike mean a clean start.
		return Snapshot{}
	}
	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Snapshot{}
	}
	return decodeDocument(doc)
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
