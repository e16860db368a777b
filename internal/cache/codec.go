package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetJSON loads key and decodes it into dst. A nil store behaves as a miss.
func GetJSON(ctx context.Context, store Store, key string, dst any) error {
	if store == nil {
		return ErrCacheMiss
	}
	raw, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode cached %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, store Store, key string, v any, ttl time.Duration) error {
	if store == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Set(ctx, key, raw, ttl)
}
