package docstore

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisSource reads documents mirrored into Redis: one hash per
// collection (`<prefix>:<collection>`, field = document id, value = JSON
// body) plus a pub/sub invalidation channel per collection
// (`<prefix>:events:<collection>`). cmd/mirror maintains both.
type RedisSource struct {
	client *redis.Client
	prefix string
}

func NewRedisSource(addr, password, prefix string) *RedisSource {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisSource{client: c, prefix: prefix}
}

func (r *RedisSource) List(ctx context.Context, collection string) ([]Document, error) {
	raw, err := r.client.HGetAll(ctx, CollectionKey(r.prefix, collection)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(raw))
	for id, body := range raw {
		out = append(out, Document{ID: id, Data: json.RawMessage(body)})
	}
	return out, nil
}

func (r *RedisSource) Watch(collection string, notify func()) (func(), error) {
	pubsub := r.client.Subscribe(context.Background(), EventsChannel(r.prefix, collection))
	// Force the SUBSCRIBE round trip so a broken connection fails here,
	// not silently inside the receive loop.
	if _, err := pubsub.Receive(context.Background()); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	go func() {
		for range pubsub.Channel() {
			notify()
		}
	}()
	return func() { _ = pubsub.Close() }, nil
}

func (r *RedisSource) Close() error { return r.client.Close() }

func CollectionKey(prefix, collection string) string { return prefix + ":" + collection }

func EventsChannel(prefix, collection string) string { return prefix + ":events:" + collection }
