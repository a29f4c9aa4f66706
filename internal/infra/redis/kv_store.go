package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// KVStore backs the app's key-value persistence with Redis. Keys are
// namespaced per installation so several devices can share one instance.
type KVStore struct {
	client *redis.Client
	prefix string
}

func NewKVStore(client *redis.Client, installationID string) *KVStore {
	return &KVStore{client: client, prefix: "civique:" + installationID + ":"}
}

func (s *KVStore) Get(key string) (string, bool, error) {
	value, err := s.client.Get(context.Background(), s.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *KVStore) Set(key, value string) error {
	return s.client.Set(context.Background(), s.prefix+key, value, 0).Err()
}

func (s *KVStore) Remove(key string) error {
	return s.client.Del(context.Background(), s.prefix+key).Err()
}
