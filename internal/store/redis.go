package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/manpreetbhatti/codesync/backend/internal/room"
)

// Rooms get their own key namespace so List can SCAN without touching
// unrelated keys. An empty prefix stores rooms under their bare id.
const DefaultKeyPrefix = "room:"

// RedisStore keeps each room as a JSON string under <prefix><roomID>
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// Creates a store on top of an existing client. A zero ttl keeps keys
// until the room empties.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Parses a redis:// URL and verifies the server answers
func DialRedis(ctx context.Context, url, prefix string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, unavailable("ping", err)
	}
	return NewRedisStore(rdb, prefix, ttl), nil
}

func (s *RedisStore) key(roomID string) string {
	return s.prefix + roomID
}

func (s *RedisStore) Get(ctx context.Context, roomID string) (*room.Room, error) {
	data, err := s.rdb.Get(ctx, s.key(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return decode(data)
}

func (s *RedisStore) Set(ctx context.Context, roomID string, r *room.Room) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(roomID), data, s.ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, roomID string) error {
	if err := s.rdb.Del(ctx, s.key(roomID)).Err(); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Walks the keyspace with SCAN so large deployments are not blocked
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("scan", err)
	}
	return ids, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
