package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/embedhq/codevec/internal/db"
)

// Get returns the value at key, or db.ErrKeyNotFound for a missing key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.b().Get().Key(key).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// Set stores value at key without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.write(ctx, s.b().Set().Key(key).Value(string(value)).Build())
}

// SetWithTTL stores value at key, expiring after ttl.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.write(ctx, s.b().Set().Key(key).Value(string(value)).Ex(ttl).Build())
}

func (s *Store) write(ctx context.Context, cmd rueidis.Completed) error {
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}
