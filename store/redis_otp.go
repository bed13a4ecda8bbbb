package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"spotsort-be/otp"

	"github.com/redis/go-redis/v9"
)

// RedisCodeStore keeps one-time code records as JSON strings whose Redis TTL
// matches the record expiry, so superseded or stale codes disappear on their own.
type RedisCodeStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisCodeStore(client redis.UniversalClient, prefix string) *RedisCodeStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &RedisCodeStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisCodeStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *RedisCodeStore) Put(ctx context.Context, key string, rec otp.Record) error {
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode otp record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set otp: %w", err)
	}
	return nil
}

func (s *RedisCodeStore) Get(ctx context.Context, key string) (otp.Record, error) {
	payload, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return otp.Record{}, otp.ErrNotFound
	}
	if err != nil {
		return otp.Record{}, fmt.Errorf("redis get otp: %w", err)
	}

	var rec otp.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return otp.Record{}, fmt.Errorf("decode otp record: %w", err)
	}
	return rec, nil
}

func (s *RedisCodeStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del otp: %w", err)
	}
	return nil
}

// Consume deletes the record inside a WATCH transaction so that of several
// concurrent callers only the one whose EXEC lands first sees it removed.
func (s *RedisCodeStore) Consume(ctx context.Context, key, hash string) (bool, error) {
	k := s.key(key)
	consumed := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var rec otp.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("decode otp record: %w", err)
		}
		if rec.Hash != hash {
			return nil
		}

		var del *redis.IntCmd
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			del = pipe.Del(ctx, k)
			return nil
		}); err != nil {
			return err
		}
		consumed = del.Val() > 0
		return nil
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis consume otp: %w", err)
	}
	return consumed, nil
}
