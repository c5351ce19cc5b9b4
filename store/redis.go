// Package store provides reference implementations of the authgate
// collaborator interfaces: a Redis-backed refresh-token ledger, a GORM/
// Postgres store for accounts and tokens, and in-memory variants for tests.
package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/authgate/authgate"
)

const (
	redisMaxTxRetries = 16
	recordKeyPrefix   = "rt:"
	userKeyPrefix     = "rtu:"
)

// RedisTokenStore keeps the refresh-token ledger in Redis. Each record is a
// hash keyed by record id with a TTL matching the token expiry, plus a
// per-user set indexing the record ids.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenStore describes the newredistokenstore operation and its observable behavior.
//
// NewRedisTokenStore may return an error when input validation, dependency calls, or security checks fail.
// NewRedisTokenStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewRedisTokenStore(client *redis.Client, prefix string) *RedisTokenStore {
	if prefix == "" {
		prefix = "authgate:"
	}
	return &RedisTokenStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisTokenStore) recordKey(recordID string) string {
	return s.prefix + recordKeyPrefix + recordID
}

func (s *RedisTokenStore) userKey(userID string) string {
	return s.prefix + userKeyPrefix + userID
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisTokenStore) Create(ctx context.Context, record authgate.RefreshTokenRecord) error {
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return errors.New("record already expired")
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.recordKey(record.ID), map[string]interface{}{
		"user_id":    record.UserID,
		"token_hash": record.TokenHash,
		"expires_at": record.ExpiresAt.Unix(),
		"revoked":    0,
	})
	pipe.Expire(ctx, s.recordKey(record.ID), ttl)
	pipe.SAdd(ctx, s.userKey(record.UserID), record.ID)
	// the index outlives the longest possible member by a margin; stale ids
	// are pruned on read
	pipe.Expire(ctx, s.userKey(record.UserID), ttl+time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// FindLive describes the findlive operation and its observable behavior.
//
// FindLive may return an error when input validation, dependency calls, or security checks fail.
// FindLive does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisTokenStore) FindLive(ctx context.Context, userID string) ([]authgate.RefreshTokenRecord, error) {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, wrapRedisErr(err)
	}

	now := time.Now()
	var live []authgate.RefreshTokenRecord
	var stale []interface{}

	for _, id := range ids {
		record, err := s.loadRecord(ctx, id)
		if err != nil {
			if errors.Is(err, errRecordGone) {
				stale = append(stale, id)
				continue
			}
			return nil, err
		}
		if record.Live(now) {
			live = append(live, record)
		}
	}

	if len(stale) > 0 {
		_ = s.client.SRem(ctx, s.userKey(userID), stale...).Err()
	}

	return live, nil
}

var errRecordGone = errors.New("record gone")

func (s *RedisTokenStore) loadRecord(ctx context.Context, recordID string) (authgate.RefreshTokenRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(recordID)).Result()
	if err != nil {
		return authgate.RefreshTokenRecord{}, wrapRedisErr(err)
	}
	if len(fields) == 0 {
		return authgate.RefreshTokenRecord{}, errRecordGone
	}

	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return authgate.RefreshTokenRecord{}, errRecordGone
	}

	return authgate.RefreshTokenRecord{
		ID:        recordID,
		UserID:    fields["user_id"],
		TokenHash: fields["token_hash"],
		ExpiresAt: time.Unix(expiresAt, 0),
		Revoked:   fields["revoked"] == "1",
	}, nil
}

// Revoke performs the single Active to Revoked transition under WATCH so
// exactly one of any number of concurrent callers observes performed=true.
func (s *RedisTokenStore) Revoke(ctx context.Context, recordID string) (bool, error) {
	key := s.recordKey(recordID)
	performed := false

	txn := func(tx *redis.Tx) error {
		revoked, err := tx.HGet(ctx, key, "revoked").Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// expired or never existed: nothing to transition
				return nil
			}
			return err
		}
		if revoked == "1" {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "revoked", 1)
			return nil
		})
		if err != nil {
			return err
		}
		performed = true
		return nil
	}

	for i := 0; i < redisMaxTxRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return performed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			performed = false
			continue
		}
		return false, wrapRedisErr(err)
	}
	return false, authgate.ErrStoreUnavailable
}

// RevokeAll marks every record indexed for the user revoked. Each id goes
// through the same WATCH transition as a single Revoke: a blind HSet would
// resurrect ids whose record key already hit its TTL as stub hashes with no
// expiry, so ids without a live key are skipped instead.
func (s *RedisTokenStore) RevokeAll(ctx context.Context, userID string) error {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return wrapRedisErr(err)
	}

	for _, id := range ids {
		if _, err := s.Revoke(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAll describes the deleteall operation and its observable behavior.
//
// DeleteAll may return an error when input validation, dependency calls, or security checks fail.
// DeleteAll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisTokenStore) DeleteAll(ctx context.Context, userID string) error {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return wrapRedisErr(err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.recordKey(id))
	}
	keys = append(keys, s.userKey(userID))

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

func wrapRedisErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(authgate.ErrStoreUnavailable, err)
}
