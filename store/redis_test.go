package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/authgate/authgate"
)

func newTestRedis(t *testing.T) (*RedisTokenStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis failed to start: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisTokenStore(client, "test:"), mr
}

func testRecord(id, userID string) authgate.RefreshTokenRecord {
	return authgate.RefreshTokenRecord{
		ID:        id,
		UserID:    userID,
		TokenHash: "digest-" + id,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestRedisCreateAndFindLive(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()

	if err := s.Create(ctx, testRecord("r1", "u1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, testRecord("r2", "u1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, testRecord("r3", "u2")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	live, err := s.FindLive(ctx, "u1")
	if err != nil {
		t.Fatalf("FindLive failed: %v", err)
	}
	if len(live) != 2 {
		t.Fatalf("expected 2 live records for u1, got %d", len(live))
	}
	for _, record := range live {
		if record.UserID != "u1" || record.TokenHash == "" {
			t.Fatalf("malformed record: %+v", record)
		}
	}

	live, err = s.FindLive(ctx, "nobody")
	if err != nil {
		t.Fatalf("FindLive failed: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("expected no records for unknown user, got %d", len(live))
	}
}

func TestRedisCreateRejectsExpiredRecord(t *testing.T) {
	s, _ := newTestRedis(t)

	record := testRecord("r1", "u1")
	record.ExpiresAt = time.Now().Add(-time.Minute)
	if err := s.Create(context.Background(), record); err == nil {
		t.Fatal("expired record accepted")
	}
}

func TestRedisRevokeSingleTransition(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()

	if err := s.Create(ctx, testRecord("r1", "u1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	performed, err := s.Revoke(ctx, "r1")
	if err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if !performed {
		t.Fatal("first revoke must perform the transition")
	}

	// second revoke is a no-op, not an error
	performed, err = s.Revoke(ctx, "r1")
	if err != nil {
		t.Fatalf("second Revoke failed: %v", err)
	}
	if performed {
		t.Fatal("second revoke must not perform the transition")
	}

	// missing records are also a quiet no-op
	performed, err = s.Revoke(ctx, "ghost")
	if err != nil {
		t.Fatalf("Revoke of missing record failed: %v", err)
	}
	if performed {
		t.Fatal("revoke of missing record must not perform")
	}

	live, err := s.FindLive(ctx, "u1")
	if err != nil {
		t.Fatalf("FindLive failed: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("revoked record still live: %d", len(live))
	}
}

func TestRedisRevokeAll(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := s.Create(ctx, testRecord(id, "u1")); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	if err := s.RevokeAll(ctx, "u1"); err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}

	live, err := s.FindLive(ctx, "u1")
	if err != nil {
		t.Fatalf("FindLive failed: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("expected no live records after RevokeAll, got %d", len(live))
	}

	// revoking an empty user is fine
	if err := s.RevokeAll(ctx, "nobody"); err != nil {
		t.Fatalf("RevokeAll on unknown user failed: %v", err)
	}
}

func TestRedisRevokeAllSkipsExpiredRecords(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	short := testRecord("r1", "u1")
	short.ExpiresAt = time.Now().Add(time.Minute)
	if err := s.Create(ctx, short); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, testRecord("r2", "u1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// r1's record key hits its TTL while its id lingers in the index
	mr.FastForward(2 * time.Minute)

	if err := s.RevokeAll(ctx, "u1"); err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}

	// the expired record must not come back as a TTL-less stub
	if mr.Exists("test:rt:r1") {
		t.Fatal("RevokeAll resurrected an expired record key")
	}

	// the surviving record is revoked and still carries its expiry
	live, err := s.FindLive(ctx, "u1")
	if err != nil {
		t.Fatalf("FindLive failed: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("expected no live records, got %d", len(live))
	}
	if ttl := mr.TTL("test:rt:r2"); ttl <= 0 {
		t.Fatalf("surviving record lost its TTL: %v", ttl)
	}
}

func TestRedisDeleteAll(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2"} {
		if err := s.Create(ctx, testRecord(id, "u1")); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	if err := s.DeleteAll(ctx, "u1"); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	if mr.Exists("test:rt:r1") || mr.Exists("test:rt:r2") || mr.Exists("test:rtu:u1") {
		t.Fatal("keys survived DeleteAll")
	}
}

func TestRedisFindLivePrunesStaleIndex(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	if err := s.Create(ctx, testRecord("r1", "u1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// record hash expires, index entry lingers
	mr.Del("test:rt:r1")

	live, err := s.FindLive(ctx, "u1")
	if err != nil {
		t.Fatalf("FindLive failed: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("expected no live records, got %d", len(live))
	}

	members, err := mr.SMembers("test:rtu:u1")
	if err == nil && len(members) != 0 {
		t.Fatalf("stale index entry not pruned: %v", members)
	}
}

func TestRedisRecordTTLTracksExpiry(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	record := testRecord("r1", "u1")
	record.ExpiresAt = time.Now().Add(time.Minute)
	if err := s.Create(ctx, record); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	live, err := s.FindLive(ctx, "u1")
	if err != nil {
		t.Fatalf("FindLive failed: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("expected record expired, got %d live", len(live))
	}
}
