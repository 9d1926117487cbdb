package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/trinityvector/trinitymemory/internal/vectorindex"
)

// CacheMirror best-effort-mirrors the vector index's result cache
// through a shared backend so a companion process reading the same
// on-device store observes consistent cache state. It is never
// authoritative: a miss or a write failure here simply means the
// caller recomputes via the in-process cache, per the Non-goal
// excluding a replication protocol. Adapted from the teacher's
// RedisEpisodicStore, repurposed from "the episodic store itself" to
// "an optional cache mirror".
type CacheMirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheMirror connects to addr and verifies reachability.
func NewCacheMirror(ctx context.Context, addr, password string, db int, ttl time.Duration) (*CacheMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("memstore: connect cache mirror: %w", err)
	}

	return &CacheMirror{client: client, ttl: ttl}, nil
}

func mirrorKey(queryHash uint64, k int) string {
	return fmt.Sprintf("trinitymemory:cache:%d:%d", queryHash, k)
}

// Put best-effort-writes results for (queryHash, k); a failure is
// swallowed since the mirror is never authoritative.
func (m *CacheMirror) Put(ctx context.Context, queryHash uint64, k int, results []vectorindex.Result) {
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	m.client.Set(ctx, mirrorKey(queryHash, k), data, m.ttl)
}

// Get best-effort-reads results for (queryHash, k).
func (m *CacheMirror) Get(ctx context.Context, queryHash uint64, k int) ([]vectorindex.Result, bool) {
	data, err := m.client.Get(ctx, mirrorKey(queryHash, k)).Bytes()
	if err != nil {
		return nil, false
	}
	var results []vectorindex.Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, false
	}
	return results, true
}

// Clear wipes every mirrored cache entry, called alongside the
// in-process cache's wholesale invalidation on mutation.
func (m *CacheMirror) Clear(ctx context.Context) {
	iter := m.client.Scan(ctx, 0, "trinitymemory:cache:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		m.client.Del(ctx, keys...)
	}
}

// Close closes the underlying Redis connection.
func (m *CacheMirror) Close() error {
	return m.client.Close()
}
