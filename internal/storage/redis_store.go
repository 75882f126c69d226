package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisJournalKey = "thinkup-relay:calls"

// redisStore keeps the journal in a capped Redis list, newest entry at the head.
type redisStore struct {
	client     *redis.Client
	key        string
	entryTTL   time.Duration
	maxEntries int
}

// openRedis accepts either a redis:// URL or a host:port address.
func openRedis(addr string, opts Options) (Store, error) {
	redisOpts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisOpts = parsed
	}
	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return &redisStore{
		client:     client,
		key:        redisJournalKey,
		entryTTL:   opts.EntryTTL,
		maxEntries: opts.MaxEntries,
	}, nil
}

func (r *redisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Append pushes e, trims the list to the configured maximum and refreshes its TTL.
func (r *redisStore) Append(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.key, payload)
		pipe.LTrim(ctx, r.key, 0, int64(r.maxEntries-1))
		pipe.Expire(ctx, r.key, r.entryTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries younger than the TTL, newest first.
func (r *redisStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	limit = clampLimit(limit, r.maxEntries)
	raws, err := r.client.LRange(ctx, r.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	cutoff := time.Now().Add(-r.entryTTL)
	out := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode journal entry: %w", err)
		}
		if e.At.Before(cutoff) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
