package framebuffer

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/evision-ai/evision-lib/internal/model"
)

// RedisStore implements Store against a Redis list, matching the external
// buffer contract (lpush/ltrim/llen/lrange/delete) key-for-key. It is the
// injectable alternative to Ring; the in-process ring remains canonical.
//
// No ecosystem serializer is named anywhere in the retrieval pack for this
// exact "opaque list entry" shape, so entries are encoded with the standard
// library's encoding/gob at this one boundary (logged in DESIGN.md).
type RedisStore struct {
	rdb      *redis.Client
	key      string
	capacity int
}

// NewRedisStore returns a Store backed by the Redis list "frames-<sourceID>".
func NewRedisStore(rdb *redis.Client, sourceID string, capacity int) *RedisStore {
	if capacity < 1 {
		capacity = 1
	}
	return &RedisStore{rdb: rdb, key: fmt.Sprintf("frames-%s", sourceID), capacity: capacity}
}

func (s *RedisStore) Push(ctx context.Context, entry model.FrameEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("framebuffer: encode entry: %w", err)
	}
	if err := s.rdb.LPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("framebuffer: lpush: %w", err)
	}
	if err := s.rdb.LTrim(ctx, s.key, 0, int64(s.capacity-1)).Err(); err != nil {
		return fmt.Errorf("framebuffer: ltrim: %w", err)
	}
	return nil
}

func (s *RedisStore) Peek(ctx context.Context) (model.FrameEntry, bool, error) {
	raw, err := s.rdb.LRange(ctx, s.key, 0, 0).Result()
	if err != nil {
		return model.FrameEntry{}, false, fmt.Errorf("framebuffer: lrange: %w", err)
	}
	if len(raw) == 0 {
		return model.FrameEntry{}, false, nil
	}
	entry, err := decodeEntry(raw[0])
	if err != nil {
		return model.FrameEntry{}, false, fmt.Errorf("framebuffer: decode entry: %w", err)
	}
	return entry, true, nil
}

func (s *RedisStore) Get(ctx context.Context, k int) ([]model.FrameEntry, bool, error) {
	if k <= 0 {
		return nil, false, nil
	}
	n, err := s.rdb.LLen(ctx, s.key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("framebuffer: llen: %w", err)
	}
	if n < int64(k) {
		return nil, false, nil
	}
	entries, err := s.rangeDecode(ctx, k)
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

func (s *RedisStore) Range(ctx context.Context, k int) (int, []model.FrameEntry, error) {
	n, err := s.rdb.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, nil, fmt.Errorf("framebuffer: llen: %w", err)
	}
	if k <= 0 {
		return int(n), nil, nil
	}
	want := k
	if int64(want) > n {
		want = int(n)
	}
	entries, err := s.rangeDecode(ctx, want)
	if err != nil {
		return int(n), nil, err
	}
	return int(n), entries, nil
}

func (s *RedisStore) Destroy(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("framebuffer: del: %w", err)
	}
	return nil
}

func (s *RedisStore) rangeDecode(ctx context.Context, n int) ([]model.FrameEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.rdb.LRange(ctx, s.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("framebuffer: lrange: %w", err)
	}
	out := make([]model.FrameEntry, 0, len(raw))
	for _, r := range raw {
		entry, err := decodeEntry(r)
		if err != nil {
			return nil, fmt.Errorf("framebuffer: decode entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func encodeEntry(entry model.FrameEntry) (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func decodeEntry(raw string) (model.FrameEntry, error) {
	var entry model.FrameEntry
	if err := gob.NewDecoder(bytes.NewReader([]byte(raw))).Decode(&entry); err != nil {
		return model.FrameEntry{}, err
	}
	return entry, nil
}
