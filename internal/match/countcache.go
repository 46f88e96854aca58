package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counts is a candidate's match tally per status.
type Counts struct {
	Total     int `json:"total"`
	Matched   int `json:"matched"`
	Offered   int `json:"offered"`
	Applied   int `json:"applied"`
	Withdrawn int `json:"withdrawn"`
}

func (c *Counts) add(s Status) {
	c.Total++
	switch s {
	case StatusMatched:
		c.Matched++
	case StatusOffered:
		c.Offered++
	case StatusApplied:
		c.Applied++
	case StatusWithdrawn:
		c.Withdrawn++
	}
}

// CountCache memoises CountForCandidate. Writers invalidate after every
// change to a candidate's matches. Each invalidation bumps the candidate's
// generation; Set only stores counts computed in the generation Get reported,
// so a read that raced a write never caches stale counts.
type CountCache interface {
	// Get returns ok=false on a miss, together with the current generation.
	Get(ctx context.Context, userID string) (c Counts, gen int64, ok bool, err error)
	// Set stores c unless userID was invalidated after gen was read.
	Set(ctx context.Context, userID string, gen int64, c Counts) error
	Invalidate(ctx context.Context, userIDs ...string) error
}

// RedisCountCache stores counts as JSON strings under matching:counts:{userId}
// and the generation under matching:counts:gen:{userId}.
type RedisCountCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCountCache returns a CountCache backed by rdb.
func NewRedisCountCache(rdb *redis.Client, ttl time.Duration) *RedisCountCache {
	return &RedisCountCache{rdb: rdb, ttl: ttl}
}

func countKey(userID string) string { return "matching:counts:" + userID }
func genKey(userID string) string { return "matching:counts:gen:" + userID }

// generation keys outlive the counts they guard.
const genTTL = 24 * time.Hour

// Get implements CountCache.
func (c *RedisCountCache) Get(ctx context.Context, userID string) (Counts, int64, bool, error) {
	vals, err := c.rdb.MGet(ctx, countKey(userID), genKey(userID)).Result()
	if err != nil {
		return Counts{}, 0, false, fmt.Errorf("count cache get: %w", err)
	}
	gen, err := parseGen(vals[1])
	if err != nil {
		return Counts{}, 0, false, err
	}
	raw, ok := vals[0].(string)
	if !ok {
		return Counts{}, gen, false, nil
	}
	var counts Counts
	if err := json.Unmarshal([]byte(raw), &counts); err != nil {
		return Counts{}, gen, false, fmt.Errorf("count cache decode: %w", err)
	}
	return counts, gen, true, nil
}

func parseGen(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	gen, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("count cache generation: %w", err)
	}
	return gen, nil
}

// Set implements CountCache. The write is skipped when the generation moved.
func (c *RedisCountCache) Set(ctx context.Context, userID string, gen int64, counts Counts) error {
	b, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	gk := genKey(userID)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, countKey(userID), b, c.ttl)
			return nil
		})
		return err
	}, gk)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("count cache set: %w", err)
	}
	return nil
}

// Invalidate implements CountCache.
func (c *RedisCountCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range userIDs {
			p.Incr(ctx, genKey(id))
			p.Expire(ctx, genKey(id), genTTL)
			p.Del(ctx, countKey(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("count cache invalidate: %w", err)
	}
	return nil
}

// MemoryCountCache is an unbounded in-process CountCache without expiry.
type MemoryCountCache struct {
	mu     sync.Mutex
	counts map[string]Counts
	gens   map[string]int64
}

// NewMemoryCountCache returns an empty MemoryCountCache.
func NewMemoryCountCache() *MemoryCountCache {
	return &MemoryCountCache{counts: make(map[string]Counts), gens: make(map[string]int64)}
}

// Get implements CountCache.
func (c *MemoryCountCache) Get(_ context.Context, userID string) (Counts, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.counts[userID]
	return v, c.gens[userID], ok, nil
}

// Set implements CountCache.
func (c *MemoryCountCache) Set(_ context.Context, userID string, gen int64, counts Counts) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] != gen {
		return nil
	}
	c.counts[userID] = counts
	return nil
}

// Invalidate implements CountCache.
func (c *MemoryCountCache) Invalidate(_ context.Context, userIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		delete(c.counts, id)
		c.gens[id]++
	}
	return nil
}
