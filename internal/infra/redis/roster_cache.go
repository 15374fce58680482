package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"spelling-assessment-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RosterLoader fetches a round's roster from a backing store (e.g., Postgres).
type RosterLoader interface {
	LoadRoster(ctx context.Context, roundID string) (domain.Roster, error)
}

// RosterCache keeps marshaled rosters in Redis (one JSON value per round)
// and falls back to a loader on cache miss.
type RosterCache struct {
	client *redis.Client
	loader RosterLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewRosterCache(client *redis.Client, loader RosterLoader, ttl time.Duration) *RosterCache {
	return &RosterCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *RosterCache) GetRoster(ctx context.Context, roundID string) (domain.Roster, error) {
	key := c.key(roundID)

	if roster, ok := c.cached(ctx, key); ok {
		return roster, nil
	}

	result, err, _ := c.sf.Do(roundID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if roster, ok := c.cached(ctx, key); ok {
			return roster, nil
		}

		roster, err := c.loader.LoadRoster(ctx, roundID)
		if err != nil {
			return domain.Roster{}, err
		}

		if data, err := json.Marshal(roster); err == nil {
			// cache writes are best-effort; the loader result stands either way
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return roster, nil
	})
	if err != nil {
		return domain.Roster{}, err
	}
	return result.(domain.Roster), nil
}

// Invalidate drops the cached roster so the next read reloads it.
func (c *RosterCache) Invalidate(ctx context.Context, roundID string) {
	_ = c.client.Del(ctx, c.key(roundID)).Err()
}

func (c *RosterCache) cached(ctx context.Context, key string) (domain.Roster, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.Roster{}, false
	}
	var roster domain.Roster
	if err := json.Unmarshal(data, &roster); err != nil {
		return domain.Roster{}, false
	}
	return roster, true
}

func (c *RosterCache) key(roundID string) string {
	return "round:" + roundID + ":roster"
}

func (c *RosterCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
