package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"trivia-night-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// ScoreboardCache keeps computed scoreboards in process with a TTL. Concurrent
// misses for the same game share one load.
type ScoreboardCache struct {
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu          sync.RWMutex
	cache       map[string]cachedScoreboard
	generations map[string]uint64
}

type cachedScoreboard struct {
	board     domain.Scoreboard
	expiresAt time.Time
}

func NewScoreboardCache(ttl time.Duration) *ScoreboardCache {
	return &ScoreboardCache{
		ttl:         ttl,
		clock:       time.Now,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:       make(map[string]cachedScoreboard),
		generations: make(map[string]uint64),
	}
}

func (c *ScoreboardCache) Scoreboard(ctx context.Context, gameID string, load func(context.Context) (domain.Scoreboard, error)) (domain.Scoreboard, error) {
	if board, ok := c.lookup(gameID); ok {
		return board, nil
	}

	result, err, _ := c.sf.Do(gameID, func() (interface{}, error) {
		if board, ok := c.lookup(gameID); ok {
			return board, nil
		}

		c.mu.RLock()
		generation := c.generations[gameID]
		c.mu.RUnlock()

		board, err := load(ctx)
		if err != nil {
			return domain.Scoreboard{}, err
		}

		c.mu.Lock()
		// An invalidation during the load means board may already be stale.
		if c.generations[gameID] == generation && c.ttl > 0 {
			c.cache[gameID] = cachedScoreboard{
				board:     board,
				expiresAt: c.clock().Add(c.ttlWithJitter()),
			}
		}
		c.mu.Unlock()
		return board, nil
	})
	if err != nil {
		return domain.Scoreboard{}, err
	}
	return result.(domain.Scoreboard), nil
}

// Invalidate drops the cached scoreboard of a game.
func (c *ScoreboardCache) Invalidate(_ context.Context, gameID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, gameID)
	c.generations[gameID]++
	return nil
}

func (c *ScoreboardCache) lookup(gameID string) (domain.Scoreboard, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[gameID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Scoreboard{}, false
	}
	return entry.board, true
}

func (c *ScoreboardCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
