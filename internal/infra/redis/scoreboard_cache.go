package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"trivia-night-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

var errStaleLoad = errors.New("scoreboard changed during load")

// ScoreboardCache shares computed scoreboards between service instances.
// Boards are stored as JSON under trivia:scoreboard:{gameID}; every
// invalidation bumps trivia:scoreboard:{gameID}:gen so a load that raced it
// is not written back.
type ScoreboardCache struct {
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewScoreboardCache(client *redis.Client, ttl time.Duration) *ScoreboardCache {
	return &ScoreboardCache{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ScoreboardCache) Scoreboard(ctx context.Context, gameID string, load func(context.Context) (domain.Scoreboard, error)) (domain.Scoreboard, error) {
	if board, ok := c.lookup(ctx, gameID); ok {
		return board, nil
	}

	result, err, _ := c.sf.Do(gameID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if board, ok := c.lookup(ctx, gameID); ok {
			return board, nil
		}

		generation, err := c.client.Get(ctx, c.generationKey(gameID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			generation = -1
		}

		board, err := load(ctx)
		if err != nil {
			return domain.Scoreboard{}, err
		}
		if generation >= 0 {
			// best-effort write; a failure only costs a reload
			_ = c.store(ctx, gameID, board, generation)
		}
		return board, nil
	})
	if err != nil {
		return domain.Scoreboard{}, err
	}
	return result.(domain.Scoreboard), nil
}

// Invalidate drops the cached scoreboard and bumps its generation.
func (c *ScoreboardCache) Invalidate(ctx context.Context, gameID string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.boardKey(gameID))
	pipe.Incr(ctx, c.generationKey(gameID))
	if c.ttl > 0 {
		pipe.Expire(ctx, c.generationKey(gameID), 24*time.Hour)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *ScoreboardCache) lookup(ctx context.Context, gameID string) (domain.Scoreboard, bool) {
	data, err := c.client.Get(ctx, c.boardKey(gameID)).Bytes()
	if err != nil {
		return domain.Scoreboard{}, false
	}
	var board domain.Scoreboard
	if err := json.Unmarshal(data, &board); err != nil {
		return domain.Scoreboard{}, false
	}
	return board, true
}

func (c *ScoreboardCache) store(ctx context.Context, gameID string, board domain.Scoreboard, generation int64) error {
	if c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(board)
	if err != nil {
		return err
	}
	genKey := c.generationKey(gameID)
	return c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return errStaleLoad
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.boardKey(gameID), data, c.ttlWithJitter())
			return nil
		})
		return err
	}, genKey)
}

func (c *ScoreboardCache) boardKey(gameID string) string {
	return "trivia:scoreboard:" + gameID
}

func (c *ScoreboardCache) generationKey(gameID string) string {
	return "trivia:scoreboard:" + gameID + ":gen"
}

func (c *ScoreboardCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
