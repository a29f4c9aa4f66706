package redis

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
	"github.com/linhnh2711/examen-civique-app-sub000/internal/infra/memory"
)

// Catalog caches per-track question counts in a Redis hash and falls
// back to a loader on cache miss:
//
//	HSET catalog:counts {track} {count}
type Catalog struct {
	client *redis.Client
	loader memory.CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalog(client *redis.Client, loader memory.CatalogLoader, ttl time.Duration) *Catalog {
	return &Catalog{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

const countsKey = "catalog:counts"

func (c *Catalog) CountQuestions(ctx context.Context, track domain.Track) (int, error) {
	counts, err := c.client.HGetAll(ctx, countsKey).Result()
	if err == nil && len(counts) > 0 {
		return parseCount(counts, track), nil
	}

	result, err, _ := c.sf.Do(countsKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		counts, err := c.client.HGetAll(ctx, countsKey).Result()
		if err == nil && len(counts) > 0 {
			return counts, nil
		}

		questions, err := c.loader.LoadCatalog(ctx)
		if err != nil {
			return nil, err
		}

		fresh := make(map[string]string, len(domain.Tracks))
		for _, t := range domain.Tracks {
			total := 0
			for _, question := range questions {
				if question.HasTag(t) {
					total++
				}
			}
			fresh[string(t)] = strconv.Itoa(total)
		}

		pipe := c.client.Pipeline()
		for field, value := range fresh {
			pipe.HSet(ctx, countsKey, field, value)
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, countsKey, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return fresh, nil
	})
	if err != nil {
		return 0, err
	}
	return parseCount(result.(map[string]string), track), nil
}

func parseCount(counts map[string]string, track domain.Track) int {
	if raw, ok := counts[string(track)]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

func (c *Catalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
