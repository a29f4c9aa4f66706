package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
)

// CatalogLoader fetches the question catalog from a backing store.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) ([]domain.Question, error)
}

// Catalog caches per-track question counts with a TTL to avoid repeated
// loads of the full catalog.
type Catalog struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	counts    map[domain.Track]int
	expiresAt time.Time
}

func NewCatalog(loader CatalogLoader, ttl time.Duration) *Catalog {
	return &Catalog{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Catalog) CountQuestions(ctx context.Context, track domain.Track) (int, error) {
	now := c.clock()

	c.mu.RLock()
	if c.counts != nil && c.expiresAt.After(now) {
		count := c.counts[track]
		c.mu.RUnlock()
		return count, nil
	}
	c.mu.RUnlock()

	_, err, _ := c.sf.Do("catalog", func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if c.counts != nil && c.expiresAt.After(now) {
			c.mu.RUnlock()
			return nil, nil
		}
		c.mu.RUnlock()

		questions, err := c.loader.LoadCatalog(ctx)
		if err != nil {
			return nil, err
		}

		counts := make(map[domain.Track]int, len(domain.Tracks))
		for _, question := range questions {
			for _, tag := range question.Tags {
				counts[tag]++
			}
		}

		c.mu.Lock()
		c.counts = counts
		c.expiresAt = now.Add(c.ttlWithJitter())
		c.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[track], nil
}

func (c *Catalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return time.Minute
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticCatalogLoader serves a fixed question list (tests/demos).
type StaticCatalogLoader struct {
	questions []domain.Question
}

func NewStaticCatalogLoader(questions []domain.Question) *StaticCatalogLoader {
	return &StaticCatalogLoader{questions: questions}
}

func (l *StaticCatalogLoader) LoadCatalog(_ context.Context) ([]domain.Question, error) {
	out := make([]domain.Question, len(l.questions))
	copy(out, l.questions)
	return out, nil
}
