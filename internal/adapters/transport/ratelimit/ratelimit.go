package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter *rate.Limiter
	last    time.Time
}

// PerKey держит отдельный token bucket на каждый ключ (обычно IP клиента).
// Кэш ограничен по размеру, простаивающие ключи забываются через ttl.
type PerKey struct {
	mu       sync.Mutex
	visitors *lru.Cache[string, *visitor]
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

func NewPerKey(rps, burst, cacheSize int, ttl time.Duration) *PerKey {
	if cacheSize <= 0 {
		cacheSize = 10_000
	}
	visitors, _ := lru.New[string, *visitor](cacheSize)
	return &PerKey{
		visitors: visitors,
		limit:    rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (p *PerKey) Allow(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	v, ok := p.visitors.Get(key)
	if !ok || now.Sub(v.last) > p.ttl {
		v = &visitor{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.visitors.Add(key, v)
	}
	v.last = now
	return v.limiter.AllowN(now, 1)
}

// Len reports how many keys are currently tracked.
func (p *PerKey) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visitors.Len()
}

// Sweep drops idle keys once per ttl until ctx is done.
func (p *PerKey) Sweep(ctx context.Context) {
	ticker := time.NewTicker(p.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.evictIdle()
		}
	}
}

func (p *PerKey) evictIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for _, key := range p.visitors.Keys() {
		if v, ok := p.visitors.Peek(key); ok && now.Sub(v.last) > p.ttl {
			p.visitors.Remove(key)
		}
	}
}
