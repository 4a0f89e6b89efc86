package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const idleTTL = 10 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Pool 按用户分配令牌桶，HTTP 与 WS 写入共用，长时间未使用的条目在下次访问时清理
type Pool struct {
	mu        sync.Mutex
	m         map[string]*entry
	rps       float64
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func NewPool(rps float64, burst int) *Pool {
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 10
	}
	return &Pool{
		m:     make(map[string]*entry),
		rps:   rps,
		burst: burst,
		now:   time.Now,
	}
}

func (p *Pool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if now.Sub(p.lastSweep) > idleTTL {
		for k, e := range p.m {
			if now.Sub(e.lastSeen) > idleTTL {
				delete(p.m, k)
			}
		}
		p.lastSweep = now
	}

	e, ok := p.m[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(p.rps), p.burst)}
		p.m[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Allow 消耗 key 的一个令牌
func (p *Pool) Allow(key string) bool {
	return p.get(key).Allow()
}
