package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// Fallbacks when the config leaves rate limiting unset. Generous enough
// for an agent polling its notifications every few seconds.
const (
	defaultRPS   = 5
	defaultBurst = 10
)

// limiterPool hands out one token bucket per caller identity: the API key
// for authenticated requests, the client IP otherwise.
type limiterPool struct {
	mu  sync.Mutex
	m   map[string]*rate.Limiter
	cfg SecConfig
}

func (p *limiterPool) Allow(key string) bool {
	p.mu.Lock()
	l, ok := p.m[key]
	if !ok {
		rps := p.cfg.RPS
		if rps <= 0 {
			rps = defaultRPS
		}
		burst := p.cfg.Burst
		if burst <= 0 {
			burst = defaultBurst
		}
		l = rate.NewLimiter(rate.Limit(rps), burst)
		if p.m == nil {
			p.m = make(map[string]*rate.Limiter)
		}
		p.m[key] = l
	}
	p.mu.Unlock()
	return l.Allow()
}
