package delivery

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiters holds one outbound token bucket per tenant.
type Limiters struct {
	mu       sync.Mutex
	limiters map[string]*tenantLimiter
}

type tenantLimiter struct {
	perMinute int
	limiter   *rate.Limiter
}

func NewLimiters() *Limiters {
	return &Limiters{limiters: make(map[string]*tenantLimiter)}
}

// Get returns the tenant's limiter, rebuilding it when perMinute changed.
func (l *Limiters) Get(tenantID string, perMinute int) *rate.Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if tl, ok := l.limiters[tenantID]; ok && tl.perMinute == perMinute {
		return tl.limiter
	}
	lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	l.limiters[tenantID] = &tenantLimiter{perMinute: perMinute, limiter: lim}
	return lim
}
