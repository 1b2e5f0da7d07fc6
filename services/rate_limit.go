// services/rate_limit.go
package services

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ActorLimiter keeps one token bucket per moderator for admin gateway mutations.
type ActorLimiter struct {
	perMinute int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewActorLimiter(perMinute int) *ActorLimiter {
	return &ActorLimiter{perMinute: perMinute, limiters: map[string]*rate.Limiter{}}
}

// Allow consumes a token for actorID. A nil limiter or a non-positive rate allows all.
func (l *ActorLimiter) Allow(actorID string) bool {
	if l == nil || l.perMinute <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[actorID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		l.limiters[actorID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
