package limits

import (
	"golang.org/x/time/rate"
)

// FrameLimiter bounds the rate of inbound frames on one connection using a
// token bucket. Burst tokens cover short flurries of subscribe frames;
// sustained traffic is capped at perSecond.
type FrameLimiter struct {
	limiter *rate.Limiter
}

// NewFrameLimiter creates a limiter allowing perSecond frames sustained with
// a bucket of burst tokens. The bucket starts full.
func NewFrameLimiter(perSecond, burst int) *FrameLimiter {
	return &FrameLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Allow consumes one token. Returns false when the frame should be dropped.
func (l *FrameLimiter) Allow() bool {
	return l.limiter.Allow()
}
