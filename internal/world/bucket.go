package world

import "time"

// TokenBucket caps per-player command rate. Wall-clock based like the
// session frame limiter: validation happens at ingestion, outside the
// deterministic part of the tick.
type TokenBucket struct {
	rate   float64 // tokens per second
	burst  float64
	tokens float64
	last   time.Time
}

func NewTokenBucket(rate, burst float64) TokenBucket {
	return TokenBucket{
		rate:   rate,
		burst:  burst,
		tokens: burst,
	}
}

// Allow consumes one token if available. A zero rate disables limiting.
func (b *TokenBucket) Allow(now time.Time) bool {
	if b.rate <= 0 {
		return true
	}
	if !b.last.IsZero() {
		b.tokens += now.Sub(b.last).Seconds() * b.rate
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
