package session

import (
	"math"
	"math/rand"
	"time"

	"github.com/danmuck/wpanctl/internal/logs"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// ResetBackoff counts unexpected NCP resets inside a decaying window and
// turns the count into a delay before the next initialization attempt.
type ResetBackoff struct {
	cfg   ResetBackoffConfig
	count int
	last  time.Time
}

func NewResetBackoff(cfg ResetBackoffConfig) *ResetBackoff {
	return &ResetBackoff{cfg: cfg}
}

// Update forgets one counted reset per quiet DecayAfter period.
func (b *ResetBackoff) Update(now time.Time) {
	if b.count == 0 || b.cfg.DecayAfter <= 0 {
		return
	}
	for b.count > 0 && now.Sub(b.last) >= b.cfg.DecayAfter {
		b.count--
		b.last = b.last.Add(b.cfg.DecayAfter)
		logs.Debugf("session.ResetBackoff.Update decayed count=%d", b.count)
	}
}

// DelayForUnexpectedReset records one reset and returns how long to wait
// before re-initializing. It is zero until the count passes Threshold.
func (b *ResetBackoff) DelayForUnexpectedReset(now time.Time) time.Duration {
	b.Update(now)
	b.count++
	b.last = now
	over := b.count - b.cfg.Threshold
	if over <= 0 {
		return 0
	}
	delay := NextBackoffDelay(b.cfg.Backoff, over, nil)
	logs.Warnf("session.ResetBackoff runaway resets count=%d delay=%s", b.count, delay)
	return delay
}

func (b *ResetBackoff) Count() int {
	return b.count
}
