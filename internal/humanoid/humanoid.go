// Package humanoid produces the irregular timing a person would show:
// keystroke flight times, think pauses and the gaps between accounts.
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the context-aware default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer draws delays from a private RNG. It is safe for concurrent use.
type Pacer struct {
	mu    sync.Mutex
	rng   *rand.Rand
	sleep SleepFunc
}

// New returns a Pacer. A nil rng is seeded from the clock, a nil sleep
// falls back to Sleep.
func New(rng *rand.Rand, sleep SleepFunc) *Pacer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if sleep == nil {
		sleep = Sleep
	}
	return &Pacer{rng: rng, sleep: sleep}
}

// Between returns a uniformly distributed duration in [lo, hi].
func (p *Pacer) Between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	p.mu.Lock()
	n := p.rng.Int63n(int64(hi-lo) + 1)
	p.mu.Unlock()
	return lo + time.Duration(n)
}

// Pause sleeps for base plus up to jitter.
func (p *Pacer) Pause(ctx context.Context, base, jitter time.Duration) error {
	return p.sleep(ctx, p.Between(base, base+jitter))
}

// Wait sleeps for exactly d through the configured SleepFunc.
func (p *Pacer) Wait(ctx context.Context, d time.Duration) error {
	return p.sleep(ctx, d)
}

// commonNgrams are typed faster than isolated characters.
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"on": true, "at": true, "en": true, "nd": true, "st": true, "es": true,
	"the": true, "and": true, "ing": true, "ion": true, "com": true, ".co": true,
}

// KeyDelay is the flight time before runes[i]. Familiar digrams and trigrams
// speed it up; the result never drops below half of mean.
func (p *Pacer) KeyDelay(mean, jitter time.Duration, runes []rune, i int) time.Duration {
	factor := 1.0
	if i >= 2 && i < len(runes) && commonNgrams[strings.ToLower(string(runes[i-2:i+1]))] {
		factor = 0.55
	} else if i >= 1 && i < len(runes) && commonNgrams[strings.ToLower(string(runes[i-1:i+1]))] {
		factor = 0.7
	}

	p.mu.Lock()
	norm := p.rng.NormFloat64()
	p.mu.Unlock()

	d := factor*float64(mean) + norm*float64(jitter)
	return time.Duration(math.Max(d, float64(mean)/2))
}

// Type calls press for each rune of text, pausing KeyDelay before every
// keystroke after the first.
func (p *Pacer) Type(ctx context.Context, text string, mean, jitter time.Duration, press func(ctx context.Context, key string) error) error {
	runes := []rune(text)
	for i, r := range runes {
		if i > 0 && mean > 0 {
			if err := p.sleep(ctx, p.KeyDelay(mean, jitter, runes, i)); err != nil {
				return err
			}
		}
		if err := press(ctx, string(r)); err != nil {
			return err
		}
	}
	return nil
}
