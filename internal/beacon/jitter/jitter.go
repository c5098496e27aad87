package jitter

import (
	"fmt"
	"math/rand"
	"time"
)

// Sleeper abstracts the blocking wait between cycles so the engine can be
// tested without real sleeps.
type Sleeper interface {
	Sleep(d time.Duration)
}

// RealSleeper suspends the calling goroutine.
type RealSleeper struct{}

func (RealSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Calculator produces randomized sleep intervals around a base duration.
// Offsets are drawn uniformly from the 2*range+1 whole-second values in
// [-range, +range], where range = floor(base * percent / 100). Results never
// drop below one second.
type Calculator struct {
	base int // seconds
	pct  int // 0..50
	rng  *rand.Rand
}

// NewCalculator validates the timing parameters and seeds the generator.
// A percent above 50 is clamped rather than rejected.
func NewCalculator(baseSeconds, jitterPercent int) (*Calculator, error) {
	if baseSeconds < 1 {
		return nil, fmt.Errorf("base interval must be at least 1 second, got: %d", baseSeconds)
	}
	if jitterPercent < 0 {
		jitterPercent = 0
	}
	if jitterPercent > 50 {
		jitterPercent = 50
	}

	return &Calculator{
		base: baseSeconds,
		pct:  jitterPercent,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Next returns the next sleep duration.
func (c *Calculator) Next() time.Duration {
	jitterRange := c.base * c.pct / 100
	if jitterRange == 0 {
		return time.Duration(c.base) * time.Second
	}

	offset := c.rng.Intn(2*jitterRange+1) - jitterRange
	seconds := c.base + offset
	if seconds < 1 {
		seconds = 1
	}

	return time.Duration(seconds) * time.Second
}

// Bounds returns the inclusive interval Next draws from.
func (c *Calculator) Bounds() (min, max time.Duration) {
	jitterRange := c.base * c.pct / 100
	lo := c.base - jitterRange
	if lo < 1 {
		lo = 1
	}
	return time.Duration(lo) * time.Second, time.Duration(c.base+jitterRange) * time.Second
}

// GetStats returns a human-readable description of the configuration.
func (c *Calculator) GetStats() string {
	min, max := c.Bounds()
	return fmt.Sprintf("Jitter Config: base=%ds, jitter=%d%%, range=[%s, %s]", c.base, c.pct, min, max)
}
