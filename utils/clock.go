package utils

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"
)

// Clock supplies "now" to the engine. Everything time-based reads it.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a settable clock for tests and replays.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// CryptoCoin flips an unbiased coin from crypto/rand.
type CryptoCoin struct{}

func (CryptoCoin) Flip() bool {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		panic("utils: crypto/rand unavailable: " + err.Error())
	}
	return n.Int64() == 1
}

// FixedCoin always lands the same way.
type FixedCoin bool

func (c FixedCoin) Flip() bool { return bool(c) }
