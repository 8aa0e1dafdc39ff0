// Package rand wraps math/rand with a mutex so one source can be shared by
// the dispatcher, the retransmission timers and the client.
package rand

import (
	"math/rand"
	"sync"
	"time"
)

type Rand struct {
	src  *rand.Rand
	lock sync.Mutex
}

func NewRand(seed int64) *Rand {
	return &Rand{
		src: rand.New(rand.NewSource(seed)),
	}
}

func (l *Rand) Int63() int64 {
	l.lock.Lock()
	val := l.src.Int63()
	l.lock.Unlock()
	return val
}

func (l *Rand) Int63n(n int64) int64 {
	l.lock.Lock()
	val := l.src.Int63n(n)
	l.lock.Unlock()
	return val
}

func (l *Rand) Uint32() uint32 {
	l.lock.Lock()
	val := l.src.Uint32()
	l.lock.Unlock()
	return val
}

// Jitter returns a uniformly distributed duration in [0, window].
func (l *Rand) Jitter(window time.Duration) time.Duration {
	if window <= 0 {
		return 0
	}
	return time.Duration(l.Int63n(int64(window) + 1))
}
