// Package periodic runs registered callbacks on a shared ticker.
package periodic

import (
	"time"

	"github.com/plgd-dev/coap-engine/pkg/sync"
	"go.uber.org/atomic"
)

// Func registers f. f is called on every tick until it returns false.
type Func = func(f func(now time.Time) bool)

// New starts the ticker goroutine. It exits when stop is closed.
func New(stop <-chan struct{}, tick time.Duration) Func {
	var idx atomic.Uint64
	m := sync.NewMap[uint64, func(time.Time) bool]()
	go func() {
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			var now time.Time
			select {
			case now = <-t.C:
			case <-stop:
				return
			}
			for k, f := range m.CopyData() {
				if ok := f(now); !ok {
					m.Delete(k)
				}
			}
		}
	}()
	return func(f func(time.Time) bool) {
		if f == nil {
			return
		}
		m.Store(idx.Inc(), f)
	}
}
