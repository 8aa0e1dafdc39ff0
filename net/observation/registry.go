// Package observation keeps the server's observer list and routes
// notifications a client receives to their handlers.
package observation

import (
	"net"
	"sync"

	"github.com/plgd-dev/coap-engine/message"
	pkgErrors "github.com/plgd-dev/coap-engine/pkg/errors"
	coapSync "github.com/plgd-dev/coap-engine/pkg/sync"
)

// Observer is a peer registered for notifications of a resource.
type Observer struct {
	Addr  *net.UDPAddr
	Token message.Token
	Path  string

	mutex    sync.Mutex
	seq      uint32
	lastMID  uint16
	hasMID   bool
	notifies uint32
}

// NextSequence returns the Observe value of the next notification.
func (o *Observer) NextSequence() uint32 {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.seq = (o.seq + 1) & 0xffffff
	return o.seq
}

// Sent records the message id of the last notification and returns how
// many notifications were sent so far, this one included.
func (o *Observer) Sent(mid uint16) uint32 {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.lastMID = mid
	o.hasMID = true
	o.notifies++
	return o.notifies
}

// Count returns how many notifications were sent.
func (o *Observer) Count() uint32 {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.notifies
}

func (o *Observer) matchesMID(mid uint16) bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.hasMID && o.lastMID == mid
}

func sameAddr(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Port == b.Port && a.IP.Equal(b.IP) && a.Zone == b.Zone
}

func key(addr *net.UDPAddr, token message.Token) string {
	return addr.String() + "/" + token.String()
}

// Registry holds observers keyed by peer and token.
type Registry struct {
	observers *coapSync.Map[string, *Observer]
	onChange  func(n int)
}

// NewRegistry creates an empty registry. onChange, when set, receives the
// number of observers after each change.
func NewRegistry(onChange func(n int)) *Registry {
	if onChange == nil {
		onChange = func(int) {}
	}
	return &Registry{
		observers: coapSync.NewMap[string, *Observer](),
		onChange:  onChange,
	}
}

// Add registers addr+token for path. A registration with the same peer and
// token replaces the previous one and restarts its sequence.
func (r *Registry) Add(addr *net.UDPAddr, token message.Token, path string) (*Observer, error) {
	if addr == nil {
		return nil, pkgErrors.ErrNotFound
	}
	o := &Observer{
		Addr:  addr,
		Token: append(message.Token(nil), token...),
		Path:  path,
	}
	r.observers.Store(key(addr, token), o)
	r.onChange(r.observers.Length())
	return o, nil
}

func (r *Registry) remove(del func(o *Observer) bool) int {
	n := len(r.observers.DeleteFunc(func(_ string, o *Observer) bool {
		return del(o)
	}))
	if n > 0 {
		r.onChange(r.observers.Length())
	}
	return n
}

// RemoveByToken drops the registration of addr+token.
func (r *Registry) RemoveByToken(addr *net.UDPAddr, token message.Token) bool {
	if r.observers.Delete(key(addr, token)) {
		r.onChange(r.observers.Length())
		return true
	}
	return false
}

// RemoveByMID drops the observer of addr whose last notification had mid.
// It is the reaction to a Reset.
func (r *Registry) RemoveByMID(addr *net.UDPAddr, mid uint16) int {
	return r.remove(func(o *Observer) bool {
		return sameAddr(o.Addr, addr) && o.matchesMID(mid)
	})
}

// RemoveByClient drops every observer of addr.
func (r *Registry) RemoveByClient(addr *net.UDPAddr) int {
	return r.remove(func(o *Observer) bool {
		return sameAddr(o.Addr, addr)
	})
}

// Observers returns the observers of path.
func (r *Registry) Observers(path string) []*Observer {
	var res []*Observer
	for _, o := range r.observers.CopyData() {
		if o.Path == path {
			res = append(res, o)
		}
	}
	return res
}

// Len returns the number of observers.
func (r *Registry) Len() int {
	return r.observers.Length()
}
