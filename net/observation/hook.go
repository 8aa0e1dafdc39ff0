package observation

import (
	"net"

	"github.com/plgd-dev/coap-engine/message"
	coapSync "github.com/plgd-dev/coap-engine/pkg/sync"
	"go.uber.org/atomic"
)

// NotificationFunc receives a notification. n is detached from the receive
// buffer and owned by the callee.
type NotificationFunc func(addr *net.UDPAddr, n *message.Message)

// Hook routes notifications, messages carrying an Observe option that match
// no open transaction, to the handler registered for their token, or to the
// fallback handler.
type Hook struct {
	enabled  bool
	handlers *coapSync.Map[string, NotificationFunc]
	fallback atomic.Pointer[NotificationFunc]
}

// NewHook creates a hook. A disabled hook drops every notification.
func NewHook(enabled bool) *Hook {
	return &Hook{
		enabled:  enabled,
		handlers: coapSync.NewMap[string, NotificationFunc](),
	}
}

// Enabled reports whether notifications are delivered.
func (h *Hook) Enabled() bool {
	return h.enabled
}

// SetFallback sets the handler of notifications with an unknown token.
func (h *Hook) SetFallback(f NotificationFunc) {
	if f == nil {
		h.fallback.Store(nil)
		return
	}
	h.fallback.Store(&f)
}

// Register routes notifications carrying token to f.
func (h *Hook) Register(token message.Token, f NotificationFunc) {
	h.handlers.Store(string(token), f)
}

// Unregister removes the handler of token.
func (h *Hook) Unregister(token message.Token) bool {
	return h.handlers.Delete(string(token))
}

// HandleNotification delivers n and reports whether a handler took it.
func (h *Hook) HandleNotification(addr *net.UDPAddr, n *message.Message) bool {
	if !h.enabled {
		return false
	}
	if f, ok := h.handlers.Load(string(n.Token)); ok {
		f(addr, n)
		return true
	}
	if f := h.fallback.Load(); f != nil {
		(*f)(addr, n)
		return true
	}
	return false
}
