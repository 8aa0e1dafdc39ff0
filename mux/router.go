// Package mux routes requests to resource handlers by their Uri-Path.
package mux

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/plgd-dev/coap-engine/message"
	"golang.org/x/exp/maps"
)

type Handler interface {
	ServeCOAP(w ResponseWriter, r *Message)
}

// The HandlerFunc type is an adapter to allow the use of
// ordinary functions as COAP handlers.  If f is a function
// with the appropriate signature, HandlerFunc(f) is a
// Handler object that calls f.
type HandlerFunc func(w ResponseWriter, r *Message)

// ServeCOAP calls f(w, r).
func (f HandlerFunc) ServeCOAP(w ResponseWriter, r *Message) {
	f(w, r)
}

// Router is an COAP request multiplexer. It matches the
// path name of each incoming request against a list of
// registered patterns add calls the handler for the pattern
// with same name. A pattern ending with '/' matches every path below it.
// Router is also safe for concurrent access from multiple goroutines.
type Router struct {
	middlewares []MiddlewareFunc

	m              sync.RWMutex
	defaultHandler Handler          // guarded by m
	z              map[string]Route // guarded by m
}

type Route struct {
	h          Handler
	pattern    string
	attributes Attributes
}

func (r Route) Pattern() string {
	return r.pattern
}

func (r Route) Attributes() Attributes {
	return r.attributes
}

// NewRouter allocates and returns a new Router with the /.well-known/core
// discovery resource.
func NewRouter() *Router {
	router := &Router{
		z: make(map[string]Route),
	}
	router.z[WellKnownCore] = Route{
		h:       HandlerFunc(router.serveWellKnownCore),
		pattern: WellKnownCore,
	}
	return router
}

// FilterPath strips the slashes around a path or pattern. A trailing slash
// of a pattern is kept.
func FilterPath(unfiltered string) string {
	prefix := strings.HasSuffix(unfiltered, "/") && strings.Trim(unfiltered, "/") != ""
	p := strings.Trim(unfiltered, "/")
	if prefix {
		p += "/"
	}
	return p
}

// Does path match pattern?
func pathMatch(pattern, path string) bool {
	n := len(pattern)
	if n == 0 || pattern[n-1] != '/' {
		return pattern == path
	}
	return len(path) >= n && path[0:n] == pattern
}

// Match finds the route of path. Most-specific (longest) pattern wins.
func (r *Router) Match(path string) (*Route, bool) {
	path = strings.Trim(path, "/")
	r.m.RLock()
	defer r.m.RUnlock()
	var matched *Route
	for pattern, route := range r.z {
		if !pathMatch(pattern, path) {
			continue
		}
		if matched == nil || len(pattern) > len(matched.pattern) {
			route := route
			matched = &route
		}
	}
	return matched, matched != nil
}

// Handle adds a handler to the Router for pattern.
func (r *Router) Handle(pattern string, handler Handler, attrs ...Attribute) error {
	pattern = FilterPath(pattern)
	if handler == nil {
		return errors.New("nil handler")
	}
	r.m.Lock()
	r.z[pattern] = Route{h: handler, pattern: pattern, attributes: attrs}
	r.m.Unlock()
	return nil
}

// HandleFunc adds a handler function to the Router for pattern.
// This function will panic if the handler is nil. If the APP provides
// 'user defined handlers' better use Handle(), which will return an error.
func (r *Router) HandleFunc(pattern string, handler func(w ResponseWriter, r *Message), attrs ...Attribute) {
	if handler == nil {
		panic(fmt.Errorf("cannot handle pattern(%v): nil handler", pattern))
	}
	if err := r.Handle(pattern, HandlerFunc(handler), attrs...); err != nil {
		panic(fmt.Errorf("cannot handle pattern(%v): %w", pattern, err))
	}
}

// DefaultHandle sets the handler of paths no route matches. Without one
// such requests are reported as not handled.
func (r *Router) DefaultHandle(handler Handler) {
	r.m.Lock()
	defer r.m.Unlock()
	r.defaultHandler = handler
}

// DefaultHandleFunc set a default handler function to the Router.
func (r *Router) DefaultHandleFunc(handler func(w ResponseWriter, r *Message)) {
	r.DefaultHandle(HandlerFunc(handler))
}

// HandleRemove deregistrars the handler specific for pattern from the Router.
func (r *Router) HandleRemove(pattern string) error {
	pattern = FilterPath(pattern)
	r.m.Lock()
	defer r.m.Unlock()
	if _, ok := r.z[pattern]; ok {
		delete(r.z, pattern)
		return nil
	}
	return errors.New("pattern is not registered in")
}

// GetRoute obtains route from the pattern it has been assigned
func (r *Router) GetRoute(pattern string) *Route {
	pattern = FilterPath(pattern)
	r.m.RLock()
	defer r.m.RUnlock()
	if route, ok := r.z[pattern]; ok {
		return &route
	}
	return nil
}

func (r *Router) GetRoutes() map[string]Route {
	r.m.RLock()
	defer r.m.RUnlock()
	return maps.Clone(r.z)
}

// ServeCOAP dispatches the request to the handler whose
// pattern most closely matches the request path, falling back to the
// default handler. It reports whether a handler was found.
func (r *Router) ServeCOAP(w ResponseWriter, req *message.Message) bool {
	path, err := req.Options.Path()
	if err != nil && !message.IsNotFound(err) {
		return false
	}
	r.m.RLock()
	h := r.defaultHandler
	middlewares := r.middlewares
	r.m.RUnlock()
	pattern := ""
	if route, ok := r.Match(path); ok {
		h = route.h
		pattern = route.pattern
	}
	if h == nil {
		return false
	}
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i].Middleware(h)
	}
	h.ServeCOAP(w, &Message{Message: req, Path: path, Pattern: pattern})
	return true
}

// Service adapts the router to the dispatcher's service function.
func (r *Router) Service() func(req, resp *message.Message, buf []byte, preferredSize int, offset *int32) bool {
	return func(req, resp *message.Message, buf []byte, preferredSize int, offset *int32) bool {
		w := &responseWriter{
			resp:          resp,
			buf:           buf,
			preferredSize: preferredSize,
			offset:        offset,
			start:         *offset,
		}
		return r.ServeCOAP(w, req)
	}
}
