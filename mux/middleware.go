package mux

// MiddlewareFunc wraps a handler. Middlewares run in the order they were added.
type MiddlewareFunc func(Handler) Handler

// Middleware allows MiddlewareFunc to implement the middleware interface.
func (mw MiddlewareFunc) Middleware(handler Handler) Handler {
	return mw(handler)
}

// Use appends a MiddlewareFunc to the chain.
func (r *Router) Use(mwf ...MiddlewareFunc) {
	r.m.Lock()
	defer r.m.Unlock()
	r.middlewares = append(r.middlewares, mwf...)
}
