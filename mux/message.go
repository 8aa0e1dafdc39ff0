package mux

import "github.com/plgd-dev/coap-engine/message"

// Message is a request seen by a handler.
type Message struct {
	*message.Message
	// Path is the request path without leading slash.
	Path string
	// Pattern is the pattern of the route that matched.
	Pattern string
}
