package mux

import (
	"errors"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
)

var ErrPayloadTooLarge = errors.New("payload exceeds the response buffer")

type ResponseWriter interface {
	// SetResponse sets code, content format and payload of the response.
	// The payload is copied into the response buffer.
	SetResponse(code codes.Code, contentFormat message.MediaType, payload []byte, opts ...message.Option) error
	// Message gives direct access to the response.
	Message() *message.Message
	// PreferredSize is the block size the peer asked for.
	PreferredSize() int
	// Offset is the byte offset of the requested block.
	Offset() int32
	// SetOffset tells where the next block starts, or -1 after the last one.
	// A handler that never calls it returns its whole representation and
	// lets the engine slice it.
	SetOffset(offset int32)
}

type responseWriter struct {
	resp          *message.Message
	buf           []byte
	preferredSize int
	offset        *int32
	start         int32
}

func (w *responseWriter) SetResponse(code codes.Code, contentFormat message.MediaType, payload []byte, opts ...message.Option) error {
	if len(payload) > len(w.buf) {
		return ErrPayloadTooLarge
	}
	w.resp.Code = code
	if len(payload) > 0 {
		w.resp.Options = w.resp.Options.SetContentFormat(contentFormat)
	}
	for _, o := range opts {
		w.resp.Options = w.resp.Options.Set(o)
	}
	n := copy(w.buf, payload)
	w.resp.Payload = w.buf[:n]
	return nil
}

func (w *responseWriter) Message() *message.Message {
	return w.resp
}

func (w *responseWriter) PreferredSize() int {
	return w.preferredSize
}

func (w *responseWriter) Offset() int32 {
	return w.start
}

func (w *responseWriter) SetOffset(offset int32) {
	*w.offset = offset
}
