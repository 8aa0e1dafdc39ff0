package mux

import (
	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
)

// Methods routes a request by its method code. Other methods get 4.05.
type Methods map[codes.Code]Handler

func (m Methods) ServeCOAP(w ResponseWriter, r *Message) {
	if h, ok := m[r.Code]; ok {
		h.ServeCOAP(w, r)
		return
	}
	_ = w.SetResponse(codes.MethodNotAllowed, message.TextPlain, nil)
}
