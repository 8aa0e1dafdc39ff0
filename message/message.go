package message

import (
	"fmt"

	"github.com/plgd-dev/coap-engine/message/codes"
)

// MaxTokenSize maximum of token size that can be used in message
const MaxTokenSize = 8

// Version is the only protocol version the engine speaks.
const Version = 1

type Message struct {
	Token     Token
	Options   Options
	Code      codes.Code
	Payload   []byte
	MessageID uint16
	Type      Type
}

// IsPing reports whether m is a CoAP ping: an empty confirmable message.
func (r *Message) IsPing() bool {
	return r.Type == Confirmable && r.Code == codes.Empty
}

// Clone returns a deep copy of r, detached from any receive buffer.
func (r *Message) Clone() *Message {
	if r == nil {
		return nil
	}
	m := *r
	m.Token = append(Token(nil), r.Token...)
	m.Options = r.Options.Clone()
	if r.Payload != nil {
		m.Payload = append([]byte(nil), r.Payload...)
	}
	return &m
}

func (r *Message) String() string {
	if r == nil {
		return "nil"
	}
	buf := fmt.Sprintf("Type: %v, Code: %v, MessageID: %v, Token: %v", r.Type, r.Code, r.MessageID, r.Token)
	path, err := r.Options.Path()
	if err == nil {
		buf = fmt.Sprintf("%s, Path: %v", buf, path)
	}
	cf, err := r.Options.ContentFormat()
	if err == nil {
		buf = fmt.Sprintf("%s, ContentFormat: %v", buf, cf)
	}
	queries, err := r.Options.Queries()
	if err == nil {
		buf = fmt.Sprintf("%s, Queries: %+v", buf, queries)
	}
	if len(r.Payload) > 0 {
		buf = fmt.Sprintf("%s, PayloadLen: %v", buf, len(r.Payload))
	}
	return buf
}
