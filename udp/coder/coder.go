// Package coder converts messages to and from the CoAP over UDP wire format
// (RFC 7252 section 3).
package coder

import (
	"encoding/binary"
	"errors"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
)

var DefaultCoder = new(Coder)

type Coder struct{}

const headerSize = 4

func (c *Coder) Size(m *message.Message) (int, error) {
	if len(m.Token) > message.MaxTokenSize {
		return -1, message.ErrInvalidTokenLen
	}
	size := headerSize + len(m.Token) + m.Options.Size()
	if len(m.Payload) > 0 {
		// for separator 0xff
		size += 1 + len(m.Payload)
	}
	return size, nil
}

// Encode writes m into buf. When buf is too small it returns the required
// size together with message.ErrTooSmall.
func (c *Coder) Encode(m *message.Message, buf []byte) (int, error) {
	/*
	     0                   1                   2                   3
	    0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	   |Ver| T |  TKL  |      Code     |          Message ID           |
	   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	   |   Token (if any, TKL bytes) ...
	   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	   |   Options (if any) ...
	   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	   |1 1 1 1 1 1 1 1|    Payload (if any) ...
	   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	*/
	if !message.ValidateType(m.Type) {
		return -1, ErrInvalidType
	}
	if !m.Code.Sendable() {
		return -1, ErrInternalCode
	}
	size, err := c.Size(m)
	if err != nil {
		return -1, err
	}
	if len(buf) < size {
		return size, message.ErrTooSmall
	}

	buf[0] = (message.Version << 6) | byte(m.Type)<<4 | byte(0xf&len(m.Token))
	buf[1] = byte(m.Code)
	binary.BigEndian.PutUint16(buf[2:4], m.MessageID)
	n := headerSize
	n += copy(buf[n:], m.Token)

	optionsLen, err := m.Options.Marshal(buf[n:])
	if err != nil {
		return -1, err
	}
	n += optionsLen

	if len(m.Payload) > 0 {
		buf[n] = 0xff
		n++
		n += copy(buf[n:], m.Payload)
	}
	return n, nil
}

// Marshal encodes m into a new buffer of at most maxSize bytes.
func (c *Coder) Marshal(m *message.Message, maxSize int) ([]byte, error) {
	size, err := c.Size(m)
	if err != nil {
		return nil, err
	}
	if size > maxSize {
		return nil, ErrMessageTooLarge
	}
	buf := make([]byte, size)
	n, err := c.Encode(m, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Decode parses data into m. Token, option values and payload alias data.
func (c *Coder) Decode(data []byte, m *message.Message) (int, error) {
	size := len(data)
	if size < headerSize {
		return -1, ErrMessageTruncated
	}

	if data[0]>>6 != message.Version {
		return -1, ErrMessageInvalidVersion
	}

	typ := message.Type((data[0] >> 4) & 0x3)
	tokenLen := int(data[0] & 0xf)
	if tokenLen > message.MaxTokenSize {
		return -1, message.ErrInvalidTokenLen
	}

	code := codes.Code(data[1])
	messageID := binary.BigEndian.Uint16(data[2:4])
	data = data[headerSize:]
	if code == codes.Empty && (tokenLen > 0 || len(data) > 0) {
		return -1, ErrEmptyMessageNotEmpty
	}
	if len(data) < tokenLen {
		return -1, ErrMessageTruncated
	}
	token := data[:tokenLen]
	if len(token) == 0 {
		token = nil
	}
	data = data[tokenLen:]

	var options message.Options
	proc, err := options.Unmarshal(data, message.CoapOptionDefs)
	if err != nil {
		return -1, err
	}
	data = data[proc:]
	var payload []byte
	if len(data) > 0 {
		// options stop only at the payload marker
		payload = data[1:]
		if len(payload) == 0 {
			return -1, ErrPayloadMarkerWithoutPayload
		}
	}

	m.Options = options
	m.Payload = payload
	m.Code = code
	m.Token = token
	m.Type = typ
	m.MessageID = messageID

	return size, nil
}

// PeekHeader reads the type and message id without decoding the rest of
// data. It lets a caller answer a message that failed to decode.
func PeekHeader(data []byte) (message.Type, uint16, error) {
	if len(data) < headerSize {
		return 0, 0, ErrMessageTruncated
	}
	if data[0]>>6 != message.Version {
		return 0, 0, ErrMessageInvalidVersion
	}
	return message.Type((data[0] >> 4) & 0x3), binary.BigEndian.Uint16(data[2:4]), nil
}

// IsTooSmall reports whether err means the destination buffer was too small.
func IsTooSmall(err error) bool {
	return errors.Is(err, message.ErrTooSmall)
}
