// Package codes defines the CoAP code space together with the internal
// status codes the engine uses while dispatching a message.
package codes

// A Code is an unsigned 8-bit class.detail value.
type Code uint8

// Request codes.
const (
	Empty  Code = 0
	GET    Code = 1
	POST   Code = 2
	PUT    Code = 3
	DELETE Code = 4
)

// Response codes.
const (
	Created                 Code = 65
	Deleted                 Code = 66
	Valid                   Code = 67
	Changed                 Code = 68
	Content                 Code = 69
	Continue                Code = 95
	BadRequest              Code = 128
	Unauthorized            Code = 129
	BadOption               Code = 130
	Forbidden               Code = 131
	NotFound                Code = 132
	MethodNotAllowed        Code = 133
	NotAcceptable           Code = 134
	RequestEntityIncomplete Code = 136
	PreconditionFailed      Code = 140
	RequestEntityTooLarge   Code = 141
	UnsupportedMediaType    Code = 143
	InternalServerError     Code = 160
	NotImplemented          Code = 161
	BadGateway              Code = 162
	ServiceUnavailable      Code = 163
	GatewayTimeout          Code = 164
	ProxyingNotSupported    Code = 165
)

// Internal status codes. They never leave the engine: a reply carrying one of
// them is downgraded to InternalServerError before it is serialized.
const (
	MemoryAllocationError    Code = 192
	PacketSerializationError Code = 193
	ManualResponse           Code = 240
	PingResponse             Code = 241
)

// MaxSendable is the largest code that may appear on the wire.
const MaxSendable Code = 191

// Class returns the class digit (c.dd).
func (c Code) Class() uint8 {
	return uint8(c) >> 5
}

// Detail returns the detail digits (c.dd).
func (c Code) Detail() uint8 {
	return uint8(c) & 0x1f
}

// IsRequest reports whether c is one of the request methods GET..DELETE.
func (c Code) IsRequest() bool {
	return c >= GET && c <= DELETE
}

// IsSuccess reports whether c belongs to the 2.xx class.
func (c Code) IsSuccess() bool {
	return c.Class() == 2
}

// Sendable reports whether c may be put on the wire as is.
func (c Code) Sendable() bool {
	return c <= MaxSendable
}

// ToSendable maps internal codes to InternalServerError.
func (c Code) ToSendable() Code {
	if c.Sendable() {
		return c
	}
	return InternalServerError
}
