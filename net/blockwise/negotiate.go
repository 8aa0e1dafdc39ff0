package blockwise

import (
	"fmt"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
	pkgMath "github.com/plgd-dev/coap-engine/pkg/math"
)

// OutOfScopeMessage is the diagnostic payload of a 4.02 reply to a block
// that starts past the end of the resource.
const OutOfScopeMessage = "BlockOutOfScope"

// Window is the Block2 window a request asked for, with the size clamped to
// the server's maximum block size.
type Window struct {
	// Requested is false when the request carried no Block2 option.
	Requested bool
	Num       uint32
	Size      int
	Offset    int32
}

// RequestedWindow reads the Block2 option of req. A requested size larger
// than maxSize is reduced to maxSize and Num is rescaled so that it still
// addresses the same offset.
func RequestedWindow(req *message.Message, maxSize int) (Window, error) {
	b, found, err := Get(req, message.Block2)
	if err != nil {
		return Window{}, err
	}
	if !found {
		return Window{Size: maxSize}, nil
	}
	offset, err := pkgMath.SafeCastTo[int32](b.Offset())
	if err != nil {
		return Window{}, fmt.Errorf("%w: %w", ErrBlockNumberExceedLimit, err)
	}
	w := Window{Requested: true, Num: b.Num, Size: b.Size(), Offset: offset}
	if w.Size > maxSize {
		w.Size = maxSize
		w.Num = uint32(offset) / uint32(maxSize)
	}
	return w, nil
}

// Negotiate applies block-wise transfer rules to resp after the handler ran.
//
// newOffset is the offset slot the handler was given. A handler that left it
// equal to w.Offset is block-unaware and produced the whole resource; the
// payload is then sliced here. A handler that moved it streams on its own;
// -1 marks its last block.
//
// ErrBlockOutOfRange means resp has been rewritten to 4.02 and should still be
// sent. ErrBlock1Unsupported means resp must be replaced by an error reply.
func Negotiate(req, resp *message.Message, w Window, newOffset int32, maxSize int) error {
	if req.Options.HasOption(message.Block1) && resp.Code < codes.BadRequest && !resp.Options.HasOption(message.Block1) {
		return ErrBlock1Unsupported
	}
	payloadLen := int32(len(resp.Payload))
	size := int32(w.Size)
	switch {
	case w.Requested && newOffset == w.Offset:
		if w.Offset >= payloadLen {
			resp.Code = codes.BadOption
			resp.Options = resp.Options.Remove(message.Block2)
			resp.Payload = []byte(OutOfScopeMessage)
			return ErrBlockOutOfRange
		}
		remaining := payloadLen - w.Offset
		if err := Set(resp, message.Block2, w.Num, remaining > size, w.Size); err != nil {
			return err
		}
		resp.Payload = resp.Payload[w.Offset : w.Offset+min(remaining, size)]
	case w.Requested:
		if err := Set(resp, message.Block2, w.Num, newOffset != -1 || payloadLen > size, w.Size); err != nil {
			return err
		}
		if payloadLen > size {
			resp.Payload = resp.Payload[:size]
		}
	case newOffset != 0:
		if err := Set(resp, message.Block2, 0, newOffset != -1, maxSize); err != nil {
			return err
		}
		if payloadLen > int32(maxSize) {
			resp.Payload = resp.Payload[:maxSize]
		}
	}
	return nil
}
