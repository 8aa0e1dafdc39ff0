// Package blockwise implements the Block2 (RFC 7959) option encoding and the
// server side negotiation that slices a handler's payload into blocks.
package blockwise

import (
	"fmt"

	"github.com/plgd-dev/coap-engine/message"
)

// Block Option value is represented: https://tools.ietf.org/html/rfc7959#section-2.2
//
//	 0
//	 0 1 2 3 4 5 6 7
//	+-+-+-+-+-+-+-+-+
//	|  NUM  |M| SZX |
//	+-+-+-+-+-+-+-+-+
//	 0                   1
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|          NUM          |M| SZX |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	 0                   1                   2
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                   NUM                 |M| SZX |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
const (
	// max block size is 3bytes: https://tools.ietf.org/html/rfc7959#section-2.1
	maxBlockValue = 0xffffff
	// maxBlockNumber is 20bits (NUM)
	maxBlockNumber = 0xfffff
	// moreBlocksFollowingMask is represented by one bit (M)
	moreBlocksFollowingMask = 0x8
	// szxMask last 3bits represents SZX (SZX)
	szxMask = 0x7
)

// SZX enum representation for the size of the block: https://tools.ietf.org/html/rfc7959#section-2.2
type SZX uint8

const (
	// SZX16 block of size 16bytes
	SZX16 SZX = 0
	// SZX32 block of size 32bytes
	SZX32 SZX = 1
	// SZX64 block of size 64bytes
	SZX64 SZX = 2
	// SZX128 block of size 128bytes
	SZX128 SZX = 3
	// SZX256 block of size 256bytes
	SZX256 SZX = 4
	// SZX512 block of size 512bytes
	SZX512 SZX = 5
	// SZX1024 block of size 1024bytes
	SZX1024 SZX = 6
	// szxReserved is BERT, which needs a reliable transport.
	szxReserved SZX = 7
)

// Size number of bytes, or -1 for an invalid SZX.
func (s SZX) Size() int {
	if s >= szxReserved {
		return -1
	}
	return 1 << (uint(s) + 4)
}

// SZXFromSize returns the exponent of a block size in 16..1024.
func SZXFromSize(size int) (SZX, error) {
	for s := SZX16; s < szxReserved; s++ {
		if s.Size() == size {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrBlockInvalidSize, size)
}

// EncodeBlockOption encodes block values to coap option.
func EncodeBlockOption(szx SZX, blockNumber uint32, moreBlocksFollowing bool) (uint32, error) {
	if szx >= szxReserved {
		return 0, ErrInvalidSZX
	}
	if blockNumber > maxBlockNumber {
		return 0, ErrBlockNumberExceedLimit
	}
	blockVal := blockNumber << 4
	if moreBlocksFollowing {
		blockVal |= moreBlocksFollowingMask
	}
	blockVal |= uint32(szx)
	return blockVal, nil
}

// DecodeBlockOption decodes coap block option to block values.
func DecodeBlockOption(blockVal uint32) (szx SZX, blockNumber uint32, moreBlocksFollowing bool, err error) {
	if blockVal > maxBlockValue {
		err = ErrBlockInvalidSize
		return
	}
	szx = SZX(blockVal & szxMask)
	moreBlocksFollowing = blockVal&moreBlocksFollowingMask != 0
	blockNumber = blockVal >> 4
	if szx >= szxReserved {
		err = ErrInvalidSZX
	}
	return
}

// Block is a decoded Block1 or Block2 option.
type Block struct {
	Num  uint32
	More bool
	SZX  SZX
}

// Size returns the block size in bytes.
func (b Block) Size() int {
	return b.SZX.Size()
}

// Offset returns the byte offset of the block: Num << (SZX+4).
func (b Block) Offset() int64 {
	return int64(b.Num) << (uint(b.SZX) + 4)
}

// Get reads the block option id from m. found is false when m carries none.
func Get(m *message.Message, id message.OptionID) (b Block, found bool, err error) {
	v, err := m.Options.GetUint32(id)
	if err != nil {
		if message.IsNotFound(err) {
			return Block{}, false, nil
		}
		return Block{}, true, err
	}
	szx, num, more, err := DecodeBlockOption(v)
	if err != nil {
		return Block{}, true, err
	}
	return Block{Num: num, More: more, SZX: szx}, true, nil
}

// Set replaces the block option id of m by (num, more, size).
func Set(m *message.Message, id message.OptionID, num uint32, more bool, size int) error {
	szx, err := SZXFromSize(size)
	if err != nil {
		return err
	}
	v, err := EncodeBlockOption(szx, num, more)
	if err != nil {
		return err
	}
	m.Options = m.Options.SetUint32(id, v)
	return nil
}
