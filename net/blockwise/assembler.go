package blockwise

import (
	"io"

	"github.com/dsnet/golib/memfile"
)

// Assembler reassembles a Block2 transfer into one body. Blocks are written at
// their own offsets, so a repeated block overwrites itself.
type Assembler struct {
	file *memfile.File
}

func NewAssembler() *Assembler {
	return &Assembler{file: memfile.New(nil)}
}

// WriteBlock stores payload at the offset addressed by b.
func (a *Assembler) WriteBlock(b Block, payload []byte) error {
	_, err := a.file.WriteAt(payload, b.Offset())
	return err
}

// Append stores payload after the bytes written so far. It serves responses
// that carry no Block2 option.
func (a *Assembler) Append(payload []byte) error {
	if _, err := a.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	_, err := a.file.Write(payload)
	return err
}

// Bytes returns the reassembled body.
func (a *Assembler) Bytes() []byte {
	return a.file.Bytes()
}
