package message

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	pkgRand "github.com/plgd-dev/coap-engine/pkg/rand"
	"go.uber.org/atomic"
)

var weakRng = pkgRand.NewRand(time.Now().UnixNano())

var msgID = atomic.NewUint32(uint32(RandMID()))

// GetMID returns the next message id of the process-wide sequence.
func GetMID() uint16 {
	return uint16(msgID.Inc())
}

// RandMID returns a random message id used to seed the sequence.
func RandMID() uint16 {
	b := make([]byte, 2)
	_, err := rand.Read(b)
	if err != nil {
		// fallback to cryptographically insecure pseudo-random generator
		return uint16(weakRng.Uint32() >> 16)
	}
	return binary.BigEndian.Uint16(b)
}
