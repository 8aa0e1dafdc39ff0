package message

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"hash/crc64"
)

type Token []byte

func (t Token) String() string {
	return hex.EncodeToString(t)
}

// Equal compares tokens byte by byte.
func (t Token) Equal(o Token) bool {
	return string(t) == string(o)
}

// GetToken generates a random token of MaxTokenSize bytes.
func GetToken() (Token, error) {
	b := make(Token, MaxTokenSize)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

var etagTable = crc64.MakeTable(crc64.ISO)

// CalcETag calculates an ETag from payload via CRC64.
func CalcETag(payload []byte) []byte {
	if payload == nil {
		return nil
	}
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, crc64.Checksum(payload, etagTable))
	return b
}
