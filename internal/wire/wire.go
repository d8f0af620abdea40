package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 1
	kindEntry byte = 1
)

var (
	ErrCorrupt = errors.New("swcache: corrupt entry")
	magic4     = [...]byte{'S', 'W', 'C', 'E'}
)

const header = 4 + 1 + 1 + 8 + 2

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Frame is a decoded stored response: the request key it was written under,
// when it was written, and the codec payload.
type Frame struct {
	Key      string
	StoredAt int64 // unix nanos
	Payload  []byte
}

// Entry: magic(4) | ver(1) | kind(1=entry) | storedAt(i64 be) | keyLen(u16 be) | key | vlen(u32 be) | payload(vlen)
func Encode(f Frame) []byte {
	if l := len(f.Key); l == 0 || l > 0xFFFF {
		panic("swcache: invalid key length in frame")
	}
	var buf bytes.Buffer
	buf.Grow(header + len(f.Key) + 4 + len(f.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(f.StoredAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(f.Key)))
	buf.Write(u2[:])
	buf.WriteString(f.Key)

	binary.BigEndian.PutUint32(u4[:], uint32(len(f.Payload)))
	buf.Write(u4[:])
	buf.Write(f.Payload)
	return buf.Bytes()
}

// Decode parses a frame. Payload aliases b.
func Decode(b []byte) (Frame, error) {
	if len(b) < header || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return Frame{}, ErrCorrupt
	}
	off := 6

	storedAt := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	klen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if klen == 0 || klen > len(b)-off {
		return Frame{}, ErrCorrupt
	}
	key := string(b[off : off+klen])
	off += klen

	if off+4 > len(b) {
		return Frame{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // trailing bytes are corruption too
		return Frame{}, ErrCorrupt
	}

	return Frame{Key: key, StoredAt: storedAt, Payload: b[off : off+vlen]}, nil
}
