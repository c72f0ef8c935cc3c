package mmsh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Chunk types as they appear little-endian on the wire ("$H", "$D", ...).
const (
	ChunkHeader       uint16 = 0x4824
	ChunkData         uint16 = 0x4424
	ChunkEnd          uint16 = 0x4524
	ChunkStreamChange uint16 = 0x4324
	ChunkMetadata     uint16 = 0x4D24
)

var ErrShortChunk = errors.New("mmsh: chunk shorter than its extended header")

// Chunk is one framed unit of an MMSH response body.
type Chunk struct {
	Type uint16
	Seq  uint32
	Data []byte
}

func (c *Chunk) String() string {
	return fmt.Sprintf("$%c seq=%d len=%d", byte(c.Type>>8), c.Seq, len(c.Data))
}

func extHeaderLen(typ uint16) int {
	switch typ {
	case ChunkEnd, ChunkStreamChange:
		return 4
	case ChunkHeader, ChunkData:
		return 8
	default:
		return 0
	}
}

// ReadChunk reads the next chunk from r. io.EOF is returned only when r is
// exhausted on a chunk boundary.
func ReadChunk(r io.Reader) (*Chunk, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	typ := binary.LittleEndian.Uint16(hdr[0:2])
	length := int(binary.LittleEndian.Uint16(hdr[2:4]))

	ext := extHeaderLen(typ)
	if length < ext {
		return nil, ErrShortChunk
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return nil, err
	}

	c := &Chunk{Type: typ, Data: buf[ext:]}
	if ext >= 4 {
		c.Seq = binary.LittleEndian.Uint32(buf[0:4])
	}

	return c, nil
}

// WriteChunk frames data as a chunk of the given type.
func WriteChunk(w io.Writer, typ uint16, seq uint32, data []byte) error {
	ext := extHeaderLen(typ)
	length := ext + len(data)
	if length > 0xFFFF {
		return fmt.Errorf("mmsh: chunk payload too large: %d", len(data))
	}

	buf := make([]byte, 4+length)
	binary.LittleEndian.PutUint16(buf[0:2], typ)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(length))

	if ext >= 4 {
		binary.LittleEndian.PutUint32(buf[4:8], seq)
	}

	if ext == 8 {
		binary.LittleEndian.PutUint16(buf[10:12], uint16(length))
	}

	copy(buf[4+ext:], data)

	_, err := w.Write(buf)

	return err
}
